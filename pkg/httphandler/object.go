package httphandler

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	// Packages
	httprequest "github.com/mutablelogic/go-server/pkg/httprequest"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
	manager "github.com/mutablelogic/go-transfer/pkg/manager"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// HANDLER FUNCTIONS

// Path: /object/{name}/{path...}
// GET returns the content of a stored object and HEAD its metadata as
// headers. DELETE removes the object, for example one left behind when the
// record for an upload could not be saved.
func ObjectHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/object/{name}/{path...}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = objectGet(w, r, mgr)
			case http.MethodHead:
				_ = objectHead(w, r, mgr)
			case http.MethodDelete:
				_ = objectDelete(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "Read a stored object",
			},
			Head: &openapi.Operation{
				Description: "Get stored object metadata",
			},
			Delete: &openapi.Operation{
				Description: "Delete a stored object",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func objectGet(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	reader, obj, err := mgr.ReadObject(r.Context(), r.PathValue("name"), schema.ReadObjectRequest{
		GetObjectRequest: schema.GetObjectRequest{Path: types.NormalisePath(r.PathValue("path"))},
	})
	if err != nil {
		return httpresponse.Error(w, err)
	}
	defer reader.Close()

	writeObjectHeaders(w, obj)
	w.WriteHeader(http.StatusOK)
	_, err = io.Copy(w, reader)
	return err
}

func objectHead(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	obj, err := mgr.GetObject(r.Context(), r.PathValue("name"), schema.GetObjectRequest{
		Path: types.NormalisePath(r.PathValue("path")),
	})
	if err != nil {
		return httpresponse.Error(w, err)
	}
	writeObjectHeaders(w, obj)
	w.WriteHeader(http.StatusOK)
	return nil
}

func objectDelete(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	obj, err := mgr.DeleteObject(r.Context(), r.PathValue("name"), schema.DeleteObjectRequest{
		Path: types.NormalisePath(r.PathValue("path")),
	})
	if err != nil {
		return httpresponse.Error(w, err)
	}
	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), obj)
}

// writeObjectHeaders sets Content-Type, Content-Disposition, Content-Length,
// ETag and Last-Modified from the object metadata
func writeObjectHeaders(w http.ResponseWriter, obj *schema.Object) {
	contentType := obj.ContentType
	if contentType == "" {
		contentType = types.ContentTypeBinary
	}
	w.Header().Set(types.ContentTypeHeader, contentType)
	if filename := filepath.Base(obj.Path); filename != "" && filename != "." && filename != "/" {
		if cd := mime.FormatMediaType("inline", map[string]string{"filename": filename}); cd != "" {
			w.Header().Set(types.ContentDispositonHeader, cd)
		}
	}
	w.Header().Set(types.ContentPathHeader, obj.Path)
	if obj.ETag != "" {
		w.Header().Set(types.ContentHashHeader, obj.ETag)
	}
	w.Header().Set(types.ContentLengthHeader, strconv.FormatInt(obj.Size, 10))
	if !obj.ModTime.IsZero() {
		w.Header().Set(types.ContentModifiedHeader, obj.ModTime.Format(http.TimeFormat))
	}
}
