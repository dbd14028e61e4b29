package httphandler

import (
	"net/http"

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

// Path: /object/{name}
// GET lists stored objects in a backend. This is the authoritative listing
// a client falls back to when it cannot tell whether an upload finished.
func ObjectListHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/object/{name}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = objectList(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "List objects stored in a backend",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func objectList(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	var request schema.ListObjectsRequest

	// Read query parameters into request struct
	if err := httprequest.Query(r.URL.Query(), &request); err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
	}

	// Normalise path for consistency with object paths
	request.Path = types.NormalisePath(request.Path)

	// Get the list of objects from the manager
	response, err := mgr.ListObjects(r.Context(), r.PathValue("name"), request)
	if err != nil {
		return httpresponse.Error(w, err)
	}

	// Return the response as JSON
	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), response)
}
