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

// Path: /transfer
// GET lists live transfers. POST registers a transfer before any bytes are
// sent, so that a subscriber can attach to its progress first.
func TransferListHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/transfer", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = transferList(w, r, mgr)
			case http.MethodPost:
				_ = transferCreate(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "List live transfers",
			},
			Post: &openapi.Operation{
				Description: "Register a transfer",
			},
		})
}

// Path: /transfer/{id}
// GET returns the last known state of a transfer. POST uploads the file for
// a registered transfer using multipart/form-data (field name: "file"). The
// file is accepted once received and relayed to storage in the background.
func TransferHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/transfer/{id}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = transferGet(w, r, mgr)
			case http.MethodPost:
				_ = transferUpload(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "Get the last known state of a transfer",
			},
			Post: &openapi.Operation{
				Description: "Upload the file for a transfer using multipart/form-data (field name: \"file\")",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func transferList(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), mgr.ListTransfers(r.Context()))
}

func transferCreate(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	var req schema.CreateTransferRequest
	if err := httprequest.Read(r, &req); err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
	}

	session, err := mgr.RegisterTransfer(r.Context(), req)
	if err != nil {
		return httpresponse.Error(w, err)
	}
	return httpresponse.JSON(w, http.StatusCreated, httprequest.Indent(r), session)
}

func transferGet(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	session, err := mgr.GetTransfer(r.Context(), r.PathValue("id"))
	if err != nil {
		return httpresponse.Error(w, err)
	}
	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), session)
}

func transferUpload(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	id := r.PathValue("id")

	// Read multipart form data, with an optional transfer identifier which
	// must match the path
	var form struct {
		TransferID string       `json:"transferId"`
		Files      []types.File `json:"file"`
	}
	if err := httprequest.Read(r, &form); err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
	}
	defer func() {
		for _, f := range form.Files {
			f.Body.Close()
		}
	}()
	if len(form.Files) != 1 {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.Withf(`expected one "file" form field, got %d`, len(form.Files)))
	} else if form.TransferID != "" && form.TransferID != id {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.Withf("transfer %q does not match %q", form.TransferID, id))
	}

	// Spool the file and relay it in the background
	session, err := mgr.AcceptTransfer(r.Context(), id, form.Files[0].Body)
	if err != nil {
		return httpresponse.Error(w, err)
	}
	return httpresponse.JSON(w, http.StatusAccepted, httprequest.Indent(r), session)
}
