package httphandler

import (
	"net/http"

	// Packages
	httprequest "github.com/mutablelogic/go-server/pkg/httprequest"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	store "github.com/mutablelogic/go-transfer/pkg/store"
)

///////////////////////////////////////////////////////////////////////////////
// HANDLER FUNCTIONS

// Path: /record
// GET lists saved records, newest first. POST saves a record.
func RecordListHandler(records *store.Store) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/record", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = recordList(w, r, records)
			case http.MethodPost:
				_ = recordCreate(w, r, records)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "List saved records",
			},
			Post: &openapi.Operation{
				Description: "Save a record for an uploaded file",
			},
		})
}

// Path: /record/{id}
// GET returns the record saved for a transfer.
func RecordHandler(records *store.Store) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/record/{id}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = recordGet(w, r, records)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "Get the record saved for a transfer",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func recordList(w http.ResponseWriter, r *http.Request, records *store.Store) error {
	// Default to the maximum page when no limit is given
	request := schema.ListRecordsRequest{Limit: schema.MaxListLimit}
	if err := httprequest.Query(r.URL.Query(), &request); err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
	}

	response, err := records.ListRecords(r.Context(), request)
	if err != nil {
		return httpresponse.Error(w, err)
	}
	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), response)
}

func recordCreate(w http.ResponseWriter, r *http.Request, records *store.Store) error {
	var meta schema.RecordMeta
	if err := httprequest.Read(r, &meta); err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
	}

	record, err := records.CreateRecord(r.Context(), meta)
	if err != nil {
		return httpresponse.Error(w, err)
	}
	return httpresponse.JSON(w, http.StatusCreated, httprequest.Indent(r), record)
}

func recordGet(w http.ResponseWriter, r *http.Request, records *store.Store) error {
	record, err := records.GetRecord(r.Context(), r.PathValue("id"))
	if err != nil {
		return httpresponse.Error(w, err)
	}
	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), record)
}
