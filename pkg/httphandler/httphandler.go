package httphandler

import (
	"errors"
	"net/http"

	// Packages
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	manager "github.com/mutablelogic/go-transfer/pkg/manager"
	store "github.com/mutablelogic/go-transfer/pkg/store"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Router is the interface required to register HTTP handlers.
type Router interface {
	RegisterFunc(path string, handler http.HandlerFunc, middleware bool, spec *openapi.PathItem) error
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// RegisterHandlers registers all transfer HTTP handlers on the provided
// router. The record handlers are registered only when records is not nil.
func RegisterHandlers(mgr *manager.Manager, records *store.Store, router Router) error {
	var result error
	register := func(path string, handler http.HandlerFunc, spec *openapi.PathItem) {
		result = errors.Join(result, router.RegisterFunc(path, handler, true, spec))
	}
	register(BackendListHandler(mgr))
	register(ObjectListHandler(mgr))
	register(ObjectHandler(mgr))
	register(TransferListHandler(mgr))
	register(TransferHandler(mgr))
	register(ProgressHandler(mgr))
	if records != nil {
		register(RecordListHandler(records))
		register(RecordHandler(records))
	}
	return result
}
