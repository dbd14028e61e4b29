package httphandler

import (
	"net/http"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
	manager "github.com/mutablelogic/go-transfer/pkg/manager"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// HANDLER FUNCTIONS

// Path: /progress/{id}
// GET streams progress events for a transfer as Server-Sent Events.
//
// The first event is the last known state when the transfer has reported any
// progress; a pending transfer sends nothing until its first event. The
// stream closes after the terminal event. An unknown transfer returns a 404
// error before the stream is opened.
func ProgressHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/progress/{id}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = progressStream(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "Stream progress events for a transfer (text/event-stream)",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func progressStream(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	sub, err := mgr.Publisher().Subscribe(r.PathValue("id"))
	if err != nil {
		return httpresponse.Error(w, err)
	}
	defer sub.Close()

	// Open the SSE stream; this commits 200 OK and no HTTP errors are
	// possible after this point
	stream := httpresponse.NewTextStream(w)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	for {
		// Ends with io.EOF after the terminal event, or when the client goes away
		e, err := sub.Next(r.Context())
		if err != nil {
			break
		}
		stream.Write(schema.ProgressEventName, e)
	}
	return stream.Close()
}
