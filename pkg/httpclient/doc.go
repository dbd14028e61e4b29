// Package httpclient provides a typed Go client for the transfer REST API.
//
// Create a client with:
//
//	client, err := httpclient.New("http://localhost:8087/api")
//	if err != nil {
//	   panic(err)
//	}
//
// Then register a transfer, subscribe to its progress and upload the file:
//
//	session, err := client.CreateTransfer(ctx, schema.CreateTransferRequest{
//	   Backend:  "media",
//	   FileName: "lesson.mp4",
//	})
//	stream, err := client.Open(ctx, session.ID)
//	_, err = client.Upload(ctx, session.ID, "lesson.mp4", r, size, nil)
//
// The client is a transfer.Channel, so it can be handed to a supervisor which
// reconnects the progress stream when it drops.
package httpclient
