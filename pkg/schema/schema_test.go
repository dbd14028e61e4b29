package schema_test

import (
	"encoding/json"
	"testing"
	"time"

	// Packages
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	assert "github.com/stretchr/testify/assert"
)

func Test_Schema_StageOrder(t *testing.T) {
	assert := assert.New(t)

	stages := schema.Stages()
	assert.Len(stages, 3)
	for i := 1; i < len(stages); i++ {
		assert.True(stages[i-1].Before(stages[i]))
		assert.False(stages[i].Before(stages[i-1]))
	}
	assert.False(schema.StageTransport.Before(schema.StageTransport))
	assert.False(schema.Stage("bogus").Valid())
	assert.Equal(-1, schema.Stage("bogus").Index())
}

func Test_Schema_StatusTerminal(t *testing.T) {
	assert := assert.New(t)
	assert.False(schema.StatusPending.Terminal())
	assert.False(schema.StatusActive.Terminal())
	assert.True(schema.StatusCompleted.Terminal())
	assert.True(schema.StatusFailed.Terminal())
	assert.False(schema.Status("done").Valid())
}

func Test_Schema_TransferID(t *testing.T) {
	assert := assert.New(t)

	a, b := schema.NewTransferID(), schema.NewTransferID()
	assert.NotEqual(a, b)
	assert.True(schema.IsTransferID(a))
	assert.True(schema.IsTransferID("upload_1.part-2"))
	assert.False(schema.IsTransferID(""))
	assert.False(schema.IsTransferID("a/b"))
	assert.False(schema.IsTransferID("has space"))
}

func Test_Schema_EventValidate(t *testing.T) {
	assert := assert.New(t)

	e := schema.ProgressEvent{
		TransferID: "t1",
		Stage:      schema.StageTransport,
		Status:     schema.StatusActive,
		Percent:    12.5,
	}
	assert.NoError(e.Validate())

	bad := e
	bad.Stage = "upload"
	assert.Error(bad.Validate())

	bad = e
	bad.Status = "running"
	assert.Error(bad.Validate())

	bad = e
	bad.BytesTransferred = -1
	assert.Error(bad.Validate())

	bad = e
	bad.TransferID = ""
	assert.Error(bad.Validate())
}

func Test_Schema_EventWireFormat(t *testing.T) {
	assert := assert.New(t)

	total := int64(100)
	e := schema.ProgressEvent{
		TransferID:       "t1",
		Stage:            schema.StageRemoteProcessing,
		Status:           schema.StatusActive,
		Percent:          40,
		BytesTransferred: 40,
		TotalBytes:       &total,
		Timestamp:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(e)
	assert.NoError(err)

	var fields map[string]any
	assert.NoError(json.Unmarshal(data, &fields))
	assert.Equal("t1", fields["transferId"])
	assert.Equal("remoteProcessing", fields["stage"])
	assert.Equal("active", fields["status"])
	assert.Equal(float64(100), fields["totalBytes"])
	assert.NotContains(fields, "throughputHint")

	decoded, err := schema.Decode(data)
	assert.NoError(err)
	assert.Equal(e.Stage, decoded.Stage)
	assert.Equal(*e.TotalBytes, *decoded.TotalBytes)
}

func Test_Schema_TransferEvent(t *testing.T) {
	assert := assert.New(t)

	tr := schema.Transfer{ID: "t1", Stage: schema.StageTransport, Status: schema.StatusPending}
	_, ok := tr.Event()
	assert.False(ok)

	tr.Events = 1
	tr.Status = schema.StatusActive
	tr.Percent = 30
	tr.TotalBytes = 10
	e, ok := tr.Event()
	assert.True(ok)
	assert.Equal(float64(30), e.Percent)
	assert.Equal(int64(10), *e.TotalBytes)
	assert.False(tr.Terminal())
}
