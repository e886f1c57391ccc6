package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name: "minimal",
			doc:  `{"id":"e1","type":"issue.create.succeeded","timestamp":"2024-01-01T00:00:00Z"}`,
		},
		{
			name: "full",
			doc: `{"id":"e1","type":"workflow.step.failed","timestamp":"2024-01-01T00:00:00Z",
				"tags":{"workflowId":"W1"},"context":{"workflowId":"W1"},"severity":"error",
				"data":{"message":"boom","attempt":1},"source":"runner"}`,
		},
		{
			name:    "missing timestamp",
			doc:     `{"id":"e1","type":"issue.create.succeeded"}`,
			wantErr: true,
		},
		{
			name:    "non-string tag",
			doc:     `{"id":"e1","type":"a.b","timestamp":"2024-01-01T00:00:00Z","tags":{"n":1}}`,
			wantErr: true,
		},
		{
			name:    "unknown severity",
			doc:     `{"id":"e1","type":"a.b","timestamp":"2024-01-01T00:00:00Z","severity":"loud"}`,
			wantErr: true,
		},
		{
			name:    "undotted type",
			doc:     `{"id":"e1","type":"heartbeat","timestamp":"2024-01-01T00:00:00Z"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			doc:     `{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument([]byte(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRaw(t *testing.T) {
	raw := Raw{ID: "e1", Type: "code.change.applied", Timestamp: "2024-01-01T00:00:00Z", Severity: "info"}
	assert.NoError(t, ValidateRaw(raw))

	raw.Severity = "LOUD"
	assert.Error(t, ValidateRaw(raw))
}
