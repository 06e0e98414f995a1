package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/markd/internal/domain"
)

func TestEncodeDecodeInsert(t *testing.T) {
	row := domain.Bookmark{
		ID:        "0190d6c4-0000-7000-8000-000000000001",
		URL:       "https://example.com",
		Title:     "Example",
		Owner:     "user-1",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 123000, time.UTC),
	}

	data, err := EncodeEvent(domain.Inserted{Row: row})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"operation":"INSERT"`)
	assert.Contains(t, string(data), `"user_id":"user-1"`)

	evt, status, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, status)

	ins, ok := evt.(domain.Inserted)
	require.True(t, ok, "want Inserted, got %T", evt)
	assert.Equal(t, row.ID, ins.Row.ID)
	assert.Equal(t, row.URL, ins.Row.URL)
	assert.Equal(t, row.Title, ins.Row.Title)
	assert.Equal(t, row.Owner, ins.Row.Owner)
	assert.True(t, row.CreatedAt.Equal(ins.Row.CreatedAt))
}

func TestDecodeDeleteWithIdentifierOnly(t *testing.T) {
	evt, _, err := Decode([]byte(`{"type":"change","operation":"DELETE","row":{"id":"abc"}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.Deleted{ID: "abc"}, evt)
}

func TestDecodeStatus(t *testing.T) {
	data, err := EncodeStatus(domain.StatusSubscribed)
	require.NoError(t, err)

	evt, status, err := Decode(data)
	require.NoError(t, err)
	assert.Nil(t, evt)
	assert.Equal(t, domain.StatusSubscribed, status)
}

func TestDecodeRejectsUnknownFrames(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: `{`},
		{name: "unknown type", input: `{"type":"presence"}`},
		{name: "unknown status", input: `{"type":"system","status":"JOINED"}`},
		{name: "unknown operation", input: `{"type":"change","operation":"UPDATE","row":{"id":"a"}}`},
		{name: "missing row", input: `{"type":"change","operation":"INSERT"}`},
		{name: "missing id", input: `{"type":"change","operation":"DELETE","row":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}
