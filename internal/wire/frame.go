// Package wire is the JSON frame format of the change feed. The same frame
// is published on the owner's Redis channel and relayed verbatim over the
// websocket, so the store, the relay and the subscriber agree on one shape.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/markd/internal/domain"
)

// Frame types.
const (
	TypeChange = "change"
	TypeSystem = "system"
)

// Change operations.
const (
	OpInsert = "INSERT"
	OpDelete = "DELETE"
)

var ErrUnknownFrame = errors.New("unknown feed frame")

// Frame is one message on the feed.
//
//	{"type":"system","status":"SUBSCRIBED"}
//	{"type":"change","operation":"INSERT","row":{...}}
//	{"type":"change","operation":"DELETE","row":{"id":"...","user_id":"..."}}
type Frame struct {
	Type      string               `json:"type"`
	Operation string               `json:"operation,omitempty"`
	Row       *Row                 `json:"row,omitempty"`
	Status    domain.ChannelStatus `json:"status,omitempty"`
}

// Row is Bookmark-shaped for inserts and carries only the identifier
// (plus owner) for deletes.
type Row struct {
	ID        string          `json:"id"`
	URL       string          `json:"url,omitempty"`
	Title     string          `json:"title,omitempty"`
	Owner     string          `json:"user_id,omitempty"`
	CreatedAt json.RawMessage `json:"created_at,omitempty"`
}

// EncodeEvent renders a change event as a frame.
func EncodeEvent(evt domain.Event) ([]byte, error) {
	var f Frame
	switch e := evt.(type) {
	case domain.Inserted:
		createdAt, err := json.Marshal(e.Row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal created_at: %w", err)
		}
		f = Frame{Type: TypeChange, Operation: OpInsert, Row: &Row{
			ID:        e.Row.ID,
			URL:       e.Row.URL,
			Title:     e.Row.Title,
			Owner:     e.Row.Owner,
			CreatedAt: createdAt,
		}}
	case domain.Deleted:
		f = Frame{Type: TypeChange, Operation: OpDelete, Row: &Row{ID: e.ID, Owner: e.Owner}}
	default:
		return nil, fmt.Errorf("%w: event %T", ErrUnknownFrame, evt)
	}
	return json.Marshal(f)
}

// EncodeStatus renders a lifecycle frame.
func EncodeStatus(status domain.ChannelStatus) ([]byte, error) {
	return json.Marshal(Frame{Type: TypeSystem, Status: status})
}

// Decode parses a frame. Exactly one of the returned event and status is
// set on success.
func Decode(data []byte) (domain.Event, domain.ChannelStatus, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal frame: %w", err)
	}

	switch f.Type {
	case TypeSystem:
		switch f.Status {
		case domain.StatusSubscribed, domain.StatusClosed, domain.StatusChannelError:
			return nil, f.Status, nil
		}
		return nil, "", fmt.Errorf("%w: status %q", ErrUnknownFrame, f.Status)
	case TypeChange:
		evt, err := decodeChange(f)
		return evt, "", err
	default:
		return nil, "", fmt.Errorf("%w: type %q", ErrUnknownFrame, f.Type)
	}
}

func decodeChange(f Frame) (domain.Event, error) {
	if f.Row == nil || f.Row.ID == "" {
		return nil, fmt.Errorf("%w: change without row id", ErrUnknownFrame)
	}

	switch f.Operation {
	case OpInsert:
		row := domain.Bookmark{
			ID:    f.Row.ID,
			URL:   f.Row.URL,
			Title: f.Row.Title,
			Owner: f.Row.Owner,
		}
		if len(f.Row.CreatedAt) > 0 {
			if err := json.Unmarshal(f.Row.CreatedAt, &row.CreatedAt); err != nil {
				return nil, fmt.Errorf("failed to unmarshal created_at: %w", err)
			}
		}
		return domain.Inserted{Row: row}, nil
	case OpDelete:
		return domain.Deleted{ID: f.Row.ID, Owner: f.Row.Owner}, nil
	default:
		return nil, fmt.Errorf("%w: operation %q", ErrUnknownFrame, f.Operation)
	}
}
