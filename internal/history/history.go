// Package history persists per-channel conversation windows. Each channel
// keeps a bounded ordered log of turn entries; media payloads live in the
// blob store and appear here only as placeholder records.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/masterphooey/tater/internal/store"
	"github.com/masterphooey/tater/pkg/content"
)

// DefaultMax is the per-channel entry cap when none is configured.
const DefaultMax = 20

// MediaRef is the persisted stand-in for a media item. The payload stays
// in the blob store.
type MediaRef struct {
	Kind     content.Kind `json:"kind"`
	Name     string       `json:"name"`
	Mimetype string       `json:"mimetype,omitempty"`
	BlobKey  string       `json:"blob_key,omitempty"`
}

// Content is either plain text or a media reference.
type Content struct {
	Text  string
	Media *MediaRef
}

// MarshalJSON encodes text content as a bare JSON string and media content
// as the reference object, matching the stored wire form.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.Media != nil {
		return json.Marshal(c.Media)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Text = text
		c.Media = nil
		return nil
	}
	var ref MediaRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return fmt.Errorf("decoding history content: %w", err)
	}
	c.Text = ""
	c.Media = &ref
	return nil
}

// Entry is one stored conversation turn.
type Entry struct {
	Role     string  `json:"role"`
	Username string  `json:"username,omitempty"`
	Content  Content `json:"content"`
}

// Store reads and writes channel histories on top of the persistence
// layer's log operations.
type Store struct {
	store store.Store
	max   int
}

// New builds a history store capping each channel at max entries;
// max <= 0 uses DefaultMax.
func New(s store.Store, max int) *Store {
	if max <= 0 {
		max = DefaultMax
	}
	return &Store{store: s, max: max}
}

// Key builds the channel key for a transport and channel id.
func Key(transport, channelID string) string {
	return transport + ":" + channelID
}

// Append records one turn at the tail of the channel log and trims the
// head to the configured cap.
func (h *Store) Append(ctx context.Context, key string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}
	if err := h.store.LogAppend(ctx, "history:"+key, data, h.max); err != nil {
		return fmt.Errorf("appending history for %s: %w", key, err)
	}
	return nil
}

// Read returns the most recent limit entries, oldest first. limit <= 0 or
// beyond the cap returns the whole stored window. Records that no longer
// decode are dropped rather than failing the read.
func (h *Store) Read(ctx context.Context, key string, limit int) ([]Entry, error) {
	records, err := h.store.LogRange(ctx, "history:"+key, limit)
	if err != nil {
		return nil, fmt.Errorf("reading history for %s: %w", key, err)
	}
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		var e Entry
		if err := json.Unmarshal(rec, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Clear wipes the channel's history.
func (h *Store) Clear(ctx context.Context, key string) error {
	if err := h.store.LogDelete(ctx, "history:"+key); err != nil {
		return fmt.Errorf("clearing history for %s: %w", key, err)
	}
	return nil
}

// RenderText flattens an entry into the plain-text line fed back to the
// model. User turns carry the sender prefix so the model can track
// multi-user channels; assistant turns are verbatim. Media renders as a
// bracketed placeholder.
func RenderText(e Entry) string {
	text := e.Content.Text
	if e.Content.Media != nil {
		m := e.Content.Media
		kind := string(m.Kind)
		if kind == "" {
			kind = "file"
		}
		kind = strings.ToUpper(kind[:1]) + kind[1:]
		text = fmt.Sprintf("[%s: %s]", kind, m.Name)
	}
	if e.Role == "user" && e.Username != "" {
		return e.Username + ": " + text
	}
	return text
}

// Message is a rendered turn ready for a completion request.
type Message struct {
	Role    string
	Content string
}

// Render converts entries into completion messages.
func Render(entries []Entry) []Message {
	msgs := make([]Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, Message{Role: e.Role, Content: RenderText(e)})
	}
	return msgs
}

// CollapseAlternation rewrites a message sequence for providers that
// require strict user/assistant alternation starting with a user turn:
// consecutive same-role messages merge into one, and a leading assistant
// run is dropped.
func CollapseAlternation(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if len(out) == 0 {
			if m.Role != "user" {
				continue
			}
			out = append(out, m)
			continue
		}
		last := &out[len(out)-1]
		if m.Role == last.Role {
			last.Content += "\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
