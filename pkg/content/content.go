// Package content defines the deliverable content items every transport
// consumes, and the normalizer that converts a plugin's loosely-typed
// return value into them.
//
// Plugins may return nil, a string, a media Item, a []Item, a []any mixing
// strings and media, or a plain map shaped like the wire media object.
// Normalize is the single chokepoint that turns all of those into an
// ordered []Item; downstream code never sees the loose forms.
package content

import (
	"fmt"
	"log/slog"
)

// Kind classifies a media item.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
	KindFile  Kind = "file"
)

// validKind reports whether k is one of the recognized media kinds.
func validKind(k Kind) bool {
	switch k {
	case KindImage, KindAudio, KindVideo, KindFile:
		return true
	}
	return false
}

// Item is a single deliverable unit: either text, or one media payload.
// Text items have Kind == "" and only Text set.
type Item struct {
	Text string

	Kind     Kind
	Name     string
	Mimetype string
	Bytes    []byte
	// BlobKey references payload bytes in the blob store. Normalize
	// resolves it into Bytes; transports always receive raw bytes.
	BlobKey string
}

// IsText reports whether the item is a text item.
func (it Item) IsText() bool { return it.Kind == "" }

// TextItem builds a text item.
func TextItem(text string) Item { return Item{Text: text} }

// Placeholder renders the textual stand-in for a media item, used when the
// payload cannot be delivered or when the item is replayed into a prompt.
func (it Item) Placeholder() string {
	if it.IsText() {
		return it.Text
	}
	return fmt.Sprintf("[%s: %s]", it.Kind, it.Name)
}

// BlobResolver resolves a payload reference to raw bytes.
type BlobResolver func(key string) ([]byte, error)

// Normalize converts a plugin's raw return value into an ordered item
// sequence. It never fails: media whose payload reference cannot be
// resolved degrades to its placeholder text, list elements of unknown type
// are skipped with a warning, and any other unrecognized value is
// stringified rather than dropped.
func Normalize(raw any, blobs BlobResolver) []Item {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		return []Item{TextItem(v)}
	case Item:
		return []Item{resolveMedia(v, blobs)}
	case []Item:
		items := make([]Item, 0, len(v))
		for _, it := range v {
			items = append(items, resolveMedia(it, blobs))
		}
		return items
	case map[string]any:
		if it, ok := mediaFromMap(v); ok {
			return []Item{resolveMedia(it, blobs)}
		}
		return []Item{TextItem(fmt.Sprint(v))}
	case []any:
		items := make([]Item, 0, len(v))
		for _, elem := range v {
			switch e := elem.(type) {
			case string:
				items = append(items, TextItem(e))
			case Item:
				items = append(items, resolveMedia(e, blobs))
			case map[string]any:
				if it, ok := mediaFromMap(e); ok {
					items = append(items, resolveMedia(it, blobs))
				} else {
					slog.Warn("skipping result element without a recognizable kind", "element", e)
				}
			default:
				slog.Warn("skipping result element of unsupported type", "type", fmt.Sprintf("%T", elem))
			}
		}
		return items
	default:
		return []Item{TextItem(fmt.Sprint(v))}
	}
}

// resolveMedia ensures a media item carries raw bytes, resolving BlobKey
// through the blob store. On failure the item degrades to its placeholder.
func resolveMedia(it Item, blobs BlobResolver) Item {
	if it.IsText() {
		return it
	}
	if !validKind(it.Kind) {
		slog.Warn("media item with unknown kind downgraded to text", "kind", it.Kind, "name", it.Name)
		return TextItem(fmt.Sprintf("[%s: %s]", it.Kind, it.Name))
	}
	if len(it.Bytes) > 0 {
		return it
	}
	if it.BlobKey == "" || blobs == nil {
		slog.Warn("media item has no payload, downgraded to placeholder", "kind", it.Kind, "name", it.Name)
		return TextItem(it.Placeholder())
	}
	data, err := blobs(it.BlobKey)
	if err != nil || len(data) == 0 {
		slog.Warn("blob resolve failed, media downgraded to placeholder",
			"kind", it.Kind, "name", it.Name, "blob_key", it.BlobKey, "error", err)
		return TextItem(it.Placeholder())
	}
	it.Bytes = data
	return it
}

// mediaFromMap interprets a plain map as a media object. Both "kind" and
// the legacy "type" key are accepted; payload may be raw bytes or a blob
// reference.
func mediaFromMap(m map[string]any) (Item, bool) {
	kind, _ := m["kind"].(string)
	if kind == "" {
		kind, _ = m["type"].(string)
	}
	if !validKind(Kind(kind)) {
		return Item{}, false
	}

	it := Item{Kind: Kind(kind)}
	it.Name, _ = m["name"].(string)
	if it.Name == "" {
		it.Name = "output.bin"
	}
	it.Mimetype, _ = m["mimetype"].(string)

	switch payload := m["bytes"].(type) {
	case []byte:
		it.Bytes = payload
	case string:
		it.Bytes = []byte(payload)
	}
	it.BlobKey, _ = m["blob_key"].(string)
	return it, true
}
