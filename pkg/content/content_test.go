package content

import (
	"errors"
	"testing"
)

func TestNormalizeNil(t *testing.T) {
	if items := Normalize(nil, nil); len(items) != 0 {
		t.Errorf("Normalize(nil) = %v, want empty", items)
	}
}

func TestNormalizeString(t *testing.T) {
	items := Normalize("hello", nil)
	if len(items) != 1 || !items[0].IsText() || items[0].Text != "hello" {
		t.Errorf("Normalize(string) = %v", items)
	}
}

func TestNormalizeMediaMap(t *testing.T) {
	raw := map[string]any{
		"kind":     "image",
		"name":     "potato.png",
		"mimetype": "image/png",
		"bytes":    []byte{1, 2, 3},
	}
	items := Normalize(raw, nil)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	it := items[0]
	if it.Kind != KindImage || it.Name != "potato.png" || len(it.Bytes) != 3 {
		t.Errorf("item = %+v", it)
	}
}

// The original result objects used "type" where the wire format now says
// "kind"; both must keep working.
func TestNormalizeLegacyTypeKey(t *testing.T) {
	raw := map[string]any{"type": "audio", "name": "clip.mp3", "bytes": []byte{9}}
	items := Normalize(raw, nil)
	if len(items) != 1 || items[0].Kind != KindAudio {
		t.Errorf("items = %v", items)
	}
}

func TestNormalizeMixedList(t *testing.T) {
	raw := []any{
		"first some text",
		map[string]any{"kind": "file", "name": "report.pdf", "bytes": []byte{4}},
		map[string]any{"unrelated": true}, // no kind: skipped
		42.0,                              // unsupported element type: skipped
	}
	items := Normalize(raw, nil)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2: %v", len(items), items)
	}
	if !items[0].IsText() || items[0].Text != "first some text" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Kind != KindFile || items[1].Name != "report.pdf" {
		t.Errorf("items[1] = %+v", items[1])
	}
}

func TestNormalizeBlobResolution(t *testing.T) {
	blobs := func(key string) ([]byte, error) {
		if key == "abc" {
			return []byte("payload"), nil
		}
		return nil, errors.New("no such blob")
	}

	t.Run("resolved", func(t *testing.T) {
		items := Normalize(Item{Kind: KindImage, Name: "x.png", BlobKey: "abc"}, blobs)
		if len(items) != 1 || string(items[0].Bytes) != "payload" {
			t.Errorf("items = %v", items)
		}
	})

	t.Run("unresolvable degrades to placeholder", func(t *testing.T) {
		items := Normalize(Item{Kind: KindVideo, Name: "clip.mp4", BlobKey: "gone"}, blobs)
		if len(items) != 1 {
			t.Fatalf("got %d items, want 1", len(items))
		}
		if !items[0].IsText() || items[0].Text != "[video: clip.mp4]" {
			t.Errorf("items[0] = %+v", items[0])
		}
	})

	t.Run("missing payload without resolver", func(t *testing.T) {
		items := Normalize(Item{Kind: KindImage, Name: "x.png", BlobKey: "abc"}, nil)
		if len(items) != 1 || !items[0].IsText() {
			t.Errorf("items = %v", items)
		}
	})
}

// Normalizer totality: anything else stringifies rather than disappearing.
func TestNormalizeUnrecognizedScalar(t *testing.T) {
	items := Normalize(3.14, nil)
	if len(items) != 1 || !items[0].IsText() || items[0].Text != "3.14" {
		t.Errorf("items = %v", items)
	}
}

func TestNormalizeItemSlice(t *testing.T) {
	raw := []Item{TextItem("a"), {Kind: KindImage, Name: "b.png", Bytes: []byte{1}}}
	items := Normalize(raw, nil)
	if len(items) != 2 || items[0].Text != "a" || items[1].Kind != KindImage {
		t.Errorf("items = %v", items)
	}
}

func TestPlaceholder(t *testing.T) {
	it := Item{Kind: KindImage, Name: "sunset.png"}
	if got := it.Placeholder(); got != "[image: sunset.png]" {
		t.Errorf("Placeholder() = %q", got)
	}
	if got := TextItem("hi").Placeholder(); got != "hi" {
		t.Errorf("text Placeholder() = %q", got)
	}
}
