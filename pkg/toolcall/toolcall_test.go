package toolcall

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{
			name: "bare object",
			in:   `{"a":1}`,
			want: `{"a":1}`,
			ok:   true,
		},
		{
			name: "surrounded by prose",
			in:   `Sure, here you go: {"function":"web_summary","arguments":{"url":"http://x"}} hope that helps!`,
			want: `{"function":"web_summary","arguments":{"url":"http://x"}}`,
			ok:   true,
		},
		{
			name: "fenced json block",
			in:   "```json\n{\"a\":1}\n```",
			want: `{"a":1}`,
			ok:   true,
		},
		{
			name: "plain fence",
			in:   "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
			ok:   true,
		},
		{
			name: "nested braces",
			in:   `prefix {"outer":{"inner":{"deep":true}}} suffix`,
			want: `{"outer":{"inner":{"deep":true}}}`,
			ok:   true,
		},
		{
			name: "first invalid candidate skipped",
			in:   `{not json} then {"valid":true}`,
			want: `{"valid":true}`,
			ok:   true,
		},
		{
			name: "no json at all",
			in:   "just chatting, no json here",
			ok:   false,
		},
		{
			name: "unbalanced",
			in:   `{"a": 1`,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.in)
			if ok != tt.ok {
				t.Fatalf("Extract(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("Extract(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Extraction idempotence: the extracted string round-trips through the JSON
// parser to a value equal to the embedded object.
func TestExtractRoundTrip(t *testing.T) {
	embedded := map[string]any{"function": "draw_picture", "arguments": map[string]any{"prompt": "a potato"}}
	raw, err := json.Marshal(embedded)
	if err != nil {
		t.Fatal(err)
	}
	text := "Of course! " + string(raw) + "\nLet me get started."

	got, ok := Extract(text)
	if !ok {
		t.Fatalf("Extract failed on %q", text)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("extracted candidate does not parse: %v", err)
	}
	if !reflect.DeepEqual(decoded, embedded) {
		t.Errorf("round trip mismatch: got %v, want %v", decoded, embedded)
	}
}

func TestParse(t *testing.T) {
	t.Run("direct object", func(t *testing.T) {
		call, ok := Parse(`{"function":"web_summary","arguments":{"url":"http://x"}}`)
		if !ok {
			t.Fatal("expected a function call")
		}
		if call.Name != "web_summary" {
			t.Errorf("Name = %q, want web_summary", call.Name)
		}
		if call.Arguments["url"] != "http://x" {
			t.Errorf("Arguments = %v", call.Arguments)
		}
	})

	t.Run("missing arguments defaults empty", func(t *testing.T) {
		call, ok := Parse(`{"function":"list_feeds"}`)
		if !ok {
			t.Fatal("expected a function call")
		}
		if call.Arguments == nil || len(call.Arguments) != 0 {
			t.Errorf("Arguments = %v, want empty map", call.Arguments)
		}
	})

	t.Run("array first match", func(t *testing.T) {
		call, ok := Parse(`[{"x":1},{"function":"f","arguments":{}}]`)
		if !ok {
			t.Fatal("expected a function call")
		}
		if call.Name != "f" {
			t.Errorf("Name = %q, want f", call.Name)
		}
	})

	t.Run("embedded in prose", func(t *testing.T) {
		call, ok := Parse("I'll look that up.\n```json\n{\"function\":\"web_search\",\"arguments\":{\"query\":\"go 1.25\"}}\n```")
		if !ok {
			t.Fatal("expected a function call")
		}
		if call.Name != "web_search" {
			t.Errorf("Name = %q, want web_search", call.Name)
		}
	})

	t.Run("plain chat passthrough", func(t *testing.T) {
		if _, ok := Parse("just chatting, no json here"); ok {
			t.Error("plain chat parsed as a function call")
		}
	})

	t.Run("object without function key", func(t *testing.T) {
		if _, ok := Parse(`{"answer": 42}`); ok {
			t.Error("object without function key parsed as a call")
		}
	})

	t.Run("empty function name rejected", func(t *testing.T) {
		if _, ok := Parse(`{"function":"","arguments":{}}`); ok {
			t.Error("empty function name parsed as a call")
		}
	})
}
