package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/masterphooey/tater/internal/dispatch"
	"github.com/masterphooey/tater/internal/engine"
	"github.com/masterphooey/tater/internal/history"
	"github.com/masterphooey/tater/internal/llm"
	"github.com/masterphooey/tater/internal/settings"
	"github.com/masterphooey/tater/internal/store"
	"github.com/masterphooey/tater/pkg/plugin"
)

type echoProvider struct{}

func (echoProvider) Name() string { return "echo" }

func (echoProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	last := req.Messages[len(req.Messages)-1]
	return &llm.CompletionResponse{Content: "echo: " + last.Content}, nil
}

func newTestServer(t *testing.T, plugins ...*plugin.Plugin) (*Server, *settings.Settings) {
	t.Helper()
	mem := store.NewMemory()
	gate := settings.New(mem)
	reg := plugin.NewRegistry(func() ([]*plugin.Plugin, error) { return plugins, nil })
	if err := reg.Load(); err != nil {
		t.Fatal(err)
	}
	hist := history.New(mem, 20)
	eng := &engine.Engine{
		Provider:   echoProvider{},
		Registry:   reg,
		Settings:   gate,
		History:    hist,
		Store:      mem,
		BasePrompt: "You are Tater Totterson.",
		Router:     &dispatch.Router{Registry: reg, Gate: gate},
	}
	return &Server{
		Engine:   eng,
		History:  hist,
		Settings: gate,
		Registry: reg,
		Store:    mem,
	}, gate
}

func TestChatEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"session":"s1","sender":"alice","content":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Items []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Items) != 1 || body.Items[0].Type != "text" {
		t.Fatalf("items = %+v", body.Items)
	}
	if !strings.Contains(body.Items[0].Text, "hi") {
		t.Errorf("text = %q", body.Items[0].Text)
	}
}

func TestChatRejectsMissingFields(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"sender":"alice"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Seed one exchange.
	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"session":"s1","sender":"alice","content":"hello"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/history?session=s1")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(body.Entries) != 2 {
		t.Fatalf("history has %d entries, want 2", len(body.Entries))
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/history?session=s1", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("wipe status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/history?session=s1")
	if err != nil {
		t.Fatal(err)
	}
	body.Entries = nil
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(body.Entries) != 0 {
		t.Errorf("history not empty after wipe: %d entries", len(body.Entries))
	}
}

func TestPluginListAndToggle(t *testing.T) {
	p := &plugin.Plugin{
		Name:        "web_summary",
		Description: "Summarize a web page.",
		Handlers:    map[string]plugin.Handler{"webui": nil},
	}
	srv, gate := newTestServer(t, p)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/plugins")
	if err != nil {
		t.Fatal(err)
	}
	var list struct {
		Plugins []struct {
			Name    string `json:"name"`
			Enabled bool   `json:"enabled"`
		} `json:"plugins"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(list.Plugins) != 1 || list.Plugins[0].Enabled {
		t.Fatalf("plugins = %+v", list.Plugins)
	}

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/plugins/web_summary",
		strings.NewReader(`{"enabled":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle status = %d", resp.StatusCode)
	}
	if !gate.PluginEnabled(context.Background(), "web_summary") {
		t.Error("toggle did not persist")
	}

	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/plugins/missing",
		strings.NewReader(`{"enabled":true}`))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown plugin toggle status = %d, want 404", resp.StatusCode)
	}
}

// The transports list must come back in a stable order regardless of map
// iteration.
func TestPluginListTransportsSorted(t *testing.T) {
	p := &plugin.Plugin{
		Name:        "web_summary",
		Description: "Summarize a web page.",
		Handlers: map[string]plugin.Handler{
			"webui": nil, "matrix": nil, "discord": nil, "irc": nil, "homeassistant": nil,
		},
	}
	srv, _ := newTestServer(t, p)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	want := []string{"discord", "homeassistant", "irc", "matrix", "webui"}
	for i := 0; i < 5; i++ {
		resp, err := http.Get(ts.URL + "/api/plugins")
		if err != nil {
			t.Fatal(err)
		}
		var list struct {
			Plugins []struct {
				Transports []string `json:"transports"`
			} `json:"plugins"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if len(list.Plugins) != 1 {
			t.Fatalf("plugins = %+v", list.Plugins)
		}
		got := list.Plugins[0].Transports
		if len(got) != len(want) {
			t.Fatalf("transports = %v", got)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("transports = %v, want %v", got, want)
			}
		}
	}
}

// POST /api/plugins/reload swaps in whatever the source now yields without
// a restart.
func TestPluginReloadEndpoint(t *testing.T) {
	current := []*plugin.Plugin{
		{Name: "web_summary", Handlers: map[string]plugin.Handler{"webui": nil}},
	}
	mem := store.NewMemory()
	gate := settings.New(mem)
	reg := plugin.NewRegistry(func() ([]*plugin.Plugin, error) { return current, nil })
	if err := reg.Load(); err != nil {
		t.Fatal(err)
	}
	srv := &Server{
		History:  history.New(mem, 20),
		Settings: gate,
		Registry: reg,
		Store:    mem,
	}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	current = append(current, &plugin.Plugin{
		Name: "draw_picture", Handlers: map[string]plugin.Handler{"webui": nil},
	})

	resp, err := http.Post(ts.URL+"/api/plugins/reload", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Plugins []string `json:"plugins"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(body.Plugins) != 2 || body.Plugins[0] != "draw_picture" || body.Plugins[1] != "web_summary" {
		t.Fatalf("plugins after reload = %v", body.Plugins)
	}
	if _, ok := reg.Get("draw_picture"); !ok {
		t.Error("reloaded plugin not resolvable")
	}
}

func TestBlobEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	key, err := srv.Store.PutBlob(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/blobs/" + key)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/api/blobs/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("missing blob status = %d, want 404", resp2.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
