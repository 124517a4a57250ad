// Package plugins holds the built-in capability set: web summaries, web
// search, image generation, and GitHub release lookups.
package plugins

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/masterphooey/tater/internal/config"
	"github.com/masterphooey/tater/pkg/plugin"
)

// allTransports is every front end that can carry plain text.
var allTransports = []string{
	"discord", "webui", "irc", "matrix", "homeassistant", "homekit", "xbmc", "automation",
}

// mediaTransports are the front ends that can deliver binary payloads.
var mediaTransports = []string{"discord", "webui", "matrix"}

// everywhere registers one handler under each of the given transports.
func handlers(h plugin.Handler, transports []string) map[string]plugin.Handler {
	m := make(map[string]plugin.Handler, len(transports))
	for _, t := range transports {
		m[t] = h
	}
	return m
}

// Builtins returns the plugin source for the built-in set.
func Builtins(cfg config.PluginsConfig) plugin.Source {
	return func() ([]*plugin.Plugin, error) {
		return []*plugin.Plugin{
			webSummary(cfg),
			webSearch(cfg),
			drawPicture(cfg),
			githubLatestRelease(cfg),
		}, nil
	}
}

func webSummary(cfg config.PluginsConfig) *plugin.Plugin {
	run := func(ctx context.Context, inv *plugin.Invocation) (any, error) {
		rawURL, _ := inv.Args["url"].(string)
		page, err := fetchURL(ctx, rawURL, cfg.UserAgent)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
		}
		text := stripHTML(page)
		if text == "" {
			return nil, fmt.Errorf("page had no readable text")
		}

		summary, err := inv.LLM.Complete(ctx,
			"You summarize web pages. Reply with a concise summary of the page text, nothing else.",
			fmt.Sprintf("Page URL: %s\n\nPage text:\n%s", rawURL, text))
		if err != nil {
			return nil, fmt.Errorf("summarizing %s: %w", rawURL, err)
		}
		return summary, nil
	}

	return &plugin.Plugin{
		Name:        "web_summary",
		Description: "Fetch a web page and reply with a short summary of its content.",
		Usage:       `{"function":"web_summary","arguments":{"url":"<the page URL>"}}`,
		WaitPrompt:  "Hang tight {mention}, I'm reading that page now.",
		Handlers:    handlers(run, allTransports),
	}
}

func webSearch(cfg config.PluginsConfig) *plugin.Plugin {
	endpoint := cfg.SearchURL
	if endpoint == "" {
		endpoint = "https://html.duckduckgo.com/html/"
	}

	run := func(ctx context.Context, inv *plugin.Invocation) (any, error) {
		query, _ := inv.Args["query"].(string)
		if strings.TrimSpace(query) == "" {
			return nil, fmt.Errorf("missing required parameter: query")
		}

		page, err := fetchURL(ctx, endpoint+"?q="+url.QueryEscape(query), cfg.UserAgent)
		if err != nil {
			return nil, fmt.Errorf("searching for %q: %w", query, err)
		}
		text := stripHTML(page)

		answer, err := inv.LLM.Complete(ctx,
			"You answer questions from search result text. Be brief and cite result titles when useful.",
			fmt.Sprintf("Question: %s\n\nSearch results:\n%s", query, text))
		if err != nil {
			return nil, fmt.Errorf("synthesizing answer for %q: %w", query, err)
		}
		return answer, nil
	}

	return &plugin.Plugin{
		Name:        "web_search",
		Description: "Search the web and answer from the results.",
		Usage:       `{"function":"web_search","arguments":{"query":"<what to search for>"}}`,
		WaitPrompt:  "One sec {mention}, searching the web.",
		Handlers:    handlers(run, allTransports),
	}
}

func drawPicture(cfg config.PluginsConfig) *plugin.Plugin {
	run := func(ctx context.Context, inv *plugin.Invocation) (any, error) {
		if cfg.AutomaticURL == "" {
			return nil, fmt.Errorf("image generation is not configured")
		}
		promptText, _ := inv.Args["prompt"].(string)
		if strings.TrimSpace(promptText) == "" {
			return nil, fmt.Errorf("missing required parameter: prompt")
		}

		body, err := json.Marshal(map[string]any{
			"prompt": promptText,
			"steps":  25,
			"width":  768,
			"height": 768,
		})
		if err != nil {
			return nil, fmt.Errorf("encoding txt2img request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			strings.TrimRight(cfg.AutomaticURL, "/")+"/sdapi/v1/txt2img", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("building txt2img request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		client := &http.Client{Timeout: 5 * time.Minute}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("txt2img request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("txt2img HTTP %d", resp.StatusCode)
		}
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		if err != nil {
			return nil, fmt.Errorf("reading txt2img response: %w", err)
		}

		var payload struct {
			Images []string `json:"images"`
		}
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return nil, fmt.Errorf("parsing txt2img response: %w", err)
		}
		if len(payload.Images) == 0 {
			return nil, fmt.Errorf("txt2img returned no images")
		}
		img, err := base64.StdEncoding.DecodeString(payload.Images[0])
		if err != nil {
			return nil, fmt.Errorf("decoding generated image: %w", err)
		}

		return map[string]any{
			"kind":     "image",
			"name":     "generated.png",
			"mimetype": "image/png",
			"bytes":    img,
		}, nil
	}

	return &plugin.Plugin{
		Name:        "draw_picture",
		Description: "Generate an image from a text prompt.",
		Usage:       `{"function":"draw_picture","arguments":{"prompt":"<what to draw>"}}`,
		WaitPrompt:  "Warming up the easel {mention}, this can take a minute.",
		Handlers:    handlers(run, mediaTransports),
	}
}

func githubLatestRelease(cfg config.PluginsConfig) *plugin.Plugin {
	run := func(ctx context.Context, inv *plugin.Invocation) (any, error) {
		repo, _ := inv.Args["repo"].(string)
		repo = strings.TrimSpace(repo)
		parts := strings.Split(repo, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("repo must be in owner/name format")
		}

		raw, err := fetchURL(ctx, "https://api.github.com/repos/"+repo+"/releases/latest", cfg.UserAgent)
		if err != nil {
			return nil, fmt.Errorf("github request for %s: %w", repo, err)
		}

		var payload struct {
			TagName     string `json:"tag_name"`
			Name        string `json:"name"`
			HTMLURL     string `json:"html_url"`
			PublishedAt string `json:"published_at"`
			Body        string `json:"body"`
		}
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("parsing github response: %w", err)
		}
		if payload.TagName == "" {
			return nil, fmt.Errorf("no release found for %s", repo)
		}

		b := strings.Builder{}
		b.WriteString("Repository: ")
		b.WriteString(repo)
		b.WriteString("\nLatest release: ")
		b.WriteString(payload.TagName)
		if payload.Name != "" && payload.Name != payload.TagName {
			b.WriteString(" (")
			b.WriteString(payload.Name)
			b.WriteString(")")
		}
		if payload.PublishedAt != "" {
			if t, err := time.Parse(time.RFC3339, payload.PublishedAt); err == nil {
				b.WriteString("\nPublished: ")
				b.WriteString(t.Format("2006-01-02"))
			}
		}
		if payload.HTMLURL != "" {
			b.WriteString("\nURL: ")
			b.WriteString(payload.HTMLURL)
		}
		if payload.Body != "" {
			notes := payload.Body
			if len(notes) > 1500 {
				notes = notes[:1500] + "\n[truncated]"
			}
			b.WriteString("\n\nRelease notes:\n")
			b.WriteString(notes)
		}
		return b.String(), nil
	}

	return &plugin.Plugin{
		Name:        "github_latest_release",
		Description: "Look up the latest release of a GitHub repository.",
		Usage:       `{"function":"github_latest_release","arguments":{"repo":"<owner/name>"}}`,
		WaitPrompt:  "Checking GitHub for you, {mention}.",
		Handlers:    handlers(run, allTransports),
	}
}
