// Package matrix runs the Matrix gateway: it feeds room messages into the
// engine and delivers the engine's content items back, including media
// uploads.
package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/masterphooey/tater/internal/config"
	"github.com/masterphooey/tater/internal/engine"
	"github.com/masterphooey/tater/pkg/content"
)

// Gateway connects one Matrix account to the engine.
type Gateway struct {
	config    config.MatrixConfig
	engine    *engine.Engine
	client    *mautrix.Client
	startTime int64

	credFile string
}

// credentials holds saved Matrix login state.
type credentials struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	DeviceID    string `json:"device_id"`
}

// New creates a Matrix gateway.
func New(cfg config.MatrixConfig, eng *engine.Engine) *Gateway {
	return &Gateway{
		config:   cfg,
		engine:   eng,
		credFile: filepath.Join(cfg.DataDir, "matrix_credentials.json"),
	}
}

// Run connects to Matrix and processes messages until ctx is cancelled.
// Login retries with exponential backoff; sync errors reconnect.
func (g *Gateway) Run(ctx context.Context) error {
	g.startTime = time.Now().UnixMilli()

	os.MkdirAll(g.config.DataDir, 0o755)

	fullUserID := fmt.Sprintf("@%s:%s", g.config.UserID, g.config.ServerName)

	client, err := mautrix.NewClient(g.config.Homeserver, id.UserID(fullUserID), "")
	if err != nil {
		return fmt.Errorf("create matrix client: %w", err)
	}
	g.client = client

	// In-memory sync store; resync on restart is fine.
	client.Store = mautrix.NewMemorySyncStore()

	if err := g.loginWithRetry(ctx, fullUserID); err != nil {
		return err
	}

	syncer := client.Syncer.(*mautrix.DefaultSyncer)

	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		g.onMessage(ctx, evt)
	})

	// Auto-join invites from allowed users.
	syncer.OnEventType(event.StateMember, func(ctx context.Context, evt *event.Event) {
		g.onMemberEvent(ctx, evt)
	})

	slog.Info("matrix gateway ready, starting sync")

	for {
		err := client.SyncWithContext(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			slog.Warn("matrix sync error, reconnecting in 15s", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(15 * time.Second):
			}
		}
	}
}

// loginWithRetry tries saved credentials first, then password login with
// exponential backoff.
func (g *Gateway) loginWithRetry(ctx context.Context, fullUserID string) error {
	if err := g.loadCredentials(); err == nil {
		slog.Info("loaded saved Matrix credentials", "user", fullUserID)
		return nil
	}

	backoff := 2 * time.Second
	maxBackoff := 2 * time.Minute
	maxAttempts := 10

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		slog.Info("logging into Matrix",
			"user", fullUserID,
			"homeserver", g.config.Homeserver,
			"attempt", attempt,
		)

		resp, err := g.client.Login(ctx, &mautrix.ReqLogin{
			Type: mautrix.AuthTypePassword,
			Identifier: mautrix.UserIdentifier{
				Type: mautrix.IdentifierTypeUser,
				User: g.config.UserID,
			},
			Password:         g.config.Password,
			StoreCredentials: true,
		})

		if err == nil {
			slog.Info("logged into Matrix", "user", resp.UserID, "device", resp.DeviceID)
			g.saveCredentials(credentials{
				AccessToken: resp.AccessToken,
				UserID:      string(resp.UserID),
				DeviceID:    string(resp.DeviceID),
			})
			return nil
		}

		errStr := err.Error()
		if strings.Contains(errStr, "M_FORBIDDEN") ||
			strings.Contains(errStr, "M_UNKNOWN_TOKEN") ||
			strings.Contains(errStr, "M_INVALID_PARAM") {
			return fmt.Errorf("matrix login: %w (non-retryable)", err)
		}

		if attempt == maxAttempts {
			return fmt.Errorf("matrix login: %w (after %d attempts)", err, maxAttempts)
		}

		slog.Warn("matrix login failed, retrying",
			"error", err,
			"attempt", attempt,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return fmt.Errorf("matrix login: exhausted retries")
}

// Stop ends the sync loop.
func (g *Gateway) Stop() error {
	if g.client != nil {
		g.client.StopSync()
	}
	return nil
}

func (g *Gateway) onMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == g.client.UserID {
		return
	}
	if evt.Timestamp < g.startTime {
		return
	}
	if !g.isAllowed(evt.Sender) {
		return
	}

	msgContent := evt.Content.AsMessage()
	if msgContent == nil || msgContent.Body == "" {
		return
	}

	slog.Info("matrix message received",
		"sender", evt.Sender,
		"room", evt.RoomID,
		"content", truncate(msgContent.Body, 100),
	)

	msg := engine.Incoming{
		Transport: "matrix",
		ChannelID: string(evt.RoomID),
		Sender:    string(evt.Sender),
		Mention:   string(evt.Sender),
		Content:   msgContent.Body,
	}
	send := func(ctx context.Context, items []content.Item) error {
		return g.deliver(ctx, evt.RoomID, items)
	}
	if err := g.engine.Handle(ctx, msg, send); err != nil {
		slog.Error("matrix delivery failed", "room", evt.RoomID, "error", err)
	}
}

func (g *Gateway) onMemberEvent(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != string(g.client.UserID) {
		return
	}

	memberContent := evt.Content.AsMember()
	if memberContent == nil || memberContent.Membership != event.MembershipInvite {
		return
	}

	if !g.isAllowed(evt.Sender) {
		slog.Warn("rejecting invite from unauthorized user", "sender", evt.Sender)
		return
	}

	slog.Info("accepting room invite", "room", evt.RoomID, "from", evt.Sender)
	if _, err := g.client.JoinRoomByID(ctx, evt.RoomID); err != nil {
		slog.Error("failed to join room", "room", evt.RoomID, "error", err)
	}
}

// deliver sends content items to a room: text split at the message limit,
// media uploaded and posted as the matching event type.
func (g *Gateway) deliver(ctx context.Context, roomID id.RoomID, items []content.Item) error {
	for _, item := range items {
		if item.IsText() {
			if err := g.sendText(ctx, roomID, item.Text); err != nil {
				return err
			}
			continue
		}
		if err := g.sendMedia(ctx, roomID, item); err != nil {
			slog.Error("matrix media send failed, falling back to placeholder",
				"room", roomID, "name", item.Name, "error", err)
			if err := g.sendText(ctx, roomID, item.Placeholder()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Gateway) sendText(ctx context.Context, roomID id.RoomID, text string) error {
	const maxLen = 4000

	if len(text) <= maxLen {
		_, err := g.client.SendText(ctx, roomID, text)
		if err != nil {
			slog.Error("matrix send failed", "room", roomID, "len", len(text), "error", err)
		}
		return err
	}

	chunks := splitMessage(text, maxLen)
	for i, chunk := range chunks {
		prefix := fmt.Sprintf("[%d/%d] ", i+1, len(chunks))
		if _, err := g.client.SendText(ctx, roomID, prefix+chunk); err != nil {
			slog.Error("matrix send failed", "room", roomID, "chunk", i+1, "error", err)
			return err
		}
		if i < len(chunks)-1 {
			time.Sleep(500 * time.Millisecond)
		}
	}
	slog.Info("matrix message sent", "room", roomID, "chunks", len(chunks), "total_len", len(text))
	return nil
}

func (g *Gateway) sendMedia(ctx context.Context, roomID id.RoomID, item content.Item) error {
	upload, err := g.client.UploadMedia(ctx, mautrix.ReqUploadMedia{
		ContentBytes: item.Bytes,
		ContentType:  item.Mimetype,
		FileName:     item.Name,
	})
	if err != nil {
		return fmt.Errorf("uploading media: %w", err)
	}

	msgType := event.MsgFile
	switch item.Kind {
	case content.KindImage:
		msgType = event.MsgImage
	case content.KindAudio:
		msgType = event.MsgAudio
	case content.KindVideo:
		msgType = event.MsgVideo
	}

	_, err = g.client.SendMessageEvent(ctx, roomID, event.EventMessage, &event.MessageEventContent{
		MsgType: msgType,
		Body:    item.Name,
		URL:     upload.ContentURI.CUString(),
		Info: &event.FileInfo{
			MimeType: item.Mimetype,
			Size:     len(item.Bytes),
		},
	})
	if err != nil {
		return fmt.Errorf("sending media event: %w", err)
	}
	return nil
}

func (g *Gateway) loadCredentials() error {
	data, err := os.ReadFile(g.credFile)
	if err != nil {
		return err
	}
	var creds credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return err
	}
	g.client.AccessToken = creds.AccessToken
	g.client.UserID = id.UserID(creds.UserID)
	g.client.DeviceID = id.DeviceID(creds.DeviceID)
	return nil
}

func (g *Gateway) saveCredentials(creds credentials) {
	data, _ := json.MarshalIndent(creds, "", "  ")
	os.WriteFile(g.credFile, data, 0o600)
}

func (g *Gateway) isAllowed(sender id.UserID) bool {
	if len(g.config.AllowedUsers) == 0 || g.config.AllowedUsers[0] == "" {
		return true // no restriction
	}
	for _, allowed := range g.config.AllowedUsers {
		if string(sender) == allowed {
			return true
		}
	}
	return false
}

func splitMessage(s string, maxLen int) []string {
	var chunks []string
	for len(s) > maxLen {
		chunks = append(chunks, s[:maxLen])
		s = s[maxLen:]
	}
	if len(s) > 0 {
		chunks = append(chunks, s)
	}
	return chunks
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
