// Package webhook exposes the messaging-platform callback over HTTP.
package webhook

import (
	"log/slog"
	"net/http"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"github.com/mcoot/tradegame-bot/internal/bot"
	"github.com/mcoot/tradegame-bot/internal/platform"
)

// EventParser verifies a webhook request's signature and decodes its events
type EventParser interface {
	ParseRequest(r *http.Request) ([]*linebot.Event, error)
}

// Handler processes platform callback requests
type Handler struct {
	parser EventParser
	client platform.Client
	router *bot.Router
	logger *slog.Logger
}

// NewHandler creates a webhook handler
func NewHandler(parser EventParser, client platform.Client, router *bot.Router, logger *slog.Logger) *Handler {
	return &Handler{
		parser: parser,
		client: client,
		router: router,
		logger: logger,
	}
}

// Callback handles POST /callback. A bad signature gets a 400 so the
// platform knows the endpoint rejected it; anything after successful
// verification is answered 200 regardless of per-event outcomes.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	events, err := h.parser.ParseRequest(r)
	if err != nil {
		if err == linebot.ErrInvalidSignature {
			h.logger.Warn("webhook signature verification failed",
				slog.String("remote", r.RemoteAddr),
			)
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		h.logger.Error("webhook request parsing failed", slog.String("error", err.Error()))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	for _, event := range events {
		if event.Type != linebot.EventTypeMessage {
			continue
		}
		text, ok := event.Message.(*linebot.TextMessage)
		if !ok {
			continue
		}
		if event.Source == nil || event.Source.UserID == "" {
			continue
		}

		reply := h.router.Handle(ctx, event.Source.UserID, text.Text)
		if reply == "" {
			continue
		}
		if err := h.client.Reply(ctx, event.ReplyToken, reply); err != nil {
			h.logger.Error("reply delivery failed",
				slog.String("user_id", event.Source.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	w.WriteHeader(http.StatusOK)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
