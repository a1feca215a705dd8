package webhook

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/tradegame-bot/internal/middleware"
)

// NewRouter builds the HTTP route table with logging and recovery applied
func NewRouter(handler *Handler, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.Recovery(logger, middleware.DefaultPanicHandler))
	r.Use(middleware.Logging(logger))

	r.HandleFunc("/callback", handler.Callback).Methods(http.MethodPost)
	r.HandleFunc("/health", handler.Health).Methods(http.MethodGet)

	return r
}
