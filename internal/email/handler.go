// Package email is the mock outbound mail service and the client the other
// binaries use to reach it.
package email

import (
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/joao-fontenele/monocart/internal/httpx"
)

// Message is the payload of POST /send.
type Message struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=255"`
	Body    string `json:"body" validate:"required"`
	HTML    string `json:"html,omitempty"`
}

type sendResponse struct {
	Status string `json:"status"`
}

type Handler struct {
	logger  *slog.Logger
	latency func() time.Duration
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
		latency: func() time.Duration {
			return time.Duration(50+rand.IntN(151)) * time.Millisecond
		},
	}
}

// HandleSend pretends to deliver the message: it waits a little, as an SMTP
// relay would, and logs it.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := httpx.DecodeJSON(r, &msg); err != nil {
		httpx.WriteDecodeError(h.logger, w, err)
		return
	}

	select {
	case <-time.After(h.latency()):
	case <-r.Context().Done():
		return
	}

	h.logger.Info("email sent", "to", msg.To, "subject", msg.Subject)
	httpx.WriteJSON(h.logger, w, http.StatusOK, sendResponse{Status: "sent"})
}
