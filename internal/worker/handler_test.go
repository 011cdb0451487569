package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/monocart/internal/domain"
	"github.com/joao-fontenele/monocart/internal/email"
)

type emailCapture struct {
	mu     sync.Mutex
	status int
	sent   []email.Message
}

func (c *emailCapture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var msg email.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	if c.status != 0 {
		w.WriteHeader(c.status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func newTestHandler(t *testing.T, capture *emailCapture) *ReceiptHandler {
	t.Helper()
	srv := httptest.NewServer(capture)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReceiptHandler(email.NewClient(srv.URL, srv.Client()), logger)
}

func placedPayload(t *testing.T, addr string) []byte {
	t.Helper()
	data, err := json.Marshal(domain.OrderPlacedEvent{
		OrderID:     17,
		UserID:      3,
		Email:       addr,
		TotalAmount: 4498,
		Items: []domain.OrderItem{
			{ProductID: 1, Quantity: 2, Price: 1999},
			{ProductID: 2, Quantity: 1, Price: 500},
		},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	return data
}

func TestReceiptHandler_SendsReceipt(t *testing.T) {
	capture := &emailCapture{}
	h := newTestHandler(t, capture)

	require.NoError(t, h.Handle(context.Background(), placedPayload(t, "ada@example.com")))

	require.Len(t, capture.sent, 1)
	msg := capture.sent[0]
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, "MonoCart order #17 confirmed", msg.Subject)
	assert.Contains(t, msg.Body, "x2  @ 19.99")
	assert.Contains(t, msg.Body, "Total paid: 44.98")
}

func TestReceiptHandler_EmailServiceFailure(t *testing.T) {
	capture := &emailCapture{status: http.StatusServiceUnavailable}
	h := newTestHandler(t, capture)

	err := h.Handle(context.Background(), placedPayload(t, "ada@example.com"))
	assert.ErrorContains(t, err, "status 503")
}

func TestReceiptHandler_SkipsWithoutEmail(t *testing.T) {
	capture := &emailCapture{}
	h := newTestHandler(t, capture)

	require.NoError(t, h.Handle(context.Background(), placedPayload(t, "")))
	assert.Empty(t, capture.sent)
}

func TestReceiptHandler_BadPayload(t *testing.T) {
	h := newTestHandler(t, &emailCapture{})
	assert.ErrorContains(t, h.Handle(context.Background(), []byte("{")), "unmarshal")
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.05", formatAmount(5))
	assert.Equal(t, "12.50", formatAmount(1250))
	assert.Equal(t, "-1.01", formatAmount(-101))
}
