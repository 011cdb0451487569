// Package worker turns order.placed events into customer receipts.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joao-fontenele/monocart/internal/domain"
	"github.com/joao-fontenele/monocart/internal/email"
)

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

type ReceiptHandler struct {
	mailer Mailer
	logger *slog.Logger
}

func NewReceiptHandler(mailer Mailer, logger *slog.Logger) *ReceiptHandler {
	return &ReceiptHandler{mailer: mailer, logger: logger}
}

// Handle decodes an order.placed payload and mails the receipt. Events
// without a recipient are skipped; a failed send is returned so the offset
// is not committed.
func (h *ReceiptHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w", err)
	}

	h.logger.Info("processing order placed event", "order_id", event.OrderID, "user_id", event.UserID)

	if event.Email == "" {
		h.logger.Warn("order placed event has no email, skipping receipt", "order_id", event.OrderID)
		return nil
	}

	if err := h.mailer.Send(ctx, receipt(event)); err != nil {
		h.logger.Error("failed to send receipt", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send receipt for order %d: %w", event.OrderID, err)
	}

	h.logger.Info("receipt sent", "order_id", event.OrderID)
	return nil
}

func receipt(event domain.OrderPlacedEvent) email.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order #%d.\n\n", event.OrderID)
	for _, item := range event.Items {
		fmt.Fprintf(&b, "  product %d  x%d  @ %s\n", item.ProductID, item.Quantity, formatAmount(item.Price))
	}
	fmt.Fprintf(&b, "\nTotal paid: %s\n", formatAmount(event.TotalAmount))

	return email.Message{
		To:      event.Email,
		Subject: fmt.Sprintf("MonoCart order #%d confirmed", event.OrderID),
		Body:    b.String(),
	}
}

// formatAmount renders minor units with two decimals.
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
