package httpx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1"`
}

func TestDecodeJSON(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"productId":3,"quantity":2}`))
		var body addRequest
		require.NoError(t, DecodeJSON(req, &body))
		assert.Equal(t, int64(3), body.ProductID)
		assert.Equal(t, 2, body.Quantity)
	})

	t.Run("validation failure names fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"productId":3,"quantity":0}`))
		var body addRequest
		err := DecodeJSON(req, &body)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "required", verr.Fields["quantity"])
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"productId":3,"quantity":1,"x":1}`))
		var body addRequest
		require.Error(t, DecodeJSON(req, &body))
	})
}

func TestWriteDecodeError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()

	WriteDecodeError(logger, rec, &ValidationError{Fields: map[string]string{"email": "email"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation failed", resp["error"])
}

func TestWriteInternal_HidesError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()

	WriteInternal(logger, rec, "boom", io.ErrUnexpectedEOF)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "unexpected EOF")
}

func TestPathID(t *testing.T) {
	cases := map[string]bool{"12": true, "0": false, "-1": false, "abc": false}
	for raw, ok := range cases {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", raw)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

		_, got := PathID(req, "id")
		assert.Equal(t, ok, got, raw)
	}
}
