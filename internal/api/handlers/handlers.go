// Package handlers implements the HTTP endpoints of the ingestion API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/ownspend/internal/api/middleware"
	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/pipeline"
	"github.com/dvloznov/ownspend/internal/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	maxBodyBytes = 1 << 20
)

// IngestService is the pipeline surface the handlers drive.
type IngestService interface {
	Ingest(ctx context.Context, req pipeline.IngestRequest) (*pipeline.IngestResult, error)
	Reparse(ctx context.Context, filter store.EventFilter) (*pipeline.ReparseResult, error)
	ReapplyRules(ctx context.Context, ownerID string, ids []string) (*pipeline.ReapplyResult, error)
	EditTransaction(ctx context.Context, ownerID, transactionID string, edit domain.TransactionEdit) (*domain.Transaction, error)
}

// Reader is the store surface the listing endpoints read from.
type Reader interface {
	ListEvents(ctx context.Context, filter store.EventFilter) ([]*domain.InboundEvent, error)
	ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error)
	ListAccounts(ctx context.Context, ownerID string) ([]*domain.Account, error)
	ListCategories(ctx context.Context) ([]*domain.Category, error)
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error)
	GetCategory(ctx context.Context, categoryID string) (*domain.Category, error)
}

var (
	_ IngestService = (*pipeline.Service)(nil)
	_ Reader        = (store.Store)(nil)
)

// ownerFromRequest returns the owner of the authenticated device.
func ownerFromRequest(w http.ResponseWriter, r *http.Request) (domain.Device, bool) {
	device, ok := middleware.DeviceFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Device authentication required")
		return domain.Device{}, false
	}
	return device, true
}

// decodeBody decodes a JSON body. An empty body leaves v untouched when
// allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// parsePaging reads limit and offset, defaulting limit to 100.
func parsePaging(r *http.Request) (limit, offset int, ok bool) {
	query := r.URL.Query()
	limit = defaultLimit

	if s := query.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		limit = n
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	// "skip" is accepted as an alias for offset.
	s := query.Get("offset")
	if s == "" {
		s = query.Get("skip")
	}
	if s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// Health handles GET /health
func Health(now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   now().Format(time.RFC3339),
		})
	}
}
