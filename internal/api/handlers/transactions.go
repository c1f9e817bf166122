package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dvloznov/ownspend/internal/api/middleware"
	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/store"
	"github.com/rs/zerolog"
)

// TransactionsHandler handles transaction and rule endpoints.
type TransactionsHandler struct {
	svc    IngestService
	reader Reader
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(svc IngestService, reader Reader, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		svc:    svc,
		reader: reader,
		log:    log,
	}
}

type transactionResponse struct {
	ID                  string    `json:"id"`
	AccountID           string    `json:"account_id"`
	AccountName         string    `json:"account_name"`
	Amount              string    `json:"amount"`
	Currency            string    `json:"currency"`
	Direction           string    `json:"direction"`
	Channel             string    `json:"channel"`
	Counterparty        string    `json:"counterparty,omitempty"`
	Description         string    `json:"description,omitempty"`
	MerchantID          string    `json:"merchant_id,omitempty"`
	MerchantDisplayName string    `json:"merchant_display_name,omitempty"`
	CategoryID          string    `json:"category_id,omitempty"`
	CategoryName        string    `json:"category_name,omitempty"`
	IsInternalTransfer  bool      `json:"is_internal_transfer"`
	Overrides           []string  `json:"overrides"`
	TransactionTime     time.Time `json:"transaction_time"`
}

// nameCache resolves reference names once per request.
type nameCache struct {
	reader     Reader
	accounts   map[string]string
	merchants  map[string]string
	categories map[string]string
}

func newNameCache(reader Reader) *nameCache {
	return &nameCache{
		reader:     reader,
		accounts:   make(map[string]string),
		merchants:  make(map[string]string),
		categories: make(map[string]string),
	}
}

func (c *nameCache) account(ctx context.Context, id string) (string, error) {
	if name, ok := c.accounts[id]; ok {
		return name, nil
	}
	name := domain.Unknown
	acc, err := c.reader.GetAccount(ctx, id)
	switch {
	case err == nil:
		name = acc.DisplayName
	case !errors.Is(err, store.ErrNotFound):
		return "", err
	}
	c.accounts[id] = name
	return name, nil
}

func (c *nameCache) merchant(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	if name, ok := c.merchants[id]; ok {
		return name, nil
	}
	var name string
	m, err := c.reader.GetMerchant(ctx, id)
	switch {
	case err == nil:
		name = m.DisplayName
	case !errors.Is(err, store.ErrNotFound):
		return "", err
	}
	c.merchants[id] = name
	return name, nil
}

func (c *nameCache) category(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	if name, ok := c.categories[id]; ok {
		return name, nil
	}
	var name string
	cat, err := c.reader.GetCategory(ctx, id)
	switch {
	case err == nil:
		name = cat.Name
	case !errors.Is(err, store.ErrNotFound):
		return "", err
	}
	c.categories[id] = name
	return name, nil
}

func (c *nameCache) response(ctx context.Context, tx *domain.Transaction) (transactionResponse, error) {
	accountName, err := c.account(ctx, tx.AccountID)
	if err != nil {
		return transactionResponse{}, err
	}
	merchantName, err := c.merchant(ctx, tx.MerchantID)
	if err != nil {
		return transactionResponse{}, err
	}
	categoryName, err := c.category(ctx, tx.CategoryID)
	if err != nil {
		return transactionResponse{}, err
	}

	overrides := tx.OverrideFlags.Names()
	if overrides == nil {
		overrides = []string{}
	}
	return transactionResponse{
		ID:                  tx.TransactionID,
		AccountID:           tx.AccountID,
		AccountName:         accountName,
		Amount:              tx.Amount.StringFixed(2),
		Currency:            tx.Currency,
		Direction:           string(tx.Direction),
		Channel:             string(tx.Channel),
		Counterparty:        tx.Counterparty,
		Description:         tx.Description,
		MerchantID:          tx.MerchantID,
		MerchantDisplayName: merchantName,
		CategoryID:          tx.CategoryID,
		CategoryName:        categoryName,
		IsInternalTransfer:  tx.IsInternalTransfer,
		Overrides:           overrides,
		TransactionTime:     tx.TransactionTime,
	}, nil
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	device, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	query := r.URL.Query()

	filter := store.TransactionFilter{
		OwnerID:   device.OwnerID,
		AccountID: query.Get("account_id"),
	}
	switch d := domain.Direction(query.Get("direction")); d {
	case "", domain.DirectionDebit, domain.DirectionCredit:
		filter.Direction = d
	default:
		middleware.WriteError(w, http.StatusBadRequest, "direction must be DEBIT or CREDIT")
		return
	}
	if s := query.Get("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return
		}
		filter.From = t
	}
	if s := query.Get("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	limit, offset, ok := parsePaging(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit or offset")
		return
	}
	filter.Limit = limit
	filter.Offset = offset

	transactions, err := h.reader.ListTransactions(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}

	names := newNameCache(h.reader)
	result := make([]transactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		resp, err := names.response(ctx, tx)
		if err != nil {
			h.log.Error().Err(err).Str("transaction_id", tx.TransactionID).Msg("Failed to resolve names")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
			return
		}
		result = append(result, resp)
	}

	// Return array directly for frontend compatibility
	middleware.WriteJSON(w, http.StatusOK, result)
}

type editTransactionRequest struct {
	MerchantID     *string  `json:"merchant_id"`
	CategoryID     *string  `json:"category_id"`
	IsInternal     *bool    `json:"is_internal_transfer"`
	Description    *string  `json:"description"`
	ClearOverrides []string `json:"clear_overrides"`
}

// EditTransaction handles PATCH /api/transactions/{id}
func (h *TransactionsHandler) EditTransaction(w http.ResponseWriter, r *http.Request, transactionID string) {
	device, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req editTransactionRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	cleared, err := domain.ParseOverrideFields(req.ClearOverrides)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.svc.EditTransaction(ctx, device.OwnerID, transactionID, domain.TransactionEdit{
		MerchantID:     req.MerchantID,
		CategoryID:     req.CategoryID,
		IsInternal:     req.IsInternal,
		Description:    req.Description,
		ClearOverrides: cleared,
	})
	if errors.Is(err, store.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("transaction_id", transactionID).Msg("Failed to edit transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to edit transaction")
		return
	}

	resp, err := newNameCache(h.reader).response(ctx, tx)
	if err != nil {
		h.log.Error().Err(err).Str("transaction_id", transactionID).Msg("Failed to resolve names")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to edit transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// ReapplyRules handles POST /api/rules/reapply
func (h *TransactionsHandler) ReapplyRules(w http.ResponseWriter, r *http.Request) {
	device, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		TransactionIDs []string `json:"transaction_ids"`
	}
	if !decodeBody(w, r, &req, true) {
		return
	}

	res, err := h.svc.ReapplyRules(r.Context(), device.OwnerID, req.TransactionIDs)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to reapply rules")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to reapply rules")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]int{
		"processed": res.Processed,
		"changed":   res.Changed,
	})
}
