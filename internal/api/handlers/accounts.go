package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/ownspend/internal/api/middleware"
	"github.com/rs/zerolog"
)

// AccountsHandler handles account, category and device endpoints.
type AccountsHandler struct {
	reader  Reader
	devices *middleware.DeviceRegistry
	log     zerolog.Logger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(reader Reader, devices *middleware.DeviceRegistry, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{
		reader:  reader,
		devices: devices,
		log:     log,
	}
}

type accountResponse struct {
	ID          string    `json:"id"`
	BankName    string    `json:"bank_name"`
	AccountMask string    `json:"account_mask"`
	DisplayName string    `json:"display_name"`
	Type        string    `json:"type"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type categoryResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ParentID  string `json:"parent_id,omitempty"`
	SortOrder int    `json:"sort_order"`
}

type deviceResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	IsActive   bool       `json:"is_active"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	device, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	accounts, err := h.reader.ListAccounts(r.Context(), device.OwnerID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}

	result := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		result = append(result, accountResponse{
			ID:          a.AccountID,
			BankName:    a.BankName,
			AccountMask: a.AccountMask,
			DisplayName: a.DisplayName,
			Type:        string(a.Type),
			IsActive:    a.IsActive,
			CreatedAt:   a.CreatedAt,
		})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": result,
		"count":    len(result),
	})
}

// ListCategories handles GET /api/categories
func (h *AccountsHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.reader.ListCategories(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list categories")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}

	result := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		result = append(result, categoryResponse{
			ID:        c.CategoryID,
			Name:      c.Name,
			ParentID:  c.ParentID,
			SortOrder: c.SortOrder,
		})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": result,
		"count":      len(result),
	})
}

// ListDevices handles GET /api/devices
func (h *AccountsHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	device, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	result := []deviceResponse{}
	for _, d := range h.devices.Devices() {
		if d.OwnerID != device.OwnerID {
			continue
		}
		resp := deviceResponse{
			ID:       d.DeviceID,
			Name:     d.Name,
			IsActive: d.IsActive,
		}
		if !d.LastSeenAt.IsZero() {
			seen := d.LastSeenAt
			resp.LastSeenAt = &seen
		}
		result = append(result, resp)
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"devices": result,
		"count":   len(result),
	})
}
