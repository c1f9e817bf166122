package middleware

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/ownspend/internal/config"
	"github.com/dvloznov/ownspend/internal/domain"
)

// APIKeyHeader carries the device API key.
const APIKeyHeader = "api-key"

// DeviceRegistry authenticates devices by API key and tracks when each was
// last seen. Last-seen times are kept in memory only.
type DeviceRegistry struct {
	mu      sync.Mutex
	devices map[string]*domain.Device // api key -> device
	now     func() time.Time
}

// NewDeviceRegistry registers the configured devices as active.
func NewDeviceRegistry(devices []config.DeviceSecret) *DeviceRegistry {
	reg := &DeviceRegistry{
		devices: make(map[string]*domain.Device, len(devices)),
		now:     time.Now,
	}
	for _, d := range devices {
		reg.devices[d.APIKey] = &domain.Device{
			DeviceID: d.DeviceID,
			OwnerID:  d.OwnerID,
			Name:     d.Name,
			APIKey:   d.APIKey,
			IsActive: true,
		}
	}
	return reg
}

// Authenticate returns the active device registered under apiKey and marks
// it as seen.
func (r *DeviceRegistry) Authenticate(apiKey string) (domain.Device, bool) {
	if apiKey == "" {
		return domain.Device{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[apiKey]
	if !ok || !d.IsActive {
		return domain.Device{}, false
	}
	d.LastSeenAt = r.now().UTC()
	return *d, true
}

// Devices lists registered devices by device ID, without their keys.
func (r *DeviceRegistry) Devices() []domain.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Device, 0, len(r.devices))
	for _, d := range r.devices {
		cp := *d
		cp.APIKey = ""
		result = append(result, cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DeviceID < result[j].DeviceID })
	return result
}

// DeviceAuth rejects requests without a known API key and stores the device
// in the request context.
func DeviceAuth(reg *DeviceRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			device, ok := reg.Authenticate(r.Header.Get(APIKeyHeader))
			if !ok {
				WriteError(w, http.StatusUnauthorized, "Invalid or inactive device API key")
				return
			}

			ctx := context.WithValue(r.Context(), deviceKey, device)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DeviceFromContext returns the device authenticated by DeviceAuth.
func DeviceFromContext(ctx context.Context) (domain.Device, bool) {
	d, ok := ctx.Value(deviceKey).(domain.Device)
	return d, ok
}
