// Package api assembles the HTTP surface of the ingestion service.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/ownspend/internal/api/handlers"
	"github.com/dvloznov/ownspend/internal/api/middleware"
	"github.com/dvloznov/ownspend/internal/jobs"
	"github.com/rs/zerolog"
)

// Deps are the services the router dispatches to.
type Deps struct {
	Service   handlers.IngestService
	Reader    handlers.Reader
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	Devices   *middleware.DeviceRegistry
	Now       func() time.Time
}

// methodHandler rejects requests whose method is not method.
func methodHandler(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}

// NewRouter builds the routed and middleware-wrapped handler. Everything under
// /api requires a device API key.
func NewRouter(deps Deps, log zerolog.Logger) http.Handler {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	eventsHandler := handlers.NewEventsHandler(deps.Service, deps.Reader, deps.Publisher, log)
	transactionsHandler := handlers.NewTransactionsHandler(deps.Service, deps.Reader, log)
	accountsHandler := handlers.NewAccountsHandler(deps.Reader, deps.Devices, log)
	jobsHandler := handlers.NewJobsHandler(deps.JobStore, log)

	api := http.NewServeMux()

	// Events endpoints
	api.HandleFunc("/api/events", methodHandler(http.MethodGet, eventsHandler.ListEvents))
	api.HandleFunc("/api/events/ingest", methodHandler(http.MethodPost, eventsHandler.Ingest))
	api.HandleFunc("/api/events/batch", methodHandler(http.MethodPost, eventsHandler.Batch))
	api.HandleFunc("/api/events/reparse", methodHandler(http.MethodPost, eventsHandler.Reparse))

	// Transactions endpoints
	api.HandleFunc("/api/transactions", methodHandler(http.MethodGet, transactionsHandler.ListTransactions))
	api.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		transactionID := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
		if transactionID == "" || strings.Contains(transactionID, "/") {
			middleware.WriteError(w, http.StatusBadRequest, "Transaction ID is required")
			return
		}
		transactionsHandler.EditTransaction(w, r, transactionID)
	})
	api.HandleFunc("/api/rules/reapply", methodHandler(http.MethodPost, transactionsHandler.ReapplyRules))

	// Reference data endpoints
	api.HandleFunc("/api/accounts", methodHandler(http.MethodGet, accountsHandler.ListAccounts))
	api.HandleFunc("/api/categories", methodHandler(http.MethodGet, accountsHandler.ListCategories))
	api.HandleFunc("/api/devices", methodHandler(http.MethodGet, accountsHandler.ListDevices))

	// Jobs endpoints
	api.HandleFunc("/api/jobs", methodHandler(http.MethodGet, jobsHandler.ListJobs))
	api.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.DeviceAuth(deps.Devices)(api))
	mux.HandleFunc("/health", methodHandler(http.MethodGet, handlers.Health(now)))

	return middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)
}
