package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/dvloznov/ownspend/internal/api/middleware"
	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/jobs"
	"github.com/dvloznov/ownspend/internal/pipeline"
	"github.com/dvloznov/ownspend/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxBatchEvents bounds one batch upload.
const maxBatchEvents = 500

// EventsHandler handles inbound event endpoints.
type EventsHandler struct {
	svc       IngestService
	reader    Reader
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(svc IngestService, reader Reader, publisher jobs.Publisher, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		svc:       svc,
		reader:    reader,
		publisher: publisher,
		log:       log,
	}
}

// ingestEventRequest is one event as the device app reports it.
type ingestEventRequest struct {
	SourceType      string     `json:"source_type"`
	SourceSender    string     `json:"source_sender"`
	Package         string     `json:"package,omitempty"`
	RawText         string     `json:"raw_text"`
	DeviceTimestamp *time.Time `json:"device_timestamp,omitempty"`
}

func (e ingestEventRequest) validate() string {
	if e.RawText == "" {
		return "raw_text is required"
	}
	switch domain.SourceType(e.SourceType) {
	case "", domain.SourceTypeSMS, domain.SourceTypeNotification:
		return ""
	}
	return "source_type must be SMS or NOTIFICATION"
}

func (e ingestEventRequest) timestamp() time.Time {
	if e.DeviceTimestamp == nil {
		return time.Time{}
	}
	return e.DeviceTimestamp.UTC()
}

type ingestResponse struct {
	Status        string `json:"status"`
	EventID       string `json:"event_id"`
	TransactionID string `json:"transaction_id,omitempty"`
	Parsed        bool   `json:"parsed"`
	Created       bool   `json:"created"`
	Error         string `json:"error,omitempty"`
}

// Ingest handles POST /api/events/ingest
func (h *EventsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	device, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req ingestEventRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if msg := req.validate(); msg != "" {
		middleware.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	res, err := h.svc.Ingest(r.Context(), pipeline.IngestRequest{
		OwnerID:    device.OwnerID,
		DeviceID:   device.DeviceID,
		SourceType: domain.SourceType(req.SourceType),
		Sender:     req.SourceSender,
		Package:    req.Package,
		RawText:    req.RawText,
		Timestamp:  req.timestamp(),
	})
	if errors.Is(err, pipeline.ErrInvalidRequest) {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("device_id", device.DeviceID).Msg("Failed to ingest event")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to ingest event")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, ingestResponse{
		Status:        "success",
		EventID:       res.EventID,
		TransactionID: res.TransactionID,
		Parsed:        res.Parsed,
		Created:       res.Created,
		Error:         res.Error,
	})
}

// Batch handles POST /api/events/batch
func (h *EventsHandler) Batch(w http.ResponseWriter, r *http.Request) {
	device, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Events []ingestEventRequest `json:"events"`
	}
	if !decodeBody(w, r, &req, false) {
		return
	}
	if len(req.Events) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "events must not be empty")
		return
	}
	if len(req.Events) > maxBatchEvents {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "too many events in one batch")
		return
	}
	for _, e := range req.Events {
		if msg := e.validate(); msg != "" {
			middleware.WriteError(w, http.StatusBadRequest, msg)
			return
		}
	}

	batchID := uuid.New().String()
	jobIDs := make([]string, 0, len(req.Events))
	for _, e := range req.Events {
		job := &jobs.IngestEventJob{
			BatchID:    batchID,
			OwnerID:    device.OwnerID,
			DeviceID:   device.DeviceID,
			SourceType: e.SourceType,
			Sender:     e.SourceSender,
			Package:    e.Package,
			RawText:    e.RawText,
			Timestamp:  e.timestamp(),
		}
		if err := h.publisher.PublishIngestEvent(r.Context(), job); err != nil {
			h.log.Error().Err(err).Str("batch_id", batchID).Int("enqueued", len(jobIDs)).Msg("Failed to enqueue ingest job")
			middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"error":    "Failed to enqueue events",
				"batch_id": batchID,
				"job_ids":  jobIDs,
			})
			return
		}
		jobIDs = append(jobIDs, job.JobID)
	}

	h.log.Info().Str("batch_id", batchID).Int("count", len(jobIDs)).Msg("Batch enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"batch_id": batchID,
		"job_ids":  jobIDs,
		"count":    len(jobIDs),
	})
}

type eventResponse struct {
	EventID       string    `json:"event_id"`
	DeviceID      string    `json:"device_id,omitempty"`
	SourceType    string    `json:"source_type"`
	SourceSender  string    `json:"source_sender"`
	Package       string    `json:"package,omitempty"`
	RawText       string    `json:"raw_text"`
	ReceivedAt    time.Time `json:"received_at"`
	InsertedAt    time.Time `json:"inserted_at"`
	Status        string    `json:"parsed_status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
}

func newEventResponse(e *domain.InboundEvent) eventResponse {
	return eventResponse{
		EventID:       e.EventID,
		DeviceID:      e.DeviceID,
		SourceType:    string(e.SourceType),
		SourceSender:  e.Sender,
		Package:       e.Package,
		RawText:       e.RawText,
		ReceivedAt:    e.ReceivedAt,
		InsertedAt:    e.InsertedAt,
		Status:        string(e.Status),
		ErrorMessage:  e.ErrorMessage,
		TransactionID: e.TransactionID,
	}
}

// parseEventFilter reads status, from and to. from and to are RFC 3339.
func parseEventFilter(status, from, to string) (store.EventFilter, string) {
	var filter store.EventFilter

	switch s := domain.EventStatus(status); s {
	case "", domain.EventStatusPending, domain.EventStatusParsed, domain.EventStatusFailed:
		filter.Status = s
	default:
		return filter, "status must be PENDING, PARSED or FAILED"
	}

	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filter, "Invalid from format"
		}
		filter.From = t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filter, "Invalid to format"
		}
		filter.To = t
	}
	return filter, ""
}

// ListEvents handles GET /api/events
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	device, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter, msg := parseEventFilter(query.Get("status"), query.Get("from"), query.Get("to"))
	if msg != "" {
		middleware.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	limit, offset, ok := parsePaging(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit or offset")
		return
	}
	filter.OwnerID = device.OwnerID
	filter.Limit = limit
	filter.Offset = offset

	events, err := h.reader.ListEvents(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list events")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	result := make([]eventResponse, 0, len(events))
	for _, e := range events {
		result = append(result, newEventResponse(e))
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": result,
		"count":  len(result),
	})
}

// Reparse handles POST /api/events/reparse. An empty status reparses
// FAILED events.
func (h *EventsHandler) Reparse(w http.ResponseWriter, r *http.Request) {
	device, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
		From   string `json:"from"`
		To     string `json:"to"`
	}
	if !decodeBody(w, r, &req, true) {
		return
	}
	if req.Status == "" {
		req.Status = string(domain.EventStatusFailed)
	}

	filter, msg := parseEventFilter(req.Status, req.From, req.To)
	if msg != "" {
		middleware.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	filter.OwnerID = device.OwnerID

	res, err := h.svc.Reparse(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to reparse events")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to reparse events")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]int{
		"total":     res.Total,
		"succeeded": res.Succeeded,
		"failed":    res.Failed,
	})
}
