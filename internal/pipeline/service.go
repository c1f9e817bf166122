// Package pipeline materializes inbound notification events into
// deduplicated, categorized transactions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/extract"
	"github.com/dvloznov/ownspend/internal/logger"
	"github.com/dvloznov/ownspend/internal/resolver"
	"github.com/dvloznov/ownspend/internal/rules"
	"github.com/dvloznov/ownspend/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalidRequest is returned for requests that cannot be stored as events.
var ErrInvalidRequest = errors.New("invalid ingest request")

// IngestRequest is one notification as reported by a device.
type IngestRequest struct {
	OwnerID    string
	DeviceID   string
	SourceType domain.SourceType
	Sender     string
	Package    string
	RawText    string
	// Timestamp is the device-reported receive time. Zero means now.
	Timestamp time.Time
}

// IngestResult reports what happened to one event.
type IngestResult struct {
	EventID       string
	TransactionID string
	Parsed        bool
	// Created is false when the event linked to an existing transaction.
	Created bool
	// Error is the recorded failure reason for unparsed events.
	Error string
}

// ReparseResult counts a reparse run.
type ReparseResult struct {
	Total     int
	Succeeded int
	Failed    int
}

// ReapplyResult counts a rule reapplication run.
type ReapplyResult struct {
	Processed int
	Changed   int
}

// Service is the ingestion core.
type Service struct {
	store       store.Store
	extractor   FieldExtractor
	resolver    AccountResolver
	rules       RuleEngine
	mirrors     []Mirror
	now         func() time.Time
	log         zerolog.Logger
	materialize *Pipeline
}

// Option configures a Service.
type Option func(*Service)

// WithMirrors registers post-commit mirrors.
func WithMirrors(mirrors ...Mirror) Option {
	return func(s *Service) { s.mirrors = append(s.mirrors, mirrors...) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithExtractor replaces the default source router.
func WithExtractor(e FieldExtractor) Option {
	return func(s *Service) { s.extractor = e }
}

// WithRuleEngine replaces the store-backed rule engine.
func WithRuleEngine(r RuleEngine) Option {
	return func(s *Service) { s.rules = r }
}

// NewService wires the default extractor, resolver and rule engine around st.
func NewService(st store.Store, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     st,
		extractor: extract.NewRouter(),
		resolver:  resolver.New(st),
		rules:     rules.NewEngine(st),
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.materialize = NewMaterializerPipeline(s.extractor, s.resolver, st, s.now)
	return s
}

// Ingest stores the event and materializes it. An event whose text lacks
// required fields is stored as FAILED and reported with Parsed=false and a nil
// error; store faults are returned.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	event, err := s.createEvent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Ingest: %w", err)
	}
	return s.process(ctx, event)
}

// createEvent validates req and stores it as a PENDING event.
func (s *Service) createEvent(ctx context.Context, req IngestRequest) (*domain.InboundEvent, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, fmt.Errorf("owner id is required: %w", ErrInvalidRequest)
	}
	sourceType := req.SourceType
	switch sourceType {
	case "":
		sourceType = domain.SourceTypeSMS
	case domain.SourceTypeSMS, domain.SourceTypeNotification:
	default:
		return nil, fmt.Errorf("unknown source type %q: %w", req.SourceType, ErrInvalidRequest)
	}

	now := s.now().UTC()
	receivedAt := req.Timestamp
	if receivedAt.IsZero() {
		receivedAt = now
	}

	event := &domain.InboundEvent{
		EventID:    uuid.New().String(),
		OwnerID:    req.OwnerID,
		DeviceID:   req.DeviceID,
		SourceType: sourceType,
		Sender:     req.Sender,
		Package:    req.Package,
		RawText:    req.RawText,
		ReceivedAt: receivedAt,
		InsertedAt: now,
		Status:     domain.EventStatusPending,
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

// resume finishes a stored event of ownerID. A PARSED event is reported as is;
// any other status is materialized again.
func (s *Service) resume(ctx context.Context, ownerID, eventID string) (*IngestResult, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("resume: get event %s: %w", eventID, err)
	}
	if event.OwnerID != ownerID {
		return nil, fmt.Errorf("resume: get event %s: %w", eventID, store.ErrNotFound)
	}
	if event.Status == domain.EventStatusParsed {
		return &IngestResult{
			EventID:       event.EventID,
			TransactionID: event.TransactionID,
			Parsed:        true,
		}, nil
	}

	event.Status = domain.EventStatusPending
	event.ErrorMessage = ""
	return s.process(ctx, event)
}

// process runs the materializer on a stored event and does the best-effort
// post-commit work.
func (s *Service) process(ctx context.Context, event *domain.InboundEvent) (*IngestResult, error) {
	log := s.log.With().Str("event_id", event.EventID).Str("owner_id", event.OwnerID).Logger()
	ctx = logger.WithContext(ctx, log)
	result := &IngestResult{EventID: event.EventID}

	state := &PipelineState{Event: event}
	err := s.materialize.Execute(ctx, state)

	var extractionErr *ExtractionError
	switch {
	case errors.As(err, &extractionErr):
		reason := truncate(extractionErr.Error())
		log.Info().
			Str("source", state.SourceKind.String()).
			Strs("missing", extractionErr.Missing).
			Msg("Event could not be parsed")
		if markErr := s.markFailed(ctx, event, reason); markErr != nil {
			return nil, fmt.Errorf("process: record failure: %w", markErr)
		}
		result.Error = reason
		return result, nil

	case err != nil:
		if markErr := s.markFailed(ctx, event, truncate(err.Error())); markErr != nil {
			log.Error().Err(markErr).Msg("Failed to mark event as failed")
		}
		return nil, fmt.Errorf("process: event %s: %w", event.EventID, err)
	}

	tx := state.Transaction
	result.Parsed = true
	result.TransactionID = tx.TransactionID
	result.Created = state.Created

	log = log.With().
		Str("transaction_id", tx.TransactionID).
		Str("dedupe_key", state.DedupeKey).
		Logger()

	if !state.Created {
		log.Info().Msg("Event linked to existing transaction")
		return result, nil
	}
	log.Info().
		Str("source", state.SourceKind.String()).
		Str("amount", tx.Amount.StringFixed(2)).
		Str("direction", string(tx.Direction)).
		Msg("Transaction created")

	// Mirrors only see rule results that were stored.
	categorized := *tx
	if _, err := s.rules.Apply(ctx, &categorized); err != nil {
		log.Warn().Err(err).Msg("Rule evaluation failed")
	} else {
		tx = &categorized
	}
	s.mirror(ctx, tx)

	return result, nil
}

func (s *Service) markFailed(ctx context.Context, event *domain.InboundEvent, reason string) error {
	event.Status = domain.EventStatusFailed
	event.ErrorMessage = reason
	event.TransactionID = ""
	return s.store.UpdateEvent(ctx, event)
}

// mirror pushes tx to every mirror, logging and swallowing failures.
func (s *Service) mirror(ctx context.Context, tx *domain.Transaction) {
	for _, m := range s.mirrors {
		if err := m.SyncTransaction(ctx, tx); err != nil {
			s.log.Warn().
				Err(err).
				Str("mirror", m.Name()).
				Str("transaction_id", tx.TransactionID).
				Msg("Mirror sync failed")
		}
	}
}

// FailedEvents selects every FAILED event of ownerID.
func FailedEvents(ownerID string) store.EventFilter {
	return store.EventFilter{OwnerID: ownerID, Status: domain.EventStatusFailed}
}

// Reparse re-runs materialization over stored events matching filter. Dedupe
// keys make it safe to reparse events that were already linked. A store fault
// on one event counts it as failed and moves on.
func (s *Service) Reparse(ctx context.Context, filter store.EventFilter) (*ReparseResult, error) {
	events, err := s.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("Reparse: list events: %w", err)
	}

	res := &ReparseResult{Total: len(events)}
	for _, event := range events {
		event.Status = domain.EventStatusPending

		out, err := s.process(ctx, event)
		if err != nil {
			s.log.Error().Err(err).Str("event_id", event.EventID).Msg("Reparse failed")
			res.Failed++
			continue
		}
		if out.Parsed {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}

	s.log.Info().
		Int("total", res.Total).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Msg("Reparse finished")
	return res, nil
}

// ReapplyRules re-runs the owner's rules over the given transactions, or over
// all of the owner's transactions when ids is empty. Ids that do not exist or
// belong to another owner are skipped.
func (s *Service) ReapplyRules(ctx context.Context, ownerID string, ids []string) (*ReapplyResult, error) {
	ctx = logger.WithContext(ctx, s.log)
	ruleSet, err := s.store.ListActiveRules(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ReapplyRules: list rules: %w", err)
	}

	res := &ReapplyResult{}
	apply := func(tx *domain.Transaction) error {
		changed, err := s.rules.ApplyRules(ctx, tx, ruleSet)
		if err != nil {
			return fmt.Errorf("ReapplyRules: transaction %s: %w", tx.TransactionID, err)
		}
		res.Processed++
		if changed {
			res.Changed++
			s.mirror(ctx, tx)
		}
		return nil
	}

	if len(ids) > 0 {
		for _, id := range ids {
			tx, err := s.store.GetTransaction(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return res, fmt.Errorf("ReapplyRules: get transaction %s: %w", id, err)
			}
			if tx.OwnerID != ownerID {
				continue
			}
			if err := apply(tx); err != nil {
				return res, err
			}
		}
		return res, nil
	}

	for offset := 0; ; offset += reapplyPageSize {
		batch, err := s.store.ListTransactions(ctx, store.TransactionFilter{
			OwnerID: ownerID,
			Limit:   reapplyPageSize,
			Offset:  offset,
		})
		if err != nil {
			return res, fmt.Errorf("ReapplyRules: list transactions: %w", err)
		}
		for _, tx := range batch {
			if err := apply(tx); err != nil {
				return res, err
			}
		}
		if len(batch) < reapplyPageSize {
			return res, nil
		}
	}
}

// EditTransaction applies a manual edit. Edited merchant, category and
// internal fields get their override bit set so rules leave them alone.
func (s *Service) EditTransaction(ctx context.Context, ownerID, transactionID string, edit domain.TransactionEdit) (*domain.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("EditTransaction: get %s: %w", transactionID, err)
	}
	if tx.OwnerID != ownerID {
		return nil, fmt.Errorf("EditTransaction: get %s: %w", transactionID, store.ErrNotFound)
	}

	before := tx.OverrideFlags
	changed := edit.Apply(tx)
	if !changed && tx.OverrideFlags == before {
		return tx, nil
	}

	tx.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("EditTransaction: update %s: %w", transactionID, err)
	}

	s.log.Info().
		Str("transaction_id", tx.TransactionID).
		Strs("overrides", tx.OverrideFlags.Names()).
		Msg("Transaction edited")

	if changed {
		s.mirror(ctx, tx)
	}
	return tx, nil
}

// truncate cuts msg to at most maxErrorLen bytes on a rune boundary.
func truncate(msg string) string {
	if len(msg) <= maxErrorLen {
		return msg
	}
	end := maxErrorLen
	for end > 0 && !utf8.RuneStart(msg[end]) {
		end--
	}
	return msg[:end]
}
