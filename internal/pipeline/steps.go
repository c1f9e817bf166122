package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/ownspend/internal/dedupe"
	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/extract"
	"github.com/dvloznov/ownspend/internal/store"
	"github.com/google/uuid"
)

// PipelineStep represents a single step of materializing one event.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Event *domain.InboundEvent

	Fields     extract.Fields
	SourceKind extract.SourceKind

	Account     *domain.Account
	DedupeKey   string
	Transaction *domain.Transaction

	// Created is true when this run inserted the transaction rather than
	// linking to an existing one.
	Created bool
}

// ExtractionError reports an event whose text lacked required fields. It is
// recorded on the event rather than returned to the caller.
type ExtractionError struct {
	Missing []string
}

func (e *ExtractionError) Error() string {
	return "could not extract required fields: " + strings.Join(e.Missing, ", ")
}

// ExtractStep runs the source router over the event text.
type ExtractStep struct {
	Extractor FieldExtractor
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	e := state.Event
	fields, kind, _ := s.Extractor.Extract(e.Sender, e.Package, e.RawText)
	state.Fields = fields
	state.SourceKind = kind

	if missing := fields.Missing(); len(missing) > 0 {
		return &ExtractionError{Missing: missing}
	}
	return nil
}

// ResolveAccountStep finds or creates the account the text refers to.
type ResolveAccountStep struct {
	Resolver AccountResolver
}

func (s *ResolveAccountStep) Execute(ctx context.Context, state *PipelineState) error {
	acc, err := s.Resolver.Resolve(ctx, state.Event.OwnerID, state.Fields.BankName, state.Fields.AccountMask)
	if err != nil {
		return err
	}
	state.Account = acc
	return nil
}

// DedupeKeyStep computes the fingerprint of the transfer.
type DedupeKeyStep struct{}

func (s *DedupeKeyStep) Execute(ctx context.Context, state *PipelineState) error {
	state.DedupeKey = dedupe.Key(dedupe.Input{
		OwnerID:      state.Event.OwnerID,
		AccountID:    state.Account.AccountID,
		Direction:    state.Fields.Direction,
		Amount:       state.Fields.Amount.Decimal,
		Timestamp:    state.Event.ReceivedAt,
		Counterparty: state.Fields.Counterparty,
	})
	return nil
}

// MaterializeStep links to the transaction with the same dedupe key or
// creates it. A unique-key conflict means another event won the race, so the
// step falls back to linking.
type MaterializeStep struct {
	Store store.TransactionStore
	Now   func() time.Time
}

func (s *MaterializeStep) Execute(ctx context.Context, state *PipelineState) error {
	existing, err := s.Store.FindTransactionByDedupeKey(ctx, state.DedupeKey)
	if err == nil {
		state.Transaction = existing
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("MaterializeStep: find by dedupe key: %w", err)
	}

	tx := newTransaction(state, s.Now().UTC())
	err = s.Store.CreateTransaction(ctx, tx)
	if errors.Is(err, store.ErrConflict) {
		winner, findErr := s.Store.FindTransactionByDedupeKey(ctx, state.DedupeKey)
		if findErr != nil {
			return fmt.Errorf("MaterializeStep: re-find after conflict: %w", findErr)
		}
		state.Transaction = winner
		return nil
	}
	if err != nil {
		return fmt.Errorf("MaterializeStep: create transaction: %w", err)
	}

	state.Transaction = tx
	state.Created = true
	return nil
}

func newTransaction(state *PipelineState, now time.Time) *domain.Transaction {
	f := state.Fields

	channel := f.Channel
	if channel == "" {
		channel = domain.ChannelOther
	}

	return &domain.Transaction{
		TransactionID:   uuid.New().String(),
		OwnerID:         state.Event.OwnerID,
		AccountID:       state.Account.AccountID,
		Direction:       f.Direction,
		Amount:          f.Amount.Decimal,
		Currency:        domain.DefaultCurrency,
		Channel:         channel,
		Counterparty:    f.Counterparty,
		MerchantKey:     dedupe.NormalizeCounterparty(f.Counterparty),
		TransactionTime: state.Event.ReceivedAt,
		IngestedAt:      now,
		UpdatedAt:       now,
		DedupeKey:       state.DedupeKey,
	}
}

// LinkEventStep marks the event PARSED and points it at the transaction.
type LinkEventStep struct {
	Store store.EventStore
}

func (s *LinkEventStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Event.Status = domain.EventStatusParsed
	state.Event.ErrorMessage = ""
	state.Event.TransactionID = state.Transaction.TransactionID

	if err := s.Store.UpdateEvent(ctx, state.Event); err != nil {
		return fmt.Errorf("LinkEventStep: update event %s: %w", state.Event.EventID, err)
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewMaterializerPipeline creates the standard event materialization pipeline.
func NewMaterializerPipeline(extractor FieldExtractor, resolver AccountResolver, st store.Store, now func() time.Time) *Pipeline {
	return NewPipeline(
		&ExtractStep{Extractor: extractor},
		&ResolveAccountStep{Resolver: resolver},
		&DedupeKeyStep{},
		&MaterializeStep{Store: st, Now: now},
		&LinkEventStep{Store: st},
	)
}
