package pipeline

import (
	"context"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/extract"
	"github.com/dvloznov/ownspend/internal/resolver"
	"github.com/dvloznov/ownspend/internal/rules"
)

// Mirror receives committed transactions for an external copy (Notion,
// BigQuery). Mirrors run after the store write; their failures are logged and
// never undo ingestion.
type Mirror interface {
	Name() string
	SyncTransaction(ctx context.Context, tx *domain.Transaction) error
}

// FieldExtractor picks an extractor for an event and runs it.
type FieldExtractor interface {
	Extract(sender, pkg, text string) (extract.Fields, extract.SourceKind, bool)
}

// AccountResolver maps (owner, bank, mask) to an account.
type AccountResolver interface {
	Resolve(ctx context.Context, ownerID, bankName, accountMask string) (*domain.Account, error)
}

// RuleEngine categorizes transactions.
type RuleEngine interface {
	Apply(ctx context.Context, tx *domain.Transaction) (bool, error)
	ApplyRules(ctx context.Context, tx *domain.Transaction, rules []*domain.Rule) (bool, error)
}

var (
	_ FieldExtractor  = (*extract.Router)(nil)
	_ AccountResolver = (*resolver.Resolver)(nil)
	_ RuleEngine      = (*rules.Engine)(nil)
)
