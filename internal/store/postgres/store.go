// Package postgres implements store.Store on PostgreSQL through bun. Unique
// indexes on the account tuple and the dedupe key are created with the schema,
// and violations surface as store.ErrConflict.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/store"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

var _ store.Store = (*Store)(nil)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store is a bun-backed store.Store.
type Store struct {
	db *bun.DB
}

// Open connects to the database at dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*bun.DB, error) {
	connector := pgdriver.NewConnector(pgdriver.WithDSN(dsn))
	sqldb := sql.OpenDB(connector)
	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("Open: ping database: %w", err)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// New wraps an open bun database.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// CreateSchema creates every table if it does not exist yet.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("CreateSchema: create table for %T: %w", model, err)
		}
	}

	indexes := []struct {
		model   interface{}
		name    string
		columns []string
	}{
		{(*eventModel)(nil), "inbound_events_owner_status_idx", []string{"owner_id", "status"}},
		{(*transactionModel)(nil), "transactions_owner_time_idx", []string{"owner_id", "transaction_time"}},
		{(*ruleModel)(nil), "rules_owner_priority_idx", []string{"owner_id", "priority"}},
	}
	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("CreateSchema: create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// mapError translates driver errors into store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.Field('M'), store.ErrConflict)
	}
	return err
}

func (s *Store) FindAccount(ctx context.Context, ownerID, bankName, accountMask string) (*domain.Account, error) {
	var m accountModel
	err := s.db.NewSelect().
		Model(&m).
		Where("owner_id = ?", ownerID).
		Where("bank_name = ?", bankName).
		Where("account_mask = ?", accountMask).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return m.toDomain(), nil
}

func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	if _, err := s.db.NewInsert().Model(accountFromDomain(account)).Exec(ctx); err != nil {
		return fmt.Errorf("CreateAccount: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var m accountModel
	if err := s.db.NewSelect().Model(&m).Where("account_id = ?", accountID).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return m.toDomain(), nil
}

func (s *Store) ListAccounts(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	var rows []accountModel
	q := s.db.NewSelect().Model(&rows).Order("created_at ASC", "account_id ASC")
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", mapError(err))
	}

	result := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

func (s *Store) CreateEvent(ctx context.Context, event *domain.InboundEvent) error {
	if _, err := s.db.NewInsert().Model(eventFromDomain(event)).Exec(ctx); err != nil {
		return fmt.Errorf("CreateEvent: %w", mapError(err))
	}
	return nil
}

func (s *Store) UpdateEvent(ctx context.Context, event *domain.InboundEvent) error {
	res, err := s.db.NewUpdate().
		Model(eventFromDomain(event)).
		Column("status", "error_message", "transaction_id").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("UpdateEvent: %w", mapError(err))
	}
	return requireRow(res, "UpdateEvent", event.EventID)
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (*domain.InboundEvent, error) {
	var m eventModel
	if err := s.db.NewSelect().Model(&m).Where("event_id = ?", eventID).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return m.toDomain(), nil
}

func (s *Store) ListEvents(ctx context.Context, filter store.EventFilter) ([]*domain.InboundEvent, error) {
	var rows []eventModel
	q := s.db.NewSelect().Model(&rows).Order("received_at ASC", "event_id ASC")
	if filter.OwnerID != "" {
		q = q.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if !filter.From.IsZero() {
		q = q.Where("received_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("received_at <= ?", filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListEvents: %w", mapError(err))
	}

	result := make([]*domain.InboundEvent, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if _, err := s.db.NewInsert().Model(transactionFromDomain(tx)).Exec(ctx); err != nil {
		return fmt.Errorf("CreateTransaction: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	var m transactionModel
	if err := s.db.NewSelect().Model(&m).Where("transaction_id = ?", transactionID).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return m.toDomain(), nil
}

func (s *Store) FindTransactionByDedupeKey(ctx context.Context, dedupeKey string) (*domain.Transaction, error) {
	var m transactionModel
	err := s.db.NewSelect().
		Model(&m).
		Where("dedupe_key = ?", dedupeKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return m.toDomain(), nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx *domain.Transaction) error {
	res, err := s.db.NewUpdate().
		Model(transactionFromDomain(tx)).
		Column("merchant_id", "category_id", "description", "is_internal_transfer", "override_flags", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("UpdateTransaction: %w", mapError(err))
	}
	return requireRow(res, "UpdateTransaction", tx.TransactionID)
}

func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error) {
	var rows []transactionModel
	q := s.db.NewSelect().Model(&rows).Order("transaction_time DESC", "transaction_id ASC")
	if filter.OwnerID != "" {
		q = q.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.AccountID != "" {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if filter.Direction != "" {
		q = q.Where("direction = ?", string(filter.Direction))
	}
	if !filter.From.IsZero() {
		q = q.Where("transaction_time >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("transaction_time <= ?", filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", mapError(err))
	}

	result := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

func (s *Store) GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	var m merchantModel
	if err := s.db.NewSelect().Model(&m).Where("merchant_id = ?", merchantID).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return m.toDomain(), nil
}

func (s *Store) FindMerchantByKey(ctx context.Context, merchantKey string) (*domain.Merchant, error) {
	var m merchantModel
	if err := s.db.NewSelect().Model(&m).Where("merchant_key = ?", merchantKey).Limit(1).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return m.toDomain(), nil
}

func (s *Store) CreateMerchant(ctx context.Context, merchant *domain.Merchant) error {
	if _, err := s.db.NewInsert().Model(merchantFromDomain(merchant)).Exec(ctx); err != nil {
		return fmt.Errorf("CreateMerchant: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetCategory(ctx context.Context, categoryID string) (*domain.Category, error) {
	var m categoryModel
	if err := s.db.NewSelect().Model(&m).Where("category_id = ?", categoryID).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return m.toDomain(), nil
}

func (s *Store) FindCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	var m categoryModel
	err := s.db.NewSelect().
		Model(&m).
		Where("lower(name) = ?", strings.ToLower(name)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return m.toDomain(), nil
}

func (s *Store) CreateCategory(ctx context.Context, category *domain.Category) error {
	if _, err := s.db.NewInsert().Model(categoryFromDomain(category)).Exec(ctx); err != nil {
		return fmt.Errorf("CreateCategory: %w", mapError(err))
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	var rows []categoryModel
	if err := s.db.NewSelect().Model(&rows).Order("sort_order ASC", "name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListCategories: %w", mapError(err))
	}

	result := make([]*domain.Category, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

func (s *Store) ListActiveRules(ctx context.Context, ownerID string) ([]*domain.Rule, error) {
	var rows []ruleModel
	err := s.db.NewSelect().
		Model(&rows).
		Where("owner_id = ?", ownerID).
		Where("is_active").
		Order("priority ASC", "created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListActiveRules: %w", mapError(err))
	}

	result := make([]*domain.Rule, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

func (s *Store) CreateRule(ctx context.Context, rule *domain.Rule) error {
	if _, err := s.db.NewInsert().Model(ruleFromDomain(rule)).Exec(ctx); err != nil {
		return fmt.Errorf("CreateRule: %w", mapError(err))
	}
	return nil
}

func requireRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %s: %w", op, id, store.ErrNotFound)
	}
	return nil
}
