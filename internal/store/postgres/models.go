package postgres

import (
	"time"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type accountModel struct {
	bun.BaseModel `bun:"table:accounts"`

	AccountID   string `bun:",pk"`
	OwnerID     string `bun:",notnull,unique:accounts_owner_bank_mask"`
	BankName    string `bun:",notnull,unique:accounts_owner_bank_mask"`
	AccountMask string `bun:",notnull,unique:accounts_owner_bank_mask"`
	DisplayName string
	Type        string
	IsActive    bool `bun:",notnull"`
	CreatedAt   time.Time `bun:",notnull"`
}

func accountFromDomain(a *domain.Account) *accountModel {
	return &accountModel{
		AccountID:   a.AccountID,
		OwnerID:     a.OwnerID,
		BankName:    a.BankName,
		AccountMask: a.AccountMask,
		DisplayName: a.DisplayName,
		Type:        string(a.Type),
		IsActive:    a.IsActive,
		CreatedAt:   a.CreatedAt,
	}
}

func (m *accountModel) toDomain() *domain.Account {
	return &domain.Account{
		AccountID:   m.AccountID,
		OwnerID:     m.OwnerID,
		BankName:    m.BankName,
		AccountMask: m.AccountMask,
		DisplayName: m.DisplayName,
		Type:        domain.AccountType(m.Type),
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt,
	}
}

type eventModel struct {
	bun.BaseModel `bun:"table:inbound_events"`

	EventID       string `bun:",pk"`
	OwnerID       string `bun:",notnull"`
	DeviceID      string
	SourceType    string `bun:",notnull"`
	Sender        string
	Package       string
	RawText       string    `bun:"type:text,notnull"`
	ReceivedAt    time.Time `bun:",notnull"`
	InsertedAt    time.Time `bun:",notnull"`
	Status        string    `bun:",notnull"`
	ErrorMessage  string    `bun:"type:text"`
	TransactionID string
}

func eventFromDomain(e *domain.InboundEvent) *eventModel {
	return &eventModel{
		EventID:       e.EventID,
		OwnerID:       e.OwnerID,
		DeviceID:      e.DeviceID,
		SourceType:    string(e.SourceType),
		Sender:        e.Sender,
		Package:       e.Package,
		RawText:       e.RawText,
		ReceivedAt:    e.ReceivedAt,
		InsertedAt:    e.InsertedAt,
		Status:        string(e.Status),
		ErrorMessage:  e.ErrorMessage,
		TransactionID: e.TransactionID,
	}
}

func (m *eventModel) toDomain() *domain.InboundEvent {
	return &domain.InboundEvent{
		EventID:       m.EventID,
		OwnerID:       m.OwnerID,
		DeviceID:      m.DeviceID,
		SourceType:    domain.SourceType(m.SourceType),
		Sender:        m.Sender,
		Package:       m.Package,
		RawText:       m.RawText,
		ReceivedAt:    m.ReceivedAt,
		InsertedAt:    m.InsertedAt,
		Status:        domain.EventStatus(m.Status),
		ErrorMessage:  m.ErrorMessage,
		TransactionID: m.TransactionID,
	}
}

type transactionModel struct {
	bun.BaseModel `bun:"table:transactions"`

	TransactionID      string          `bun:",pk"`
	OwnerID            string          `bun:",notnull"`
	AccountID          string          `bun:",notnull"`
	Direction          string          `bun:",notnull"`
	Amount             decimal.Decimal `bun:"type:numeric(14,2),notnull"`
	Currency           string          `bun:",notnull"`
	Channel            string          `bun:",notnull"`
	Counterparty       string
	MerchantKey        string
	MerchantID         string
	CategoryID         string
	Description        string `bun:"type:text"`
	IsInternalTransfer bool   `bun:",notnull"`
	OverrideFlags      int16  `bun:",notnull"`
	TransactionTime    time.Time `bun:",notnull"`
	IngestedAt         time.Time `bun:",notnull"`
	UpdatedAt          time.Time `bun:",notnull"`
	DedupeKey          string    `bun:",notnull,unique"`
}

func transactionFromDomain(tx *domain.Transaction) *transactionModel {
	return &transactionModel{
		TransactionID:      tx.TransactionID,
		OwnerID:            tx.OwnerID,
		AccountID:          tx.AccountID,
		Direction:          string(tx.Direction),
		Amount:             tx.Amount,
		Currency:           tx.Currency,
		Channel:            string(tx.Channel),
		Counterparty:       tx.Counterparty,
		MerchantKey:        tx.MerchantKey,
		MerchantID:         tx.MerchantID,
		CategoryID:         tx.CategoryID,
		Description:        tx.Description,
		IsInternalTransfer: tx.IsInternalTransfer,
		OverrideFlags:      int16(tx.OverrideFlags),
		TransactionTime:    tx.TransactionTime,
		IngestedAt:         tx.IngestedAt,
		UpdatedAt:          tx.UpdatedAt,
		DedupeKey:          tx.DedupeKey,
	}
}

func (m *transactionModel) toDomain() *domain.Transaction {
	return &domain.Transaction{
		TransactionID:      m.TransactionID,
		OwnerID:            m.OwnerID,
		AccountID:          m.AccountID,
		Direction:          domain.Direction(m.Direction),
		Amount:             m.Amount,
		Currency:           m.Currency,
		Channel:            domain.Channel(m.Channel),
		Counterparty:       m.Counterparty,
		MerchantKey:        m.MerchantKey,
		MerchantID:         m.MerchantID,
		CategoryID:         m.CategoryID,
		Description:        m.Description,
		IsInternalTransfer: m.IsInternalTransfer,
		OverrideFlags:      domain.OverrideFlags(m.OverrideFlags),
		TransactionTime:    m.TransactionTime,
		IngestedAt:         m.IngestedAt,
		UpdatedAt:          m.UpdatedAt,
		DedupeKey:          m.DedupeKey,
	}
}

type merchantModel struct {
	bun.BaseModel `bun:"table:merchants"`

	MerchantID        string `bun:",pk"`
	MerchantKey       string `bun:",notnull,unique"`
	DisplayName       string
	DefaultCategoryID string
	IsPersonalContact bool `bun:",notnull"`
	IsSelfAccount     bool `bun:",notnull"`
}

func merchantFromDomain(m *domain.Merchant) *merchantModel {
	return &merchantModel{
		MerchantID:        m.MerchantID,
		MerchantKey:       m.MerchantKey,
		DisplayName:       m.DisplayName,
		DefaultCategoryID: m.DefaultCategoryID,
		IsPersonalContact: m.IsPersonalContact,
		IsSelfAccount:     m.IsSelfAccount,
	}
}

func (m *merchantModel) toDomain() *domain.Merchant {
	return &domain.Merchant{
		MerchantID:        m.MerchantID,
		MerchantKey:       m.MerchantKey,
		DisplayName:       m.DisplayName,
		DefaultCategoryID: m.DefaultCategoryID,
		IsPersonalContact: m.IsPersonalContact,
		IsSelfAccount:     m.IsSelfAccount,
	}
}

type categoryModel struct {
	bun.BaseModel `bun:"table:categories"`

	CategoryID string `bun:",pk"`
	Name       string `bun:",notnull,unique"`
	ParentID   string
	SortOrder  int `bun:",notnull"`
}

func categoryFromDomain(c *domain.Category) *categoryModel {
	return &categoryModel{
		CategoryID: c.CategoryID,
		Name:       c.Name,
		ParentID:   c.ParentID,
		SortOrder:  c.SortOrder,
	}
}

func (m *categoryModel) toDomain() *domain.Category {
	return &domain.Category{
		CategoryID: m.CategoryID,
		Name:       m.Name,
		ParentID:   m.ParentID,
		SortOrder:  m.SortOrder,
	}
}

type ruleModel struct {
	bun.BaseModel `bun:"table:rules"`

	RuleID      string `bun:",pk"`
	OwnerID     string `bun:",notnull"`
	MatchType   string `bun:",notnull"`
	MatchValue  string `bun:",notnull"`
	ActionType  string `bun:",notnull"`
	ActionValue string
	Priority    int       `bun:",notnull"`
	IsActive    bool      `bun:",notnull"`
	CreatedAt   time.Time `bun:",notnull"`
}

func ruleFromDomain(r *domain.Rule) *ruleModel {
	return &ruleModel{
		RuleID:      r.RuleID,
		OwnerID:     r.OwnerID,
		MatchType:   string(r.MatchType),
		MatchValue:  r.MatchValue,
		ActionType:  string(r.ActionType),
		ActionValue: r.ActionValue,
		Priority:    r.Priority,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
	}
}

func (m *ruleModel) toDomain() *domain.Rule {
	return &domain.Rule{
		RuleID:      m.RuleID,
		OwnerID:     m.OwnerID,
		MatchType:   domain.MatchType(m.MatchType),
		MatchValue:  m.MatchValue,
		ActionType:  domain.ActionType(m.ActionType),
		ActionValue: m.ActionValue,
		Priority:    m.Priority,
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt,
	}
}

// models lists every table in creation order.
var models = []interface{}{
	(*accountModel)(nil),
	(*eventModel)(nil),
	(*transactionModel)(nil),
	(*merchantModel)(nil),
	(*categoryModel)(nil),
	(*ruleModel)(nil),
}
