package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ownspend/internal/domain"
)

// TransactionRow is one version of a transaction in the analytics table. The
// table is append-only: every sync writes a new row and readers take the row
// with the latest updated_ts per transaction_id.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	OwnerID       string `bigquery:"owner_id"`       // REQUIRED
	AccountID     string `bigquery:"account_id"`     // REQUIRED

	Direction string   `bigquery:"direction"` // REQUIRED
	Amount    *big.Rat `bigquery:"amount"`    // REQUIRED NUMERIC
	Currency  string   `bigquery:"currency"`  // REQUIRED
	Channel   string   `bigquery:"channel"`   // REQUIRED

	Counterparty bigquery.NullString `bigquery:"counterparty"`
	MerchantKey  bigquery.NullString `bigquery:"merchant_key"`
	MerchantID   bigquery.NullString `bigquery:"merchant_id"`
	CategoryID   bigquery.NullString `bigquery:"category_id"`
	Description  bigquery.NullString `bigquery:"description"`

	IsInternalTransfer bool     `bigquery:"is_internal_transfer"`
	Overrides          []string `bigquery:"overrides"` // REPEATED STRING

	TransactionTime time.Time `bigquery:"transaction_time"` // REQUIRED, partition field
	IngestedTS      time.Time `bigquery:"ingested_ts"`
	UpdatedTS       time.Time `bigquery:"updated_ts"`
}

// NewTransactionRow converts a transaction to its analytics row.
func NewTransactionRow(tx *domain.Transaction) *TransactionRow {
	return &TransactionRow{
		TransactionID:      tx.TransactionID,
		OwnerID:            tx.OwnerID,
		AccountID:          tx.AccountID,
		Direction:          string(tx.Direction),
		Amount:             tx.Amount.Rat(),
		Currency:           tx.Currency,
		Channel:            string(tx.Channel),
		Counterparty:       nullString(tx.Counterparty),
		MerchantKey:        nullString(tx.MerchantKey),
		MerchantID:         nullString(tx.MerchantID),
		CategoryID:         nullString(tx.CategoryID),
		Description:        nullString(tx.Description),
		IsInternalTransfer: tx.IsInternalTransfer,
		Overrides:          tx.OverrideFlags.Names(),
		TransactionTime:    tx.TransactionTime,
		IngestedTS:         tx.IngestedAt,
		UpdatedTS:          tx.UpdatedAt,
	}
}

// insertID identifies one version of a transaction so retried streaming
// inserts of the same version are dropped by BigQuery.
func (r *TransactionRow) insertID() string {
	return fmt.Sprintf("%s:%d", r.TransactionID, r.UpdatedTS.UnixNano())
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
