package bigquery

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockInserter struct {
	PutFunc func(ctx context.Context, src interface{}) error
}

func (m *mockInserter) Put(ctx context.Context, src interface{}) error {
	return m.PutFunc(ctx, src)
}

func testTransaction() *domain.Transaction {
	return &domain.Transaction{
		TransactionID:   "tx-1",
		OwnerID:         "owner-1",
		AccountID:       "acc-1",
		Direction:       domain.DirectionDebit,
		Amount:          decimal.RequireFromString("1234.50"),
		Currency:        "INR",
		Channel:         domain.ChannelUPI,
		Counterparty:    "zomato@upi",
		MerchantKey:     "zomato@upi",
		CategoryID:      "cat-1",
		OverrideFlags:   domain.OverrideCategory,
		TransactionTime: time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC),
		IngestedAt:      time.Date(2024, 3, 5, 10, 31, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2024, 3, 5, 10, 32, 0, 0, time.UTC),
	}
}

func TestNewTransactionRow(t *testing.T) {
	row := NewTransactionRow(testTransaction())

	assert.Equal(t, "tx-1", row.TransactionID)
	assert.Equal(t, "DEBIT", row.Direction)
	assert.Equal(t, "UPI", row.Channel)
	assert.Equal(t, "2469/2", row.Amount.String())
	assert.Equal(t, bigquery.NullString{StringVal: "zomato@upi", Valid: true}, row.Counterparty)
	assert.Equal(t, bigquery.NullString{StringVal: "cat-1", Valid: true}, row.CategoryID)
	assert.False(t, row.MerchantID.Valid)
	assert.False(t, row.Description.Valid)
	assert.Equal(t, []string{"category"}, row.Overrides)
}

func TestTransactionRow_InsertIDChangesWithVersion(t *testing.T) {
	tx := testTransaction()
	first := NewTransactionRow(tx).insertID()
	assert.Equal(t, first, NewTransactionRow(tx).insertID())

	tx.UpdatedAt = tx.UpdatedAt.Add(time.Second)
	assert.NotEqual(t, first, NewTransactionRow(tx).insertID())
}

func TestInferSchema(t *testing.T) {
	schema, err := bigquery.InferSchema(TransactionRow{})
	require.NoError(t, err)

	types := make(map[string]bigquery.FieldType)
	for _, f := range schema {
		types[f.Name] = f.Type
	}
	assert.Equal(t, bigquery.NumericFieldType, types["amount"])
	assert.Equal(t, bigquery.TimestampFieldType, types["transaction_time"])
	assert.Equal(t, bigquery.BooleanFieldType, types["is_internal_transfer"])
}

func TestMirror_SyncTransaction(t *testing.T) {
	schema, err := bigquery.InferSchema(TransactionRow{})
	require.NoError(t, err)

	t.Run("puts a struct saver", func(t *testing.T) {
		var got interface{}
		m := &Mirror{
			schema: schema,
			inserter: &mockInserter{PutFunc: func(ctx context.Context, src interface{}) error {
				got = src
				return nil
			}},
		}
		assert.Equal(t, "bigquery", m.Name())

		require.NoError(t, m.SyncTransaction(context.Background(), testTransaction()))

		saver, ok := got.(*bigquery.StructSaver)
		require.True(t, ok)
		assert.Equal(t, NewTransactionRow(testTransaction()).insertID(), saver.InsertID)
		row, ok := saver.Struct.(*TransactionRow)
		require.True(t, ok)
		assert.Equal(t, "tx-1", row.TransactionID)
	})

	t.Run("wraps insert errors", func(t *testing.T) {
		m := &Mirror{
			schema: schema,
			inserter: &mockInserter{PutFunc: func(ctx context.Context, src interface{}) error {
				return errors.New("quota exceeded")
			}},
		}

		err := m.SyncTransaction(context.Background(), testTransaction())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tx-1")
		assert.Contains(t, err.Error(), "quota exceeded")
	})
}
