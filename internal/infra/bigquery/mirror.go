// Package bigquery streams committed transactions into an append-only
// BigQuery table for analytics.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ownspend/internal/domain"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const (
	// DefaultDataset is used when no dataset is configured.
	DefaultDataset = "ownspend"
	// DefaultTable is used when no table is configured.
	DefaultTable = "transactions"
)

// rowInserter is the part of *bigquery.Inserter the mirror uses.
type rowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// Mirror is a pipeline mirror writing one row per transaction version.
type Mirror struct {
	client   *bigquery.Client
	table    *bigquery.Table
	inserter rowInserter
	schema   bigquery.Schema
}

// NewMirror creates a Mirror with its own BigQuery client. Call Close when done.
func NewMirror(ctx context.Context, projectID, datasetID, tableID string) (*Mirror, error) {
	if datasetID == "" {
		datasetID = DefaultDataset
	}
	if tableID == "" {
		tableID = DefaultTable
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewMirror: creating client: %w", err)
	}
	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("NewMirror: inferring schema: %w", err)
	}

	table := client.DatasetInProject(projectID, datasetID).Table(tableID)
	return &Mirror{
		client:   client,
		table:    table,
		inserter: table.Inserter(),
		schema:   schema,
	}, nil
}

// Close closes the BigQuery client connection.
func (m *Mirror) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Name implements pipeline.Mirror.
func (m *Mirror) Name() string { return "bigquery" }

// SyncTransaction streams the current version of tx.
func (m *Mirror) SyncTransaction(ctx context.Context, tx *domain.Transaction) error {
	row := NewTransactionRow(tx)
	saver := &bigquery.StructSaver{
		Schema:   m.schema,
		InsertID: row.insertID(),
		Struct:   row,
	}
	if err := m.inserter.Put(ctx, saver); err != nil {
		return fmt.Errorf("SyncTransaction: inserting row for %s: %w", tx.TransactionID, err)
	}
	return nil
}

// EnsureTable creates the table partitioned by day on transaction_time. An
// existing table is left as is.
func (m *Mirror) EnsureTable(ctx context.Context) error {
	err := m.table.Create(ctx, &bigquery.TableMetadata{
		Schema: m.schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "transaction_time",
		},
	})
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("EnsureTable: %w", err)
	}
	return nil
}

// ListMirroredTransactionIDs returns the distinct transaction ids mirrored
// for ownerID with a transaction time at or after since.
func (m *Mirror) ListMirroredTransactionIDs(ctx context.Context, ownerID string, since time.Time) ([]string, error) {
	q := m.client.Query(fmt.Sprintf(`
		SELECT DISTINCT transaction_id
		FROM `+"`%s.%s.%s`"+`
		WHERE owner_id = @owner_id
		  AND transaction_time >= @since
		ORDER BY transaction_id
	`, m.table.ProjectID, m.table.DatasetID, m.table.TableID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_id", Value: ownerID},
		{Name: "since", Value: since},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListMirroredTransactionIDs: query read: %w", err)
	}

	var ids []string
	for {
		var row struct {
			TransactionID string `bigquery:"transaction_id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListMirroredTransactionIDs: iterating: %w", err)
		}
		ids = append(ids, row.TransactionID)
	}
	return ids, nil
}
