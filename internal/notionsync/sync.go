// Package notionsync mirrors transactions into a Notion database, one page per
// transaction keyed by its "Transaction ID" property.
package notionsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/logger"
	"github.com/dvloznov/ownspend/internal/store"
	"github.com/jomei/notionapi"
)

const (
	// BatchSize defines the number of transactions to read from the store per page.
	BatchSize = 100
)

// Mirror upserts single transactions into Notion after they are committed.
// The page index is loaded from Notion on first use and kept up to date
// as pages are created.
type Mirror struct {
	client     NotionService
	databaseID string
	lookup     NameLookup

	mu    sync.Mutex
	pages map[string]string // transaction id -> page id
}

// NewMirror creates a Mirror writing to databaseID.
func NewMirror(client NotionService, databaseID string, lookup NameLookup) *Mirror {
	return &Mirror{
		client:     client,
		databaseID: databaseID,
		lookup:     lookup,
	}
}

// Name implements pipeline.Mirror.
func (m *Mirror) Name() string { return "notion" }

// SyncTransaction creates or updates the page for tx.
func (m *Mirror) SyncTransaction(ctx context.Context, tx *domain.Transaction) error {
	names, err := ResolveNames(ctx, m.lookup, tx)
	if err != nil {
		return fmt.Errorf("SyncTransaction: %w", err)
	}
	props := TransactionToNotionProperties(tx, names)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pages == nil {
		pages, err := queryAllNotionPages(ctx, m.client, m.databaseID)
		if err != nil {
			return fmt.Errorf("SyncTransaction: load page index: %w", err)
		}
		m.pages = indexPages(pages)
	}

	if pageID, ok := m.pages[tx.TransactionID]; ok {
		if _, err := m.client.UpdatePage(ctx, pageID, props); err != nil {
			return fmt.Errorf("SyncTransaction: update page %s: %w", pageID, err)
		}
		return nil
	}

	page, err := m.client.CreatePage(ctx, m.databaseID, props)
	if err != nil {
		return fmt.Errorf("SyncTransaction: create page: %w", err)
	}
	m.pages[tx.TransactionID] = string(page.ID)
	return nil
}

// TransactionSource is the store surface a full rebuild reads from.
type TransactionSource interface {
	NameLookup
	ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error)
}

// SyncResult counts the pages a full rebuild touched.
type SyncResult struct {
	Created  int
	Updated  int
	Archived int
	Failed   int
}

// SyncAll rebuilds the Notion database from the store. It:
// 1. Queries all existing Notion pages
// 2. Creates or updates a page for every stored transaction of ownerID
// 3. Archives pages whose transaction is no longer stored, or that carry no id
//
// A failed page write is counted and logged, and the sync moves on. In dry-run
// mode nothing is written.
func SyncAll(ctx context.Context, source TransactionSource, notionClient NotionService, notionDBID, ownerID string, dryRun bool) (*SyncResult, error) {
	log := logger.FromContext(ctx)

	log.Info().
		Str("owner_id", ownerID).
		Bool("dry_run", dryRun).
		Msg("Starting transaction sync to Notion")

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("SyncAll: query Notion pages: %w", err)
	}
	existing := indexPages(notionPages)
	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	res := &SyncResult{}
	valid := make(map[string]bool)

	for offset := 0; ; offset += BatchSize {
		batch, err := source.ListTransactions(ctx, store.TransactionFilter{
			OwnerID: ownerID,
			Limit:   BatchSize,
			Offset:  offset,
		})
		if err != nil {
			return res, fmt.Errorf("SyncAll: list transactions: %w", err)
		}

		for _, tx := range batch {
			valid[tx.TransactionID] = true

			names, err := ResolveNames(ctx, source, tx)
			if err != nil {
				return res, fmt.Errorf("SyncAll: %w", err)
			}
			props := TransactionToNotionProperties(tx, names)
			pageID, found := existing[tx.TransactionID]

			if dryRun {
				log.Debug().
					Str("transaction_id", tx.TransactionID).
					Bool("exists", found).
					Msg("Dry run: would sync transaction")
				if found {
					res.Updated++
				} else {
					res.Created++
				}
				continue
			}

			if found {
				if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
					log.Warn().Err(err).Str("transaction_id", tx.TransactionID).Msg("Failed to update Notion page")
					res.Failed++
					continue
				}
				res.Updated++
				continue
			}

			if _, err := notionClient.CreatePage(ctx, notionDBID, props); err != nil {
				log.Warn().Err(err).Str("transaction_id", tx.TransactionID).Msg("Failed to create Notion page")
				res.Failed++
				continue
			}
			res.Created++
		}

		if len(batch) < BatchSize {
			break
		}
	}

	for _, page := range notionPages {
		txID := extractTransactionID(page)
		if txID != "" && valid[txID] {
			continue
		}
		if dryRun {
			log.Debug().Str("page_id", string(page.ID)).Str("transaction_id", txID).Msg("Dry run: would archive page")
			res.Archived++
			continue
		}
		if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
			res.Failed++
			continue
		}
		res.Archived++
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("failed", res.Failed).
		Msg("Transaction sync to Notion completed")

	return res, nil
}

// queryAllNotionPages retrieves all pages from a Notion database with pagination.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}

// indexPages maps transaction ids to page ids. Pages without an id are skipped.
func indexPages(pages []notionapi.Page) map[string]string {
	index := make(map[string]string, len(pages))
	for _, page := range pages {
		if txID := extractTransactionID(page); txID != "" {
			index[txID] = string(page.ID)
		}
	}
	return index
}
