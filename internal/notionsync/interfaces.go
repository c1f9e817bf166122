package notionsync

import (
	"context"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/jomei/notionapi"
)

// NotionService is the slice of the Notion API the mirror and the rebuild use.
type NotionService interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase returns one page of results; callers follow NextCursor.
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	// ArchivePage moves a page to the trash.
	ArchivePage(ctx context.Context, pageID string) error
}

// NameLookup resolves the reference ids on a transaction to display names.
type NameLookup interface {
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error)
	GetCategory(ctx context.Context, categoryID string) (*domain.Category, error)
}
