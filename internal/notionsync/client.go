package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
)

var _ NotionService = (*Client)(nil)

// Client talks to the Notion API with an integration token. The integration
// must be shared with the transactions database.
type Client struct {
	api *notionapi.Client
}

// NewClient creates a Client for token.
func NewClient(token string) *Client {
	return &Client{api: notionapi.NewClient(notionapi.Token(token))}
}

// CreatePage adds a transaction page to databaseID.
func (c *Client) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	page, err := c.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent:     databaseParent(databaseID),
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("CreatePage: database %s: %w", databaseID, err)
	}
	return page, nil
}

// UpdatePage overwrites the given properties of a transaction page. Properties
// not in the map keep their values.
func (c *Client) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	page, err := c.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("UpdatePage: page %s: %w", pageID, err)
	}
	return page, nil
}

// QueryDatabase returns one page of query results from databaseID.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: database %s: %w", databaseID, err)
	}
	return resp, nil
}

// ArchivePage moves a stale transaction page to the trash.
func (c *Client) ArchivePage(ctx context.Context, pageID string) error {
	if _, err := c.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Archived: true}); err != nil {
		return fmt.Errorf("ArchivePage: page %s: %w", pageID, err)
	}
	return nil
}

func databaseParent(databaseID string) notionapi.Parent {
	return notionapi.Parent{
		Type:       notionapi.ParentTypeDatabaseID,
		DatabaseID: notionapi.DatabaseID(databaseID),
	}
}
