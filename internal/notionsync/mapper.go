package notionsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/store"
	"github.com/jomei/notionapi"
)

// Property names of the transactions database.
const (
	propTitle         = "Name"
	propTransactionID = "Transaction ID"
	propAmount        = "Amount"
	propDirection     = "Direction"
	propChannel       = "Channel"
	propCurrency      = "Currency"
	propDate          = "Date"
	propAccount       = "Account"
	propMerchant      = "Merchant"
	propCategory      = "Category"
	propCounterparty  = "Counterparty"
	propInternal      = "Internal Transfer"
)

// Names holds the display names a page shows instead of raw ids.
type Names struct {
	Account  string
	Merchant string
	Category string
}

// ResolveNames looks up the display names for tx. Dangling references are
// left blank; other lookup errors are returned.
func ResolveNames(ctx context.Context, lookup NameLookup, tx *domain.Transaction) (Names, error) {
	var names Names

	if tx.AccountID != "" {
		acc, err := lookup.GetAccount(ctx, tx.AccountID)
		switch {
		case err == nil:
			names.Account = acc.DisplayName
		case !errors.Is(err, store.ErrNotFound):
			return names, fmt.Errorf("ResolveNames: account %s: %w", tx.AccountID, err)
		}
	}
	if tx.MerchantID != "" {
		m, err := lookup.GetMerchant(ctx, tx.MerchantID)
		switch {
		case err == nil:
			names.Merchant = m.DisplayName
		case !errors.Is(err, store.ErrNotFound):
			return names, fmt.Errorf("ResolveNames: merchant %s: %w", tx.MerchantID, err)
		}
	}
	if tx.CategoryID != "" {
		c, err := lookup.GetCategory(ctx, tx.CategoryID)
		switch {
		case err == nil:
			names.Category = c.Name
		case !errors.Is(err, store.ErrNotFound):
			return names, fmt.Errorf("ResolveNames: category %s: %w", tx.CategoryID, err)
		}
	}
	return names, nil
}

// TransactionToNotionProperties converts a transaction to Notion properties.
// The title is the description when set, then the merchant, then the
// counterparty.
func TransactionToNotionProperties(tx *domain.Transaction, names Names) notionapi.Properties {
	title := tx.Description
	if title == "" {
		title = names.Merchant
	}
	if title == "" {
		title = tx.Counterparty
	}
	if title == "" {
		title = string(tx.Direction)
	}

	amount, _ := tx.Amount.Float64()
	txTime := tx.TransactionTime

	props := notionapi.Properties{
		propTitle: notionapi.TitleProperty{
			Title: richText(title),
		},
		propTransactionID: notionapi.RichTextProperty{
			RichText: richText(tx.TransactionID),
		},
		propAmount: notionapi.NumberProperty{
			Number: amount,
		},
		propDirection: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Direction)},
		},
		propDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: (*notionapi.Date)(&txTime),
			},
		},
		propInternal: notionapi.CheckboxProperty{
			Checkbox: tx.IsInternalTransfer,
		},
	}

	if tx.Channel != "" {
		props[propChannel] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Channel)},
		}
	}
	if tx.Currency != "" {
		props[propCurrency] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Currency},
		}
	}
	if names.Category != "" {
		props[propCategory] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: names.Category},
		}
	}
	if names.Account != "" {
		props[propAccount] = notionapi.RichTextProperty{
			RichText: richText(names.Account),
		}
	}
	if names.Merchant != "" {
		props[propMerchant] = notionapi.RichTextProperty{
			RichText: richText(names.Merchant),
		}
	}
	if tx.Counterparty != "" {
		props[propCounterparty] = notionapi.RichTextProperty{
			RichText: richText(tx.Counterparty),
		}
	}

	return props
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

// extractTransactionID extracts the transaction ID from a Notion page's properties.
// Returns empty string if not found.
func extractTransactionID(page notionapi.Page) string {
	if prop, ok := page.Properties[propTransactionID]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(rt.RichText) > 0 {
				return rt.RichText[0].PlainText
			}
		}
	}
	return ""
}
