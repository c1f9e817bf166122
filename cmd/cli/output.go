package main

import (
	"context"
	"errors"
	"io"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/store"
	"github.com/olekukonko/tablewriter"
)

// maxTextWidth truncates raw message text in tables.
const maxTextWidth = 48

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	return table
}

func renderAccounts(w io.Writer, accounts []*domain.Account) {
	table := newTable(w, "ID", "Display Name", "Bank", "Mask", "Type")
	for _, acc := range accounts {
		table.Append([]string{acc.AccountID, acc.DisplayName, acc.BankName, acc.AccountMask, string(acc.Type)})
	}
	table.Render()
}

type nameReader interface {
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	GetCategory(ctx context.Context, categoryID string) (*domain.Category, error)
}

func renderTransactions(ctx context.Context, w io.Writer, names nameReader, txs []*domain.Transaction) error {
	table := newTable(w, "Time", "Account", "Direction", "Amount", "Counterparty", "Category")
	for _, tx := range txs {
		account := tx.AccountID
		acc, err := names.GetAccount(ctx, tx.AccountID)
		switch {
		case err == nil:
			account = acc.DisplayName
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		category := ""
		if tx.CategoryID != "" {
			cat, err := names.GetCategory(ctx, tx.CategoryID)
			switch {
			case err == nil:
				category = cat.Name
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		table.Append([]string{
			tx.TransactionTime.Format("2006-01-02 15:04"),
			account,
			string(tx.Direction),
			tx.Amount.StringFixed(2) + " " + tx.Currency,
			tx.Counterparty,
			category,
		})
	}
	table.Render()
	return nil
}

func renderEvents(w io.Writer, events []*domain.InboundEvent) {
	table := newTable(w, "Received", "Sender", "Status", "Text", "Error")
	for _, e := range events {
		table.Append([]string{
			e.ReceivedAt.Format("2006-01-02 15:04"),
			e.Sender,
			string(e.Status),
			truncate(e.RawText, maxTextWidth),
			truncate(e.ErrorMessage, maxTextWidth),
		})
	}
	table.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
