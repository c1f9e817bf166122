package dedupe

import (
	"testing"
	"time"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func baseInput() Input {
	return Input{
		OwnerID:      "owner-1",
		AccountID:    "acct-1",
		Direction:    domain.DirectionDebit,
		Amount:       decimal.RequireFromString("15.00"),
		Timestamp:    time.Date(2025, 12, 1, 10, 30, 12, 0, time.UTC),
		Counterparty: "amitabh10b26.hts21@okicici",
	}
}

func TestCanonical(t *testing.T) {
	got := Canonical(baseInput())
	assert.Equal(t, "owner-1|acct-1|DEBIT|15.00|2025-12-01T10:30:00Z|amitabh10b26.hts21@okicici", got)
}

func TestKey_Stability(t *testing.T) {
	base := Key(baseInput())

	tests := []struct {
		name   string
		mutate func(in *Input)
		same   bool
	}{
		{"identical input", func(in *Input) {}, true},
		{"sub-minute offset", func(in *Input) { in.Timestamp = in.Timestamp.Add(40 * time.Second) }, true},
		{"nanoseconds", func(in *Input) { in.Timestamp = in.Timestamp.Add(999 * time.Millisecond) }, true},
		{"same instant other zone", func(in *Input) {
			in.Timestamp = in.Timestamp.In(time.FixedZone("IST", 5*3600+1800))
		}, true},
		{"amount scale", func(in *Input) { in.Amount = decimal.RequireFromString("15") }, true},
		{"counterparty case and spaces", func(in *Input) { in.Counterparty = "  AMITABH10B26.HTS21@OKICICI " }, true},
		{"one cent more", func(in *Input) { in.Amount = decimal.RequireFromString("15.01") }, false},
		{"next minute", func(in *Input) { in.Timestamp = in.Timestamp.Add(time.Minute) }, false},
		{"other direction", func(in *Input) { in.Direction = domain.DirectionCredit }, false},
		{"other account", func(in *Input) { in.AccountID = "acct-2" }, false},
		{"other owner", func(in *Input) { in.OwnerID = "owner-2" }, false},
		{"no counterparty", func(in *Input) { in.Counterparty = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.mutate(&in)
			if tt.same {
				assert.Equal(t, base, Key(in))
			} else {
				assert.NotEqual(t, base, Key(in))
			}
		})
	}
}

func TestNormalizeCounterparty(t *testing.T) {
	assert.Equal(t, "zomato@hdfcbank", NormalizeCounterparty("  Zomato@HDFCBank\t"))
	assert.Equal(t, "", NormalizeCounterparty(""))
}
