// Package dedupe derives the fingerprint that recognizes repeat reports of one
// real-world transfer.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/shopspring/decimal"
)

// Input is everything the key depends on. Nothing else may influence it.
type Input struct {
	OwnerID      string
	AccountID    string
	Direction    domain.Direction
	Amount       decimal.Decimal
	Timestamp    time.Time
	Counterparty string
}

// NormalizeCounterparty lower-cases and trims a counterparty identifier. The
// result is also stored as the transaction's merchant key.
func NormalizeCounterparty(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Canonical renders the key material. The timestamp is truncated to the
// minute in UTC so a bank SMS and an app notification for the same transfer
// agree despite clock skew.
func Canonical(in Input) string {
	return strings.Join([]string{
		in.OwnerID,
		in.AccountID,
		string(in.Direction),
		in.Amount.StringFixed(2),
		in.Timestamp.UTC().Truncate(time.Minute).Format(time.RFC3339),
		NormalizeCounterparty(in.Counterparty),
	}, "|")
}

// Key is the hex SHA-256 of Canonical. It is what the unique index holds.
func Key(in Input) string {
	sum := sha256.Sum256([]byte(Canonical(in)))
	return hex.EncodeToString(sum[:])
}
