package extract

import (
	"regexp"
	"strings"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/shopspring/decimal"
)

// AmountPattern is one candidate currency form. Group 1 captures the number.
type AmountPattern struct {
	Label   string
	Pattern *regexp.Regexp
}

// Currency forms in priority order: local symbol forms, then the ISO code.
var (
	RupeeSymbolAmount = AmountPattern{"rupee-symbol", regexp.MustCompile(`₹\s*(\d[\d,]*(?:\.\d+)?)`)}
	RsAmount          = AmountPattern{"rs", regexp.MustCompile(`(?i)\bRs\.?\s*(\d[\d,]*(?:\.\d+)?)`)}
	INRAmount         = AmountPattern{"inr", regexp.MustCompile(`(?i)\bINR\s*(\d[\d,]*(?:\.\d+)?)`)}

	DefaultAmountPatterns = []AmountPattern{RupeeSymbolAmount, RsAmount, INRAmount}
)

// ChannelRule maps a keyword pattern to a payment channel.
type ChannelRule struct {
	Channel domain.Channel
	Pattern *regexp.Regexp
}

// DefaultChannelRules is evaluated top to bottom; the first hit wins.
var DefaultChannelRules = []ChannelRule{
	{domain.ChannelUPI, regexp.MustCompile(`(?i)\b(?:upi|vpa)\b`)},
	{domain.ChannelATM, regexp.MustCompile(`(?i)\batm\b`)},
	{domain.ChannelNEFT, regexp.MustCompile(`(?i)\bneft\b`)},
	{domain.ChannelIMPS, regexp.MustCompile(`(?i)\bimps\b`)},
	{domain.ChannelPOS, regexp.MustCompile(`(?i)\bpos\b`)},
	{domain.ChannelCard, regexp.MustCompile(`(?i)\bcard\b`)},
}

// MaskRule extracts an account mask. Group 1 captures it. Normalize rewrites
// the capture to "XX" plus the last four digits.
type MaskRule struct {
	Pattern   *regexp.Regexp
	Normalize bool
}

var (
	// maskedDigits is X/x filler followed by the last four digits.
	maskedDigits = regexp.MustCompile(`\b([Xx]+\d{4})\b`)
	lastFour     = regexp.MustCompile(`(\d{4})$`)

	DefaultMaskRules = []MaskRule{{Pattern: maskedDigits, Normalize: true}}
)

var (
	// paymentHandle is a UPI VPA: local part, "@", provider. Email addresses
	// also match and are filtered by findPaymentHandle.
	paymentHandle = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9._-]*@[A-Za-z][A-Za-z0-9]*`)

	// merchantPhrase is the phrase after at/to/from up to a date, reference or
	// punctuation boundary.
	merchantPhrase = regexp.MustCompile(`(?i)\b(?:at|to|from)\s+([a-z0-9][a-z0-9&'._ -]*?)\s*(?:\bon\b|\bvia\b|\bref\b|\bavl\b|\busing\b|\bby\b|[.;,(:]|$)`)

	// phrases that name the owner's own account rather than a counterparty
	accountPhrasePrefixes = []string{"your ", "a/c", "ac ", "acct", "account", "card", "vpa", "upi"}
)

// Keyword lists shared by the source tables.
var (
	BankDebitWords  = []string{"debited", "sent", "paid", "spent", "withdrawn", "purchase", "used for"}
	BankCreditWords = []string{"credited", "received", "deposited", "refunded"}

	AppDebitWords  = []string{"sent", "paid"}
	AppCreditWords = []string{"received"}
)

// keywordSet matches any of its words on word boundaries, case-insensitively.
type keywordSet struct {
	re *regexp.Regexp
}

// findPaymentHandle returns the first payment handle in text. A match whose
// provider continues with ".tld" is an email address and is skipped.
func findPaymentHandle(text string) string {
	for _, loc := range paymentHandle.FindAllStringIndex(text, -1) {
		rest := text[loc[1]:]
		if len(rest) >= 2 && rest[0] == '.' && isASCIILetter(rest[1]) {
			continue
		}
		return text[loc[0]:loc[1]]
	}
	return ""
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func newKeywordSet(words []string) keywordSet {
	if len(words) == 0 {
		return keywordSet{}
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(strings.ToLower(w))
	}
	return keywordSet{re: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)}
}

func (k keywordSet) matches(text string) bool {
	return k.re != nil && k.re.MatchString(text)
}

// firstAmount applies the patterns in order and stops at the first match.
func firstAmount(text string, patterns []AmountPattern) decimal.NullDecimal {
	for _, p := range patterns {
		m := p.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return parseAmount(m[1])
	}
	return decimal.NullDecimal{}
}

// parseAmount strips thousands separators and parses the number.
func parseAmount(raw string) decimal.NullDecimal {
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// resolveDirection is set only when exactly one keyword set matches.
func resolveDirection(text string, debit, credit keywordSet) domain.Direction {
	isDebit := debit.matches(text)
	isCredit := credit.matches(text)
	switch {
	case isDebit && !isCredit:
		return domain.DirectionDebit
	case isCredit && !isDebit:
		return domain.DirectionCredit
	default:
		return ""
	}
}

func extractMask(text string, rules []MaskRule) string {
	for _, r := range rules {
		m := r.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if r.Normalize {
			return NormalizeMask(m[1])
		}
		return strings.TrimSpace(m[1])
	}
	return ""
}

// NormalizeMask rewrites a masked account number to "XX" plus its last four
// digits. Values without four trailing digits are returned trimmed.
func NormalizeMask(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := lastFour.FindStringSubmatch(raw); m != nil {
		return "XX" + m[1]
	}
	return raw
}

func classifyChannel(text string, rules []ChannelRule) domain.Channel {
	for _, r := range rules {
		if r.Pattern.MatchString(text) {
			return r.Channel
		}
	}
	return ""
}

// trailingMerchant returns the last at/to/from phrase that does not name the
// owner's own account.
func trailingMerchant(text string) string {
	matches := merchantPhrase.FindAllStringSubmatch(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		candidate := strings.TrimRight(strings.TrimSpace(matches[i][1]), " .,;:-")
		if acceptableMerchant(candidate) {
			return candidate
		}
	}
	return ""
}

func acceptableMerchant(candidate string) bool {
	if candidate == "" || maskedDigits.MatchString(candidate) {
		return false
	}
	lower := strings.ToLower(candidate)
	for _, p := range accountPhrasePrefixes {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	return strings.IndexFunc(lower, func(r rune) bool { return r >= 'a' && r <= 'z' }) >= 0
}
