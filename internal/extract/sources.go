package extract

import (
	"regexp"
	"strings"

	"github.com/dvloznov/ownspend/internal/domain"
)

// Bank SMS profiles.
var (
	// KotakProfile reads "AC X1415" style references verbatim.
	KotakProfile = Profile{
		Name:           "Kotak",
		AmountPatterns: DefaultAmountPatterns,
		DebitWords:     []string{"sent", "debited", "paid", "withdrawn"},
		CreditWords:    []string{"received", "credited", "deposited"},
		MaskRules: []MaskRule{
			{Pattern: regexp.MustCompile(`(?:\b[Aa]/[Cc]|\bAC)\s*([Xx]*\d{4,})`)},
			{Pattern: maskedDigits, Normalize: true},
		},
		ChannelRules: DefaultChannelRules,
	}

	UCOProfile = bankProfile("UCO")

	HDFCProfile  = bankProfile("HDFC")
	ICICIProfile = bankProfile("ICICI")
	SBIProfile   = bankProfile("SBI")
	AxisProfile  = bankProfile("Axis")

	// GenericProfile is the catch-all for senders no other route claims.
	GenericProfile = bankProfile(domain.Unknown)
)

// Payment-app notification profiles.
var (
	GPayProfile    = appProfile("Google Pay")
	PhonePeProfile = appProfile("PhonePe")
	PaytmProfile   = appProfile("Paytm")
)

func bankProfile(name string) Profile {
	return Profile{
		Name:           name,
		AmountPatterns: DefaultAmountPatterns,
		DebitWords:     BankDebitWords,
		CreditWords:    BankCreditWords,
		MaskRules:      DefaultMaskRules,
		ChannelRules:   DefaultChannelRules,
	}
}

func appProfile(name string) Profile {
	return Profile{
		Name:           name,
		AmountPatterns: DefaultAmountPatterns,
		DebitWords:     AppDebitWords,
		CreditWords:    AppCreditWords,
		MaskRules:      DefaultMaskRules,
		ChannelRules:   DefaultChannelRules,
		DefaultChannel: domain.ChannelUPI,
	}
}

// ucoUPILine is UCO's structured UPI alert:
// UCO-UPI/<CR|DR>/<ref>/<handle>/<bank>/<mask>/<amount>
var ucoUPILine = regexp.MustCompile(`UCO-UPI/(CR|DR)/(\d+)/([\w.@-]+)/([^/]+)/([^/]+)/(\d[\d,]*(?:\.\d+)?)`)

// ucoExtractor reads the structured UPI line and falls back to the UCO
// keyword table for free-form alerts.
type ucoExtractor struct {
	fallback Extractor
}

func newUCOExtractor() Extractor {
	return &ucoExtractor{fallback: NewTableExtractor(UCOProfile)}
}

func (e *ucoExtractor) Name() string {
	return UCOProfile.Name
}

func (e *ucoExtractor) Extract(text string) (Fields, bool) {
	m := ucoUPILine.FindStringSubmatch(text)
	if m == nil {
		return e.fallback.Extract(text)
	}

	direction := domain.DirectionDebit
	if m[1] == "CR" {
		direction = domain.DirectionCredit
	}

	return Fields{
		Amount:       parseAmount(m[6]),
		Direction:    direction,
		BankName:     UCOProfile.Name,
		AccountMask:  NormalizeMask(strings.TrimSpace(m[5])),
		Counterparty: m[3],
		Channel:      domain.ChannelUPI,
	}, true
}
