package extract

import "github.com/dvloznov/ownspend/internal/domain"

// Profile declares how one source's notifications are read. Every table is
// ordered and evaluated top to bottom; the first hit wins.
type Profile struct {
	// Name is stamped into Fields.BankName.
	Name string

	AmountPatterns []AmountPattern
	DebitWords     []string
	CreditWords    []string
	MaskRules      []MaskRule
	ChannelRules   []ChannelRule

	// DefaultChannel applies when no channel keyword matched, e.g. UPI apps.
	DefaultChannel domain.Channel
}

// tableExtractor evaluates a Profile.
type tableExtractor struct {
	profile Profile
	debit   keywordSet
	credit  keywordSet
}

// NewTableExtractor compiles a Profile into an Extractor.
func NewTableExtractor(p Profile) Extractor {
	return &tableExtractor{
		profile: p,
		debit:   newKeywordSet(p.DebitWords),
		credit:  newKeywordSet(p.CreditWords),
	}
}

func (e *tableExtractor) Name() string {
	return e.profile.Name
}

func (e *tableExtractor) Extract(text string) (Fields, bool) {
	p := e.profile

	var f Fields
	f.Amount = firstAmount(text, p.AmountPatterns)
	f.Direction = resolveDirection(text, e.debit, e.credit)
	f.AccountMask = extractMask(text, p.MaskRules)

	if handle := findPaymentHandle(text); handle != "" {
		f.Counterparty = handle
		f.Channel = domain.ChannelUPI
	} else {
		f.Counterparty = trailingMerchant(text)
		f.Channel = classifyChannel(text, p.ChannelRules)
	}

	if f.textFieldsEmpty() {
		return Fields{}, false
	}

	if f.Channel == "" {
		f.Channel = p.DefaultChannel
	}
	f.BankName = p.Name

	return f, true
}
