package extract

import (
	"testing"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_Select(t *testing.T) {
	router := NewRouter()

	tests := []struct {
		name   string
		sender string
		pkg    string
		text   string
		want   SourceKind
	}{
		{"sender marker", "VM-KOTAKB", "", "anything", SourceKotak},
		{"sender marker is case-insensitive", "kotak", "", "", SourceKotak},
		{"package marker", "", "com.google.android.apps.nbu.paisa.user", "You paid ₹10", SourceGPay},
		{"sender beats text", "PhonePe", "com.phonepe.app", "Paid ₹500 from HDFC Bank XX1234", SourcePhonePe},
		{"text marker", "", "", "Rs.10 debited from HDFC Bank A/c XX1234", SourceHDFC},
		{"handle domain is not a bank marker", "", "", "Rs.10 paid to shop@okicici", SourceGeneric},
		{"kotak text outranks icici handle", "", "", "Sent Rs.15.00 from Kotak Bank AC X1415 to a@okicici", SourceKotak},
		{"unknown sender", "VK-ALERTS", "", "Rs.10 debited", SourceGeneric},
		{"empty event", "", "", "", SourceGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, router.Select(tt.sender, tt.pkg, tt.text))
		})
	}
}

func TestDefaultRoutes_AllRegistered(t *testing.T) {
	extractors := DefaultExtractors()
	for _, r := range DefaultRoutes {
		_, ok := extractors[r.Kind]
		assert.True(t, ok, "no extractor for %s", r.Kind)
	}
	assert.Contains(t, extractors, SourceGeneric)
}

// stubExtractor returns a fixed result.
type stubExtractor struct {
	name   string
	fields Fields
	ok     bool
	calls  int
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(string) (Fields, bool) {
	s.calls++
	return s.fields, s.ok
}

func TestRouter_FallsBackToGeneric(t *testing.T) {
	specific := &stubExtractor{name: "kotak"}
	generic := &stubExtractor{
		name:   "generic",
		fields: Fields{Direction: domain.DirectionDebit, BankName: domain.Unknown},
		ok:     true,
	}

	router := NewRouterWith(
		[]Route{{Kind: SourceKotak, SenderMarkers: []string{"kotak"}}},
		map[SourceKind]Extractor{SourceGeneric: generic, SourceKotak: specific},
	)

	fields, kind, ok := router.Extract("KOTAKB", "", "Rs.10 debited")
	require.True(t, ok)
	assert.Equal(t, SourceGeneric, kind)
	assert.Equal(t, domain.DirectionDebit, fields.Direction)
	assert.Equal(t, 1, specific.calls)
	assert.Equal(t, 1, generic.calls)
}

func TestRouter_GenericRunsOnce(t *testing.T) {
	generic := &stubExtractor{name: "generic"}
	router := NewRouterWith(nil, map[SourceKind]Extractor{SourceGeneric: generic})

	_, kind, ok := router.Extract("", "", "hello")
	assert.False(t, ok)
	assert.Equal(t, SourceGeneric, kind)
	assert.Equal(t, 1, generic.calls)
}

func TestNewRouterWith_Validation(t *testing.T) {
	assert.Panics(t, func() {
		NewRouterWith(nil, map[SourceKind]Extractor{})
	})
	assert.Panics(t, func() {
		NewRouterWith(
			[]Route{{Kind: SourcePaytm, SenderMarkers: []string{"paytm"}}},
			map[SourceKind]Extractor{SourceGeneric: &stubExtractor{}},
		)
	})
}

func TestSourceKind_String(t *testing.T) {
	assert.Equal(t, "kotak", SourceKotak.String())
	assert.Equal(t, "SourceKind(99)", SourceKind(99).String())
}
