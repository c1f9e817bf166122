package extract

import (
	"fmt"
	"strings"
)

// SourceKind is the closed set of notification sources with an extractor.
type SourceKind int

const (
	SourceGeneric SourceKind = iota
	SourceKotak
	SourceUCO
	SourceHDFC
	SourceICICI
	SourceSBI
	SourceAxis
	SourceGPay
	SourcePhonePe
	SourcePaytm
)

var sourceKindNames = map[SourceKind]string{
	SourceGeneric: "generic",
	SourceKotak:   "kotak",
	SourceUCO:     "uco",
	SourceHDFC:    "hdfc",
	SourceICICI:   "icici",
	SourceSBI:     "sbi",
	SourceAxis:    "axis",
	SourceGPay:    "gpay",
	SourcePhonePe: "phonepe",
	SourcePaytm:   "paytm",
}

func (k SourceKind) String() string {
	if name, ok := sourceKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("SourceKind(%d)", int(k))
}

// Route claims a source by lower-case markers. SenderMarkers are tested
// against the sender id and app package; TextMarkers against the raw text.
type Route struct {
	Kind          SourceKind
	SenderMarkers []string
	TextMarkers   []string
}

// DefaultRoutes is evaluated in order. Sender markers of every route are
// tried before any text marker, so an app notification quoting a bank name
// still routes to the app.
var DefaultRoutes = []Route{
	{Kind: SourceKotak, SenderMarkers: []string{"kotak"}, TextMarkers: []string{"kotak"}},
	{Kind: SourceUCO, SenderMarkers: []string{"uco"}, TextMarkers: []string{"uco-upi", "uco bank"}},
	{Kind: SourceHDFC, SenderMarkers: []string{"hdfc"}, TextMarkers: []string{"hdfc bank"}},
	{Kind: SourceICICI, SenderMarkers: []string{"icici"}, TextMarkers: []string{"icici bank"}},
	{Kind: SourceSBI, SenderMarkers: []string{"sbi"}, TextMarkers: []string{"sbi"}},
	{Kind: SourceAxis, SenderMarkers: []string{"axis"}, TextMarkers: []string{"axis bank"}},
	{Kind: SourceGPay, SenderMarkers: []string{"gpay", "google"}, TextMarkers: []string{"google pay"}},
	{Kind: SourcePhonePe, SenderMarkers: []string{"phonepe"}, TextMarkers: []string{"phonepe"}},
	{Kind: SourcePaytm, SenderMarkers: []string{"paytm"}, TextMarkers: []string{"paytm"}},
}

// DefaultExtractors binds every SourceKind to its extractor.
func DefaultExtractors() map[SourceKind]Extractor {
	return map[SourceKind]Extractor{
		SourceGeneric: NewTableExtractor(GenericProfile),
		SourceKotak:   NewTableExtractor(KotakProfile),
		SourceUCO:     newUCOExtractor(),
		SourceHDFC:    NewTableExtractor(HDFCProfile),
		SourceICICI:   NewTableExtractor(ICICIProfile),
		SourceSBI:     NewTableExtractor(SBIProfile),
		SourceAxis:    NewTableExtractor(AxisProfile),
		SourceGPay:    NewTableExtractor(GPayProfile),
		SourcePhonePe: NewTableExtractor(PhonePeProfile),
		SourcePaytm:   NewTableExtractor(PaytmProfile),
	}
}

// Router picks an extractor for an inbound event.
type Router struct {
	routes     []Route
	extractors map[SourceKind]Extractor
}

// NewRouter returns a router over DefaultRoutes and DefaultExtractors.
func NewRouter() *Router {
	return NewRouterWith(DefaultRoutes, DefaultExtractors())
}

// NewRouterWith builds a router from explicit tables. It panics if a route
// names a kind with no extractor or if the generic extractor is missing.
func NewRouterWith(routes []Route, extractors map[SourceKind]Extractor) *Router {
	if _, ok := extractors[SourceGeneric]; !ok {
		panic("extract: generic extractor is required")
	}
	for _, r := range routes {
		if _, ok := extractors[r.Kind]; !ok {
			panic(fmt.Sprintf("extract: no extractor registered for %s", r.Kind))
		}
	}
	return &Router{routes: routes, extractors: extractors}
}

// Select classifies an event. It never fails; SourceGeneric is the default.
func (r *Router) Select(sender, pkg, text string) SourceKind {
	origin := strings.ToLower(sender + " " + pkg)
	for _, route := range r.routes {
		if containsAny(origin, route.SenderMarkers) {
			return route.Kind
		}
	}

	body := strings.ToLower(text)
	for _, route := range r.routes {
		if containsAny(body, route.TextMarkers) {
			return route.Kind
		}
	}

	return SourceGeneric
}

// Extract routes the event and runs the selected extractor. When a specific
// extractor reads nothing, the generic extractor gets its turn.
func (r *Router) Extract(sender, pkg, text string) (Fields, SourceKind, bool) {
	kind := r.Select(sender, pkg, text)
	if fields, ok := r.extractors[kind].Extract(text); ok {
		return fields, kind, true
	}
	if kind == SourceGeneric {
		return Fields{}, SourceGeneric, false
	}

	fields, ok := r.extractors[SourceGeneric].Extract(text)
	return fields, SourceGeneric, ok
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}
