package domain

import (
	"fmt"
	"strings"
)

// OverrideFlags marks fields a human has set by hand. Rules never overwrite
// an overridden field until the owner clears the bit.
type OverrideFlags uint8

const (
	OverrideMerchant OverrideFlags = 1 << iota // bit 0
	OverrideCategory                           // bit 1
	OverrideInternal                           // bit 2
)

// IsOverridden reports whether every bit in field is set.
func (f OverrideFlags) IsOverridden(field OverrideFlags) bool {
	return field != 0 && f&field == field
}

// Set returns f with field's bits set.
func (f OverrideFlags) Set(field OverrideFlags) OverrideFlags {
	return f | field
}

// Clear returns f with field's bits cleared.
func (f OverrideFlags) Clear(field OverrideFlags) OverrideFlags {
	return f &^ field
}

// Names lists the set fields in bit order.
func (f OverrideFlags) Names() []string {
	var names []string
	for _, n := range overrideNames {
		if f.IsOverridden(n.flag) {
			names = append(names, n.name)
		}
	}
	return names
}

var overrideNames = []struct {
	name string
	flag OverrideFlags
}{
	{"merchant", OverrideMerchant},
	{"category", OverrideCategory},
	{"internal", OverrideInternal},
}

// ParseOverrideFields turns field names ("merchant", "category", "internal")
// into a flag set.
func ParseOverrideFields(names []string) (OverrideFlags, error) {
	var f OverrideFlags
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		found := false
		for _, n := range overrideNames {
			if n.name == name {
				f = f.Set(n.flag)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("ParseOverrideFields: unknown field %q", raw)
		}
	}
	return f, nil
}
