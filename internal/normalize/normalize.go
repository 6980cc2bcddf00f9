// Package normalize derives structured posting attributes from the raw
// upstream fields: region, grade, position string, attachment URLs and
// plain body text. All functions are pure and never return an error;
// anything that cannot be resolved becomes Unknown.
package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Unknown is stored when a field could not be resolved with confidence.
const Unknown = "미확인"

// DefaultExtraInfo is used when upstream provides no type-info tag.
const DefaultExtraInfo = "일반채용"

// Clean trims s and converts it to NFC so decomposed Hangul matches the tables.
func Clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// OrUnknown returns s, or Unknown when s is blank.
func OrUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return Unknown
	}
	return s
}

// IsUnknown reports whether s is blank or the Unknown sentinel.
func IsUnknown(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == Unknown
}

// ExtraInfo returns the passthrough type-info tag or DefaultExtraInfo.
func ExtraInfo(typeInfo string) string {
	if t := Clean(typeInfo); t != "" {
		return t
	}
	return DefaultExtraInfo
}
