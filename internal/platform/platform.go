// Package platform normalizes free-form marketplace names into a fixed
// canonical set. UI filters, alert rules and scrape jobs all speak the
// canonical keys; everything else in the system treats the raw spelling
// as untrusted input.
package platform

import "strings"

// Platform is a canonical marketplace key.
type Platform string

const (
	Leboncoin Platform = "leboncoin"
	Ebay      Platform = "ebay"
	LDLC      Platform = "ldlc"
	Facebook  Platform = "facebook"
	Vinted    Platform = "vinted"
	// Unknown is returned for input that matches no marketplace. Callers
	// must handle it explicitly; Normalize never guesses a default.
	Unknown Platform = ""
)

// matchers maps cleaned-input substrings to canonical platforms. Order
// matters: more specific keys come before shorter generic ones so that
// e.g. "facebook" is not shadowed by the "fb" shorthand check.
var matchers = []struct {
	substr string
	key    Platform
}{
	{"leboncoin", Leboncoin},
	{"facebook", Facebook},
	{"vinted", Vinted},
	{"ebay", Ebay},
	{"ldlc", LDLC},
	{"lbc", Leboncoin},
	{"fb", Facebook},
}

var separators = strings.NewReplacer(" ", "", "-", "", "_", "", ".", "", "\t", "")

// Normalize collapses an arbitrary marketplace spelling into a canonical
// Platform. It is total (defined for every string, including empty) and
// pure. Unrecognized input returns Unknown.
func Normalize(raw string) Platform {
	cleaned := strings.ToLower(raw)
	cleaned = strings.ReplaceAll(cleaned, "marketplace", "")
	cleaned = separators.Replace(cleaned)
	if cleaned == "" {
		return Unknown
	}
	for _, m := range matchers {
		if strings.Contains(cleaned, m.substr) {
			return m.key
		}
	}
	return Unknown
}

// All returns the canonical platform set, used to validate filters and
// scrape job requests.
func All() []Platform {
	return []Platform{Leboncoin, Ebay, LDLC, Facebook, Vinted}
}

// IsCanonical reports whether p is one of the canonical keys.
func IsCanonical(p Platform) bool {
	for _, known := range All() {
		if p == known {
			return true
		}
	}
	return false
}
