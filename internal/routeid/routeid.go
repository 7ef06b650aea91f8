// Package routeid canonicalizes route identifiers coming from the realtime
// feed, the stop directory and the activity log so they can be compared.
//
// The alias table below is the only one in the repository. Prediction
// filtering, activity filtering and display all go through Normalize.
package routeid

import (
	"sort"
	"strings"
)

// aliases maps a non-canonical identifier (already upper-cased) to its
// canonical line name. Feed codes of the form "<3 digits><letter>" are listed
// one by one; a generic pattern would also swallow bus routes such as "15L".
var aliases = map[string]string{
	"107R": "R",
}

// Normalize returns the canonical form of raw. It upper-cases, trims and then
// resolves aliases. Unknown identifiers pass through. Normalize is total and
// idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	id := strings.ToUpper(strings.TrimSpace(raw))
	if id == "" {
		return ""
	}
	if canonical, ok := aliases[id]; ok {
		return canonical
	}
	return id
}

// Same reports whether a and b identify the same route.
func Same(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Aliases returns every raw form known to collapse onto the canonical id of
// route, including the canonical id itself, sorted.
func Aliases(route string) []string {
	canonical := Normalize(route)
	if canonical == "" {
		return nil
	}
	out := []string{canonical}
	for raw, target := range aliases {
		if target == canonical {
			out = append(out, raw)
		}
	}
	sort.Strings(out)
	return out
}
