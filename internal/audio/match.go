package audio

import (
	"strings"

	"golang.org/x/text/cases"
)

// containsFold reports whether fragment occurs in name, ignoring case using
// Unicode case folding. A Caser is stateful, so each call builds its own.
func containsFold(name, fragment string) bool {
	caser := cases.Fold()
	return strings.Contains(caser.String(name), caser.String(fragment))
}

// equalFold reports whether two device names are the same after case folding.
func equalFold(a, b string) bool {
	caser := cases.Fold()
	return caser.String(a) == caser.String(b)
}
