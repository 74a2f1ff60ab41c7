package dashboard

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Label turns an enum key such as ANGIN_TOPAN into "Angin Topan".
func Label(key string) string {
	// Casers keep state, so each call gets its own.
	return cases.Title(language.Indonesian).String(strings.ReplaceAll(strings.ToLower(key), "_", " "))
}
