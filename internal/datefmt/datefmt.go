// Package datefmt formats publication dates for display.
package datefmt

import (
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Abbreviated month names in Brazilian Portuguese, as used by the pt-BR
// calendar ("jan", "fev", ...).
var months = [...]string{
	"jan", "fev", "mar", "abr", "mai", "jun",
	"jul", "ago", "set", "out", "nov", "dez",
}

// Format renders t as "dd Mmm yyyy" (e.g. "19 Abr 2021"). The date is taken
// in UTC so the output does not depend on the host's zone. A zero time, i.e.
// a document without a publication date, renders as "".
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	u := t.UTC()
	return fmt.Sprintf("%02d %s %04d", u.Day(), Month(u.Month()), u.Year())
}

// Month returns the capitalised pt-BR abbreviation of m.
func Month(m time.Month) string {
	// Casers keep state; one per call keeps Format safe for concurrent use.
	return cases.Title(language.BrazilianPortuguese).String(months[m-1])
}

// ISO renders t for a <time datetime> attribute.
func ISO(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
