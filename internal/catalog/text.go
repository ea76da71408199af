package catalog

import (
	"strings"

	"golang.org/x/net/html"
)

// maxDescriptionRunes caps free text before it reaches the model.
const maxDescriptionRunes = 200

// StripHTML removes markup from s, collapses whitespace and caps the result
// at 200 runes followed by "...". Empty input yields Unknown.
func StripHTML(s string) string {
	if s == "" || s == Unknown {
		return Unknown
	}

	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
loop:
	for {
		switch z.Next() {
		case html.ErrorToken:
			break loop
		case html.TextToken:
			sb.Write(z.Text())
			sb.WriteByte(' ')
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// tags separate words: "<p>a</p><p>b</p>" reads "a b"
			sb.WriteByte(' ')
		}
	}

	clean := strings.Join(strings.Fields(sb.String()), " ")
	if clean == "" {
		return Unknown
	}
	if r := []rune(clean); len(r) > maxDescriptionRunes {
		clean = string(r[:maxDescriptionRunes]) + "..."
	}
	return clean
}
