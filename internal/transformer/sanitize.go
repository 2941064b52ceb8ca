package transformer

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// reTag matches the start of something that looks like an HTML tag, comment
// or doctype. Cells without a match are returned untouched.
var reTag = regexp.MustCompile(`<[a-zA-Z/!]`)

// StripHTML returns the visible text of an HTML fragment, the way exported
// messages and article bodies should read in a TEXT column. <br> and block
// boundaries become newlines; runs of spaces inside a line collapse to one.
//
// Cells that do not look like HTML are returned unchanged, so plain text with
// a stray '<' (e.g. "a < b") survives. If the fragment cannot be parsed the
// input is returned as-is.
func StripHTML(s string) string {
	if !reTag.MatchString(s) {
		return s
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	out := lines[:0]
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}
