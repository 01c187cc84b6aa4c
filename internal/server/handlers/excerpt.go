package handlers

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// excerptLen is the number of characters of a post body shown in the list.
const excerptLen = 300

var plainText = bluemonday.StrictPolicy()

// excerpt returns the start of body as plain text on a single line.
//
// Markup in the body is stripped, entities are decoded.
func excerpt(body string) string {
	s := html.UnescapeString(plainText.Sanitize(body))
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= excerptLen {
		return s
	}
	return strings.TrimRight(string(r[:excerptLen]), " ") + "..."
}
