package synthesis

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/doclens/doclens/pkg/db"
)

// citationTag matches [CITATION: <page> | "<snippet>"]. The page group is
// loose so malformed pages are matched and then skipped. Neither group may
// contain '[', so an unterminated tag never swallows the tag after it.
var citationTag = regexp.MustCompile(`\[CITATION:\s*([^|\[\]]*?)\s*\|\s*"([^\[\]]*?)"\s*\]`)

// ParseCitations returns every well-formed citation tag in text, left to right.
// Tags with a non-numeric or non-positive page or an empty snippet are skipped.
func ParseCitations(text string) []db.Citation {
	var out []db.Citation
	for _, m := range citationTag.FindAllStringSubmatch(text, -1) {
		page, err := strconv.Atoi(strings.TrimSpace(m[1]))
		if err != nil || page <= 0 {
			continue
		}
		snippet := strings.TrimSpace(m[2])
		if snippet == "" {
			continue
		}
		out = append(out, db.Citation{Page: page, Snippet: snippet, Confidence: 1})
	}
	return out
}
