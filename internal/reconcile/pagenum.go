// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reconcile

import (
	"regexp"
	"strconv"

	"golang.org/x/text/width"

	"github.com/pdiddy/pdf2md/pkg/types"
)

// pageRule extracts a page number from an image filename. It reports false
// when the filename does not follow the rule's convention.
type pageRule struct {
	name    string
	extract func(filename string) (int, bool)
}

// regexpRule builds a pageRule whose first capture group holds the page.
func regexpRule(name, pattern string) pageRule {
	re := regexp.MustCompile(pattern)
	return pageRule{
		name: name,
		extract: func(filename string) (int, bool) {
			m := re.FindStringSubmatch(filename)
			if m == nil {
				return 0, false
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return 0, false
			}
			return n, true
		},
	}
}

// pageRules lists the recognized filename conventions in priority order.
// Adding a convention means appending a rule.
var pageRules = []pageRule{
	regexpRule("page_underscore", `(?i)page_(\d+)`),
	regexpRule("page_infix", `(?i)_page_(\d+)_`),
	regexpRule("p_prefix", `(?i)p(\d+)_`),
	regexpRule("localized", `第(\d+)页`),
}

// PageNumber derives the page number encoded in an image filename, trying
// each known convention in order. It returns 0 when no convention matches.
func PageNumber(filename string) int {
	folded := width.Fold.String(filename)
	for _, rule := range pageRules {
		if n, ok := rule.extract(folded); ok {
			return n
		}
	}
	return 0
}

// pageOf returns the asset's recorded page, falling back to the page encoded
// in its filename.
func pageOf(asset types.ImageAsset) int {
	if asset.PageNumber > 0 {
		return asset.PageNumber
	}
	return PageNumber(asset.Filename)
}
