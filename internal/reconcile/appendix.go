// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/pdf2md/pkg/types"
)

const (
	additionalHeading = "## Additional Images"
	additionalNote    = "*The following images were extracted from the PDF but are not referenced in the document body:*"
	extractedHeading  = "## Extracted Images"
	extractedNote     = "*The following images were extracted from the PDF:*"
)

// pageCaption names an image by page. index > 0 numbers images that share a
// page.
func pageCaption(page, index int) string {
	label := fmt.Sprintf("Page %d image", page)
	if page <= 0 {
		label = "Image (unknown page)"
	}
	if index > 0 {
		label = fmt.Sprintf("%s %d", label, index)
	}
	return label
}

func pageGroupHeading(page int) string {
	if page <= 0 {
		return "### Images (unknown page)"
	}
	return fmt.Sprintf("### Page %d images", page)
}

// Append adds a trailing appendix section to doc. When stillLeftover is
// non-empty it lists those assets. When nothing is left over but the document
// had no image references at all, the whole pool is listed instead, since
// such a document offers no inline placement. Otherwise doc is returned
// unchanged.
func Append(doc string, stillLeftover, pool []types.ImageAsset, references int, stem string) string {
	switch {
	case len(stillLeftover) > 0:
		return doc + appendixSection(additionalHeading, additionalNote, stillLeftover, stem)
	case references == 0 && len(pool) > 0:
		return doc + appendixSection(extractedHeading, extractedNote, pool, stem)
	default:
		return doc
	}
}

// appendixSection renders assets grouped by ascending page. A page with one
// image gets a single captioned image; a page with several gets a
// subheading and numbered captions.
func appendixSection(heading, note string, assets []types.ImageAsset, stem string) string {
	groups := make(map[int][]types.ImageAsset)
	for _, a := range assets {
		p := pageOf(a)
		groups[p] = append(groups[p], a)
	}
	pages := make([]int, 0, len(groups))
	for p := range groups {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	var b strings.Builder
	b.WriteString("\n\n---\n\n")
	b.WriteString(heading + "\n\n")
	b.WriteString(note + "\n\n")
	for _, p := range pages {
		group := groups[p]
		if len(group) == 1 {
			b.WriteString(imageMarkdown(pageCaption(p, 0), ImageLink(stem, group[0].Filename)) + "\n\n")
			continue
		}
		b.WriteString(pageGroupHeading(p) + "\n\n")
		for i, a := range group {
			b.WriteString(imageMarkdown(pageCaption(p, i+1), ImageLink(stem, a.Filename)) + "\n\n")
		}
	}
	return b.String()
}
