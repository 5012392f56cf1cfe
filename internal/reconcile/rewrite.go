// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reconcile

import (
	"regexp"
	"strings"

	"github.com/pdiddy/pdf2md/pkg/types"
)

var imagePattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)

// Binding records a reference that was rewritten to point at an asset.
type Binding struct {
	Alt    string
	Target string
	Asset  types.ImageAsset
	Rule   string
}

// RewriteResult is the outcome of Rewrite.
type RewriteResult struct {
	Markdown string
	Used     UsedSet

	// References counts every image occurrence found, resolved or not.
	References int
	Bindings   []Binding

	// Linked lists assets the document already pointed at before the pass.
	Linked []types.ImageAsset
}

// FindReferences returns every image occurrence in doc, in document order.
func FindReferences(doc string) []Reference {
	idx := imagePattern.FindAllStringSubmatchIndex(doc, -1)
	refs := make([]Reference, 0, len(idx))
	for _, m := range idx {
		refs = append(refs, Reference{
			Alt:    doc[m[2]:m[3]],
			Target: doc[m[4]:m[5]],
			Start:  m[0],
			End:    m[1],
		})
	}
	return refs
}

// ImageLink returns the relative link emitted for an asset saved under the
// document's images directory.
func ImageLink(stem, filename string) string {
	return ImagesDir(stem) + "/" + filename
}

// ImagesDir returns the directory name, relative to the Markdown file, that
// holds a document's images.
func ImagesDir(stem string) string {
	return stem + "_images"
}

// Rewrite points every unresolved image reference in doc at its best matching
// pool asset. References are processed in document order so ordinal fallbacks
// consume the lowest pages first. Resolved references and references without
// a match are left untouched. Assets the document already links to start out
// used, which makes Rewrite idempotent on its own output.
func Rewrite(doc string, pool []types.ImageAsset, stem string) RewriteResult {
	used := NewUsedSet()
	refs := FindReferences(doc)
	result := RewriteResult{Used: used, References: len(refs)}

	linked := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if ref.Resolved() {
			linked[ref.Target] = true
		}
	}
	for _, asset := range pool {
		if linked[ImageLink(stem, asset.Filename)] && !used.Has(asset.Filename) {
			used.Add(asset.Filename)
			result.Linked = append(result.Linked, asset)
		}
	}

	var b strings.Builder
	b.Grow(len(doc))
	last := 0
	for _, ref := range refs {
		asset, rule, ok := matchWithRule(ref, pool, used)
		if !ok {
			continue
		}
		used.Add(asset.Filename)
		result.Bindings = append(result.Bindings, Binding{
			Alt:    ref.Alt,
			Target: ref.Target,
			Asset:  asset,
			Rule:   rule,
		})

		b.WriteString(doc[last:ref.Start])
		b.WriteString(imageMarkdown(ref.Alt, ImageLink(stem, asset.Filename)))
		last = ref.End
	}
	b.WriteString(doc[last:])

	result.Markdown = b.String()
	return result
}

func imageMarkdown(alt, link string) string {
	return "![" + alt + "](" + link + ")"
}
