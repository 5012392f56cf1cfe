// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reconcile

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/pdf2md/pkg/types"
)

// Reference is one `![alt](target)` occurrence in a Markdown document.
// Start and End are byte offsets of the whole occurrence.
type Reference struct {
	Alt    string
	Target string
	Start  int
	End    int
}

// Resolved reports whether the target already looks like a path. Such
// references were written by an earlier pass (or point somewhere the author
// chose) and are never matched or rewritten.
func (r Reference) Resolved() bool {
	return strings.ContainsAny(r.Target, `/\`)
}

// UsedSet holds the filenames of assets already placed in a document. It only
// grows; each asset is placed at most once.
type UsedSet map[string]struct{}

// NewUsedSet returns an empty set.
func NewUsedSet() UsedSet {
	return make(UsedSet)
}

// Add marks filename as used.
func (u UsedSet) Add(filename string) {
	u[filename] = struct{}{}
}

// Has reports whether filename is used.
func (u UsedSet) Has(filename string) bool {
	_, ok := u[filename]
	return ok
}

// Len returns the number of used assets.
func (u UsedSet) Len() int {
	return len(u)
}

// Clone returns an independent copy.
func (u UsedSet) Clone() UsedSet {
	out := make(UsedSet, len(u))
	for k := range u {
		out[k] = struct{}{}
	}
	return out
}

// Unused returns the pool assets not in the set, preserving pool order.
func (u UsedSet) Unused(pool []types.ImageAsset) []types.ImageAsset {
	var out []types.ImageAsset
	for _, a := range pool {
		if !u.Has(a.Filename) {
			out = append(out, a)
		}
	}
	return out
}

var pageTokenPattern = regexp.MustCompile(`page[_\s]*(\d+)`)

// pageToken returns the page number mentioned in a link target such as
// "image_page5.png" or "Page 12.jpg".
func pageToken(target string) (int, bool) {
	m := pageTokenPattern.FindStringSubmatch(strings.ToLower(target))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// matchRule selects a candidate for a reference among unused pool assets.
type matchRule struct {
	name   string
	accept func(ref Reference, asset types.ImageAsset) bool
}

// matchRules are tried in priority order; within a rule the first accepted
// asset in pool order wins.
var matchRules = []matchRule{
	{
		name: "page_token",
		accept: func(ref Reference, asset types.ImageAsset) bool {
			n, ok := pageToken(ref.Target)
			return ok && pageOf(asset) == n
		},
	},
	{
		name: "exact_filename",
		accept: func(ref Reference, asset types.ImageAsset) bool {
			return ref.Target == asset.Filename
		},
	},
	{
		name: "stem_substring",
		accept: func(ref Reference, asset types.ImageAsset) bool {
			stem := strings.TrimSuffix(ref.Target, path.Ext(ref.Target))
			return stem != "" && strings.Contains(asset.Filename, stem)
		},
	},
	{
		name: "first_unused",
		accept: func(Reference, types.ImageAsset) bool {
			return true
		},
	},
}

// Match picks the pool asset that best corresponds to ref, skipping assets
// already in used. It returns false for resolved references and when every
// asset is used. Match does not modify used; callers add the returned asset.
func Match(ref Reference, pool []types.ImageAsset, used UsedSet) (types.ImageAsset, bool) {
	asset, _, ok := matchWithRule(ref, pool, used)
	return asset, ok
}

// matchWithRule is Match that also names the rule that fired.
func matchWithRule(ref Reference, pool []types.ImageAsset, used UsedSet) (types.ImageAsset, string, bool) {
	if ref.Resolved() {
		return types.ImageAsset{}, "", false
	}
	for _, rule := range matchRules {
		for _, asset := range pool {
			if used.Has(asset.Filename) {
				continue
			}
			if rule.accept(ref, asset) {
				return asset, rule.name, true
			}
		}
	}
	return types.ImageAsset{}, "", false
}
