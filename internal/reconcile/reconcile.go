// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reconcile binds images extracted by the fallback engine to the
// image references a primary engine left in its Markdown output.
//
// The fallback engine only knows which page an image came from, so binding
// is heuristic. One pass over a document runs three stages in order:
// Rewrite points existing references at assets, Insert places leftover
// assets near a line mentioning their page or the heading closest to their
// estimated position, and Append lists whatever remains in a trailing
// section. A UsedSet threads through the stages so every asset ends up in
// the output exactly once.
//
// Reconciliation is pure, in-memory text manipulation. A Result shares no
// state with other calls, so documents can be reconciled concurrently.
package reconcile

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/pdiddy/pdf2md/pkg/types"
)

var (
	// ErrNotText is returned when the document is not valid UTF-8 text.
	ErrNotText = errors.New("document is not valid UTF-8 text")

	// ErrEmptyStem is returned when Options.Stem is empty.
	ErrEmptyStem = errors.New("document stem is empty")

	// ErrDuplicateAsset is returned when two pool assets share a filename.
	ErrDuplicateAsset = errors.New("duplicate asset filename in pool")
)

// Options configures one reconciliation pass.
type Options struct {
	// Stem is the PDF filename without extension; links take the form
	// <Stem>_images/<asset filename>.
	Stem string

	// AssumedMaxPages scales a page number to a line position when no line
	// mentions the page. Zero means types.DefaultAssumedMaxPages. The real
	// page count is not visible in Markdown, so placement is approximate.
	AssumedMaxPages int
}

func (o Options) assumedMaxPages() int {
	if o.AssumedMaxPages <= 0 {
		return types.DefaultAssumedMaxPages
	}
	return o.AssumedMaxPages
}

// Result is the outcome of Reconcile.
type Result struct {
	Markdown string
	Used     UsedSet

	// References counts the image occurrences found in the input.
	References int
	Bindings   []Binding
	Inserted   []Placement
	Appended   []types.ImageAsset

	// Linked lists assets the input already linked to, e.g. when a
	// reconciled document is reconciled again.
	Linked []types.ImageAsset
}

// Inline returns the number of assets placed in the document body.
func (r Result) Inline() int {
	return len(r.Linked) + len(r.Bindings) + len(r.Inserted)
}

// Reconcile runs the rewrite, insert and append stages over markdown. Every
// pool asset appears in the returned Markdown exactly once. An empty pool
// returns markdown unchanged.
func Reconcile(markdown string, pool []types.ImageAsset, opts Options) (Result, error) {
	if !utf8.ValidString(markdown) {
		return Result{}, ErrNotText
	}
	if opts.Stem == "" {
		return Result{}, ErrEmptyStem
	}
	seen := make(map[string]bool, len(pool))
	for _, a := range pool {
		if seen[a.Filename] {
			return Result{}, fmt.Errorf("%w: %s", ErrDuplicateAsset, a.Filename)
		}
		seen[a.Filename] = true
	}

	if len(pool) == 0 {
		return Result{Markdown: markdown, Used: NewUsedSet(), References: len(FindReferences(markdown))}, nil
	}

	rw := Rewrite(markdown, pool, opts.Stem)
	result := Result{
		Markdown:   rw.Markdown,
		Used:       rw.Used,
		References: rw.References,
		Bindings:   rw.Bindings,
		Linked:     rw.Linked,
	}

	// A document without image syntax keeps its body; the whole pool goes
	// to the appendix.
	if rw.References == 0 {
		result.Markdown = Append(result.Markdown, nil, pool, 0, opts.Stem)
		result.Appended = append([]types.ImageAsset(nil), pool...)
		for _, a := range pool {
			result.Used.Add(a.Filename)
		}
		return result, nil
	}

	ins := Insert(result.Markdown, result.Used.Unused(pool), result.Used, opts)
	result.Markdown = ins.Markdown
	result.Inserted = ins.Placed

	result.Markdown = Append(result.Markdown, ins.Remaining, pool, rw.References, opts.Stem)
	for _, a := range ins.Remaining {
		result.Used.Add(a.Filename)
	}
	result.Appended = ins.Remaining
	return result, nil
}
