// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reconcile

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/pdiddy/pdf2md/pkg/types"
)

// Strategy names how an image was placed in the document body.
type Strategy string

const (
	StrategyAnchor  Strategy = "anchor"
	StrategyHeading Strategy = "heading"
)

// Placement records one image inserted by Insert. Line is the index of the
// image line at the moment it was inserted.
type Placement struct {
	Asset    types.ImageAsset
	Line     int
	Strategy Strategy
}

// InsertResult is the outcome of Insert.
type InsertResult struct {
	Markdown  string
	Placed    []Placement
	Remaining []types.ImageAsset
}

const fenceDelimiter = "```"

var headingPattern = regexp.MustCompile(`^#+\s`)

// insideFence reports whether a line inserted at pos would sit inside a
// fenced code block: an odd number of fence lines precede it. Indented
// blocks and other fence dialects are not recognized.
func insideFence(lines []string, pos int) bool {
	fences := 0
	for i := 0; i < pos && i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), fenceDelimiter) {
			fences++
		}
	}
	return fences%2 == 1
}

// pageMentionPatterns returns the patterns that mark a line as talking about
// page n, numeric and localized.
func pageMentionPatterns(n int) []*regexp.Regexp {
	s := strconv.Itoa(n)
	return []*regexp.Regexp{
		regexp.MustCompile(`第\s*` + s + `\s*页`),
		regexp.MustCompile(`(?i)page\s*` + s + `\b`),
		regexp.MustCompile(`(?i)p\.\s*` + s + `\b`),
		regexp.MustCompile(`页码[:：]\s*` + s + `\b`),
		regexp.MustCompile(`\b` + s + `\s*页`),
	}
}

// inserter carries the mutable line buffer for one Insert call.
type inserter struct {
	lines    []string
	stem     string
	maxPages int

	// generated holds the image lines this inserter wrote so they are never
	// taken as anchors and successive images after one anchor stay in order.
	generated map[string]bool
}

// Insert places leftover assets inside the document body. Assets are taken
// in ascending page order; each is put after the first line that mentions its
// page or, failing that, after the heading closest to the page's estimated
// position. An asset without a page has no anchor and is estimated at the
// top of the document. Nothing is ever inserted inside a fenced code block. Placed
// assets are added to used; the rest are returned in Remaining.
func Insert(doc string, leftovers []types.ImageAsset, used UsedSet, opts Options) InsertResult {
	ins := &inserter{
		lines:     strings.Split(doc, "\n"),
		stem:      opts.Stem,
		maxPages:  opts.assumedMaxPages(),
		generated: make(map[string]bool),
	}

	var result InsertResult
	for _, asset := range sortByPage(leftovers) {
		if used.Has(asset.Filename) {
			continue
		}
		page := pageOf(asset)
		if page < 0 {
			page = 0
		}

		strategy, pos := StrategyAnchor, -1
		if page > 0 {
			pos = ins.anchorPosition(page)
		}
		if pos < 0 {
			strategy = StrategyHeading
			pos = ins.headingPosition(page)
		}
		if pos < 0 {
			result.Remaining = append(result.Remaining, asset)
			continue
		}

		line := ins.insertAt(pos, asset, page)
		used.Add(asset.Filename)
		result.Placed = append(result.Placed, Placement{Asset: asset, Line: line, Strategy: strategy})
	}

	result.Markdown = strings.Join(ins.lines, "\n")
	return result
}

// anchorPosition returns the insertion index after the first line mentioning
// page, or -1.
func (ins *inserter) anchorPosition(page int) int {
	patterns := pageMentionPatterns(page)
	for i, line := range ins.lines {
		if ins.generated[line] {
			continue
		}
		folded := width.Fold.String(line)
		for _, re := range patterns {
			if !re.MatchString(folded) {
				continue
			}
			if pos := ins.skipGenerated(i + 1); !insideFence(ins.lines, pos) {
				return pos
			}
			break
		}
	}
	return -1
}

// headingPosition returns the insertion index after the heading closest to
// the page's proportional position, or -1 when no usable heading exists.
func (ins *inserter) headingPosition(page int) int {
	estimate := int(math.Round(float64(page) / float64(ins.maxPages) * float64(len(ins.lines))))

	best, bestDistance := -1, math.MaxInt
	for i, line := range ins.lines {
		if !headingPattern.MatchString(line) || insideFence(ins.lines, i+1) {
			continue
		}
		distance := i - estimate
		if distance < 0 {
			distance = -distance
		}
		if distance < bestDistance {
			best, bestDistance = i, distance
		}
	}
	if best < 0 {
		return -1
	}
	return ins.skipGenerated(best + 1)
}

// skipGenerated advances pos past image blocks this inserter already wrote
// there, so several images after one anchor keep page order.
func (ins *inserter) skipGenerated(pos int) int {
	for pos+2 < len(ins.lines) &&
		ins.lines[pos] == "" &&
		ins.generated[ins.lines[pos+1]] &&
		ins.lines[pos+2] == "" {
		pos += 3
	}
	return pos
}

// insertAt writes a blank-image-blank block at pos and returns the index of
// the image line.
func (ins *inserter) insertAt(pos int, asset types.ImageAsset, page int) int {
	image := imageMarkdown(pageCaption(page, 0), ImageLink(ins.stem, asset.Filename))
	ins.generated[image] = true

	block := []string{"", image, ""}
	lines := make([]string, 0, len(ins.lines)+len(block))
	lines = append(lines, ins.lines[:pos]...)
	lines = append(lines, block...)
	lines = append(lines, ins.lines[pos:]...)
	ins.lines = lines
	return pos + 1
}

// sortByPage returns a copy of assets ordered by page, keeping pool order
// within a page.
func sortByPage(assets []types.ImageAsset) []types.ImageAsset {
	out := append([]types.ImageAsset(nil), assets...)
	sort.SliceStable(out, func(i, j int) bool {
		return pageOf(out[i]) < pageOf(out[j])
	})
	return out
}
