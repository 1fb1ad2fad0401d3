package splitter

import (
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

// boundary is a byte offset where a cut keeps document structure
// intact. Heading boundaries are preferred over plain block starts.
type boundary struct {
	offset  int
	heading bool
}

// linedBlock is satisfied by goldmark block nodes that track their
// source line segments.
type linedBlock interface {
	Lines() *gtext.Segments
}

// boundaries parses src as markdown and returns the start offsets of
// its block elements, ascending. Plain text degrades gracefully: every
// paragraph break is still a block boundary.
func boundaries(src []byte) []boundary {
	doc := goldmark.New().Parser().Parse(gtext.NewReader(src))

	var bounds []boundary
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lb, ok := n.(linedBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := lb.Lines()
		if lines == nil || lines.Len() == 0 {
			return ast.WalkContinue, nil
		}

		off := lineStart(src, lines.At(0).Start)
		bounds = append(bounds, boundary{
			offset:  off,
			heading: n.Kind() == ast.KindHeading,
		})
		return ast.WalkContinue, nil
	})

	sort.Slice(bounds, func(i, j int) bool { return bounds[i].offset < bounds[j].offset })

	// Deduplicate, keeping the heading flag when both kinds land on
	// the same offset.
	out := bounds[:0]
	for _, b := range bounds {
		if len(out) > 0 && out[len(out)-1].offset == b.offset {
			out[len(out)-1].heading = out[len(out)-1].heading || b.heading
			continue
		}
		out = append(out, b)
	}
	return out
}

// lineStart walks back from off to the start of its line. Goldmark
// segments for headings begin after the marker; cuts must land before it.
func lineStart(src []byte, off int) int {
	if off > len(src) {
		off = len(src)
	}
	for off > 0 && src[off-1] != '\n' {
		off--
	}
	return off
}

// FirstHeading returns the text of the first markdown heading in src,
// or empty string when there is none.
func FirstHeading(src []byte) string {
	doc := goldmark.New().Parser().Parse(gtext.NewReader(src))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if n.Kind() == ast.KindHeading {
			title = strings.TrimSpace(nodeText(n, src))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

// nodeText collects the plain text beneath n.
func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
			continue
		}
		if c.HasChildren() {
			b.WriteString(nodeText(c, src))
		}
	}
	return b.String()
}
