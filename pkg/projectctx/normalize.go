package projectctx

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// maxFenceLines caps how many lines of a code block survive normalization.
// Project READMEs routinely embed long command transcripts that would crowd
// out the prose the advisors actually need.
const maxFenceLines = 40

var blankRuns = regexp.MustCompile(`\n{3,}`)

// normalizeDoc parses src as markdown and strips markup that wastes prompt
// budget: HTML blocks and inline HTML (badges, comment blocks) are removed,
// and oversized code fences are cut down to their first maxFenceLines lines.
// Headings, lists, and short fences pass through so advisors see the docs
// the way their authors wrote them.
func normalizeDoc(src string) string {
	doc := goldmark.New().Parser().Parse(text.NewReader([]byte(src)))

	var drop []text.Segment
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.HTMLBlock:
			lines := v.Lines()
			for i := 0; i < lines.Len(); i++ {
				drop = append(drop, lines.At(i))
			}
			if v.HasClosure() {
				drop = append(drop, v.ClosureLine)
			}
		case *ast.RawHTML:
			for i := 0; i < v.Segments.Len(); i++ {
				drop = append(drop, v.Segments.At(i))
			}
		case *ast.FencedCodeBlock:
			drop = append(drop, blockOverflow(v.Lines())...)
		case *ast.CodeBlock:
			drop = append(drop, blockOverflow(v.Lines())...)
		}
		return ast.WalkContinue, nil
	})

	cleaned := splice(src, drop)
	cleaned = blankRuns.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

// blockOverflow returns the line segments of a code block beyond the
// maxFenceLines cap.
func blockOverflow(lines *text.Segments) []text.Segment {
	if lines.Len() <= maxFenceLines {
		return nil
	}
	overflow := make([]text.Segment, 0, lines.Len()-maxFenceLines)
	for i := maxFenceLines; i < lines.Len(); i++ {
		overflow = append(overflow, lines.At(i))
	}
	return overflow
}

// splice removes the given byte ranges from src.
func splice(src string, drop []text.Segment) string {
	if len(drop) == 0 {
		return src
	}
	sort.Slice(drop, func(i, j int) bool { return drop[i].Start < drop[j].Start })

	var b strings.Builder
	b.Grow(len(src))
	pos := 0
	for _, seg := range drop {
		if seg.Start > pos {
			b.WriteString(src[pos:seg.Start])
		}
		if seg.Stop > pos {
			pos = seg.Stop
		}
	}
	if pos < len(src) {
		b.WriteString(src[pos:])
	}
	return b.String()
}
