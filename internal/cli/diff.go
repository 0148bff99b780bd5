package cli

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ANSI colors matching the classic diff palette.
const (
	colorReset  = "\x1b[0m"
	colorDelete = "\x1b[31;107m"
	colorInsert = "\x1b[32;107m"
)

// renderDiff produces a colored line-level diff between the target's current
// content and the content that would be published. Unchanged regions are
// elided.
func renderDiff(old, new string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(old, new)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		var prefix, color string
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix, color = "-", colorDelete
		case diffmatchpatch.DiffInsert:
			prefix, color = "+", colorInsert
		default:
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(d.Text, "\n"), "\n") {
			sb.WriteString("  ")
			sb.WriteString(color)
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteString(colorReset)
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
