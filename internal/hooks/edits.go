package hooks

import (
	"strings"

	"github.com/dotcommander/hooktrace/internal/models"
)

// editLines counts lines added and removed by an edit event. Explicit
// lines_added/lines_removed win, then a unified diff, then the edits list.
// Anything malformed counts as zero.
func editLines(p models.Payload) (added, removed int) {
	if p.LinesAdded != nil || p.LinesRemoved != nil {
		return nonNegative(p.LinesAdded), nonNegative(p.LinesRemoved)
	}
	if p.Diff != "" {
		return diffLines(p.Diff)
	}
	for _, e := range p.Edits {
		a, r := replacementLines(e.OldString, e.NewString)
		added += a
		removed += r
	}
	return added, removed
}

// createLines counts the lines of a newly created file.
func createLines(p models.Payload) int {
	if p.LinesAdded != nil {
		return nonNegative(p.LinesAdded)
	}
	return len(splitLines(p.Content))
}

// diffLines counts '+' and '-' lines of a unified diff, skipping file headers.
func diffLines(diff string) (added, removed int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}

// replacementLines counts an old->new replacement after dropping the lines
// both sides share at the start and end.
func replacementLines(oldText, newText string) (added, removed int) {
	oldLines := splitLines(oldText)
	newLines := splitLines(newText)

	for len(oldLines) > 0 && len(newLines) > 0 && oldLines[0] == newLines[0] {
		oldLines, newLines = oldLines[1:], newLines[1:]
	}
	for len(oldLines) > 0 && len(newLines) > 0 && oldLines[len(oldLines)-1] == newLines[len(newLines)-1] {
		oldLines, newLines = oldLines[:len(oldLines)-1], newLines[:len(newLines)-1]
	}
	return len(newLines), len(oldLines)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(strings.ReplaceAll(s, "\r\n", "\n"), "\n"), "\n")
}

func nonNegative(v *int) int {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}
