package automation

import (
	"strconv"
	"strings"
)

// accessibilityMarkers are the positive signals counted by the diff scan.
var accessibilityMarkers = []string{
	"aria-",
	"role=",
	"alt=",
	"tabindex",
	"aria_label",
	"<caption",
	"srOnly",
}

// ScanDiffs inspects added lines in changed-file diffs for accessibility
// markers and for images introduced without alt text. The scan is heuristic;
// it exists to surface regressions in review, not to certify compliance.
func ScanDiffs(files []ChangedFile) ScanReport {
	report := ScanReport{MissingAltText: []string{}}
	for _, f := range files {
		for _, line := range strings.Split(f.Patch, "\n") {
			if !strings.HasPrefix(line, "+") {
				continue
			}
			for _, marker := range accessibilityMarkers {
				report.MarkersFound += strings.Count(line, marker)
			}
			if strings.Contains(line, "<img") && !strings.Contains(line, "alt=") {
				report.MissingAltText = append(report.MissingAltText, f.Path)
			}
		}
	}
	report.Passed = len(report.MissingAltText) == 0
	return report
}

// FormatScanComment renders a scan report as the review comment body posted
// back to the pull request.
func FormatScanComment(report ScanReport) string {
	var b strings.Builder
	b.WriteString("## Accessibility Scan\n\n")
	if report.Passed {
		b.WriteString("✅ Passed\n\n")
	} else {
		b.WriteString("❌ Failed\n\n")
	}
	b.WriteString("- Accessibility markers found: ")
	b.WriteString(strconv.Itoa(report.MarkersFound))
	b.WriteString("\n")
	if len(report.MissingAltText) > 0 {
		b.WriteString("- Images missing alt text:\n")
		for _, path := range report.MissingAltText {
			b.WriteString("  - `")
			b.WriteString(path)
			b.WriteString("`\n")
		}
	}
	return b.String()
}
