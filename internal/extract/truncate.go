package extract

import (
	"bufio"
	"strings"
)

// Headings that open a bibliography section. Matched against whole
// trimmed lines, case-insensitively, with optional numbering.
var bibliographyHeadings = []string{
	"references",
	"bibliography",
	"literature cited",
	"works cited",
	"reference list",
}

// TruncateAtBibliography cuts the document at its bibliography heading
// so screening spends no budget on the reference list. To avoid
// tripping on an early mention ("see References below") the scan only
// honors a heading found in the second half of the document. Returns
// the text unchanged when no heading is found. The mining path must
// NOT use this: there the bibliography is the payload.
func TruncateAtBibliography(text string) (string, bool) {
	half := len(text) / 2

	offset := 0
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if offset >= half && isBibliographyHeading(line) {
			return strings.TrimRight(text[:offset], "\n"), true
		}
		offset += len(line) + 1
	}

	return text, false
}

func isBibliographyHeading(line string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(line))
	trimmed = strings.TrimRight(trimmed, ":.")
	// Tolerate section numbering like "7. References".
	if i := strings.IndexFunc(trimmed, func(r rune) bool { return r >= 'a' && r <= 'z' }); i > 0 && i <= 4 {
		trimmed = trimmed[i:]
	}
	for _, h := range bibliographyHeadings {
		if trimmed == h {
			return true
		}
	}
	return false
}
