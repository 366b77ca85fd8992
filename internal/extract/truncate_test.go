package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateAtBibliography(t *testing.T) {
	body := strings.Repeat("Paragraph about methods and results.\n", 20)
	doc := body + "REFERENCES\n1. Smith J. Trial of X. 2020.\n2. Jones A. Trial of Y. 2019.\n"

	got, cut := TruncateAtBibliography(doc)
	assert.True(t, cut)
	assert.NotContains(t, got, "Smith J.")
	assert.True(t, strings.HasSuffix(got, "results."))
}

func TestTruncateAtBibliography_HeadingVariants(t *testing.T) {
	body := strings.Repeat("text\n", 50)
	for _, heading := range []string{
		"References",
		"BIBLIOGRAPHY",
		"Literature Cited",
		"7. References",
		"References:",
	} {
		doc := body + heading + "\nentry one\n"
		_, cut := TruncateAtBibliography(doc)
		assert.True(t, cut, heading)
	}
}

func TestTruncateAtBibliography_EarlyMentionIgnored(t *testing.T) {
	// A heading-shaped line in the first half is not the bibliography.
	doc := "References\n" + strings.Repeat("actual content about the study design\n", 30)

	got, cut := TruncateAtBibliography(doc)
	assert.False(t, cut)
	assert.Equal(t, doc, got)
}

func TestTruncateAtBibliography_NoHeading(t *testing.T) {
	doc := strings.Repeat("just content\n", 10)
	got, cut := TruncateAtBibliography(doc)
	assert.False(t, cut)
	assert.Equal(t, doc, got)
}

func TestTruncateAtBibliography_InlineMentionIgnored(t *testing.T) {
	body := strings.Repeat("text\n", 40)
	doc := body + "as listed in the references below\nmore content\n"

	_, cut := TruncateAtBibliography(doc)
	assert.False(t, cut)
}
