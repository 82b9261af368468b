package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContent_ParagraphsAndMeta(t *testing.T) {
	t.Parallel()
	html := `<html><head>
	<meta name="author" content="Jane Doe">
	</head><body>
	<h1>Main Title</h1>
	<h2>Subsection</h2>
	<p>First paragraph with enough words to matter.</p>
	<p>Second paragraph continues the story.</p>
	<script>var ignored = true;</script>
	</body></html>`

	text, headings, author := Content(html)
	assert.Contains(t, text, "First paragraph")
	assert.Contains(t, text, "Second paragraph")
	assert.NotContains(t, text, "ignored")
	assert.Contains(t, headings, "Main Title")
	assert.Contains(t, headings, "Subsection")
	assert.Equal(t, "Jane Doe", author)
}

func TestContent_HeadingsCapped(t *testing.T) {
	t.Parallel()
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 10; i++ {
		b.WriteString("<h2>Heading</h2>")
	}
	b.WriteString("<p>body text</p></body></html>")

	_, headings, _ := Content(b.String())
	assert.LessOrEqual(t, len(headings), 5)
}

func TestContent_FallsBackToDocumentText(t *testing.T) {
	t.Parallel()
	// No <p> elements at all; whole-document text is the last resort.
	html := `<html><body><div>standalone div content</div></body></html>`
	text, _, _ := Content(html)
	assert.Contains(t, text, "standalone div content")
}

func TestContent_EmptyDocument(t *testing.T) {
	t.Parallel()
	text, headings, author := Content("")
	assert.Empty(t, text)
	assert.Empty(t, headings)
	assert.Empty(t, author)
}

func TestDomPass_JoinsParagraphsWithBlankLines(t *testing.T) {
	t.Parallel()
	html := `<html><body><p>one</p><p>two</p></body></html>`
	text, _, _ := domPass(html)
	assert.Equal(t, "one\n\ntwo", text)
}

func TestCollapseSpace(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a b c", collapseSpace("  a \n b\tc  "))
	assert.Equal(t, "", collapseSpace("   "))
}
