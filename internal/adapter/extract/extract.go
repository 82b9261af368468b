// Package extract turns fetched HTML into plain article text, a bounded list
// of headings, and the document author when one is declared.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// maxHeadings bounds the heading list carried to the summarizer.
const maxHeadings = 5

// Content extracts (text, headings, author) from an HTML document.
//
// Strategy: readability supplies the main text; when it succeeds, a goquery
// pass still supplies headings and the author meta tag. When readability
// fails or yields nothing, the goquery pass supplies everything: paragraphs
// joined with blank lines, falling back to whole-document text.
func Content(html string) (string, []string, string) {
	if article, err := readability.FromReader(strings.NewReader(html), nil); err == nil {
		text := strings.TrimSpace(article.TextContent)
		if text != "" {
			_, headings, author := domPass(html)
			return text, headings, author
		}
	}
	return domPass(html)
}

// domPass is the readability-free path: strip script/style/noscript, collect the
// first headings and <meta name="author">, join non-empty <p> text.
func domPass(html string) (string, []string, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", nil, ""
	}
	doc.Find("script, style, noscript").Remove()

	var headings []string
	doc.Find("h1, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := collapseSpace(s.Text()); t != "" {
			headings = append(headings, t)
		}
		return len(headings) < maxHeadings
	})

	author := ""
	if content, ok := doc.Find(`meta[name="author"]`).First().Attr("content"); ok {
		author = strings.TrimSpace(content)
	}

	var paras []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := collapseSpace(s.Text()); t != "" {
			paras = append(paras, t)
		}
	})
	text := strings.Join(paras, "\n\n")
	if text == "" {
		text = collapseSpace(doc.Text())
	}
	return text, headings, author
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
