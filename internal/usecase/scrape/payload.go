package scrape

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fairyhunter13/story-enricher/internal/domain"
	"github.com/fairyhunter13/story-enricher/internal/normalize"
)

const (
	headMaxChars     = 900
	tailMaxChars     = 600
	maxCandidateTags = 6
)

// firstParagraphs keeps whole leading paragraphs up to maxChars. The first
// paragraph is always included even when it alone exceeds the budget; the
// result is hard-capped at maxChars.
func firstParagraphs(text string, maxChars int) string {
	parts := splitParagraphs(text)
	var out []string
	total := 0
	for _, p := range parts {
		n := utf8.RuneCountInString(p)
		if total+n > maxChars && len(out) > 0 {
			break
		}
		out = append(out, p)
		total += n
	}
	return truncate(strings.Join(out, "\n\n"), maxChars)
}

// lastParagraphs mirrors firstParagraphs from the end of the text.
func lastParagraphs(text string, maxChars int) string {
	parts := splitParagraphs(text)
	var out []string
	total := 0
	for i := len(parts) - 1; i >= 0; i-- {
		p := parts[i]
		n := utf8.RuneCountInString(p)
		if total+n > maxChars && len(out) > 0 {
			break
		}
		out = append([]string{p}, out...)
		total += n
	}
	return truncate(strings.Join(out, "\n\n"), maxChars)
}

func splitParagraphs(text string) []string {
	var parts []string
	for _, p := range strings.Split(text, "\n\n") {
		if t := strings.TrimSpace(p); t != "" {
			parts = append(parts, t)
		}
	}
	return parts
}

// truncate hard-caps s at n characters without splitting a rune.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// candidateTags collects classification hints from capitalized title tokens,
// the first word of each heading, and short alphabetic URL path segments.
// Case-insensitive de-dupe, at most six survive.
func candidateTags(title string, headings []string, urlPath string) []string {
	var tags []string
	for _, token := range strings.Fields(strings.ReplaceAll(title, "/", " ")) {
		r := []rune(token)
		if len(r) > 0 && unicode.IsUpper(r[0]) {
			tags = append(tags, strings.Trim(token, ".,:;!?"))
		}
	}
	for _, h := range headings {
		if fields := strings.Fields(h); len(fields) > 0 {
			tags = append(tags, fields[0])
		}
	}
	for _, seg := range strings.Split(urlPath, "/") {
		if seg != "" && isAlpha(seg) && len(seg) <= 20 {
			tags = append(tags, strings.ToUpper(seg[:1])+strings.ToLower(seg[1:]))
		}
	}

	seen := make(map[string]struct{}, len(tags))
	var out []string
	for _, t := range tags {
		if t == "" {
			continue
		}
		k := strings.ToLower(t)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
		if len(out) >= maxCandidateTags {
			break
		}
	}
	return out
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// buildSummarizerPayload assembles the summarizer:in envelope: the story
// fragment, a bounded article view (the full text never crosses the queue),
// and classification hints.
func buildSummarizerPayload(traceID string, story domain.StoryRef, articleID, language, text string, headings []string, isPDF, isPaywalled bool, domainName, finalURL string) domain.SummarizerIn {
	if len(headings) > 5 {
		headings = headings[:5]
	}
	path := "/"
	if u, err := url.Parse(finalURL); err == nil && u.Path != "" {
		path = u.Path
	}
	story.Domain = domainName
	return domain.SummarizerIn{
		TraceID: traceID,
		Story:   story,
		Article: domain.ArticleMeta{
			ID:          articleID,
			Language:    language,
			WordCount:   normalize.WordCount(text),
			IsPDF:       isPDF,
			IsPaywalled: isPaywalled,
			TextHead:    firstParagraphs(text, headMaxChars),
			Headings:    headings,
			TextTail:    lastParagraphs(text, tailMaxChars),
		},
		Hints: domain.Hints{
			CandidateTags:    candidateTags(story.Title, headings, path),
			SourceReputation: 0.5,
		},
		Metrics:       nil,
		Attempt:       0,
		SchemaVersion: domain.SchemaVersion,
	}
}
