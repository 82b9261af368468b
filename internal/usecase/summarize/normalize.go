package summarize

import (
	"strings"
	"unicode/utf8"

	"github.com/fairyhunter13/story-enricher/internal/domain"
)

// tagAliases maps case-folded tag spellings to their canonical form.
var tagAliases = map[string]string{
	"btrfs": "Btrfs",
}

// controlledAudience is the closed role vocabulary; free-form model output is
// filtered against it.
var controlledAudience = map[string]struct{}{
	"Kernel Devs":        {},
	"OSS Maintainers":    {},
	"Data Scientists":    {},
	"Frontend Engineers": {},
	"Backend Engineers":  {},
	"Security Engineers": {},
}

const (
	maxSummaryLen = 800
	maxTags       = 6
	minTagLen     = 2
	maxTagLen     = 40
)

// NormalizeTags trims, length-filters and aliases at most six tags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, maxTags)
	for i, t := range tags {
		if i >= maxTags {
			break
		}
		t = strings.TrimSpace(t)
		if n := utf8.RuneCountInString(t); n < minTagLen || n > maxTagLen {
			continue
		}
		if alias, ok := tagAliases[strings.ToLower(t)]; ok {
			t = alias
		}
		out = append(out, t)
	}
	return out
}

// NormalizeTopics applies the tag length rules without aliasing.
func NormalizeTopics(topics []string) []string {
	out := make([]string, 0, maxTags)
	for i, t := range topics {
		if i >= maxTags {
			break
		}
		t = strings.TrimSpace(t)
		if n := utf8.RuneCountInString(t); n >= minTagLen && n <= maxTagLen {
			out = append(out, t)
		}
	}
	return out
}

// ClipSummary trims and caps the summary at 800 characters (runes, so the cut
// never splits a multi-byte sequence); empty after trimming is reported so the
// caller can reject the result.
func ClipSummary(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if r := []rune(s); len(r) > maxSummaryLen {
		s = string(r[:maxSummaryLen])
	}
	return s, true
}

// FilterAudience keeps only roles from the controlled vocabulary.
func FilterAudience(audience []string) []string {
	var out []string
	for _, a := range audience {
		if _, ok := controlledAudience[a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// NormalizeUI clamps impact_score to [0,100], confidence to [0,1], and
// filters the audience list.
func NormalizeUI(ui *domain.UILayer) domain.UILayer {
	if ui == nil {
		return domain.UILayer{}
	}
	out := *ui
	if out.ImpactScore != nil {
		v := clampInt(*out.ImpactScore, 0, 100)
		out.ImpactScore = &v
	}
	if out.Confidence != nil {
		v := clampFloat(*out.Confidence, 0, 1)
		out.Confidence = &v
	}
	out.Audience = FilterAudience(out.Audience)
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
