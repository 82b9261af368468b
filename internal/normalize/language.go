package normalize

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// Undetermined is returned when no language can be established or the
// detection falls outside the configured allow-list.
const Undetermined = "und"

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// langDetector builds the classifier lazily; model loading is expensive and
// most dispatcher tasks never need it.
func langDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithLowAccuracyMode().
			Build()
	})
	return detector
}

// DetectLanguage classifies text into an ISO 639-1 code. Empty input yields
// "und"; so does a detection outside the allow-list when one is configured.
func DetectLanguage(text string, allowed []string) string {
	if strings.TrimSpace(text) == "" {
		return Undetermined
	}
	lang, ok := langDetector().DetectLanguageOf(text)
	if !ok {
		return Undetermined
	}
	code := strings.ToLower(lang.IsoCode639_1().String())
	if len(allowed) > 0 {
		found := false
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimSpace(a), code) {
				found = true
				break
			}
		}
		if !found {
			return Undetermined
		}
	}
	return code
}
