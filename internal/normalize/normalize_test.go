package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeURL_DropsTrackingParams(t *testing.T) {
	t.Parallel()
	got, dom, err := CanonicalizeURL("https://example.com/a?utm_source=x&id=7")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a?id=7", got)
	assert.Equal(t, "example.com", dom)
}

func TestCanonicalizeURL_DropsWholeTrackingSet(t *testing.T) {
	t.Parallel()
	raw := "https://news.example.co.uk/p?utm_source=a&utm_medium=b&utm_campaign=c&utm_term=d&utm_content=e&fbclid=f&gclid=g&mc_cid=h&mc_eid=i&keep=1"
	got, dom, err := CanonicalizeURL(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://news.example.co.uk/p?keep=1", got)
	assert.Equal(t, "example.co.uk", dom)
}

func TestCanonicalizeURL_Idempotent(t *testing.T) {
	t.Parallel()
	urls := []string{
		"https://example.com/a?utm_source=x&id=7#frag",
		"https://example.com/path?b=2&a=1",
		"https://example.com/plain",
		"http://localhost:8080/x?q=term%20here",
	}
	for _, raw := range urls {
		once, _, err := CanonicalizeURL(raw)
		require.NoError(t, err)
		twice, _, err := CanonicalizeURL(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "input %q", raw)
	}
}

func TestCanonicalizeURL_PreservesOtherParamsVerbatim(t *testing.T) {
	t.Parallel()
	// Query segment order and escaping must survive untouched.
	got, _, err := CanonicalizeURL("https://example.com/s?z=9&a=hello%2Fworld&m=2")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/s?z=9&a=hello%2Fworld&m=2", got)
}

func TestCanonicalizeURL_DropsFragmentAndBlankValues(t *testing.T) {
	t.Parallel()
	got, _, err := CanonicalizeURL("https://example.com/a?empty=&id=3#section-2")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a?id=3", got)
}

func TestRegistrableDomain(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"WWW.Example.COM":     "example.com",
		"blog.example.co.uk":  "example.co.uk",
		"localhost:9000":      "localhost",
		"192.168.1.10:8080":   "192.168.1.10",
		"192.168.1.10":        "192.168.1.10",
		"[::1]:8080":          "::1",
		"sub.deep.example.io": "example.io",
	}
	for host, want := range cases {
		assert.Equal(t, want, RegistrableDomain(host), "host %q", host)
	}
}

func TestContentHash_WindowOnly(t *testing.T) {
	t.Parallel()
	base := strings.Repeat("a", 10000)
	h1 := ContentHash("en", "example.com", base)
	h2 := ContentHash("en", "example.com", base+"trailing change outside window")
	assert.Equal(t, h1, h2, "mutation past 10000 chars must not change the hash")

	h3 := ContentHash("en", "example.com", "b"+base[1:])
	assert.NotEqual(t, h1, h3, "mutation inside the window must change the hash")

	assert.NotEqual(t, h1, ContentHash("de", "example.com", base))
	assert.NotEqual(t, h1, ContentHash("en", "other.com", base))
}

func TestContentHash_CountsRunesNotBytes(t *testing.T) {
	t.Parallel()
	// 10000 two-byte runes exceed 10000 bytes but fit the window exactly.
	base := strings.Repeat("é", 10000)
	h1 := ContentHash("fr", "example.com", base)
	h2 := ContentHash("fr", "example.com", base+"suffix")
	assert.Equal(t, h1, h2)
}

func TestReadingTime(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, ReadingTime(0))
	assert.Equal(t, 1, ReadingTime(200))
	assert.Equal(t, 2, ReadingTime(201))
	assert.Equal(t, 60, ReadingTime(1000000))
	assert.Equal(t, 1, ReadingTime(5))
}

func TestWordCount(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 2, WordCount("Hello world."))
	assert.Equal(t, 3, WordCount("  a\tb\nc  "))
}

func TestDecodeBody_UTF8Passthrough(t *testing.T) {
	t.Parallel()
	html := "<html><body><p>héllo</p></body></html>"
	got := DecodeBody([]byte(html), "text/html; charset=utf-8")
	assert.Equal(t, html, got)
}

func TestDecodeBody_Latin1(t *testing.T) {
	t.Parallel()
	// "café" in ISO-8859-1: 0xE9 for é.
	body := []byte{'c', 'a', 'f', 0xE9}
	got := DecodeBody(body, "text/html; charset=iso-8859-1")
	assert.Equal(t, "café", got)
}
