package normalize

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// DecodeBody converts a fetched body to a UTF-8 string, honouring the
// charset advertised in contentType and sniffing the document when the
// header is silent. Undecodable bytes degrade to a lossy UTF-8 pass rather
// than failing the job.
func DecodeBody(body []byte, contentType string) string {
	if len(body) == 0 {
		return ""
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err == nil {
		if decoded, err := io.ReadAll(r); err == nil {
			return string(decoded)
		}
	}
	if utf8.Valid(body) {
		return string(body)
	}
	return strings.ToValidUTF8(string(body), "")
}
