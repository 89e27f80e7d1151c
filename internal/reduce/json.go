package reduce

import (
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/tidwall/gjson"

	"github.com/cention/aggproxy/internal/dispatch"
)

// decodedBody returns a backend's body with Content-Encoding: gzip undone.
// The dispatcher always advertises "gzip,identity" to backends (spec §4.3),
// so any backend that chose gzip must be decompressed before a reducer
// inspects its JSON.
func decodedBody(result dispatch.Result) ([]byte, error) {
	if !strings.Contains(strings.ToLower(result.Header.Get("Content-Encoding")), "gzip") {
		return result.Body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(result.Body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// isJSONContentType reports whether a Content-Type header value denotes a
// JSON payload (spec §4.6's merge precondition), ignoring any charset or
// other parameter suffix.
func isJSONContentType(contentType string) bool {
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	return strings.EqualFold(mediaType, "application/json")
}

// acceptsJSON reports whether an Accept header value includes
// application/json or a wildcard that covers it.
func acceptsJSON(accept string) bool {
	if accept == "" {
		return false
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch {
		case strings.EqualFold(mediaType, "application/json"):
			return true
		case mediaType == "*/*":
			return true
		case strings.EqualFold(mediaType, "application/*"):
			return true
		}
	}
	return false
}

// jsonArrayBuilder accumulates raw JSON values into a JSON array without
// re-encoding each element, preserving the backend's own formatting.
type jsonArrayBuilder struct {
	parts []string
}

func (b *jsonArrayBuilder) appendRaw(raw string) {
	b.parts = append(b.parts, raw)
}

func (b *jsonArrayBuilder) appendMany(raws []string) {
	b.parts = append(b.parts, raws...)
}

// validJSON reports whether body parses as JSON at all.
func validJSON(body []byte) bool {
	return gjson.ValidBytes(body)
}

func (b *jsonArrayBuilder) bytes() []byte {
	return []byte("[" + strings.Join(b.parts, ",") + "]")
}

// flattenJSONValue returns the raw JSON fragments to splice into a merged
// array for one backend's body: every element if the body is itself a JSON
// array, or the whole value as a single element otherwise (spec §4.6).
func flattenJSONValue(body []byte) []string {
	result := gjson.ParseBytes(body)
	if result.IsArray() {
		elems := result.Array()
		out := make([]string, len(elems))
		for i, e := range elems {
			out[i] = e.Raw
		}
		return out
	}
	return []string{result.Raw}
}
