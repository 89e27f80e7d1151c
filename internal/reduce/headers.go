package reduce

import (
	"net/http"
	"strconv"
)

// hopByHopHeaders are stripped from every outbound response (spec §4.9):
// they describe a single hop's transport, not the aggregated payload.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Encoding",
}

// fixupHeaders applies the header fix-up every reducer shares (spec §4.9):
// strip hop-by-hop headers, clear Content-Encoding (bodies are always
// rewritten or re-emitted uncompressed), and set Content-Length to match the
// final body exactly.
func fixupHeaders(out *Outbound) {
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	for _, h := range hopByHopHeaders {
		out.Header.Del(h)
	}
	out.Header.Set("Content-Length", strconv.Itoa(len(out.Body)))
}
