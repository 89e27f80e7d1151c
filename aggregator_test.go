package aggproxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/cention/aggproxy/internal/config"
)

func newTestPipeline(t *testing.T, cfg *config.Config) *Pipeline {
	t.Helper()
	p, err := NewPipeline(cfg, http.DefaultTransport)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p
}

func backendJSON(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestEndToEnd_MergeGET(t *testing.T) {
	a := backendJSON(t, 200, `[{"k":1}]`)
	defer a.Close()
	b := backendJSON(t, 200, `{"k":2}`)
	defer b.Close()

	cfg := &config.Config{Routes: []config.Route{{
		URLPatterns: []string{"http://p/{Endpoint_IDs}/x"},
		Endpoints:   map[string]string{"a": a.URL, "b": b.URL},
	}}}
	p := newTestPipeline(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "http://p/a,b/x", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `[{"k":1},{"k":2}]` {
		t.Errorf("body = %s, want [{\"k\":1},{\"k\":2}]", rec.Body.String())
	}
}

func TestEndToEnd_AggregateMixedWithPriority(t *testing.T) {
	a := backendJSON(t, 200, `{}`)
	defer a.Close()
	b := backendJSON(t, 404, `{"error":"not found"}`)
	defer b.Close()

	cfg := &config.Config{Routes: []config.Route{{
		URLPatterns:    []string{"http://p/{Endpoint_IDs}/x"},
		Endpoints:      map[string]string{"a": a.URL, "b": b.URL},
		PriorityErrors: []int{404},
	}}}
	p := newTestPipeline(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "http://p/a,b/x", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404 (priority match)", rec.Code)
	}
	if rec.Body.String() != `{"error":"not found"}` {
		t.Errorf("body = %s, want the 404 backend's body verbatim", rec.Body.String())
	}
}

func TestEndToEnd_CollapseRule(t *testing.T) {
	a := backendJSON(t, 201, `{}`)
	defer a.Close()
	b := backendJSON(t, 202, `{}`)
	defer b.Close()
	c := backendJSON(t, 503, `{}`)
	defer c.Close()

	cfg := &config.Config{Routes: []config.Route{{
		URLPatterns: []string{"http://p/{Endpoint_IDs}/x"},
		Endpoints:   map[string]string{"a": a.URL, "b": b.URL, "c": c.URL},
	}}}
	p := newTestPipeline(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "http://p/a,b,c/x", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200 (max 202 collapses to the 200 bucket)", rec.Code)
	}
	parsed := gjson.ParseBytes(rec.Body.Bytes())
	if !parsed.IsArray() || len(parsed.Array()) != 3 {
		t.Fatalf("aggregate body = %s, want a 3-element envelope", rec.Body.String())
	}
}

func TestEndToEnd_Single(t *testing.T) {
	a := backendJSON(t, 200, `{"ok":true}`)
	defer a.Close()

	cfg := &config.Config{Routes: []config.Route{{
		URLPatterns: []string{"http://p/{Endpoint_IDs}/x"},
		Endpoints:   map[string]string{"a": a.URL},
	}}}
	p := newTestPipeline(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "http://p/a/x", nil)
	req.Host = "p"
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != 200 || rec.Body.String() != `{"ok":true}` {
		t.Fatalf("got status=%d body=%s, want verbatim passthrough", rec.Code, rec.Body.String())
	}
}

func TestEndToEnd_Metadata(t *testing.T) {
	a := backendJSON(t, 200, `{"secret":"value"}`)
	defer a.Close()
	b := backendJSON(t, 200, `{"secret":"other"}`)
	defer b.Close()

	cfg := &config.Config{Routes: []config.Route{{
		URLPatterns: []string{"http://p/{Endpoint_IDs}/x"},
		Endpoints:   map[string]string{"a": a.URL, "b": b.URL},
	}}}
	p := newTestPipeline(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "http://p/a,b/x", nil)
	req.Header.Set("Proxy-Aggregator-Body", "response-metadata")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Errorf("metadata envelope leaked backend body: %s", rec.Body.String())
	}
	parsed := gjson.ParseBytes(rec.Body.Bytes())
	if len(parsed.Array()) != 2 {
		t.Fatalf("metadata entries = %d, want 2", len(parsed.Array()))
	}
	if parsed.Array()[0].Get("url").String() != a.URL {
		t.Errorf("entry[0].url = %q, want %q", parsed.Array()[0].Get("url").String(), a.URL)
	}
}

func TestEndToEnd_NoRoute(t *testing.T) {
	cfg := &config.Config{Routes: []config.Route{{
		URLPatterns: []string{"http://p/{Endpoint_IDs}/x"},
		Endpoints:   map[string]string{"a": "http://backend-a"},
	}}}
	p := newTestPipeline(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "http://p/totally/unrelated", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
