package entities

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mongopulse/anomaly-engine/internal/cache"
)

func TestHTTPCapabilityAnnotate(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/v1/annotate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"entities": map[string][]string{"ORG": {"MongoDB"}},
		})
	}))
	defer server.Close()

	capability := NewHTTPCapability(server.URL, "", time.Second, cache.NewMemoryProvider(), time.Minute)

	groups, err := capability.Annotate(context.Background(), "connection from MongoDB shell")
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if want := map[string][]string{"ORG": {"MongoDB"}}; !reflect.DeepEqual(groups, want) {
		t.Fatalf("groups = %v, want %v", groups, want)
	}

	// Second call with identical text must be served from the cache.
	if _, err := capability.Annotate(context.Background(), "connection from MongoDB shell"); err != nil {
		t.Fatalf("Annotate (cached): %v", err)
	}
	if requests != 1 {
		t.Fatalf("service hit %d times, want 1 (cache miss only)", requests)
	}
}

func TestHTTPCapabilityTruncatesInput(t *testing.T) {
	var received int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		received = len(req.Text)
		_ = json.NewEncoder(w).Encode(map[string]any{"entities": map[string][]string{}})
	}))
	defer server.Close()

	capability := NewHTTPCapability(server.URL, "", time.Second, nil, 0)

	long := strings.Repeat("x", maxAnnotateInput+5000)
	if _, err := capability.Annotate(context.Background(), long); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if received != maxAnnotateInput {
		t.Fatalf("service received %d bytes, want %d", received, maxAnnotateInput)
	}
}

func TestHTTPCapabilityTruncatesOnRuneBoundary(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		received = req.Text
		_ = json.NewEncoder(w).Encode(map[string]any{"entities": map[string][]string{}})
	}))
	defer server.Close()

	capability := NewHTTPCapability(server.URL, "", time.Second, nil, 0)

	// Three-byte runes do not divide the limit evenly, so a byte-index slice
	// would split the last rune in half.
	long := strings.Repeat("世", maxAnnotateInput/3+1)
	if _, err := capability.Annotate(context.Background(), long); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if !utf8.ValidString(received) {
		t.Fatal("service received invalid UTF-8")
	}
	if len(received) != maxAnnotateInput-1 {
		t.Fatalf("service received %d bytes, want %d (limit backed off to rune boundary)", len(received), maxAnnotateInput-1)
	}
}

func TestHTTPCapabilityNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	capability := NewHTTPCapability(server.URL, "", time.Second, nil, 0)
	if _, err := capability.Annotate(context.Background(), "text"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
