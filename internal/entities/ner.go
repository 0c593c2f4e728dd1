package entities

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mongopulse/anomaly-engine/internal/cache"
)

// Capability is the optional named-entity recognition dependency: given free
// text it returns a mapping from entity category to surface strings. The
// extractor treats a nil Capability as "unavailable" and degrades silently,
// so the decision is made once at startup, never probed per message.
type Capability interface {
	Annotate(ctx context.Context, text string) (map[string][]string, error)
}

// maxAnnotateInput bounds the text sent to the NER service per request.
const maxAnnotateInput = 100000

// HTTPCapability implements Capability against an external NER HTTP service.
// Annotation responses are cached by text hash: the producer emits a small
// set of message templates, so the hit rate is high.
type HTTPCapability struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	cache      cache.Provider
	cacheTTL   time.Duration
}

// NewHTTPCapability constructs an NER client targeting the given endpoint.
func NewHTTPCapability(endpoint, apiKey string, timeout time.Duration, cacheProvider cache.Provider, cacheTTL time.Duration) *HTTPCapability {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPCapability{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cacheProvider,
		cacheTTL:   cacheTTL,
	}
}

// Annotate sends text to the NER service and returns category → surface
// string groupings.
func (c *HTTPCapability) Annotate(ctx context.Context, text string) (map[string][]string, error) {
	if c == nil || c.endpoint == "" {
		return nil, fmt.Errorf("ner endpoint not configured")
	}
	if len(text) > maxAnnotateInput {
		// Never cut mid-rune: the service expects valid UTF-8.
		cut := maxAnnotateInput
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	key := annotationCacheKey(text)
	if data, err := c.cache.Get(ctx, key); err == nil {
		var cached map[string][]string
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal annotate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/annotate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ner service returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var response struct {
		Entities map[string][]string `json:"entities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode annotate response: %w", err)
	}

	if data, err := json.Marshal(response.Entities); err == nil {
		_ = c.cache.Set(ctx, key, data, c.cacheTTL)
	}
	return response.Entities, nil
}

func annotationCacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "ner:" + hex.EncodeToString(sum[:])
}
