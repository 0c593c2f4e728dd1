package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mongopulse/anomaly-engine/internal/models"
)

func sampleResult() models.AnalysisResult {
	errorType := "Authentication"
	return models.AnalysisResult{
		Log:          models.LogRecord{"severity": "E", "msg": "authentication failed"},
		IsAnomaly:    true,
		AnomalyScore: -0.1234,
		Reason:       "Authentication events are monitored for security.",
		Entities: models.Entities{
			IPs:       []string{"10.0.0.5:443"},
			ErrorType: &errorType,
			Entities:  map[string][]string{},
		},
		ModelUsed: true,
	}
}

func TestPublishSuccess(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/logs" {
			t.Errorf("path = %s, want /api/logs", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	publisher := NewPublisher(server.URL, "/api/logs", time.Second, nil)
	if !publisher.Publish(context.Background(), sampleResult()) {
		t.Fatal("Publish = false, want true for 2xx")
	}

	// The wire payload carries plain JSON types under the contract keys.
	if _, ok := payload["is_anomaly"].(bool); !ok {
		t.Errorf("is_anomaly is %T, want bool", payload["is_anomaly"])
	}
	if _, ok := payload["anomaly_score"].(float64); !ok {
		t.Errorf("anomaly_score is %T, want number", payload["anomaly_score"])
	}
	for _, key := range []string{"log", "reason", "entities", "model_used"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("payload missing key %q", key)
		}
	}
}

func TestPublishNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	publisher := NewPublisher(server.URL, "/api/logs", time.Second, nil)
	if publisher.Publish(context.Background(), sampleResult()) {
		t.Fatal("Publish = true, want false for 500")
	}
}

func TestPublishUnreachable(t *testing.T) {
	publisher := NewPublisher("http://127.0.0.1:1", "/api/logs", 200*time.Millisecond, nil)
	if publisher.Publish(context.Background(), sampleResult()) {
		t.Fatal("Publish = true, want false when sink is unreachable")
	}
}
