// Command mock-sink is a local stand-in for the backend API: it accepts
// analysis results on POST /api/logs and logs a one-line summary. Set
// MOCK_SINK_FAIL=1 to answer 500 on every request and exercise the
// engine's failed-publish path.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
)

type analysisResult struct {
	Log          map[string]any `json:"log"`
	IsAnomaly    bool           `json:"is_anomaly"`
	AnomalyScore float64        `json:"anomaly_score"`
	Reason       string         `json:"reason"`
	ModelUsed    bool           `json:"model_used"`
}

func main() {
	addr := os.Getenv("MOCK_SINK_ADDR")
	if addr == "" {
		addr = ":3001"
	}
	fail := os.Getenv("MOCK_SINK_FAIL") == "1"

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/logs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if fail {
			http.Error(w, "injected failure", http.StatusInternalServerError)
			return
		}

		var result analysisResult
		if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}

		msg, _ := result.Log["msg"].(string)
		log.Printf("received result: anomaly=%t score=%.4f model_used=%t msg=%q",
			result.IsAnomaly, result.AnomalyScore, result.ModelUsed, msg)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"stored"}`))
	})

	log.Printf("mock sink listening on %s (fail=%t)", addr, fail)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}
