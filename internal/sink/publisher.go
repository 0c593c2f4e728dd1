package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/mongopulse/anomaly-engine/internal/metrics"
	"github.com/mongopulse/anomaly-engine/internal/models"
)

// Publisher delivers analysis results to the downstream API over HTTP POST.
// Delivery is best-effort and at-most-once: failures are logged, counted,
// and reported to the caller as false, never raised.
type Publisher struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewPublisher constructs a publisher targeting baseURL+logsPath.
func NewPublisher(baseURL, logsPath string, timeout time.Duration, logger *slog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		endpoint:   resolveEndpoint(baseURL, logsPath),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Publish POSTs the result as JSON and reports whether the sink accepted it
// with a 2xx status.
func (p *Publisher) Publish(ctx context.Context, result models.AnalysisResult) bool {
	ok := p.post(ctx, result)
	metrics.ObservePublish(ok)
	return ok
}

func (p *Publisher) post(ctx context.Context, result models.AnalysisResult) bool {
	if p.endpoint == "" {
		p.logger.Warn("sink endpoint not configured, dropping result")
		return false
	}

	body, err := json.Marshal(result)
	if err != nil {
		p.logger.Error("marshal result", slog.Any("error", err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		p.logger.Error("build sink request", slog.Any("error", err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("sink POST failed", slog.Any("error", err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Warn("sink rejected result", slog.String("status", resp.Status))
		return false
	}
	return true
}

func resolveEndpoint(baseURL, logsPath string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(logsPath, "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}
