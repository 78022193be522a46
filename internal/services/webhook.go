package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Divyansh2602/pdf-agent/internal/config"
	"github.com/Divyansh2602/pdf-agent/internal/domain"
)

// WebhookService notifies a downstream automation endpoint about a finished
// artifact. Like email, a missing endpoint means the feature is skipped.
type WebhookService struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewWebhookService(cfg config.Config) *WebhookService {
	return &WebhookService{
		url:        cfg.WebhookURL,
		apiKey:     cfg.WebhookAPIKey,
		httpClient: &http.Client{Timeout: cfg.WebhookTimeout},
	}
}

func (s *WebhookService) Configured() bool {
	return strings.TrimSpace(s.url) != ""
}

// Notify posts the artifact reference and its conversion metadata. The
// returned warning is non-empty when the call was skipped or failed; a
// non-200 response is a warning, not a fault.
func (s *WebhookService) Notify(ctx context.Context, artifactPath string, meta domain.ConversionMetadata) (sent bool, warning string) {
	if !s.Configured() {
		return false, "webhook url not configured, skipping webhook"
	}

	payload := map[string]any{
		"pdf_file":  artifactPath,
		"metadata":  meta,
		"timestamp": time.Now().Format(time.RFC3339),
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return false, fmt.Sprintf("webhook payload encode failed: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, buf)
	if err != nil {
		return false, fmt.Sprintf("webhook request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Sprintf("webhook request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Sprintf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return true, ""
}
