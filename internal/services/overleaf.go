package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/Divyansh2602/pdf-agent/internal/config"
	"github.com/Divyansh2602/pdf-agent/internal/domain"
)

// OverleafService compiles a LaTeX project through the Overleaf API as the
// alternate render path. Any failure here is a signal to fall back to pandoc.
type OverleafService struct {
	apiURL     string
	apiKey     string
	projectID  string
	httpClient *http.Client
}

func NewOverleafService(cfg config.Config) *OverleafService {
	return &OverleafService{
		apiURL:     strings.TrimSuffix(cfg.OverleafAPIURL, "/"),
		apiKey:     cfg.OverleafAPIKey,
		projectID:  cfg.OverleafProjectID,
		httpClient: &http.Client{Timeout: cfg.OverleafTimeout},
	}
}

// Compile triggers a project compile and downloads the resulting PDF to
// outputPath.
func (s *OverleafService) Compile(ctx context.Context, outputPath string) error {
	if strings.TrimSpace(s.apiKey) == "" || strings.TrimSpace(s.projectID) == "" {
		return domain.NewPipelineError(domain.KindConfiguration, "overleaf", errors.New("overleaf api key or project id is not configured"))
	}

	compileURL := fmt.Sprintf("%s/projects/%s/compile", s.apiURL, s.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, compileURL, nil)
	if err != nil {
		return fmt.Errorf("create compile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.NewPipelineError(domain.KindExternalService, "overleaf", fmt.Errorf("overleaf compile request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.Errorf(domain.KindExternalService, "overleaf", "overleaf compile failed: status %d body %s", resp.StatusCode, string(body))
	}

	var payload struct {
		PDFURL string `json:"pdf_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode compile response: %w", err)
	}
	if payload.PDFURL == "" {
		return domain.Errorf(domain.KindExternalService, "overleaf", "overleaf compile returned no pdf url")
	}

	return s.download(ctx, payload.PDFURL, outputPath)
}

func (s *OverleafService) download(ctx context.Context, pdfURL, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return fmt.Errorf("create pdf request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.NewPipelineError(domain.KindExternalService, "overleaf", fmt.Errorf("overleaf pdf download failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Errorf(domain.KindExternalService, "overleaf", "overleaf pdf download failed: status %d", resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create pdf file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("write pdf file: %w", err)
	}

	return nil
}
