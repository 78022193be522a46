package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Divyansh2602/pdf-agent/internal/config"
	"github.com/Divyansh2602/pdf-agent/internal/domain"
)

const requestTimeout = 2 * time.Minute

type OpenAIService struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int64
	httpClient  *http.Client
}

func NewOpenAIService(cfg config.Config) *OpenAIService {
	return &OpenAIService{
		apiKey:      cfg.OpenAIAPIKey,
		baseURL:     strings.TrimSuffix(cfg.OpenAIBaseURL, "/"),
		model:       cfg.OpenAIModel,
		temperature: cfg.OpenAITemperature,
		maxTokens:   cfg.OpenAIMaxTokens,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// CompletionParams overrides the configured defaults for one call.
type CompletionParams struct {
	Model     string
	MaxTokens int64
}

// Completion is one chat response plus its token accounting.
type Completion struct {
	Content    string
	Model      string
	TokensUsed int64
}

// Complete requests a single chat completion with the given system and user
// messages.
func (s *OpenAIService) Complete(ctx context.Context, system, user string, params CompletionParams) (Completion, error) {
	if err := s.ensureAPIKey(); err != nil {
		return Completion{}, err
	}

	model := params.Model
	if model == "" {
		model = s.model
	}
	maxTokens := params.MaxTokens
	if maxTokens == 0 {
		maxTokens = s.maxTokens
	}

	payload := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": s.temperature,
		"max_tokens":  maxTokens,
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return Completion{}, fmt.Errorf("encode completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", buf)
	if err != nil {
		return Completion{}, fmt.Errorf("create completion request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.do(req)
	if err != nil {
		return Completion{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Completion{}, s.decodeAPIError(resp)
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int64 `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return Completion{}, fmt.Errorf("decode completion response: %w", err)
	}

	if len(response.Choices) == 0 {
		return Completion{}, domain.Errorf(domain.KindExternalService, "openai", "no completion returned")
	}

	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return Completion{}, domain.Errorf(domain.KindExternalService, "openai", "empty completion returned")
	}

	return Completion{
		Content:    content,
		Model:      model,
		TokensUsed: response.Usage.TotalTokens,
	}, nil
}

// do relies on the client timeout, which also bounds the body read.
func (s *OpenAIService) do(req *http.Request) (*http.Response, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewPipelineError(domain.KindExternalService, "openai", fmt.Errorf("openai request failed: %w", err))
	}

	return resp, nil
}

func (s *OpenAIService) decodeAPIError(resp *http.Response) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewBuffer(body))

	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return domain.Errorf(domain.KindExternalService, "openai",
			"openai api error: status %d type %s message %s", resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
	}

	return domain.Errorf(domain.KindExternalService, "openai",
		"openai api error: status %d body %s", resp.StatusCode, string(body))
}

func (s *OpenAIService) ensureAPIKey() error {
	if strings.TrimSpace(s.apiKey) == "" {
		return domain.NewPipelineError(domain.KindConfiguration, "openai", errors.New("openai api key is not configured"))
	}
	return nil
}
