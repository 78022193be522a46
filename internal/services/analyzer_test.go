package services

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/Divyansh2602/pdf-agent/internal/domain"
)

func TestAnalyzeStructureMarkdown(t *testing.T) {
	content := `# My Paper

## Abstract

A short summary.

## Methods

Details here.

## References

[1] Someone, 2024.
`
	report := AnalyzeStructure(content, domain.FormatMarkdown)

	want := []string{"My Paper", "Abstract", "Methods", "References"}
	if !reflect.DeepEqual(report.Headings, want) {
		t.Fatalf("headings = %v, want %v", report.Headings, want)
	}
	if report.HeadingCount != 4 {
		t.Fatalf("heading count = %d, want 4", report.HeadingCount)
	}
	if !report.HasAbstract {
		t.Fatalf("expected abstract to be detected")
	}
	if !report.HasReferences {
		t.Fatalf("expected references to be detected")
	}
}

func TestAnalyzeStructureLatex(t *testing.T) {
	content := `\documentclass{article}
\begin{document}
\begin{abstract}
Summary.
\end{abstract}
\section{Introduction}
\subsection{Background}
Some text.
\bibliography{refs}
\end{document}
`
	report := AnalyzeStructure(content, domain.FormatLatex)

	want := []string{"Introduction", "Background"}
	if !reflect.DeepEqual(report.Headings, want) {
		t.Fatalf("headings = %v, want %v", report.Headings, want)
	}
	if !report.HasAbstract {
		t.Fatalf("expected abstract environment to be detected")
	}
	if !report.HasReferences {
		t.Fatalf("expected bibliography to be detected")
	}
}

func TestAnalyzeStructureEmpty(t *testing.T) {
	report := AnalyzeStructure("plain text without sections", domain.FormatMarkdown)
	if report.HeadingCount != 0 || report.HasAbstract || report.HasReferences {
		t.Fatalf("unexpected report for plain text: %+v", report)
	}
}

func TestAnalyzerAnalyze(t *testing.T) {
	var payload struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	openai := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(completionResponse("This looks like a research paper.", 55))
	})

	analyzer := NewAnalyzer(openai, "gpt-3.5-turbo")
	analysis, err := analyzer.Analyze(context.Background(), "# My Paper\n\n## Abstract\n\nText.", domain.FormatMarkdown)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if analysis.Text != "This looks like a research paper." {
		t.Fatalf("unexpected analysis text: %q", analysis.Text)
	}
	if !analysis.Structure.HasAbstract {
		t.Fatalf("structure report missing abstract")
	}
	if payload.Model != "gpt-3.5-turbo" {
		t.Fatalf("unexpected model: %q", payload.Model)
	}
	if payload.MaxTokens != 1000 {
		t.Fatalf("unexpected max tokens: %d", payload.MaxTokens)
	}
}

func TestAnalyzerEnhanceUsesTemplateProfile(t *testing.T) {
	var userPrompt string
	openai := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		for _, msg := range payload.Messages {
			if msg.Role == "user" {
				userPrompt = msg.Content
			}
		}
		json.NewEncoder(w).Encode(completionResponse("enhanced body", 10))
	})

	analyzer := NewAnalyzer(openai, "gpt-3.5-turbo")
	enhanced, err := analyzer.Enhance(context.Background(), "# Draft", domain.FormatMarkdown, "ieee")
	if err != nil {
		t.Fatalf("enhance: %v", err)
	}
	if enhanced != "enhanced body" {
		t.Fatalf("unexpected enhanced content: %q", enhanced)
	}
	if !strings.Contains(userPrompt, TemplateProfiles["ieee"].Name) {
		t.Fatalf("prompt does not mention template display name: %q", userPrompt)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abcd" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("truncate short = %q", got)
	}
}
