package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"

	"github.com/Divyansh2602/pdf-agent/internal/domain"
)

const analysisContentLimit = 4000

// Analyzer runs the academic content analysis, journal recommendation and
// enhancement calls against the language-model service.
type Analyzer struct {
	openai        *OpenAIService
	analysisModel string
}

func NewAnalyzer(openai *OpenAIService, analysisModel string) *Analyzer {
	return &Analyzer{openai: openai, analysisModel: analysisModel}
}

type Analysis struct {
	Text       string          `json:"analysis"`
	Structure  StructureReport `json:"structure"`
	AnalyzedAt time.Time       `json:"timestamp"`
}

// StructureReport is a local inventory of the document's sections, computed
// without any external call.
type StructureReport struct {
	HeadingCount  int      `json:"headingCount"`
	Headings      []string `json:"headings"`
	HasAbstract   bool     `json:"hasAbstract"`
	HasReferences bool     `json:"hasReferences"`
}

// Analyze asks the model for a document-type and formatting assessment and
// attaches the locally computed structure report.
func (a *Analyzer) Analyze(ctx context.Context, content, format string) (Analysis, error) {
	prompt := fmt.Sprintf(`Analyze this %s academic document and provide:
1. Document type (research paper, conference paper, journal article, etc.)
2. Suggested journal templates
3. Content structure analysis
4. Missing elements (abstract, keywords, references, etc.)
5. Formatting recommendations
6. Academic writing improvements

Content:
%s`, format, truncate(content, analysisContentLimit))

	completion, err := a.openai.Complete(ctx,
		"You are an expert academic writing assistant specializing in journal formatting and academic publishing standards.",
		prompt,
		CompletionParams{Model: a.analysisModel, MaxTokens: 1000})
	if err != nil {
		return Analysis{}, err
	}

	return Analysis{
		Text:       completion.Content,
		Structure:  AnalyzeStructure(content, format),
		AnalyzedAt: time.Now(),
	}, nil
}

// Recommend asks the model for the most suitable journal template.
func (a *Analyzer) Recommend(ctx context.Context, content, format string) (string, error) {
	prompt := fmt.Sprintf(`Based on this %s academic content, recommend the most suitable journal templates from:
- IEEE (for computer science, engineering)

Provide:
1. Top 1 recommended template
2. Reasoning for the recommendation
3. Specific formatting requirements

Content:
%s`, format, truncate(content, analysisContentLimit))

	completion, err := a.openai.Complete(ctx,
		"You are an expert in academic publishing and journal formatting standards.",
		prompt,
		CompletionParams{Model: a.analysisModel, MaxTokens: 800})
	if err != nil {
		return "", err
	}
	return completion.Content, nil
}

// Enhance rewrites content toward a named journal template, returning the
// enhanced document body.
func (a *Analyzer) Enhance(ctx context.Context, content, format, templateName string) (string, error) {
	profile, ok := TemplateProfiles[templateName]
	displayName := templateName
	if ok {
		displayName = profile.Name
	}

	prompt := fmt.Sprintf(`Enhance this %s academic content for %s format:

1. Ensure proper academic structure
2. Add missing sections if needed (abstract, keywords, etc.)
3. Improve academic writing style
4. Ensure proper citation format
5. Add appropriate LaTeX formatting for %s

Current content:
%s

Return the enhanced content in the same format (%s).`, format, displayName, templateName, content, format)

	completion, err := a.openai.Complete(ctx,
		fmt.Sprintf("You are an expert academic writing assistant specializing in %s formatting.", displayName),
		prompt,
		CompletionParams{Model: a.analysisModel, MaxTokens: 2000})
	if err != nil {
		return "", err
	}
	return completion.Content, nil
}

// AnalyzeStructure walks the document for headings and the usual academic
// sections. Markdown goes through the gomarkdown AST; LaTeX is scanned for
// sectioning commands.
func AnalyzeStructure(content, format string) StructureReport {
	report := StructureReport{}

	switch format {
	case domain.FormatMarkdown:
		p := parser.NewWithExtensions(parser.CommonExtensions)
		doc := p.Parse([]byte(content))
		ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
			if heading, ok := node.(*ast.Heading); ok && entering {
				text := headingText(heading)
				if text != "" {
					report.Headings = append(report.Headings, text)
				}
			}
			return ast.GoToNext
		})
	case domain.FormatLatex:
		for _, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			for _, cmd := range []string{`\section{`, `\subsection{`, `\chapter{`} {
				if strings.HasPrefix(line, cmd) {
					title := strings.TrimPrefix(line, cmd)
					if end := strings.Index(title, "}"); end >= 0 {
						report.Headings = append(report.Headings, title[:end])
					}
				}
			}
		}
		if strings.Contains(content, `\begin{abstract}`) {
			report.HasAbstract = true
		}
		if strings.Contains(content, `\bibliography`) || strings.Contains(content, `\begin{thebibliography}`) {
			report.HasReferences = true
		}
	}

	report.HeadingCount = len(report.Headings)
	for _, heading := range report.Headings {
		switch strings.ToLower(heading) {
		case "abstract":
			report.HasAbstract = true
		case "references", "bibliography":
			report.HasReferences = true
		}
	}
	return report
}

func headingText(heading *ast.Heading) string {
	var sb strings.Builder
	ast.WalkFunc(heading, func(node ast.Node, entering bool) ast.WalkStatus {
		if leaf := node.AsLeaf(); leaf != nil && entering {
			sb.Write(leaf.Literal)
		}
		return ast.GoToNext
	})
	return strings.TrimSpace(sb.String())
}

func truncate(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	return content[:limit]
}
