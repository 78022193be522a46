package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Divyansh2602/pdf-agent/internal/config"
	"github.com/Divyansh2602/pdf-agent/internal/domain"
)

// TemplateProfile bundles the rendering flags for one journal layout.
type TemplateProfile struct {
	Name         string   `json:"name"`
	TemplateFile string   `json:"template"`
	ExtraOptions []string `json:"pandocOptions"`
	Description  string   `json:"description"`
}

var TemplateProfiles = map[string]TemplateProfile{
	"ieee": {
		Name:         "IEEE Conference/Journal",
		TemplateFile: "ieee-template.tex",
		ExtraOptions: []string{"--csl", "ieee.csl"},
		Description:  "IEEE format for conferences and journals",
	},
}

// Renderer converts a source document to PDF through the pandoc binary.
type Renderer struct {
	binary      string
	engine      string
	templateDir string
	timeout     time.Duration
}

func NewRenderer(cfg config.Config) *Renderer {
	return &Renderer{
		binary:      cfg.PandocBinary,
		engine:      cfg.PandocEngine,
		templateDir: cfg.TemplateDir,
		timeout:     cfg.RenderTimeout,
	}
}

// Render invokes pandoc on inputPath. When the invocation fails and a
// template flag was present, one retry runs with the template stripped; the
// common failure mode is a missing or incompatible template file.
func (r *Renderer) Render(ctx context.Context, inputPath, outputPath, format, templateName string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("ensure output directory: %w", err)
	}

	args, hasTemplate := r.buildArgs(inputPath, outputPath, format, templateName, true)

	err := r.runPandoc(ctx, args)
	if err == nil {
		return nil
	}

	if hasTemplate {
		log.Printf("pandoc render with template failed, retrying without template: %v", err)
		args, _ = r.buildArgs(inputPath, outputPath, format, templateName, false)
		if retryErr := r.runPandoc(ctx, args); retryErr == nil {
			return nil
		} else {
			err = retryErr
		}
	}

	return domain.NewPipelineError(domain.KindRender, "render", err)
}

// buildArgs assembles the pandoc command line. The template flag is included
// only when the named template file exists on disk and includeTemplate is
// set; a missing template file is not an error.
func (r *Renderer) buildArgs(inputPath, outputPath, format, templateName string, includeTemplate bool) ([]string, bool) {
	args := []string{
		inputPath,
		"-o", outputPath,
		"--from", pandocSource(format),
		"--pdf-engine", r.engine,
		"--standalone",
		"--toc",
		"-V", "geometry:margin=1in",
		"-V", "fontsize=10pt",
	}

	hasTemplate := false
	if includeTemplate && templateName != "" {
		if profile, ok := TemplateProfiles[templateName]; ok {
			templatePath := filepath.Join(r.templateDir, profile.TemplateFile)
			if _, err := os.Stat(templatePath); err == nil {
				args = append(args, "--template", templatePath)
				args = append(args, profile.ExtraOptions...)
				hasTemplate = true
			} else {
				log.Printf("template file %s not found, rendering without template", templatePath)
			}
		}
	}

	return args, hasTemplate
}

func pandocSource(format string) string {
	if format == domain.FormatLatex {
		return "latex"
	}
	return "markdown"
}

func (r *Renderer) runPandoc(ctx context.Context, args []string) error {
	if _, err := exec.LookPath(r.binary); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", r.binary, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pandoc conversion failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
