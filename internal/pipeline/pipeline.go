package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Divyansh2602/pdf-agent/internal/domain"
	"github.com/Divyansh2602/pdf-agent/internal/services"
	"github.com/Divyansh2602/pdf-agent/internal/storage"
)

const (
	renderPathPandoc   = "pandoc"
	renderPathOverleaf = "overleaf"
)

// Refiner rewrites document prose into a journal style.
type Refiner interface {
	Refine(ctx context.Context, content, format, style string) (services.Refinement, error)
}

// Renderer converts a source file to a PDF at outputPath.
type Renderer interface {
	Render(ctx context.Context, inputPath, outputPath, format, templateName string) error
}

// AlternateRenderer is the cloud compile path tried before the primary
// renderer when a request asks for it.
type AlternateRenderer interface {
	Compile(ctx context.Context, outputPath string) error
}

// EmailSender and WebhookNotifier are the two best-effort distribution
// halves. Both report a warning instead of an error.
type EmailSender interface {
	Send(artifactPath, subject, recipient string) (sent bool, warning string)
}

type WebhookNotifier interface {
	Notify(ctx context.Context, artifactPath string, meta domain.ConversionMetadata) (sent bool, warning string)
}

// Pipeline runs one conversion request through its stages: optional
// refinement, render, best-effort distribution. Stages run sequentially
// within a request; requests run concurrently with each other.
type Pipeline struct {
	refiner  Refiner
	renderer Renderer
	overleaf AlternateRenderer
	mailer   EmailSender
	webhook  WebhookNotifier
	files    *storage.FileManager
	tracker  *Tracker
}

func NewPipeline(refiner Refiner, renderer Renderer, overleaf AlternateRenderer, mailer EmailSender, webhook WebhookNotifier, files *storage.FileManager, tracker *Tracker) *Pipeline {
	return &Pipeline{
		refiner:  refiner,
		renderer: renderer,
		overleaf: overleaf,
		mailer:   mailer,
		webhook:  webhook,
		files:    files,
		tracker:  tracker,
	}
}

func (p *Pipeline) Tracker() *Tracker {
	return p.tracker
}

// Submit registers the job and starts the conversion on its own goroutine.
// The caller gets the queued job back immediately and observes progress via
// the tracker.
func (p *Pipeline) Submit(req domain.ConversionRequest) domain.Job {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	job := p.tracker.Create(req)
	go p.run(req)
	return job
}

// run executes the stage sequence behind a fault barrier: any panic becomes
// a failed transition so one job's crash cannot reach another job or the
// dispatching layer.
func (p *Pipeline) run(req domain.ConversionRequest) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("conversion %s panicked: %v", req.ID, r)
			p.fail(req.ID, fmt.Sprintf("conversion error: %v", r))
		}
	}()

	ctx := context.Background()

	p.transition(req.ID, domain.JobStateProcessing, "Starting conversion...")

	inputPath := req.Path
	format := req.Format

	if style := strings.TrimSpace(req.Options.JournalStyle); style != "" {
		refinedPath, err := p.refineStage(ctx, req, inputPath, format, style)
		if err != nil {
			log.Printf("conversion %s: refinement failed: %v", req.ID, err)
			p.fail(req.ID, err.Error())
			return
		}
		inputPath = refinedPath
	}

	artifact, err := p.renderStage(ctx, req, inputPath, format)
	if err != nil {
		log.Printf("conversion %s: render failed: %v", req.ID, err)
		p.fail(req.ID, err.Error())
		return
	}

	report := p.deliverStage(ctx, req, artifact)
	warnings := report.WarningList()
	for _, warning := range warnings {
		log.Printf("conversion %s: %s", req.ID, warning)
	}

	p.transition(req.ID, domain.JobStateCompleted, "Conversion completed successfully!",
		WithArtifact(artifact.Path), WithWarnings(warnings))
	log.Printf("conversion %s: completed, artifact %s", req.ID, artifact.Path)
}

// refineStage replaces the document content wholesale with the refined text;
// the format never changes.
func (p *Pipeline) refineStage(ctx context.Context, req domain.ConversionRequest, inputPath, format, style string) (string, error) {
	p.transition(req.ID, domain.JobStateProcessing, fmt.Sprintf("Refining writing with %s style...", style))

	content, err := os.ReadFile(inputPath)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}

	refinement, err := p.refiner.Refine(ctx, string(content), format, style)
	if err != nil {
		return "", err
	}

	refinedPath, err := p.files.SaveDerived("refined", inputPath, refinement.JournalStyle, refinement.Content)
	if err != nil {
		return "", err
	}

	return refinedPath, nil
}

// renderStage tries the alternate cloud path first when the request asks for
// it on a LaTeX document; any failure there falls back to pandoc silently
// except for logging.
func (p *Pipeline) renderStage(ctx context.Context, req domain.ConversionRequest, inputPath, format string) (domain.RenderedArtifact, error) {
	p.transition(req.ID, domain.JobStateProcessing, "Converting document to PDF...")

	outputPath := p.files.ArtifactPath(req.Filename, time.Now())
	renderPath := renderPathPandoc

	if req.Options.UseOverleaf && format == domain.FormatLatex && p.overleaf != nil {
		if err := p.overleaf.Compile(ctx, outputPath); err != nil {
			log.Printf("conversion %s: overleaf path failed, falling back to pandoc: %v", req.ID, err)
		} else {
			renderPath = renderPathOverleaf
		}
	}

	if renderPath == renderPathPandoc {
		if err := p.renderer.Render(ctx, inputPath, outputPath, format, req.Options.JournalTemplate); err != nil {
			return domain.RenderedArtifact{}, err
		}
	}

	return domain.RenderedArtifact{
		Path:        outputPath,
		Format:      format,
		RenderPath:  renderPath,
		GeneratedAt: time.Now(),
	}, nil
}

// deliverStage runs the two distribution sub-operations per the request
// flags. Their failures are recorded as warnings and never change the job's
// trajectory.
func (p *Pipeline) deliverStage(ctx context.Context, req domain.ConversionRequest, artifact domain.RenderedArtifact) domain.DeliveryReport {
	report := domain.DeliveryReport{}

	if req.Options.SendEmail {
		stem := strings.TrimSuffix(req.Filename, filepath.Ext(req.Filename))
		subject := fmt.Sprintf("PDF Document: %s", stem)
		report.EmailSent, report.EmailWarning = p.mailer.Send(artifact.Path, subject, req.Options.EmailRecipient)
	}

	if req.Options.TriggerWebhook {
		meta := domain.ConversionMetadata{
			InputFile:  req.Path,
			OutputFile: artifact.Path,
			FileType:   artifact.Format,
			RenderPath: artifact.RenderPath,
			Timestamp:  artifact.GeneratedAt.Format(time.RFC3339),
		}
		report.WebhookSent, report.WebhookWarning = p.webhook.Notify(ctx, artifact.Path, meta)
	}

	return report
}

func (p *Pipeline) transition(requestID, state, message string, opts ...TransitionOption) {
	if err := p.tracker.Transition(requestID, state, message, opts...); err != nil {
		log.Printf("conversion %s: transition error: %v", requestID, err)
	}
}

func (p *Pipeline) fail(requestID, message string) {
	p.transition(requestID, domain.JobStateFailed, message, WithError(message))
}
