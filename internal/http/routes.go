package http

import (
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Divyansh2602/pdf-agent/internal/config"
	"github.com/Divyansh2602/pdf-agent/internal/domain"
	"github.com/Divyansh2602/pdf-agent/internal/pipeline"
	"github.com/Divyansh2602/pdf-agent/internal/services"
	"github.com/Divyansh2602/pdf-agent/internal/storage"
)

type API struct {
	cfg      config.Config
	files    *storage.FileManager
	store    *storage.Store
	pipeline *pipeline.Pipeline
	refiner  *services.StyleRefiner
	analyzer *services.Analyzer
	report   *services.ReportService
	share    *services.ShareService
}

func NewAPI(cfg config.Config, fm *storage.FileManager, store *storage.Store, conv *pipeline.Pipeline, refiner *services.StyleRefiner, analyzer *services.Analyzer, report *services.ReportService, share *services.ShareService) *API {
	return &API{cfg: cfg, files: fm, store: store, pipeline: conv, refiner: refiner, analyzer: analyzer, report: report, share: share}
}

func registerRoutes(r *gin.Engine, api *API) {
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", api.handleHealth)

		apiGroup.POST("/upload", api.handleUpload)
		apiGroup.POST("/convert", api.handleConvert)
		apiGroup.POST("/convert-with-refinement", api.handleConvertWithRefinement)
		apiGroup.POST("/refine-writing", api.handleRefineWriting)
		apiGroup.POST("/analyze", api.handleAnalyze)
		apiGroup.POST("/enhance", api.handleEnhance)

		apiGroup.GET("/templates", api.handleTemplates)
		apiGroup.GET("/session/:id", api.handleGetSession)
		apiGroup.GET("/session/:id/report", api.handleSessionReport)
		apiGroup.GET("/updates", api.handleUpdates)
		apiGroup.POST("/updates/dismiss", api.handleDismissUpdate)
		apiGroup.GET("/config", api.handleConfig)

		apiGroup.GET("/jobs/:id", api.handleGetJob)
		apiGroup.POST("/jobs/:id/share", api.handleShareArtifact)
		apiGroup.GET("/events", api.handleEvents)
		apiGroup.GET("/download/:filename", api.handleDownload)
	}

	r.GET("/artifacts/:filename", api.handleServeArtifact)
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "no file provided")
		return
	}

	session, err := a.store.GetOrCreateSession(c.PostForm("session_id"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	upload, err := fileHeader.Open()
	if err != nil {
		log.Printf("error opening upload: %v", err)
		respondMessage(c, http.StatusInternalServerError, "unable to read uploaded file")
		return
	}
	defer upload.Close()

	path, format, err := a.files.SaveUploadedDocument(upload, fileHeader.Filename)
	if err != nil {
		log.Printf("error saving uploaded document: %v", err)
		respondMessage(c, http.StatusBadRequest, err.Error())
		return
	}

	file := domain.SessionFile{
		Filename:     filepath.Base(path),
		OriginalName: fileHeader.Filename,
		Path:         path,
		Format:       format,
		UploadedAt:   time.Now().Unix(),
		Status:       "uploaded",
	}
	if err := a.store.AddFile(session.ID, file); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	log.Printf("uploaded %s (%s) to session %s", file.Filename, format, session.ID)

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"session_id": session.ID,
		"file":       file,
	})
}

type conversionOptionsDTO struct {
	JournalTemplate string `json:"journal_template"`
	UseOverleaf     bool   `json:"use_overleaf"`
	SendEmail       *bool  `json:"send_email"`
	TriggerWebhook  *bool  `json:"trigger_webhook"`
	EmailRecipient  string `json:"email_recipient"`
}

// toDomain applies the documented defaults: email and webhook delivery are
// on unless the request turns them off.
func (d conversionOptionsDTO) toDomain() domain.ConversionOptions {
	opts := domain.ConversionOptions{
		JournalTemplate: d.JournalTemplate,
		UseOverleaf:     d.UseOverleaf,
		SendEmail:       true,
		TriggerWebhook:  true,
		EmailRecipient:  d.EmailRecipient,
	}
	if d.SendEmail != nil {
		opts.SendEmail = *d.SendEmail
	}
	if d.TriggerWebhook != nil {
		opts.TriggerWebhook = *d.TriggerWebhook
	}
	return opts
}

type convertPayload struct {
	SessionID    string               `json:"session_id" binding:"required"`
	Filename     string               `json:"filename" binding:"required"`
	JournalStyle string               `json:"journal_style"`
	Options      conversionOptionsDTO `json:"options"`
}

func (a *API) handleConvert(c *gin.Context) {
	a.submitConversion(c, false)
}

func (a *API) handleConvertWithRefinement(c *gin.Context) {
	a.submitConversion(c, true)
}

func (a *API) submitConversion(c *gin.Context, withRefinement bool) {
	var payload convertPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondMessage(c, http.StatusBadRequest, "session_id and filename required")
		return
	}

	file, err := a.store.FindFile(payload.SessionID, payload.Filename)
	if err != nil {
		respondMessage(c, http.StatusNotFound, err.Error())
		return
	}

	opts := payload.Options.toDomain()
	if withRefinement {
		style := payload.JournalStyle
		if style == "" {
			style = services.DefaultJournalStyle
		}
		opts.JournalStyle = style
	}

	file.Status = domain.JobStateProcessing
	if err := a.store.UpdateFile(payload.SessionID, file); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	req := domain.ConversionRequest{
		SessionID: payload.SessionID,
		Filename:  file.Filename,
		Path:      file.Path,
		Format:    file.Format,
		Options:   opts,
	}
	job := a.pipeline.Submit(req)
	log.Printf("conversion %s submitted for %s (session %s)", job.RequestID, file.Filename, payload.SessionID)

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Conversion started",
		"session_id": payload.SessionID,
		"request_id": job.RequestID,
	})
}

type filePayload struct {
	SessionID string `json:"session_id" binding:"required"`
	Filename  string `json:"filename" binding:"required"`
}

func (a *API) handleRefineWriting(c *gin.Context) {
	var payload struct {
		filePayload
		JournalStyle string `json:"journal_style"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondMessage(c, http.StatusBadRequest, "session_id and filename required")
		return
	}

	file, err := a.store.FindFile(payload.SessionID, payload.Filename)
	if err != nil {
		respondMessage(c, http.StatusNotFound, err.Error())
		return
	}

	content, err := os.ReadFile(file.Path)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	refinement, err := a.refiner.Refine(c.Request.Context(), string(content), file.Format, payload.JournalStyle)
	if err != nil {
		log.Printf("writing refinement failed: %v", err)
		respondMessage(c, statusForError(err), err.Error())
		return
	}

	refinedPath, err := a.files.SaveDerived("refined", file.Path, refinement.JournalStyle, refinement.Content)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	refined := domain.SessionFile{
		Filename:     filepath.Base(refinedPath),
		OriginalName: "Refined_" + file.OriginalName,
		Path:         refinedPath,
		Format:       file.Format,
		UploadedAt:   time.Now().Unix(),
		Status:       "uploaded",
		RefinedFrom:  file.Filename,
		JournalStyle: refinement.JournalStyle,
	}
	if err := a.store.AddFile(payload.SessionID, refined); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"refined_filename": refined.Filename,
		"refinement": gin.H{
			"journal_style": refinement.JournalStyle,
			"file_type":     refinement.Format,
			"model_used":    refinement.Model,
			"tokens_used":   refinement.TokensUsed,
			"timestamp":     refinement.RefinedAt.Format(time.RFC3339),
		},
	})
}

func (a *API) handleAnalyze(c *gin.Context) {
	var payload filePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondMessage(c, http.StatusBadRequest, "session_id and filename required")
		return
	}

	file, err := a.store.FindFile(payload.SessionID, payload.Filename)
	if err != nil {
		respondMessage(c, http.StatusNotFound, err.Error())
		return
	}

	content, err := os.ReadFile(file.Path)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	ctx := c.Request.Context()
	analysis, err := a.analyzer.Analyze(ctx, string(content), file.Format)
	if err != nil {
		log.Printf("analysis failed: %v", err)
		respondMessage(c, statusForError(err), err.Error())
		return
	}

	recommendations, err := a.analyzer.Recommend(ctx, string(content), file.Format)
	if err != nil {
		log.Printf("recommendation failed: %v", err)
		recommendations = ""
	}

	if err := a.store.SetAnalysis(payload.SessionID, file.Filename, analysis.Text, recommendations); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"analysis":        analysis,
		"recommendations": recommendations,
	})
}

func (a *API) handleEnhance(c *gin.Context) {
	var payload struct {
		filePayload
		JournalTemplate string `json:"journal_template"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondMessage(c, http.StatusBadRequest, "session_id and filename required")
		return
	}
	if payload.JournalTemplate == "" {
		payload.JournalTemplate = "ieee"
	}

	file, err := a.store.FindFile(payload.SessionID, payload.Filename)
	if err != nil {
		respondMessage(c, http.StatusNotFound, err.Error())
		return
	}

	content, err := os.ReadFile(file.Path)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	enhanced, err := a.analyzer.Enhance(c.Request.Context(), string(content), file.Format, payload.JournalTemplate)
	if err != nil {
		log.Printf("enhancement failed: %v", err)
		respondMessage(c, statusForError(err), err.Error())
		return
	}

	enhancedPath, err := a.files.SaveDerived("enhanced", file.Path, "", enhanced)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	enhancedFile := domain.SessionFile{
		Filename:     filepath.Base(enhancedPath),
		OriginalName: "Enhanced_" + file.OriginalName,
		Path:         enhancedPath,
		Format:       file.Format,
		UploadedAt:   time.Now().Unix(),
		Status:       "uploaded",
		EnhancedFrom: file.Filename,
	}
	if err := a.store.AddFile(payload.SessionID, enhancedFile); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"enhanced_filename": enhancedFile.Filename,
		"journal_template":  payload.JournalTemplate,
	})
}

func (a *API) handleTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, services.TemplateProfiles)
}

func (a *API) handleGetSession(c *gin.Context) {
	session, err := a.store.GetSession(c.Param("id"))
	if err != nil {
		respondMessage(c, http.StatusNotFound, "session not found")
		return
	}
	c.JSON(http.StatusOK, session)
}

func (a *API) handleSessionReport(c *gin.Context) {
	session, err := a.store.GetSession(c.Param("id"))
	if err != nil {
		respondMessage(c, http.StatusNotFound, "session not found")
		return
	}

	outPath := a.files.ArtifactPath("analysis_report", time.Now())
	if err := a.report.Generate(session, outPath); err != nil {
		respondMessage(c, http.StatusBadRequest, err.Error())
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.FileAttachment(outPath, filepath.Base(outPath))
}

func (a *API) handleUpdates(c *gin.Context) {
	c.JSON(http.StatusOK, domain.UpdateNotifications)
}

func (a *API) handleDismissUpdate(c *gin.Context) {
	var payload struct {
		SessionID string `json:"session_id" binding:"required"`
		UpdateID  string `json:"update_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondMessage(c, http.StatusBadRequest, "session_id and update_id required")
		return
	}

	if err := a.store.DismissUpdate(payload.SessionID, payload.UpdateID); err != nil {
		respondMessage(c, http.StatusNotFound, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleConfig exposes which integrations are configured without leaking any
// credential.
func (a *API) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"openai_configured":   a.cfg.OpenAIAPIKey != "",
		"overleaf_configured": a.cfg.OverleafAPIKey != "" && a.cfg.OverleafProjectID != "",
		"email_configured":    a.cfg.SMTPUsername != "" && a.cfg.SMTPPassword != "" && a.cfg.SMTPTo != "",
		"webhook_configured":  a.cfg.WebhookURL != "",
		"pandoc_engine":       a.cfg.PandocEngine,
		"journal_styles":      services.JournalStyles(),
	})
}

func (a *API) handleGetJob(c *gin.Context) {
	job, err := a.pipeline.Tracker().Get(c.Param("id"))
	if err != nil {
		respondMessage(c, http.StatusNotFound, "job not found")
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleEvents streams conversion progress as server-sent events, optionally
// filtered to one session.
func (a *API) handleEvents(c *gin.Context) {
	sessionFilter := c.Query("session_id")

	events := make(chan pipeline.Event, 16)
	unsubscribe := a.pipeline.Tracker().Subscribe(func(ev pipeline.Event) {
		if sessionFilter != "" && ev.SessionID != sessionFilter {
			return
		}
		select {
		case events <- ev:
		default:
			log.Printf("event stream backlogged, dropping event for %s", ev.RequestID)
		}
	})
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case ev := <-events:
			c.SSEvent("conversion_status", ev)
			return true
		}
	})
}

func (a *API) handleDownload(c *gin.Context) {
	path, err := a.files.ResolveArtifact(c.Param("filename"))
	if err != nil {
		respondMessage(c, http.StatusNotFound, "file not found")
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.FileAttachment(path, filepath.Base(path))
}

func (a *API) handleShareArtifact(c *gin.Context) {
	job, err := a.pipeline.Tracker().Get(c.Param("id"))
	if err != nil {
		respondMessage(c, http.StatusNotFound, "job not found")
		return
	}

	if job.State != domain.JobStateCompleted || job.ArtifactPath == "" {
		respondMessage(c, http.StatusBadRequest, "no artifact available for this job")
		return
	}

	url, expiresAt, err := a.share.Generate(filepath.Base(job.ArtifactPath))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url, "expiresAt": expiresAt.UTC()})
}

func (a *API) handleServeArtifact(c *gin.Context) {
	expiresParam := c.Query("exp")
	signature := c.Query("sig")

	if expiresParam == "" || signature == "" {
		respondMessage(c, http.StatusBadRequest, "missing signature")
		return
	}

	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid expiration")
		return
	}

	if expires < time.Now().Unix() {
		respondMessage(c, http.StatusGone, "link expired")
		return
	}

	path := c.Request.URL.Path
	if !a.share.Validate(path, expires, signature) {
		respondMessage(c, http.StatusForbidden, "invalid signature")
		return
	}

	artifactPath, err := a.files.ResolveArtifact(c.Param("filename"))
	if err != nil {
		respondMessage(c, http.StatusNotFound, "artifact not found")
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.FileAttachment(artifactPath, filepath.Base(artifactPath))
}

func statusForError(err error) int {
	switch domain.ErrKind(err) {
	case domain.KindConfiguration:
		return http.StatusBadRequest
	case domain.KindExternalService:
		return http.StatusBadGateway
	case domain.KindInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
