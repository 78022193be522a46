package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Divyansh2602/pdf-agent/internal/config"
	"github.com/Divyansh2602/pdf-agent/internal/domain"
	"github.com/Divyansh2602/pdf-agent/internal/pipeline"
	"github.com/Divyansh2602/pdf-agent/internal/services"
	"github.com/Divyansh2602/pdf-agent/internal/storage"
)

// okRenderer stands in for pandoc so conversion tests run without a LaTeX
// toolchain installed.
type okRenderer struct{}

func (okRenderer) Render(ctx context.Context, inputPath, outputPath, format, templateName string) error {
	return os.WriteFile(outputPath, []byte("%PDF"), 0o644)
}

func setupTestServer(t *testing.T) (*gin.Engine, *storage.Store, *storage.FileManager, *pipeline.Tracker) {
	t.Helper()

	tmpDir := t.TempDir()

	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Refined body."}},
			},
			"usage": map[string]any{"total_tokens": 21},
		})
	}))
	t.Cleanup(model.Close)

	cfg := config.Config{
		Port:                "8080",
		BaseURL:             "http://localhost:8080",
		DataDir:             tmpDir,
		OutputDir:           filepath.Join(tmpDir, "output"),
		MaxUploadBytes:      1 * 1024 * 1024,
		OpenAIAPIKey:        "test-key",
		OpenAIBaseURL:       model.URL,
		OpenAIModel:         "gpt-4o-mini",
		OpenAIAnalysisModel: "gpt-3.5-turbo",
		OpenAIMaxTokens:     4000,
		PandocEngine:        "xelatex",
		ShareSecret:         "secret",
		ShareTTL:            time.Minute,
	}

	fm, err := storage.NewFileManager(cfg.DataDir, cfg.OutputDir, cfg.MaxUploadBytes)
	if err != nil {
		t.Fatalf("file manager: %v", err)
	}

	store, err := storage.NewStore(cfg.DataDir)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	openai := services.NewOpenAIService(cfg)
	refiner := services.NewStyleRefiner(openai)
	analyzer := services.NewAnalyzer(openai, cfg.OpenAIAnalysisModel)
	report := services.NewReportService()
	share := services.NewShareService(cfg)

	tracker := pipeline.NewTracker()
	conv := pipeline.NewPipeline(refiner, okRenderer{}, services.NewOverleafService(cfg),
		services.NewMailer(cfg), services.NewWebhookService(cfg), fm, tracker)

	engine := gin.New()
	engine.Use(gin.Recovery())
	api := NewAPI(cfg, fm, store, conv, refiner, analyzer, report, share)
	registerRoutes(engine, api)

	return engine, store, fm, tracker
}

func uploadDocument(t *testing.T, engine *gin.Engine, filename, content string) (sessionID, storedName string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		SessionID string `json:"session_id"`
		File      struct {
			Filename string `json:"filename"`
		} `json:"file"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if body.SessionID == "" || body.File.Filename == "" {
		t.Fatalf("incomplete upload response: %s", rec.Body.String())
	}
	return body.SessionID, body.File.Filename
}

func postJSON(t *testing.T, engine *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func waitForJob(t *testing.T, tracker *pipeline.Tracker, requestID string) domain.Job {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := tracker.Get(requestID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.State == domain.JobStateCompleted || job.State == domain.JobStateFailed {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never finished", requestID)
	return domain.Job{}
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if ok, exists := body["ok"].(bool); !exists || !ok {
		t.Fatalf("expected ok=true, body=%v", body)
	}
}

func TestUploadMissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] == nil {
		t.Fatalf("expected error message in response")
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _, _, _ := setupTestServer(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("file", "binary.exe")
	part.Write([]byte("nope"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestConvertFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, store, _, tracker := setupTestServer(t)

	sessionID, filename := uploadDocument(t, engine, "paper.md", "# Paper\n\nBody text.")

	rec := postJSON(t, engine, "/api/convert", map[string]any{
		"session_id": sessionID,
		"filename":   filename,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("convert: expected 200, got %d body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode convert response: %v", err)
	}
	if body.RequestID == "" {
		t.Fatalf("expected request_id in response")
	}

	job := waitForJob(t, tracker, body.RequestID)
	if job.State != domain.JobStateCompleted {
		t.Fatalf("job state = %q, detail %q", job.State, job.ErrorDetail)
	}
	if _, err := os.Stat(job.ArtifactPath); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}

	// Email and webhook are unconfigured here, so both deliveries surface
	// as warnings on a completed job.
	if len(job.Warnings) != 2 {
		t.Fatalf("warnings = %v", job.Warnings)
	}

	file, err := store.FindFile(sessionID, filename)
	if err != nil {
		t.Fatalf("find file: %v", err)
	}
	if file.Status != domain.JobStateProcessing {
		t.Fatalf("session file status = %q", file.Status)
	}

	jobReq := httptest.NewRequest(http.MethodGet, "/api/jobs/"+body.RequestID, nil)
	jobRec := httptest.NewRecorder()
	engine.ServeHTTP(jobRec, jobReq)
	if jobRec.Code != http.StatusOK {
		t.Fatalf("get job: expected 200, got %d", jobRec.Code)
	}
	var fetched domain.Job
	if err := json.Unmarshal(jobRec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if fetched.State != domain.JobStateCompleted {
		t.Fatalf("fetched job state = %q", fetched.State)
	}
}

func TestConvertUnknownFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, store, _, _ := setupTestServer(t)

	session, err := store.GetOrCreateSession("")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	rec := postJSON(t, engine, "/api/convert", map[string]any{
		"session_id": session.ID,
		"filename":   "ghost.md",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRefineWritingHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, store, _, _ := setupTestServer(t)

	sessionID, filename := uploadDocument(t, engine, "paper.md", "# Paper\n\nBody text.")

	rec := postJSON(t, engine, "/api/refine-writing", map[string]any{
		"session_id":    sessionID,
		"filename":      filename,
		"journal_style": "ieee",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refine: expected 200, got %d body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		RefinedFilename string `json:"refined_filename"`
		Refinement      struct {
			JournalStyle string `json:"journal_style"`
		} `json:"refinement"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode refine response: %v", err)
	}
	if !strings.HasPrefix(body.RefinedFilename, "refined_") {
		t.Fatalf("refined filename = %q", body.RefinedFilename)
	}
	if body.Refinement.JournalStyle != "ieee" {
		t.Fatalf("journal style = %q", body.Refinement.JournalStyle)
	}

	refined, err := store.FindFile(sessionID, body.RefinedFilename)
	if err != nil {
		t.Fatalf("refined file not in session: %v", err)
	}
	if refined.RefinedFrom != filename {
		t.Fatalf("refined from = %q, want %q", refined.RefinedFrom, filename)
	}

	content, err := os.ReadFile(refined.Path)
	if err != nil {
		t.Fatalf("read refined file: %v", err)
	}
	if string(content) != "Refined body." {
		t.Fatalf("refined content = %q", string(content))
	}
}

func TestTemplatesHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/templates", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode templates: %v", err)
	}
	if body["ieee"] == nil {
		t.Fatalf("expected ieee template, body=%v", body)
	}
}

func TestUpdatesAndDismiss(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, store, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/updates", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("updates: expected 200, got %d", rec.Code)
	}

	var updates []domain.UpdateNotification
	if err := json.Unmarshal(rec.Body.Bytes(), &updates); err != nil {
		t.Fatalf("decode updates: %v", err)
	}
	if len(updates) == 0 {
		t.Fatalf("expected at least one update notification")
	}

	session, err := store.GetOrCreateSession("")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	dismissRec := postJSON(t, engine, "/api/updates/dismiss", map[string]any{
		"session_id": session.ID,
		"update_id":  updates[0].ID,
	})
	if dismissRec.Code != http.StatusOK {
		t.Fatalf("dismiss: expected 200, got %d body %s", dismissRec.Code, dismissRec.Body.String())
	}

	refreshed, err := store.GetSession(session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(refreshed.DismissedUpdates) != 1 || refreshed.DismissedUpdates[0] != updates[0].ID {
		t.Fatalf("dismissed updates = %v", refreshed.DismissedUpdates)
	}
}

func TestConfigHandlerLeaksNoSecrets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "test-key") {
		t.Fatalf("config response leaks the api key: %s", rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if configured, _ := body["openai_configured"].(bool); !configured {
		t.Fatalf("expected openai_configured=true, body=%v", body)
	}
	if configured, _ := body["email_configured"].(bool); configured {
		t.Fatalf("expected email_configured=false, body=%v", body)
	}
}

func TestGetJobNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/session/missing", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestShareLinkValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _, fm, tracker := setupTestServer(t)

	artifactPath := fm.ArtifactPath("paper.md", time.Now())
	if err := os.WriteFile(artifactPath, []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	tracker.Create(domain.ConversionRequest{ID: "req-1", SessionID: "s-1", Filename: "paper.md"})
	if err := tracker.Transition("req-1", domain.JobStateProcessing, "working"); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := tracker.Transition("req-1", domain.JobStateCompleted, "done", pipeline.WithArtifact(artifactPath)); err != nil {
		t.Fatalf("transition: %v", err)
	}

	rec := postJSON(t, engine, "/api/jobs/req-1/share", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("share: expected 200, got %d body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode share response: %v", err)
	}
	if body.URL == "" {
		t.Fatalf("expected url in response")
	}

	signedPath := strings.TrimPrefix(body.URL, "http://localhost:8080")
	validReq := httptest.NewRequest(http.MethodGet, signedPath, nil)
	validRec := httptest.NewRecorder()
	engine.ServeHTTP(validRec, validReq)
	if validRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for signed link, got %d body %s", validRec.Code, validRec.Body.String())
	}

	name := filepath.Base(artifactPath)
	invalidReq := httptest.NewRequest(http.MethodGet, "/artifacts/"+name+"?exp=9999999999&sig=invalid", nil)
	invalidRec := httptest.NewRecorder()
	engine.ServeHTTP(invalidRec, invalidReq)
	if invalidRec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for invalid signature, got %d", invalidRec.Code)
	}

	expiredReq := httptest.NewRequest(http.MethodGet, "/artifacts/"+name+"?exp=1&sig=whatever", nil)
	expiredRec := httptest.NewRecorder()
	engine.ServeHTTP(expiredRec, expiredReq)
	if expiredRec.Code != http.StatusGone {
		t.Fatalf("expected 410 for expired link, got %d", expiredRec.Code)
	}
}

func TestShareUnfinishedJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _, _, tracker := setupTestServer(t)

	tracker.Create(domain.ConversionRequest{ID: "req-1", SessionID: "s-1", Filename: "paper.md"})

	rec := postJSON(t, engine, "/api/jobs/req-1/share", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unfinished job, got %d", rec.Code)
	}
}
