package http

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/Divyansh2602/pdf-agent/internal/config"
	"github.com/Divyansh2602/pdf-agent/internal/domain"
	"github.com/Divyansh2602/pdf-agent/internal/pipeline"
	"github.com/Divyansh2602/pdf-agent/internal/services"
	"github.com/Divyansh2602/pdf-agent/internal/storage"
)

type Server struct {
	engine *gin.Engine
	cfg    config.Config
}

func NewServer(cfg config.Config) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	fm, err := storage.NewFileManager(cfg.DataDir, cfg.OutputDir, cfg.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("init file manager: %w", err)
	}

	store, err := storage.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	openaiSvc := services.NewOpenAIService(cfg)
	refiner := services.NewStyleRefiner(openaiSvc)
	analyzer := services.NewAnalyzer(openaiSvc, cfg.OpenAIAnalysisModel)
	renderer := services.NewRenderer(cfg)
	overleaf := services.NewOverleafService(cfg)
	mailer := services.NewMailer(cfg)
	webhook := services.NewWebhookService(cfg)
	report := services.NewReportService()
	share := services.NewShareService(cfg)

	tracker := pipeline.NewTracker()
	conv := pipeline.NewPipeline(refiner, renderer, overleaf, mailer, webhook, fm, tracker)

	// Mirror terminal job states onto the session file entries so the
	// session view stays consistent with the job table.
	tracker.Subscribe(func(ev pipeline.Event) {
		if ev.State != domain.JobStateCompleted && ev.State != domain.JobStateFailed {
			return
		}
		file, err := store.FindFile(ev.SessionID, ev.Filename)
		if err != nil {
			return
		}
		file.Status = ev.State
		if ev.PDFPath != "" {
			file.PDFPath = ev.PDFPath
		}
		if err := store.UpdateFile(ev.SessionID, file); err != nil {
			log.Printf("update session file status: %v", err)
		}
	})

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger())
	engine.Use(MaxBodySize(cfg.MaxUploadBytes))
	engine.Use(CORS())

	api := NewAPI(cfg, fm, store, conv, refiner, analyzer, report, share)
	registerRoutes(engine, api)

	return &Server{engine: engine, cfg: cfg}, nil
}

func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.cfg.Port)
	return s.engine.Run(addr)
}
