package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/workmate/config"
	"github.com/mohammad-safakhou/workmate/internal/assistant"
	"github.com/mohammad-safakhou/workmate/internal/assistant/telemetry"
	"github.com/mohammad-safakhou/workmate/internal/backends/google"
	"github.com/mohammad-safakhou/workmate/internal/convstore"
	"github.com/mohammad-safakhou/workmate/internal/domains"
	"github.com/mohammad-safakhou/workmate/internal/domains/calendar"
	"github.com/mohammad-safakhou/workmate/internal/domains/files"
	"github.com/mohammad-safakhou/workmate/internal/domains/mail"
	"github.com/mohammad-safakhou/workmate/internal/provider"
	"github.com/mohammad-safakhou/workmate/internal/runtime"
	"github.com/mohammad-safakhou/workmate/internal/vectorindex"
)

// Run wires the whole assistant together and serves the HTTP API.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if err := Migrate("file://migrations", cfg.Storage.Postgres, "up", 0); err != nil {
		baseLogger.Printf("migrations not applied: %v", err)
	}

	ctx := context.Background()

	store, err := convstore.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	index := &vectorindex.PgIndex{DB: store.DB}

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	llm := provider.NewOpenAIProvider(cfg.LLM, cfg.Embedding, tele)

	orch, err := buildOrchestrator(cfg, store, index, llm, tele)
	if err != nil {
		return err
	}

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret or WORKMATE_JWT_SECRET)")
	}

	api := e.Group("/api")

	auth := &AuthHandler{Store: store, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))

	qh := &QueryHandler{Store: store, Runner: orch, Telemetry: tele}
	qh.Register(api.Group(""), runtime.EchoAuthMiddleware([]byte(secret)))

	return e.Start(cfg.Server.Address)
}

// buildOrchestrator assembles the pipeline from its parts. Split out so
// alternative frontends can reuse the wiring.
func buildOrchestrator(cfg *config.Config, store *convstore.Store, index vectorindex.Index, llm *provider.OpenAIProvider, tele *telemetry.Telemetry) (*assistant.Orchestrator, error) {
	history := assistant.NewHistoryFormatter(store)
	historyLimit := cfg.General.HistoryLimit

	classifier := assistant.NewClassifier(llm, history, cfg.LLM.Routing.Classification, historyLimit)
	synthesizer := assistant.NewSynthesizer(llm, history, cfg.LLM.Routing.Synthesis, historyLimit)

	gcl := google.NewClient(cfg.Backends.Google, nil)
	gmail := google.NewGmail(gcl, cfg.Backends.Google.GmailBaseURL)
	gcal := google.NewCalendar(gcl, cfg.Backends.Google.CalendarBaseURL)
	gdrive := google.NewDrive(gcl, cfg.Backends.Google.DriveBaseURL)

	reindex := cfg.Storage.Index.ReindexOnRead
	maxResults := cfg.Storage.Index.MaxResults
	toolModel := cfg.LLM.Routing.Tools

	adapters := map[string]assistant.DomainAdapter{
		assistant.DomainMail: mail.New(gmail, llm, index, tele,
			domains.NewRunner(llm, toolModel, assistant.DomainMail, 5), reindex, maxResults),
		assistant.DomainCalendar: calendar.New(gcal, llm, index, tele,
			domains.NewRunner(llm, toolModel, assistant.DomainCalendar, 5), reindex, maxResults),
		assistant.DomainFiles: files.New(gdrive, llm, index, tele,
			domains.NewRunner(llm, toolModel, assistant.DomainFiles, 5), reindex, maxResults),
	}

	executor := assistant.NewExecutor(adapters)
	return assistant.NewOrchestrator(classifier, executor, synthesizer, tele), nil
}
