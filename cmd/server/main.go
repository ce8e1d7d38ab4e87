package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"medisyn/internal/api"
	"medisyn/internal/auth"
	"medisyn/internal/config"
	"medisyn/internal/db"
	"medisyn/internal/interview"
	"medisyn/internal/llm"

	_ "github.com/lib/pq"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if cfg.Database.URL == "" {
		log.Fatal().Msg("database.url must be set")
	}
	if cfg.AI.APIKey == "" {
		log.Fatal().Msg("ai.api_key must be set")
	}

	dbConn, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}
	defer dbConn.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbConn.PingContext(pingCtx); err != nil {
		log.Fatal().Err(err).Msg("database ping failed")
	}
	if err := db.Migrate(context.Background(), dbConn); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	repo := db.NewRepository(dbConn)

	client, err := newModelClient(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("model gateway setup failed")
	}

	authMgr, err := auth.NewManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("auth setup failed")
	}

	registry := interview.NewRegistry(client, cfg.Session.TTL, log)
	defer registry.Close()

	if err := os.MkdirAll(cfg.Report.Dir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Report.Dir).Msg("report directory setup failed")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.NewServer(repo, authMgr, registry, cfg.Report.Dir, log).Register(e)

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("provider", cfg.AI.Provider).Msg("listening")
		if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func newModelClient(cfg *config.Config, log zerolog.Logger) (llm.Client, error) {
	switch cfg.AI.Provider {
	case "gemini":
		var opts []llm.GeminiOption
		if cfg.AI.BaseURL != "" {
			opts = append(opts, llm.WithGeminiBaseURL(cfg.AI.BaseURL))
		}
		if cfg.AI.MaxAttempts > 0 {
			opts = append(opts, llm.WithGeminiMaxAttempts(cfg.AI.MaxAttempts))
		}
		return llm.NewGeminiClient(cfg.AI.APIKey, cfg.AI.Model, log, opts...), nil
	case "openai":
		var opts []llm.OpenAIOption
		if cfg.AI.BaseURL != "" {
			opts = append(opts, llm.WithOpenAIBaseURL(cfg.AI.BaseURL))
		}
		if cfg.AI.MaxAttempts > 0 {
			opts = append(opts, llm.WithOpenAIMaxAttempts(cfg.AI.MaxAttempts))
		}
		return llm.NewOpenAIClient(cfg.AI.APIKey, cfg.AI.Model, log, opts...), nil
	default:
		return nil, errors.New("unknown ai.provider: " + cfg.AI.Provider)
	}
}
