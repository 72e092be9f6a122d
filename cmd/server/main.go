package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/promptcraft/internal/ai"
	"github.com/kiliankoe/promptcraft/internal/ai/gemini"
	"github.com/kiliankoe/promptcraft/internal/ai/openai"
	"github.com/kiliankoe/promptcraft/internal/config"
	"github.com/kiliankoe/promptcraft/internal/game"
	"github.com/kiliankoe/promptcraft/internal/store"
	"github.com/kiliankoe/promptcraft/internal/store/disk"
	"github.com/kiliankoe/promptcraft/internal/store/postgres"
	"github.com/kiliankoe/promptcraft/internal/ws"
	staticserver "github.com/kiliankoe/promptcraft/static"
)

const version = "v1.0.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Promptcraft - Real-time AI image party game

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8000 or PORT env var)

Environment Variables:
  PORT                Port to listen on (default: 8000)
  LOG_LEVEL           debug, info, warn or error (default: info)
  LOG_FORMAT          console or json (default: console)
  ADMIN_CODE          Passphrase that makes a joining player the gamemaster
  IMAGE_PROVIDER      "gemini" or "openai" (default: gemini)
  GEMINI_API_KEY      Gemini API key
  GEMINI_MODEL        Gemini image model (default: gemini-2.5-flash-image)
  OPENAI_API_KEY      OpenAI API key
  OPENAI_BASE_URL     Custom OpenAI API base URL (optional)
  OPENAI_IMAGE_MODEL  OpenAI image model (default: dall-e-2)
  DATABASE_URL        Postgres URL for analytics records (optional)
  MEDIA_DIR           Directory for generated images (optional)
  MEDIA_BASE_URL      Public URL prefix for MEDIA_DIR (default: /media)
  EXPORT_ENABLED      Append round results to a text file (default: false)
  EXPORT_FILE         Path of the results file (default: rounds_export.txt)
  CORS_ORIGINS        Comma separated origins allowed to connect (optional)
  ROUND_DURATION, PROMPT_GRACE, TRANSITION_MIN, TRANSITION_MAX,
  SELECTION_DURATION, GENERATION_TIMEOUT, VOTE_QUORUM, SMALL_IMAGE_KB
                      Game timing and thresholds

Examples:
  %s                  Start server with default settings
  %s --port 3000      Start server on port 3000

Visit http://localhost:8000 after starting the server.
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("Promptcraft %s\n", version)
		return
	}

	cfg, err := config.FromEnv()
	setupLogger(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	port := *portFlag
	if port == "" {
		port = cfg.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence is optional; without it the session runs against no-op collaborators.
	var rec store.Recorder
	var pg *postgres.Recorder
	if cfg.PersistenceEnabled() {
		pg, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error().Err(err).Msg("postgres unavailable, analytics records disabled")
		} else {
			rec = pg
		}
	}
	var media store.MediaStore
	if cfg.UploadsEnabled() {
		d, err := disk.New(cfg.MediaDir, cfg.MediaBaseURL)
		if err != nil {
			log.Error().Err(err).Msg("media store unavailable, uploads disabled")
		} else {
			media = d
		}
	}
	async := store.NewAsync(rec, media, log.Logger)

	opts := []game.Option{game.WithJournal(async), game.WithLogger(log.Logger)}
	if cfg.ExportEnabled {
		opts = append(opts, game.WithExporter(&game.FileExporter{Path: cfg.ExportFile}))
	}

	sock := ws.New(log.Logger)
	sess := game.NewSession(cfg.GameSettings(), newGenerator(cfg), sock, opts...)
	sock.Bind(sess)

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		log.Info().Str("path", path).Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	})
	if len(cfg.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
		corsConfig.AllowCredentials = true
		corsConfig.MaxAge = 12 * time.Hour
		r.Use(cors.New(corsConfig))
	}
	r.Use(ws.SessionCookieMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})
	r.GET("/analytics/errors", func(c *gin.Context) {
		c.JSON(http.StatusOK, sess.ErrorReport())
	})
	r.GET("/api/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, sess.Snapshot())
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if media != nil && strings.HasPrefix(cfg.MediaBaseURL, "/") {
		r.Static(cfg.MediaBaseURL, cfg.MediaDir)
	}

	io := sock.Mount(r)

	// Serve the embedded client for all other routes
	r.NoRoute(func(c *gin.Context) {
		staticserver.Handler().ServeHTTP(c.Writer, c.Request)
	})

	srv := &http.Server{Addr: ":" + port, Handler: r}
	go func() {
		log.Info().Str("port", port).Str("provider", cfg.ImageProvider).Bool("persistence", rec != nil).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	sock.Close()
	if err := io.Close(); err != nil {
		log.Error().Err(err).Msg("socket.io shutdown")
	}
	if err := async.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("pending analytics writes dropped")
	}
	if pg != nil {
		pg.Close()
	}
}

func setupLogger(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogFormat != "json" {
		cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = log.Output(cw)
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func newGenerator(cfg config.Config) ai.ImageGenerator {
	switch cfg.ImageProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY is empty, every prompt will fail")
		}
		return openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIImageModel)
	default:
		if cfg.GeminiKey == "" {
			log.Warn().Msg("GEMINI_API_KEY is empty, every prompt will fail")
		}
		return gemini.New(cfg.GeminiKey, cfg.GeminiBaseURL, cfg.GeminiModel)
	}
}
