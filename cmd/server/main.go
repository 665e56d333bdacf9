package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/photo-gallery/backend/internal/api"
	"github.com/photo-gallery/backend/internal/auth"
	"github.com/photo-gallery/backend/internal/bundle"
	"github.com/photo-gallery/backend/internal/config"
	"github.com/photo-gallery/backend/internal/imagehash"
	"github.com/photo-gallery/backend/internal/index"
	"github.com/photo-gallery/backend/internal/logging"
	"github.com/photo-gallery/backend/internal/storage"
	"github.com/photo-gallery/backend/internal/upload"
	"github.com/photo-gallery/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const uploadsPrefix = "/uploads"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "passwd" {
		passwdCmd(os.Args[2:])
		return
	}

	configPath := flag.String("config", defaultConfigPath(), "path to YAML config (created with defaults if missing)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Logging.Format, cfg.Logging.Level)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage; the index and its temp sibling share the directory
	indexPath := cfg.GetIndexPath()
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir(), uploadsPrefix,
		filepath.Base(indexPath), filepath.Base(index.TempName(indexPath)))
	if err != nil {
		fatal(ctx, logger, "failed to initialize storage", err)
	}
	hashIndex := index.Load(ctx, indexPath, logger)

	gate, err := auth.NewGate(cfg.Security.DownloadPassword, cfg.Security.DownloadPasswordBcrypt)
	if err != nil {
		fatal(ctx, logger, "failed to initialize download gate", err)
	}

	builder, err := bundle.NewBuilder(fileStore, gate, cfg.Storage.BundleDirectory, logger)
	if err != nil {
		fatal(ctx, logger, "failed to initialize bundle builder", err)
	}

	// Sweep bundles left by interrupted downloads
	janitor := bundle.NewJanitor(cfg.Storage.BundleDirectory, cfg.BundleMaxAge(), logger)
	if _, err := janitor.Sweep(ctx); err != nil {
		logger.Warn(ctx, "initial bundle sweep failed", "error", err)
	}
	sweeper, err := janitor.Start(ctx, cfg.Storage.BundleSweepSchedule)
	if err != nil {
		fatal(ctx, logger, "failed to schedule bundle sweep", err)
	}

	feed := api.NewGalleryFeed(logger)

	uploadMgr := upload.NewManager(
		imagehash.New(cfg.Upload.MaxPixels, cfg.HashTimeout()),
		hashIndex,
		fileStore,
		feed,
		logger,
		upload.Options{
			AllowedExtensions: cfg.Upload.AllowedExtensions,
			DefaultExtension:  cfg.Upload.DefaultExtension,
			HashWorkers:       cfg.Upload.HashWorkers,
		},
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupMiddleware(e, api.MiddlewareConfig{
		BodyLimit:        cfg.Server.BodyLimit,
		RequestTimeout:   time.Duration(cfg.Server.ReadTimeout) * time.Second,
		EnableCORS:       cfg.Server.EnableCORS,
		AllowOrigins:     api.ParseOrigins(cfg.Server.AllowOrigins),
		EnableGzip:       cfg.Server.EnableCompression,
		GzipLevel:        cfg.Server.CompressionLevel,
		EnableRequestLog: cfg.Server.EnableRequestLogging,
	}, logger)

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:    fileStore,
		Uploader: uploadMgr,
		Bundles:  builder,
		Gate:     gate,
		Index:    hashIndex,
		Feed:     feed,
		Logger:   logger,
		Version:  Version,
	}))
	web.RegisterUploadRoutes(e, uploadsPrefix, fileStore)

	// Register embedded gallery page if available
	embeddedMode := web.HasEmbeddedFiles()
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn(ctx, "failed to register static routes", "error", err)
			embeddedMode = false
		}
	}

	// Configure server with settings from config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(*configPath, cfg, hashIndex.Len(), embeddedMode)

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info(context.Background(), "shutting down")

	sweeper.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := api.Shutdown(shutdownCtx, e, feed); err != nil {
		logger.Error(shutdownCtx, "graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

// defaultConfigPath places the config next to the executable
func defaultConfigPath() string {
	exePath, err := os.Executable()
	if err != nil {
		return "gallery.yaml"
	}
	return filepath.Join(filepath.Dir(exePath), "gallery.yaml")
}

func fatal(ctx context.Context, logger logging.Logger, msg string, err error) {
	logger.Error(ctx, msg, "error", err)
	os.Exit(1)
}

func passwdCmd(args []string) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	var (
		password = fs.String("p", "", "password (required)")
		cost     = fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	)
	_ = fs.Parse(args)
	if *password == "" {
		fmt.Fprintln(os.Stderr, "usage: server passwd -p <password> [-cost N]")
		os.Exit(2)
	}

	h, err := auth.HashPassword(*password, *cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "passwd: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(h)
}

func printBanner(configPath string, cfg *config.AppConfig, indexed int, embedded bool) {
	page := "disabled"
	if embedded {
		page = "embedded"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Photo Gallery Server                            ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Gallery:    %-45s║\n", page)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Uploads:   %-46s║\n", cfg.GetUploadDir())
	fmt.Printf("║  Indexed:   %-46d║\n", indexed)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
