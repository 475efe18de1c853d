package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/labfin/invoice-archiver/internal/archive"
	"github.com/labfin/invoice-archiver/internal/config"
	httpapi "github.com/labfin/invoice-archiver/internal/interfaces/http"
	"github.com/labfin/invoice-archiver/internal/ocr"
	"github.com/labfin/invoice-archiver/internal/pdf"
	"github.com/labfin/invoice-archiver/internal/service"
	"github.com/labfin/invoice-archiver/internal/storage"
	"github.com/labfin/invoice-archiver/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	flag.Parse()

	// Credentials may live in a local .env; absence is fine.
	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.OutputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting invoice archiver",
		zap.String("config", *configPath),
		zap.Int("port", cfg.Server.Port))

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatal("Failed to prepare directories", zap.Error(err))
	}

	if cfg.OCR.APIKey == "" || cfg.OCR.SecretKey == "" {
		logger.Warn("OCR credentials not configured, recognition will fail until OCR_API_KEY and OCR_SECRET_KEY are set")
	}

	uploads := storage.NewUploadStore(cfg.Dirs.TempUpload, logger)
	store := archive.NewStore(cfg.Dirs.Archive, logger)
	exporter := archive.NewExporter(cfg.Dirs.Export, logger)
	recognizer := ocr.NewClient(cfg.OCR, logger)
	ingestor := service.NewIngestor(uploads, pdf.NewRenderer(logger), recognizer, ocr.NewNormalizer(logger), cfg, logger)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, ingestor, store, exporter, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
