package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"wedding-sync/internal/backend"
	"wedding-sync/internal/config"
	"wedding-sync/internal/handler"
	"wedding-sync/internal/whatsapp"
)

func main() {
	fmt.Println("🎉 Wedding Guest Backend")
	fmt.Println("========================")

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Goodbye! 👋")
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(cfg.Level()).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := backend.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := backend.NewService(store, nil, backend.Config{
		MaxAttempts:  cfg.MaxAttempts,
		SendInterval: cfg.SendInterval,
	}, logger)

	if cfg.WhatsAppEnabled {
		wa, err := connectWhatsApp(ctx, cfg, svc, logger)
		if err != nil {
			return err
		}
		defer wa.Disconnect()
		svc.SetSender(wa)
	} else {
		logger.Warn().Msg("WhatsApp disabled, campaigns cannot be sent")
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           backend.Handler(svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("Backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Println("\n\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func connectWhatsApp(ctx context.Context, cfg *config.Config, svc *backend.Service, logger zerolog.Logger) (*whatsapp.Service, error) {
	if err := os.MkdirAll(cfg.WhatsAppDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create WhatsApp data directory: %w", err)
	}
	wa, err := whatsapp.NewService(ctx, whatsapp.Config{
		DataDir: cfg.WhatsAppDataDir,
		QROut:   os.Stdout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize WhatsApp service: %w", err)
	}

	rsvpHandler := handler.NewRSVPHandler(wa, svc, handler.Config{
		WeddingDate: cfg.WeddingDate,
		BrideName:   cfg.BrideName,
		GroomName:   cfg.GroomName,
	}, logger)
	wa.SetMessageHandler(rsvpHandler.HandleMessage)
	wa.SetReceiptHandler(rsvpHandler.HandleReceipt)

	fmt.Println("Connecting to WhatsApp...")
	if err := wa.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to WhatsApp: %w", err)
	}
	fmt.Println("✅ Connected to WhatsApp! Listening for RSVP replies.")
	return wa, nil
}
