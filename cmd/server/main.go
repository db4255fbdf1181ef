package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Huddle/internal/adapters/http"
	"github.com/dkeye/Huddle/internal/adapters/libretranslate"
	"github.com/dkeye/Huddle/internal/adapters/whisper"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/captions"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/app/transcribe"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.SetupLogger(cfg.Log)
	cfg.Watch(func(next *config.Config) {
		config.ApplyLogLevel(next.Log.Level)
	})

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	prober := whisper.NewProber(cfg.Transcription.HealthEndpoint(), cfg.Transcription.ProbeTimeout, nil)
	prober.Probe(ctx)

	store, err := captions.NewStore(domain.CaptionTTL, 0)
	if err != nil {
		return err
	}
	defer store.Close()

	translator := libretranslate.NewClient(cfg.Translation, nil)
	o := &orch.Orchestrator{
		Registry:      app.NewRegistry(),
		Rooms:         app.NewRoomManager(),
		Policy:        policyFor(cfg.Backpressure),
		Captions:      store,
		Languages:     translator,
		Limiter:       app.NewRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateInterval),
		MaxChatLength: cfg.Chat.MaxLength,
	}
	o.Pipeline = transcribe.NewPipeline(
		whisper.NewClient(cfg.Transcription, nil),
		translator,
		prober,
		o.OnTranscript,
		transcribe.Options{
			FlushInterval:  cfg.Transcription.FlushInterval,
			SourceLanguage: cfg.Transcription.SourceLanguage,
			MaxBufferBytes: cfg.Transcription.MaxBufferBytes,
		},
	)
	defer o.Pipeline.Close()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, o, prober),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Huddle server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return prober.Run(gctx, cfg.Transcription.ProbeInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	return g.Wait()
}

func policyFor(name string) app.Policy {
	if name == "drop" {
		return app.TolerantPolicy{}
	}
	return app.SimplePolicy{}
}
