// Command voxbridge is the entrypoint: it loads configuration, wires
// the codec registry, serializer registry, session store and bridge
// orchestrator, and serves the provider listen endpoint over HTTP. It
// drives only the external-bot path: with pipeline mode enabled, each
// accepted connection is logged as an error and closed. Grounded in
// room4-2-OpenConverse/server/twilio_server.go's Start/Shutdown pair
// and the teacher's examples/basic-call/main.go "load config, build
// client, serve" shape.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/birddigital/voxbridge/bridge"
	"github.com/birddigital/voxbridge/codec"
	"github.com/birddigital/voxbridge/config"
	"github.com/birddigital/voxbridge/serializer"
	"github.com/birddigital/voxbridge/session"
	"github.com/birddigital/voxbridge/transport"
)

func main() {
	configPath := flag.String("config", "voxbridge.yaml", "path to the YAML configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("voxbridge exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	codecs := codec.NewRegistry()
	serializers := serializer.NewRegistry()
	store := session.NewSessionStore()
	handlers := bridge.NewRegistry(logger)
	orchestrator := bridge.NewOrchestrator(handlers, store, bridge.DefaultBargeInConfig(), logger)

	botCodec := codec.Codec(cfg.Bot.Codec)
	if botCodec == "" {
		botCodec = codec.PCM16
	}
	botSampleRate := cfg.Bot.SampleRate
	if botSampleRate == 0 {
		botSampleRate = 8000
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	listenPath := cfg.Provider.ListenPath
	if listenPath == "" {
		listenPath = "/media-stream"
	}
	mux.HandleFunc(listenPath, func(w http.ResponseWriter, r *http.Request) {
		handleAccept(r.Context(), w, r, cfg, codecs, serializers, store, orchestrator, botCodec, botSampleRate, logger)
	})

	addr := cfg.Provider.ListenHost
	if addr == "" {
		addr = "0.0.0.0"
	}
	if cfg.Provider.ListenPort != 0 {
		addr = fmt.Sprintf("%s:%d", addr, cfg.Provider.ListenPort)
	}

	srv := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("voxbridge listening", slog.String("addr", addr), slog.String("path", listenPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// handleAccept upgrades one provider connection, builds its serializer
// and session, dials the bot, and hands both ends to the orchestrator's
// forwarding loop. When pipeline mode is enabled it logs an error and
// closes the provider connection instead.
func handleAccept(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	cfg *config.Config,
	codecs *codec.Registry,
	serializers *serializer.Registry,
	store *session.SessionStore,
	orchestrator *bridge.Orchestrator,
	botCodec codec.Codec,
	botSampleRate int,
	logger *slog.Logger,
) {
	providerTransport, err := transport.Accept(w, r)
	if err != nil {
		logger.Warn("failed to accept provider connection", slog.Any("error", err))
		return
	}

	s, err := serializers.Create(cfg.Provider.Type)
	if err != nil {
		logger.Error("unknown provider type", slog.String("type", cfg.Provider.Type), slog.Any("error", err))
		providerTransport.Disconnect()
		return
	}

	cs := session.NewCallSession(cfg.Provider.Type, s, codecs, botCodec, botSampleRate)

	var botTransport transport.Transport
	if cfg.Pipeline.Enabled {
		// The built-in pipeline needs concrete STT/LLM/TTS
		// implementations wired by the embedding application (spec.md's
		// Non-goals exclude shipping vendor SDKs); this stock entrypoint
		// only drives the external-bot path. Embedders who want pipeline
		// mode build their own main using pipeline.NewPipelineOrchestrator
		// and pipeline.NewTransport in place of the Dial below.
		logger.Error("pipeline.enabled requires a custom entrypoint registering STT/LLM/TTS providers")
		providerTransport.Disconnect()
		return
	}

	dialed, err := transport.DialClientTransport(ctx, cfg.Bot.URL, nil)
	if err != nil {
		logger.Error("failed to connect to bot", slog.Any("error", err))
		providerTransport.Disconnect()
		return
	}
	botTransport = dialed

	if err := orchestrator.Run(ctx, cs, providerTransport, botTransport); err != nil {
		logger.Info("call ended", slog.String("call_id", cs.CallID), slog.Any("error", err))
	}
}
