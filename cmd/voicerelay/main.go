// Command voicerelay runs the relay server: ConversationRelay and Media
// Streams WebSocket endpoints, the TwiML call-control endpoints, and the
// tool handlers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/agentplexus/voicerelay"
	"github.com/agentplexus/voicerelay/config"
	"github.com/agentplexus/voicerelay/internal/client"
	"github.com/agentplexus/voicerelay/prompts"
	"github.com/agentplexus/voicerelay/relay"
	"github.com/agentplexus/voicerelay/session"
	"github.com/agentplexus/voicerelay/tool"
	"github.com/agentplexus/voicerelay/toolserver"
	"github.com/agentplexus/voicerelay/webhook"
)

// maxPortAttempts bounds the bind-conflict fallback.
const maxPortAttempts = 10

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	instructions := prompts.Lookup(cfg.PromptContext)
	oai := openai.NewClient(cfg.OpenAIKey)
	invoker := tool.NewInvoker(cfg.ToolBaseURL)
	catalog := tool.Default()
	registry := relay.NewRegistry()

	textHandler := relay.NewTextHandler(relay.TextConfig{
		NewSession: func() relay.ModelSession {
			return session.NewChat(session.ChatConfig{
				Client:       oai,
				Model:        cfg.Model,
				Instructions: instructions,
				Catalog:      catalog,
				Invoker:      invoker,
				Temperature:  float32(cfg.Temperature),
				Logger:       logger,
			})
		},
		Registry: registry,
		Logger:   logger,
	})

	audioHandler := relay.NewAudioHandler(relay.AudioConfig{
		Connect: func(ctx context.Context) (relay.StreamingSession, error) {
			rt := session.NewRealtime(session.RealtimeConfig{
				APIKey:       cfg.OpenAIKey,
				Model:        cfg.RealtimeModel,
				Voice:        cfg.Voice,
				Instructions: instructions,
				Temperature:  cfg.Temperature,
				Logger:       logger,
			})
			if err := rt.Connect(ctx); err != nil {
				return nil, err
			}
			return rt, nil
		},
		Registry: registry,
		Logger:   logger,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	webhook.New(webhook.Config{
		Domain:      cfg.Domain,
		Voice:       cfg.Voice,
		WorkflowSID: cfg.WorkflowSID,
		Logger:      logger,
	}).Register(router)

	// The tool server needs Twilio credentials for SMS; without them the
	// SMS-backed tools answer 503 and the rest still work.
	var sms toolserver.MessageSender
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		twilioClient, err := client.New(&client.Config{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
		})
		if err != nil {
			return err
		}
		sms = twilioClient
	} else {
		logger.Warn("twilio credentials not set; sms tools disabled")
	}
	toolserver.New(toolserver.Config{
		SMS:        sms,
		FromNumber: cfg.TwilioFromNumber,
		Logger:     logger,
	}).Register(router)

	router.GET(voicerelay.TextRelayPath, gin.WrapH(textHandler))
	router.GET(voicerelay.MediaStreamPath, gin.WrapH(audioHandler))

	ln, port, err := listenWithFallback(cfg.Port, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server running",
			"port", port,
			"relay_url", fmt.Sprintf("ws://%s:%d%s", cfg.Domain, port, voicerelay.TextRelayPath),
			"stream_url", fmt.Sprintf("ws://%s:%d%s", cfg.Domain, port, voicerelay.MediaStreamPath))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down", "active_calls", registry.Count())
		registry.CancelAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// listenWithFallback binds the requested port, falling back to the next one
// on a bind conflict.
func listenWithFallback(port int, logger *slog.Logger) (net.Listener, int, error) {
	for attempt := 0; attempt < maxPortAttempts; attempt++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			return ln, port, nil
		}
		if errors.Is(err, syscall.EADDRINUSE) {
			logger.Warn("port is busy, trying the next one", "port", port)
			port++
			continue
		}
		return nil, 0, err
	}
	return nil, 0, fmt.Errorf("no free port after %d attempts", maxPortAttempts)
}
