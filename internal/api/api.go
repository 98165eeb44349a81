// Package api bootstraps flowbot and exposes its HTTP surface.
//
// Run wires the flow graph, the session store, the channel services and the
// media pipeline together, then serves the admin endpoints and the Twilio
// inbound webhook.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/e2g-ufsm/flowbot/internal/flow"
	"github.com/e2g-ufsm/flowbot/internal/flowchart"
	"github.com/e2g-ufsm/flowbot/internal/genai"
	"github.com/e2g-ufsm/flowbot/internal/lockfile"
	"github.com/e2g-ufsm/flowbot/internal/media"
	"github.com/e2g-ufsm/flowbot/internal/messaging"
	"github.com/e2g-ufsm/flowbot/internal/models"
	"github.com/e2g-ufsm/flowbot/internal/store"
	"github.com/e2g-ufsm/flowbot/internal/twiliochat"
	"github.com/e2g-ufsm/flowbot/internal/whatsapp"
)

// Default configuration values
const (
	DefaultAddr     = ":8080"
	DefaultStateDir = "/var/lib/flowbot"
	DefaultFlowFile = "flow.json"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	StateDir       string
	FlowPath       string
	MediaDir       string
	FlowchartPath  string
	SessionTimeout time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithStateDir sets the state directory.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// WithFlowPath sets the path of the flow definition file.
func WithFlowPath(path string) Option {
	return func(o *Opts) { o.FlowPath = path }
}

// WithSessionTimeout sets the idle timeout after which sessions restart.
func WithSessionTimeout(d time.Duration) Option {
	return func(o *Opts) { o.SessionTimeout = d }
}

// Server holds the HTTP surface over a running engine.
type Server struct {
	engine    *flow.Engine
	store     store.Store
	twilioSvc *messaging.TwilioService
	addr      string
}

// NewServer creates a Server over an engine and its store. twilioSvc may be
// nil when the Twilio channel is not configured.
func NewServer(engine *flow.Engine, st store.Store, twilioSvc *messaging.TwilioService, addr string) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{engine: engine, store: st, twilioSvc: twilioSvc, addr: addr}
}

// Handler returns the HTTP handler serving all endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.HandleFunc("/users", s.usersHandler)
	mux.HandleFunc("/twilio/inbound", s.twilioInboundHandler)
	return mux
}

// Run assembles every module and serves until interrupted.
func Run(waOpts []whatsapp.Option, storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	opts := Opts{
		Addr:           DefaultAddr,
		StateDir:       DefaultStateDir,
		SessionTimeout: flow.DefaultSessionTimeout,
	}
	for _, opt := range apiOpts {
		opt(&opts)
	}
	if opts.FlowPath == "" {
		opts.FlowPath = filepath.Join(opts.StateDir, DefaultFlowFile)
	}
	if opts.MediaDir == "" {
		opts.MediaDir = filepath.Join(opts.StateDir, "media")
	}
	if opts.FlowchartPath == "" {
		opts.FlowchartPath = filepath.Join(opts.StateDir, flowchart.DefaultFileName)
	}

	lock, err := lockfile.AcquireLock(opts.StateDir)
	if err != nil {
		return fmt.Errorf("failed to acquire state directory lock: %w", err)
	}
	defer lock.Release()

	graph, err := flow.LoadGraph(opts.FlowPath)
	if err != nil {
		return fmt.Errorf("failed to load flow definition: %w", err)
	}
	if err := flowchart.Export(graph, opts.FlowchartPath); err != nil {
		slog.Warn("Failed to export flowchart", "error", err)
	}

	st, err := store.NewStore(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	registry := flow.NewOptinRegistry()
	if genaiClient, err := genai.NewClient(genaiOpts...); err != nil {
		slog.Info("GenAI optins disabled", "reason", err)
	} else {
		registry.Register("aiReply", genaiClient.OptinHandler())
		slog.Info("GenAI optins enabled")
	}
	graph.CheckOptins(registry)

	engine := flow.NewEngine(graph, st, registry, opts.SessionTimeout)

	waClient, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize WhatsApp client: %w", err)
	}
	waSvc := messaging.NewWhatsAppService(waClient)
	engine.RegisterService(waSvc)
	services := []messaging.Service{waSvc}

	var twilioSvc *messaging.TwilioService
	if twilioClient, err := twiliochat.NewClient(); err != nil {
		slog.Info("Twilio channel disabled", "reason", err)
	} else {
		twilioSvc = messaging.NewTwilioService(twilioClient)
		engine.RegisterService(twilioSvc)
		services = append(services, twilioSvc)
	}

	byChannel := make(map[models.Channel]messaging.Service, len(services))
	for _, svc := range services {
		byChannel[svc.Channel()] = svc
	}
	notify := func(ctx context.Context, msg models.Message, body string) error {
		svc, ok := byChannel[msg.Channel]
		if !ok {
			return fmt.Errorf("no service for channel %s", msg.Channel)
		}
		return svc.SendText(ctx, msg.ChannelUserID, body, msg.MessageID)
	}
	pipeline := media.NewPipeline(opts.MediaDir, notify)
	pipeline.RegisterFetcher(models.ChannelTwilio, media.NewHTTPFetcher())
	engine.SetMediaHandler(pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s service: %w", svc.Channel(), err)
		}
	}

	dispatcher := messaging.NewDispatcher(engine.HandleMessage)
	dispatcher.Start(ctx, services...)

	server := NewServer(engine, st, twilioSvc, opts.Addr)
	httpServer := &http.Server{Addr: server.addr, Handler: server.Handler()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("flowbot API listening", "addr", server.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("Shutting down on signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	dispatcher.Stop()
	for _, svc := range services {
		if err := svc.Stop(); err != nil {
			slog.Error("Service stop error", "error", err, "channel", svc.Channel())
		}
	}
	return nil
}
