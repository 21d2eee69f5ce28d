// Package proxy provides the core report-proxy service: a long-lived
// delta-streaming server that mediates between producer processes and
// browser consumers over a named report registry.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/deltaproxy/deltaproxy/pkg/logging"
	"github.com/deltaproxy/deltaproxy/services/proxy/browser"
	"github.com/deltaproxy/deltaproxy/services/proxy/config"
	"github.com/deltaproxy/deltaproxy/services/proxy/observability"
	"github.com/deltaproxy/deltaproxy/services/proxy/proxyerr"
	"github.com/deltaproxy/deltaproxy/services/proxy/registry"
	"github.com/deltaproxy/deltaproxy/services/proxy/routes"
)

// Service is the report proxy's lifecycle contract: Run blocks serving
// traffic until the registry empties or a fatal error occurs; Router
// exposes the underlying engine for tests.
type Service interface {
	// Run starts the HTTP server and blocks until the registry becomes
	// empty (clean shutdown, exit code 0) or a fatal error escapes an
	// endpoint (non-zero exit).
	Run() error

	// Router returns the configured Gin engine, for integration testing.
	Router() *gin.Engine
}

// Config holds report proxy configuration. Field names match the
// configuration table: proxy.port, proxy.server, proxy.useNode,
// proxy.staticRoot, proxy.waitForConnectionSecs, local.throttleSecs.
type Config struct {
	// Port is the TCP port the HTTP server binds. Default: 12210.
	Port int

	// Server is the host used to construct the viewer-launch URL.
	// Default: "localhost".
	Server string

	// UseNode defers static asset serving to an external dev server when
	// true; the viewer URL then targets DevServerURL instead.
	UseNode bool

	// DevServerURL is the external dev server's base URL, used only when
	// UseNode is true.
	DevServerURL string

	// StaticRoot is the directory containing the UI bundle, used only
	// when UseNode is false.
	StaticRoot string

	// WaitForConnectionSecs bounds how long a session with no consumer
	// may exist before the startup timeout (event T) reclaims it.
	// Default: 30 seconds.
	WaitForConnectionSecs int

	// ThrottleSecs bounds the consumer stream loop's wait. Default: 0.1s.
	ThrottleSecs float64

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "localhost:4317".
	OTelEndpoint string

	// EnableMetrics creates and registers the proxy's Prometheus metrics.
	// The /metrics endpoint is routed either way. Default: false (zero
	// value; no default is applied).
	EnableMetrics bool

	// LaunchBrowser fires a browser pointed at a report's consumer URL
	// whenever a name with no current session is registered. Default:
	// false (zero value; no default is applied).
	LaunchBrowser bool

	// ConfigPath, if non-empty, is watched for changes; edits to
	// staticRoot/throttleSecs take effect without a restart. Empty
	// disables hot reload.
	ConfigPath string
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if cfg.Server == "" {
		cfg.Server = "localhost"
	}
	if cfg.StaticRoot == "" {
		cfg.StaticRoot = "./static"
	}
	if cfg.WaitForConnectionSecs == 0 {
		cfg.WaitForConnectionSecs = 30
	}
	if cfg.ThrottleSecs == 0 {
		cfg.ThrottleSecs = 0.1
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "localhost:4317"
	}
	return cfg
}

// service implements Service.
type service struct {
	config        Config
	router        *gin.Engine
	registry      *registry.Registry
	log           *logging.Logger
	tracerCleanup func(context.Context)
	live          *config.Live
	watcher       *config.Watcher

	fatalErr chan error
}

// New builds a Service from cfg, wiring the registry, router, tracer, and
// metrics.
func New(cfg Config, log *logging.Logger) (Service, error) {
	cfg = applyConfigDefaults(cfg)
	if log == nil {
		log = logging.Default()
	}

	s := &service{
		config:   cfg,
		log:      log,
		fatalErr: make(chan error, 1),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if cfg.EnableMetrics {
		observability.InitMetrics()
		log.Info("initialized prometheus metrics for report proxy")
	}

	s.registry = registry.New(
		registry.WithStartupTimeout(time.Duration(cfg.WaitForConnectionSecs)*time.Second),
		registry.WithOnEmpty(func() { s.triggerShutdown(nil) }),
		registry.WithBrowserLauncher(s.browserLauncher()),
		registry.WithLogger(log),
	)

	s.live = config.NewLive(config.Reloadable{StaticRoot: cfg.StaticRoot, ThrottleSecs: cfg.ThrottleSecs})
	if cfg.ConfigPath != "" {
		w, err := config.NewWatcher(cfg.ConfigPath, s.live.Set)
		if err != nil {
			return nil, fmt.Errorf("failed to create config watcher: %w", err)
		}
		if err := w.Start(); err != nil {
			return nil, fmt.Errorf("failed to start config watcher: %w", err)
		}
		s.watcher = w
		log.Info("watching config file for live reload", "path", cfg.ConfigPath)
	}

	s.initRouter()

	return s, nil
}

// Run starts the HTTP server in one goroutine and waits for either the
// registry to empty (clean exit) or a fatal error from an endpoint
// (producer-protocol-violation or internal-invariant-violation), whose
// propagation policy is fail-fast at the process boundary.
func (s *service) Run() error {
	defer s.cleanup()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		s.log.Info("starting report proxy server", "port", s.config.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		var shutdownErr error
		select {
		case shutdownErr = <-s.fatalErr:
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("error shutting down http server", "error", err)
		}
		return shutdownErr
	})

	return g.Wait()
}

// Router returns the configured Gin engine.
func (s *service) Router() *gin.Engine {
	return s.router
}

// triggerShutdown is the registry's onEmpty hook (P4: shutdown liveness)
// and the handlers' fatal-error escape hatch (producer-protocol-violation,
// internal-invariant-violation). A nil err represents the clean-shutdown
// path. It only signals Run, which then shuts the HTTP server down
// gracefully and returns err; cmd/reportproxy exits non-zero on a
// non-nil error. Without a running Run (as in tests using Router), the
// signal has no effect on the server.
func (s *service) triggerShutdown(err error) {
	select {
	case s.fatalErr <- err:
	default:
	}
}

func (s *service) browserLauncher() registry.BrowserLauncher {
	opener := browser.Opener(browser.DefaultOpener{})
	if !s.config.LaunchBrowser {
		opener = browser.NopOpener{}
	}
	return func(reportName string) {
		base := s.config.DevServerURL
		if !s.config.UseNode {
			base = fmt.Sprintf("http://%s:%d", s.config.Server, s.config.Port)
		}
		viewerURL := fmt.Sprintf("%s/report/%s", base, url.PathEscape(reportName))
		if err := opener.Open(viewerURL); err != nil {
			s.log.Warn("failed to launch browser", "url", viewerURL, "error", err)
		}
	}
}

func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("reportproxy"))

	onFatal := func(err error) {
		if proxyerr.IsProtocolViolation(err) || proxyerr.IsInternalInvariantViolation(err) {
			s.log.Error("fatal endpoint error, shutting down", "error", err)
			s.triggerShutdown(err)
			return
		}
		s.log.Warn("endpoint error", "error", err)
	}

	routes.SetupRoutes(s.router, s.registry, onFatal, routes.Config{
		Live:         s.live,
		UseNode:      s.config.UseNode,
		DevServerURL: s.config.DevServerURL,
	}, s.log)
}

func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("reportproxy")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			s.log.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

func (s *service) cleanup() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

var _ Service = (*service)(nil)
