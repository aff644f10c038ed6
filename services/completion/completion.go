// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package completion provides the core service for the completion study.
//
// This package contains the main Service type that coordinates all
// components of the request lifecycle: HTTP routing, the experiment-arm
// study, the provider dispatcher, the completion record store, and
// observability infrastructure.
//
// # Usage
//
//	cfg := completion.Config{Port: 12220, StorePath: "./data/records"}
//	svc, err := completion.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AleutianAI/AleutianComplete/services/completion/dispatch"
	"github.com/AleutianAI/AleutianComplete/services/completion/handlers"
	"github.com/AleutianAI/AleutianComplete/services/completion/observability"
	"github.com/AleutianAI/AleutianComplete/services/completion/routes"
	"github.com/AleutianAI/AleutianComplete/services/completion/store"
	"github.com/AleutianAI/AleutianComplete/services/completion/study"
	"github.com/AleutianAI/AleutianComplete/services/providers"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the completion study service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds completion service configuration options.
//
// Values can be populated from environment variables, config files, or
// programmatically for testing. Zero values use defaults.
type Config struct {
	// Port is the HTTP server port. Default: 12220
	Port int

	// StorePath is the BadgerDB directory for completion records.
	// Required unless StoreInMemory is set.
	StorePath string

	// StoreInMemory uses an in-memory record store. Testing only.
	StoreInMemory bool

	// StudyConfigPath is an optional YAML file configuring the arm set,
	// session cache, and filter parameters. Empty uses study defaults.
	StudyConfigPath string

	// ProviderConfigPath is the YAML file describing the provider set.
	// Required unless Providers is set programmatically.
	ProviderConfigPath string

	// Providers overrides ProviderConfigPath with pre-built providers.
	Providers []providers.Provider

	// ProviderTimeout bounds each provider call in the fan-out so one
	// stalled backend cannot stall the batch. Default: 30s.
	ProviderTimeout time.Duration

	// SurveyLink is the external survey URL template; {user_id} is
	// substituted. Empty disables the survey redirect.
	SurveyLink string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Empty disables tracing.
	OTelEndpoint string

	// DisableMetrics turns off the Prometheus /metrics endpoint and
	// metric registration. Metrics are on by default.
	DisableMetrics bool

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// Fatal is the process-termination hook invoked on provider
	// resource exhaustion. Default: os.Exit(1). Tests override it.
	Fatal handlers.FatalFunc
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// Thread-safe after construction; all fields are read-only once New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	study         *study.Study
	dispatcher    *dispatch.Dispatcher
	recordStore   *store.Store
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a completion Service with the given configuration.
//
// # Description
//
// New initializes all components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing (if an endpoint is configured)
//  3. Initializes Prometheus metrics
//  4. Loads the study configuration and builds the arm registry + cache
//  5. Builds the provider set and dispatcher
//  6. Opens the completion record store
//  7. Sets up HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run service
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if !s.config.DisableMetrics && observability.DefaultMetrics == nil {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	studyCfg := study.DefaultConfig()
	if s.config.StudyConfigPath != "" {
		var err error
		studyCfg, err = study.LoadConfig(s.config.StudyConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load study config: %w", err)
		}
	}
	s.study = study.New(studyCfg, nil)
	slog.Info("Study initialized",
		"arms", studyCfg.Arms,
		"session_timeout", studyCfg.Cache.Timeout.String())

	if err := s.initDispatcher(); err != nil {
		return nil, fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
// Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting completion server",
		"port", s.config.Port,
		"providers", s.dispatcher.Providers())

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12220
	}
	if cfg.ProviderTimeout == 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	if cfg.Fatal == nil {
		cfg.Fatal = func() { os.Exit(1) }
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// Uses an insecure gRPC connection, appropriate for internal networks.
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
		resource.WithAttributes(semconv.ServiceNameKey.String("completion-service")))
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
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initDispatcher builds the provider set and the fan-out dispatcher.
func (s *service) initDispatcher() error {
	provs := s.config.Providers
	if len(provs) == 0 {
		if s.config.ProviderConfigPath == "" {
			return fmt.Errorf("no providers configured (set ProviderConfigPath or Providers)")
		}
		providerCfg, err := providers.LoadConfig(s.config.ProviderConfigPath)
		if err != nil {
			return err
		}
		provs, err = providers.Build(providerCfg)
		if err != nil {
			return err
		}
	}

	dispatcher, err := dispatch.New(provs, s.config.ProviderTimeout)
	if err != nil {
		return err
	}
	s.dispatcher = dispatcher
	return nil
}

// initStore opens the completion record store.
func (s *service) initStore() error {
	storeCfg := store.DefaultConfig()
	storeCfg.Path = s.config.StorePath
	storeCfg.InMemory = s.config.StoreInMemory
	if s.config.StoreInMemory {
		storeCfg.SyncWrites = false
	}

	recordStore, err := store.Open(storeCfg)
	if err != nil {
		return err
	}
	s.recordStore = recordStore
	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	if s.config.OTelEndpoint != "" {
		s.router.Use(otelgin.Middleware("completion-service"))
	}

	routes.SetupRoutes(s.router, s.study, s.dispatcher, s.recordStore,
		s.config.SurveyLink, !s.config.DisableMetrics, s.config.Fatal)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.recordStore != nil {
		if err := s.recordStore.Close(); err != nil {
			slog.Warn("record store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
