package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/paulwilltell/carbonplane/internal/calc"
	"github.com/paulwilltell/carbonplane/internal/config"
	"github.com/paulwilltell/carbonplane/internal/db"
	"github.com/paulwilltell/carbonplane/internal/emissionfactor"
	"github.com/paulwilltell/carbonplane/internal/events"
	"github.com/paulwilltell/carbonplane/internal/flowchart"
	"github.com/paulwilltell/carbonplane/internal/ingestion"
	"github.com/paulwilltell/carbonplane/internal/ingestion/sources/aws"
	"github.com/paulwilltell/carbonplane/internal/ingestion/sources/azure"
	"github.com/paulwilltell/carbonplane/internal/ingestion/sources/gcp"
	"github.com/paulwilltell/carbonplane/internal/logging"
	"github.com/paulwilltell/carbonplane/internal/measurement"
	"github.com/paulwilltell/carbonplane/internal/observability"
	"github.com/paulwilltell/carbonplane/internal/ratelimit"
	"github.com/paulwilltell/carbonplane/internal/reduction"
	"github.com/paulwilltell/carbonplane/internal/scheduler"
	"github.com/paulwilltell/carbonplane/internal/summary"
	"github.com/paulwilltell/carbonplane/internal/worker"
)

// measurementStore is the full surface cmd/worker's collaborators need out
// of a measurement store: measurement.Repository for the ingestion
// pipeline plus the stream-enumeration and range-scan methods the
// scheduler and summary materialiser each need (internal/scheduler.
// MeasurementStore, internal/summary.MeasurementLookup). Both the
// in-memory and pgx-backed repositories implement it.
type measurementStore interface {
	measurement.Repository
	AllStreamsForClient(clientID string) []measurement.Key
	EntriesInRange(ctx context.Context, clientID string, from, to int64) ([]measurement.Entry, error)
}

// reductionStore is the equivalent full surface for the offset ledger.
type reductionStore interface {
	reduction.Repository
	EntriesInRange(ctx context.Context, clientID string, from, to int64) ([]reduction.Entry, error)
}

func main() {
	logger := logging.New(logging.Config{
		Level:  slog.LevelInfo,
		Format: logging.FormatText,
		Output: os.Stdout,
	})

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownOTel, err := initOTelProviders(ctx, logger)
	if err != nil {
		logger.Warn("otel exporters not initialized", "error", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = shutdownOTel(shutdownCtx)
	}()

	loc, err := time.LoadLocation(cfg.Ingestion.Timezone)
	if err != nil {
		logger.Warn("falling back to UTC, invalid timezone", "timezone", cfg.Ingestion.Timezone, "error", err)
		loc = time.UTC
	}

	// When a DSN is configured, the data plane runs on the pgx-backed
	// stores in internal/db (flowcharts/entries/emission_summaries/
	// reduction_entries); otherwise it falls back to the in-process
	// repositories the package test suites use, so the worker still runs
	// standalone for local development.
	var dbConn *db.DB
	if cfg.Database.DSN != "" {
		dbConn, err = db.Connect(ctx, db.Config{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer dbConn.Close()

		if err := dbConn.RunMigrations(ctx); err != nil {
			logger.Error("database migrations failed", "error", err)
			os.Exit(1)
		}
	}

	// Core prometheus instruments: one registry, shared by the ingestion,
	// calc, summary, and scheduler packages below. Disabled entirely when
	// CARBONPLANE_ENABLE_METRICS=false, in which case every *Metrics field
	// passed to those packages stays nil and recording is skipped.
	var coreMetrics *observability.Metrics
	if cfg.Features.EnableMetrics {
		metricsHandler := observability.NewMetricsHandler()
		coreMetrics = observability.NewMetrics(metricsHandler.Registry())
		metricsSrv := &http.Server{Addr: cfg.Features.MetricsListenAddr, Handler: metricsHandler.Handler()}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	// eventBus is the in-process fan-out every subscriber within this
	// binary attaches to; when a database is configured it is wrapped in
	// an outbox so a publish survives a crash between the insert and the
	// in-memory dispatch.
	eventBus := events.NewInMemoryBus()
	var bus events.Bus = eventBus
	if dbConn != nil {
		outbox := events.NewOutboxStore(dbConn.DB, eventBus)
		bus = outbox

		drainTicker := time.NewTicker(30 * time.Second)
		go func() {
			defer drainTicker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-drainTicker.C:
					n, err := outbox.Drain(ctx, 100)
					if err != nil {
						logger.Warn("event outbox drain failed", "error", err)
						continue
					}
					if n > 0 {
						logger.Info("event outbox drained", "count", n)
					}
				}
			}
		}()
	}

	// Core data plane: flowchart -> measurement -> summary/reduction,
	// wired per internal/flowchart, internal/measurement, internal/summary
	// and internal/reduction's own Config shapes.
	var (
		fcRepo         flowchart.Repository
		measRepo       measurementStore
		reductRepo     reductionStore
		summaryRepo    summary.Repository
		collectConfigs scheduler.CollectionConfigStore
	)
	if dbConn != nil {
		logger.Info("data plane backed by postgres", "component", "flowchart,measurement,summary,reduction")
		fcRepo = db.NewFlowchartRepository(dbConn)
		measRepo = db.NewMeasurementRepository(dbConn)
		reductRepo = db.NewReductionRepository(dbConn)
		summaryRepo = db.NewSummaryRepository(dbConn)
		collectConfigs = db.NewCollectionConfigRepository(dbConn)
	} else {
		logger.Warn("no database DSN configured; data plane running on in-memory repositories")
		fcRepo = flowchart.NewMemoryRepository()
		measRepo = measurement.NewInMemoryRepository()
		reductRepo = reduction.NewInMemoryRepository()
		summaryRepo = summary.NewInMemoryRepository()
	}
	fcService := flowchart.NewService(flowchart.ServiceConfig{Repository: fcRepo, Bus: bus, Logger: logger})

	factorRegistry := emissionfactor.NewMemoryRegistry(logger)
	emissionfactor.SeedDefaults(factorRegistry)
	calcEngine := calc.NewEngine(factorRegistry).WithMetrics(coreMetrics)

	materialiser := summary.NewMaterialiser(summary.Config{
		Repository:  summaryRepo,
		Measurement: measRepo,
		Reduction:   reductRepo,
		Flowchart:   fcService,
		Timezone:    loc,
		Logger:      logger,
		Metrics:     coreMetrics,
	})

	measService := measurement.NewService(measurement.Config{
		Repository:  measRepo,
		Flowchart:   measurement.FlowchartAdapter{Service: fcService},
		Calculator:  calcEngine,
		Invalidator: materialiser,
		Bus:         bus,
		Timezone:    loc,
		Logger:      logger,
		Metrics:     coreMetrics,
	})

	reductLedger := reduction.NewLedger(reduction.Config{
		Repository:  reductRepo,
		Invalidator: materialiser,
		Bus:         bus,
		Logger:      logger,
	})
	_ = reductLedger // the offset ledger's Record operation is exercised via the API layer, not the worker loop

	sched, err := scheduler.FromConfig(cfg.Scheduler, measRepo, fcService, collectConfigs, materialiser, bus, logger, coreMetrics)
	if err != nil {
		logger.Error("scheduler configuration error", "error", err)
		os.Exit(1)
	}
	sched.Start(ctx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		if err := sched.Stop(stopCtx); err != nil {
			logger.Warn("scheduler stop timed out", "error", err)
		}
	}()

	// Cloud-cost API-poll adapters feed the ingestion.Service's Activity
	// store; the worker bridge job below replays them into the
	// measurement pipeline under VariantAPIPoll. One shared Limiter
	// throttles every provider's billing API, keyed per-provider-per-org
	// so one tenant's poll cadence can't exhaust another's allowance.
	activityStore := ingestion.NewInMemoryActivityStore()
	adapters := make([]ingestion.SourceIngestionAdapter, 0, 3)
	start := time.Now().AddDate(0, 0, -cfg.Ingestion.LookbackDays)
	end := time.Now()
	cloudLimiter := ratelimit.New(ratelimit.DefaultConfig())
	defer cloudLimiter.Close()

	if cfg.Ingestion.AWS.Enabled {
		awsAdapter, err := aws.NewAdapter(aws.Config{
			AccessKeyID:     cfg.Ingestion.AWS.AccessKeyID,
			SecretAccessKey: cfg.Ingestion.AWS.SecretAccessKey,
			Region:          cfg.Ingestion.AWS.Region,
			RoleARN:         cfg.Ingestion.AWS.RoleARN,
			AccountID:       cfg.Ingestion.AWS.AccountID,
			OrgID:           cfg.Ingestion.AWS.ClientID,
			StartDate:       start,
			EndDate:         end,
			Limiter:         cloudLimiter,
		})
		if err != nil {
			logger.Warn("aws adapter disabled due to config error", "error", err)
		} else {
			adapters = append(adapters, awsAdapter)
		}
	}

	if cfg.Ingestion.Azure.Enabled {
		azureAdapter, err := azure.NewAdapter(azure.Config{
			TenantID:       cfg.Ingestion.Azure.TenantID,
			ClientID:       cfg.Ingestion.Azure.ClientID,
			ClientSecret:   cfg.Ingestion.Azure.ClientSecret,
			SubscriptionID: cfg.Ingestion.Azure.SubscriptionID,
			OrgID:          cfg.Ingestion.Azure.CarbonClientID,
			StartDate:      start,
			EndDate:        end,
			Limiter:        cloudLimiter,
		})
		if err != nil {
			logger.Warn("azure adapter disabled due to config error", "error", err)
		} else {
			adapters = append(adapters, azureAdapter)
		}
	}

	if cfg.Ingestion.GCP.Enabled {
		gcpAdapter, err := gcp.NewAdapter(gcp.Config{
			ProjectID:         cfg.Ingestion.GCP.ProjectID,
			BillingAccountID:  cfg.Ingestion.GCP.BillingAccountID,
			BigQueryDataset:   cfg.Ingestion.GCP.BigQueryDataset,
			BigQueryTable:     cfg.Ingestion.GCP.BigQueryTable,
			ServiceAccountKey: cfg.Ingestion.GCP.ServiceAccountKey,
			OrgID:             cfg.Ingestion.GCP.CarbonClientID,
			StartDate:         start,
			EndDate:           end,
			Limiter:           cloudLimiter,
		})
		if err != nil {
			logger.Warn("gcp adapter disabled due to config error", "error", err)
		} else {
			adapters = append(adapters, gcpAdapter)
		}
	}

	if len(adapters) == 0 {
		logger.Warn("no cloud-cost ingestion adapters enabled; worker API-poll ingestion will be idle")
	}

	ingestionService := &ingestion.Service{
		Adapters:       adapters,
		Store:          activityStore,
		Logger:         logger,
		Logs:           ingestion.NewInMemoryLogStore(),
		ConnectorStore: ingestion.NewInMemoryConnectorStatusStore(),
	}

	workerCfg := worker.FromEnv()
	metrics := worker.NewMetricsRecorder()
	alerts := worker.NewAlertQueue(bus, logger, 256)

	logger.Info("worker starting",
		"ingestion_every", workerCfg.IngestionInterval.String(),
		"recalc_every", workerCfg.RecalcInterval.String(),
		"alert_every", workerCfg.AlertInterval.String(),
	)

	alerts.Start(ctx)

	runner := worker.NewRunner(logger, []worker.JobSpec{
		{
			Job:            worker.IngestionJob{Service: ingestionService, Logger: logger},
			Every:          workerCfg.IngestionInterval,
			Timeout:        workerCfg.DefaultTimeout,
			RetryLimit:     workerCfg.DefaultRetryLimit,
			BackoffInitial: workerCfg.DefaultBackoff,
			BackoffMax:     workerCfg.DefaultBackoffMax,
			Jitter:         workerCfg.DefaultJitter,
		},
		{
			Job:            worker.APIPollBridgeJob{Store: activityStore, Ingestion: measService, Logger: logger},
			Every:          workerCfg.RecalcInterval,
			Timeout:        workerCfg.DefaultTimeout,
			RetryLimit:     workerCfg.DefaultRetryLimit,
			BackoffInitial: workerCfg.DefaultBackoff,
			BackoffMax:     workerCfg.DefaultBackoffMax,
			Jitter:         workerCfg.DefaultJitter,
		},
		{
			Job:            worker.AlertJob{Bus: bus, Logger: logger},
			Every:          workerCfg.AlertInterval,
			Timeout:        15 * time.Second,
			RetryLimit:     1,
			BackoffInitial: 1 * time.Second,
			BackoffMax:     5 * time.Second,
			Jitter:         workerCfg.DefaultJitter,
		},
	}, metrics, alerts)

	runner.Start(ctx)
	runner.Wait()
	logger.Info("worker shutdown complete")
}

// initOTelProviders wires the OTLP metrics and trace exporters if
// OTEL_EXPORTER_OTLP_ENDPOINT is set, delegating to
// internal/observability so the worker and any other binary share one
// exporter-setup path instead of each hand-rolling the SDK wiring.
// Returns a combined shutdown func, always non-nil.
func initOTelProviders(ctx context.Context, logger *slog.Logger) (func(context.Context) error, error) {
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	cfg := observability.TracerConfig{
		ServiceName:    "carbonplane-worker",
		ServiceVersion: "",
		Environment:    os.Getenv("APP_ENV"),
		OTLPEndpoint:   stripScheme(endpoint),
	}

	shutdownMetrics, err := observability.InitMeterProvider(ctx, cfg)
	if err != nil {
		return func(context.Context) error { return nil }, err
	}
	shutdownTracer, err := observability.InitTracerProvider(ctx, cfg)
	if err != nil {
		return shutdownMetrics, err
	}

	if endpoint != "" {
		logger.Info("otel exporters initialized", "endpoint", endpoint)
	}

	return func(shutdownCtx context.Context) error {
		errMetrics := shutdownMetrics(shutdownCtx)
		errTracer := shutdownTracer(shutdownCtx)
		if errMetrics != nil {
			return errMetrics
		}
		return errTracer
	}, nil
}

func stripScheme(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") {
		return strings.TrimPrefix(endpoint, "http://")
	}
	if strings.HasPrefix(endpoint, "https://") {
		return strings.TrimPrefix(endpoint, "https://")
	}
	return endpoint
}
