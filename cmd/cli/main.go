package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/paulwilltell/carbonplane/internal/calc"
	"github.com/paulwilltell/carbonplane/internal/config"
	"github.com/paulwilltell/carbonplane/internal/db"
	"github.com/paulwilltell/carbonplane/internal/emissionfactor"
	"github.com/paulwilltell/carbonplane/internal/flowchart"
	"github.com/paulwilltell/carbonplane/internal/logging"
	"github.com/paulwilltell/carbonplane/internal/measurement"
	"github.com/paulwilltell/carbonplane/internal/reduction"
	"github.com/paulwilltell/carbonplane/internal/summary"
)

// measurementStore and reductionStore widen the narrow package
// repository interfaces to the full surface the scheduler and summary
// materialiser need (stream enumeration, range scans); see cmd/worker for
// the identical definitions.
type measurementStore interface {
	measurement.Repository
	AllStreamsForClient(clientID string) []measurement.Key
	EntriesInRange(ctx context.Context, clientID string, from, to int64) ([]measurement.Entry, error)
}

type reductionStore interface {
	reduction.Repository
	EntriesInRange(ctx context.Context, clientID string, from, to int64) ([]reduction.Entry, error)
}

type summaryStore interface {
	summary.Repository
	summary.Lister
}

func main() {
	logger := logging.New(logging.Config{
		Level:  slog.LevelInfo,
		Format: logging.FormatText,
		Output: os.Stdout,
	})

	if len(os.Args) < 2 {
		fmt.Println("usage: carbonplane <command> [args]")
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "seed-demo-client":
		if err := seedDemoClient(logger); err != nil {
			logger.Error("seed demo client failed", "error", err)
			os.Exit(1)
		}
	case "ingest-reading":
		if err := ingestReading(logger, os.Args[2:]); err != nil {
			logger.Error("ingest reading failed", "error", err)
			os.Exit(1)
		}
	case "summarize":
		if err := summarize(logger, os.Args[2:]); err != nil {
			logger.Error("summarize failed", "error", err)
			os.Exit(1)
		}
	case "backup":
		if err := backupSummaries(logger, os.Args[2:]); err != nil {
			logger.Error("backup failed", "error", err)
			os.Exit(1)
		}
	case "restore":
		if err := restoreSummaries(logger, os.Args[2:]); err != nil {
			logger.Error("restore failed", "error", err)
			os.Exit(1)
		}
	default:
		fmt.Printf("unknown command: %s\n", command)
		os.Exit(1)
	}
}

// runtime wires the same collaborators cmd/worker assembles, scaled down
// for one-shot CLI invocations rather than a long-running scheduler.
type runtime struct {
	ctx          context.Context
	cancel       context.CancelFunc
	db           *db.DB
	flowchart    *flowchart.Service
	measurement  *measurement.Service
	reduction    *reduction.Ledger
	materialiser *summary.Materialiser
	summaries    summaryStore
	logger       *slog.Logger
}

func buildRuntime(logger *slog.Logger) (*runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	var database *db.DB
	if cfg.Database.DSN != "" {
		database, err = db.Connect(ctx, db.Config{DSN: cfg.Database.DSN})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("connect db: %w", err)
		}
		if err := database.RunMigrations(ctx); err != nil {
			cancel()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	loc, err := time.LoadLocation(cfg.Ingestion.Timezone)
	if err != nil {
		loc = time.UTC
	}

	var (
		fcRepo      flowchart.Repository
		measRepo    measurementStore
		reductRepo  reductionStore
		summaryRepo summaryStore
	)
	if database != nil {
		fcRepo = db.NewFlowchartRepository(database)
		measRepo = db.NewMeasurementRepository(database)
		reductRepo = db.NewReductionRepository(database)
		summaryRepo = db.NewSummaryRepository(database)
	} else {
		fcRepo = flowchart.NewMemoryRepository()
		measRepo = measurement.NewInMemoryRepository()
		reductRepo = reduction.NewInMemoryRepository()
		summaryRepo = summary.NewInMemoryRepository()
	}

	fcService := flowchart.NewService(flowchart.ServiceConfig{
		Repository: fcRepo,
		Logger:     logger,
	})

	registry := emissionfactor.NewMemoryRegistry(logger)
	emissionfactor.SeedDefaults(registry)
	engine := calc.NewEngine(registry)

	materialiser := summary.NewMaterialiser(summary.Config{
		Repository:  summaryRepo,
		Measurement: measRepo,
		Reduction:   reductRepo,
		Flowchart:   fcService,
		Timezone:    loc,
		Logger:      logger,
	})

	measService := measurement.NewService(measurement.Config{
		Repository:  measRepo,
		Flowchart:   measurement.FlowchartAdapter{Service: fcService},
		Calculator:  engine,
		Invalidator: materialiser,
		Timezone:    loc,
		Logger:      logger,
	})

	reductLedger := reduction.NewLedger(reduction.Config{
		Repository:  reductRepo,
		Invalidator: materialiser,
		Logger:      logger,
	})

	return &runtime{
		ctx:          ctx,
		cancel:       cancel,
		db:           database,
		flowchart:    fcService,
		measurement:  measService,
		reduction:    reductLedger,
		materialiser: materialiser,
		summaries:    summaryRepo,
		logger:       logger,
	}, nil
}

func (rt *runtime) close() {
	rt.cancel()
	if rt.db != nil {
		_ = rt.db.Close()
	}
}

const demoClientID = "demo-client"
const demoNodeID = "site-a"
const demoScope = "DIESEL_GENSET"

func seedDemoClient(logger *slog.Logger) error {
	rt, err := buildRuntime(logger)
	if err != nil {
		return err
	}
	defer rt.close()

	_, _, err = rt.flowchart.UpsertFlowchart(rt.ctx, demoClientID, []flowchart.NodeUpsert{
		{
			ID:    demoNodeID,
			Label: "Site A Diesel Genset",
			Scopes: []flowchart.IncomingScope{
				{ScopeDescriptor: flowchart.ScopeDescriptor{
					ScopeIdentifier:  demoScope,
					InputType:        flowchart.InputManual,
					ScopeType:        emissionfactor.Scope1,
					CalculationModel: flowchart.Tier1,
				}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("seed flowchart: %w", err)
	}

	logger.Info("seeded demo client", "client_id", demoClientID, "node_id", demoNodeID, "scope", demoScope)
	return nil
}

func ingestReading(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("ingest-reading", flag.ExitOnError)
	clientID := fs.String("client", demoClientID, "client id")
	nodeID := fs.String("node", demoNodeID, "node id")
	scope := fs.String("scope", demoScope, "scope identifier")
	date := fs.String("date", "", "reading date, YYYY-MM-DD (defaults to today)")
	quantity := fs.Float64("quantity", 0, "fuel quantity reading")
	_ = fs.Parse(args)

	rt, err := buildRuntime(logger)
	if err != nil {
		return err
	}
	defer rt.close()

	entry, err := rt.measurement.Ingest(rt.ctx, *clientID, *nodeID, *scope, measurement.Input{
		Variant:    measurement.VariantManual,
		Date:       *date,
		DataValues: map[string]float64{"fuelConsumption": *quantity},
	})
	if err != nil {
		return fmt.Errorf("ingest reading: %w", err)
	}

	logger.Info("ingested reading",
		"entry_id", entry.ID,
		"co2e", entry.CalculatedEmissions.Incoming.CO2e,
	)
	return nil
}

func summarize(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	clientID := fs.String("client", demoClientID, "client id")
	_ = fs.Parse(args)

	rt, err := buildRuntime(logger)
	if err != nil {
		return err
	}
	defer rt.close()

	summaries, warnings, err := rt.materialiser.Recalculate(rt.ctx, *clientID, time.Now())
	if err != nil {
		return fmt.Errorf("recalculate: %w", err)
	}

	for _, s := range summaries {
		logger.Info("emission summary",
			"period_type", s.PeriodType,
			"total", s.Total,
			"unknown_scope_entries", s.Metadata.UnknownScopeEntryCount,
		)
	}
	for _, w := range warnings {
		logger.Warn("materialiser warning", "warning", w)
	}
	return nil
}

func backupSummaries(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	clientID := fs.String("client", demoClientID, "client id")
	out := fs.String("out", "", "output file (defaults to stdout)")
	incremental := fs.Bool("incremental", false, "only summaries recalculated after -since")
	sinceStr := fs.String("since", "", "cutoff for -incremental, YYYY-MM-DD")
	compress := fs.Bool("gzip", false, "gzip the output")
	_ = fs.Parse(args)

	rt, err := buildRuntime(logger)
	if err != nil {
		return err
	}
	defer rt.close()

	summaries, err := rt.summaries.ListByClient(rt.ctx, *clientID)
	if err != nil {
		return fmt.Errorf("list summaries: %w", err)
	}

	typ := summary.BackupFull
	var since time.Time
	if *incremental {
		typ = summary.BackupIncremental
		if *sinceStr != "" {
			since, err = time.Parse("2006-01-02", *sinceStr)
			if err != nil {
				return fmt.Errorf("parse -since: %w", err)
			}
		}
	}
	b := summary.NewBackup(summaries, typ, since, time.Now().UTC())

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create backup file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := summary.WriteBackup(w, b, *compress); err != nil {
		return err
	}
	logger.Info("backup written", "type", b.Type, "count", b.Count, "total_co2e", b.Metadata.TotalCO2e)
	return nil
}

func restoreSummaries(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	in := fs.String("in", "", "backup file to restore (required)")
	_ = fs.Parse(args)

	if *in == "" {
		return fmt.Errorf("restore: -in is required")
	}

	rt, err := buildRuntime(logger)
	if err != nil {
		return err
	}
	defer rt.close()

	f, err := os.Open(*in)
	if err != nil {
		return fmt.Errorf("open backup file: %w", err)
	}
	defer f.Close()

	b, err := summary.ReadBackup(f)
	if err != nil {
		return err
	}
	n, err := summary.Restore(rt.ctx, rt.summaries, b)
	if err != nil {
		return err
	}
	logger.Info("backup restored", "type", b.Type, "count", n)
	return nil
}
