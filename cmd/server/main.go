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

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"termslens/internal/adapters/badgerstore"
	httpadapter "termslens/internal/adapters/http"
	"termslens/internal/adapters/memory"
	"termslens/internal/adapters/page"
	pg "termslens/internal/adapters/postgres"
	"termslens/internal/config"
	"termslens/internal/logging"
	"termslens/internal/messaging"
	"termslens/internal/metrics"
	"termslens/internal/ports"
	"termslens/internal/services/agent"
	"termslens/internal/services/analysis"
	"termslens/internal/services/classifier"
	"termslens/internal/services/coordinator"
	"termslens/internal/services/records"
	"termslens/internal/services/scanner"
	"termslens/internal/taxonomy"
	scanworker "termslens/internal/workers/scanrunner"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "termslens: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, logCloser, err := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}, "termslens", version)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New(true)
	bus := messaging.NewBus(log, m)

	fetcher := page.NewFetcher(
		page.WithRate(cfg.FetchRate),
		page.WithPrivateNetworks(cfg.FetchAllowPrivate),
		page.WithLogger(log),
	)
	agent.New(scanner.New(taxonomy.Default()), fetcher, log).Register(bus)

	var scorer analysis.Scorer = analysis.NewTimeSeededScorer()
	if cfg.ScoringMode == "fixed" {
		scorer = analysis.FixedScorer{}
	}
	engine := analysis.New(
		analysis.WithScorer(scorer),
		analysis.WithLatency(cfg.AnalysisLatency),
		analysis.WithLogger(log),
	)

	store := records.New(backend, log)
	m.WatchRecords(store, log)
	queue := scanworker.NewQueue(cfg.ScanQueueSize, log, m.QueueDepth)
	coord := coordinator.New(coordinator.Config{
		ScanTimeout:     cfg.ScanTimeout,
		AnalysisTimeout: cfg.AnalysisTimeout,
		AlertThreshold:  cfg.RiskThreshold,
	}, store, bus, classifier.New(classifier.DefaultRules), engine, queue, m, log)
	coord.Register(bus)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpadapter.New(coord, bus, m.Handler(), log).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return queue.Run(gctx, coord, cfg.ScanWorkers)
	})
	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": cfg.ListenAddr, "store": cfg.StoreBackend, "env": cfg.Env}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (ports.RecordStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect error: %w", err)
		}
		n, err := db.Migrate(ctx)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		log.WithField("applied", n).Info("migrations up to date")
		return db, db.Close, nil
	case config.BackendBadger:
		s, err := badgerstore.Open(badgerstore.Config{Path: cfg.BadgerPath, GCInterval: 5 * time.Minute, Logger: log})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.WithError(err).Warn("badger close")
			}
		}, nil
	default:
		log.Warn("using in-memory record store; records are lost on restart")
		return memory.New(), func() {}, nil
	}
}
