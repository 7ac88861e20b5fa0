package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cross/api/tcp"
	"cross/config"
	"cross/domain/book"
	"cross/infra/feed"
	"cross/infra/sequence"
	"cross/infra/store"
	"cross/jobs/broadcaster"
	"cross/metrics"
	"cross/notify"
	"cross/service"
	"cross/users"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------------- Store ----------------

	st, err := store.Open(cfg.Store.Dir)
	if err != nil {
		return err
	}
	defer st.Close()

	// ---------------- Metrics ----------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	met := metrics.New(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics endpoint failed", zap.Error(err))
		}
	}()

	// ---------------- Users + notifications ----------------

	sessions := users.NewManager(st, cfg.Server.InactivityTimeout, log.Named("users"))

	notifier, err := notify.New(sessions, log.Named("notify"))
	if err != nil {
		return err
	}
	defer notifier.Close()

	// ---------------- Engine ----------------

	sinks := service.Sinks{
		Trades:   st,
		Updates:  st,
		Notifier: notifier,
	}

	if cfg.Kafka.Enabled {
		producer := feed.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.FeedTopic)
		defer producer.Close()
		sinks.Feed = producer

		bc, err := broadcaster.New(st, cfg.Kafka.Brokers, cfg.Kafka.OutboxTopic,
			cfg.Kafka.BroadcastInterval, log.Named("broadcaster"))
		if err != nil {
			return err
		}
		defer bc.Close()
		bc.Start(ctx)
	}

	svc := service.NewOrderService(
		book.New(),
		sequence.New(0),
		sinks,
		met,
		log.Named("engine"),
	)

	// ---------------- API ----------------

	srv := tcp.NewServer(svc, sessions, historyAdapter{st}, cfg.Server.MaxConns, log.Named("tcp"))

	log.Info("cross engine starting",
		zap.String("listen", cfg.Server.ListenAddr),
		zap.String("metrics", cfg.Server.MetricsAddr),
		zap.Bool("kafka", cfg.Kafka.Enabled),
	)
	return srv.Serve(ctx, cfg.Server.ListenAddr)
}

// historyAdapter bridges the store's daily aggregates to the API layer.
type historyAdapter struct {
	st *store.Store
}

func (a historyAdapter) PriceHistory(month string) ([]tcp.HistoryDayStats, error) {
	days, err := a.st.PriceHistory(month)
	if err != nil {
		return nil, err
	}
	out := make([]tcp.HistoryDayStats, 0, len(days))
	for _, d := range days {
		out = append(out, tcp.HistoryDayStats{
			Day:    d.Day,
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: d.Volume,
		})
	}
	return out, nil
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
