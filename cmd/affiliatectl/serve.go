package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/affiliate"
	"github.com/xraph/affiliate/account"
	"github.com/xraph/affiliate/intake/queue"
	"github.com/xraph/affiliate/intake/webhook"
	"github.com/xraph/affiliate/observability"
	"github.com/xraph/affiliate/store/memory"
	affredis "github.com/xraph/affiliate/store/redis"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	addr         string
	kafkaBrokers string
	kafkaTopic   string
	kafkaGroup   string
	redisURL     string
}

func newServeCmd(g *globals) *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook intake and, when configured, consume Kafka",
		RunE: func(cmd *cobra.Command, _ []string) error {
			o.addr = stringFlag(cmd, "addr", "AFFILIATE_ADDR")
			o.kafkaBrokers = stringFlag(cmd, "kafka-brokers", "AFFILIATE_KAFKA_BROKERS")
			o.kafkaTopic = stringFlag(cmd, "kafka-topic", "AFFILIATE_KAFKA_TOPIC")
			o.kafkaGroup = stringFlag(cmd, "kafka-group", "AFFILIATE_KAFKA_GROUP")
			o.redisURL = stringFlag(cmd, "redis-url", "AFFILIATE_REDIS_URL")
			return runServe(cmd, g, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", ":8080", "HTTP listen address (env AFFILIATE_ADDR)")
	f.StringVar(&o.kafkaBrokers, "kafka-brokers", "", "comma separated Kafka brokers (env AFFILIATE_KAFKA_BROKERS)")
	f.StringVar(&o.kafkaTopic, "kafka-topic", "payments", "Kafka topics, comma separated (env AFFILIATE_KAFKA_TOPIC)")
	f.StringVar(&o.kafkaGroup, "kafka-group", "affiliate", "Kafka consumer group (env AFFILIATE_KAFKA_GROUP)")
	f.StringVar(&o.redisURL, "redis-url", "", "Redis for accounts and transaction locks (env AFFILIATE_REDIS_URL)")
	return cmd
}

func runServe(cmd *cobra.Command, g *globals, o *serveOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := g.catalog()
	if err != nil {
		return err
	}

	opts := []affiliate.Option{
		affiliate.WithLogger(g.logger),
		affiliate.WithPlugin(observability.NewMetricsExtension(
			observability.NewPrometheusFactory(prometheus.DefaultRegisterer),
		)),
	}

	var accounts account.Store = memory.NewAccounts()
	if o.redisURL != "" {
		client, err := affredis.Connect(o.redisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		accounts = affredis.NewAccounts(client)
		opts = append(opts, affiliate.WithLocker(affredis.NewLocker(client, affredis.WithLockLogger(g.logger))))
		g.logger.Info().Msg("using redis accounts and transaction locks")
	}

	engine := affiliate.New(memory.New(), cat, accounts, opts...)
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := engine.Store().Ping(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Mount("/webhooks", webhook.New(engine, webhook.WithLogger(g.logger)).Router())

	srv := &http.Server{
		Addr:              o.addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g.logger.Info().Str("addr", o.addr).Msg("webhook intake listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if o.kafkaBrokers != "" {
		reader, err := queue.NewReader(queue.ReaderConfig{
			Brokers: splitList(o.kafkaBrokers),
			GroupID: o.kafkaGroup,
			Topics:  splitList(o.kafkaTopic),
		})
		if err != nil {
			return err
		}
		consumer := queue.New(reader, engine, queue.WithLogger(g.logger))
		defer consumer.Close()
		eg.Go(func() error {
			g.logger.Info().Str("brokers", o.kafkaBrokers).Str("topic", o.kafkaTopic).Msg("queue intake consuming")
			return consumer.Run(egCtx)
		})
	}

	return eg.Wait()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
