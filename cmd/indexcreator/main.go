// Command indexcreator builds a positional index and its document-length
// histogram from plain-text corpus files, one document per line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "indexcreator: %v\n", err)
	}
	os.Exit(apperrors.ExitCode(err))
}

type options struct {
	configPath  string
	noStem      bool
	textField   string
	lengthField string
	metricsPort int
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "indexcreator <indexOutputPath> <inputFile1> [inputFile2 ...]",
		Short: "Build a positional corpus index and its document-length histogram",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
				return apperrors.New(apperrors.ErrInvalidInput, "need an index output path and at least one input file")
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, opts, args[0], args[1:])
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().BoolVar(&opts.noStem, "no-stem", false, "index tokens without stemming")
	cmd.Flags().StringVar(&opts.textField, "text-field", "", "name of the text field (overrides config)")
	cmd.Flags().StringVar(&opts.lengthField, "length-field", "", "name of the document length field (overrides config)")
	cmd.Flags().IntVar(&opts.metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port while indexing")
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
		return apperrors.Newf(apperrors.ErrInvalidInput, "%v", err)
	})
	return cmd
}

func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "%v", err)
	}
	if opts.noStem {
		var kept []string
		for _, n := range cfg.Indexer.Normalizers {
			if n != "stem" {
				kept = append(kept, n)
			}
		}
		cfg.Indexer.Normalizers = kept
	}
	if opts.textField != "" {
		cfg.Indexer.TextField = opts.textField
	}
	if opts.lengthField != "" {
		cfg.Indexer.LengthField = opts.lengthField
	}
	if opts.metricsPort > 0 {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = opts.metricsPort
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "%v", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cobra.Command, opts options, destination string, inputs []string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	log := slog.Default().With("component", "indexcreator")

	pipeOpts := []pipeline.Option{pipeline.WithProgress(cmd.OutOrStdout())}
	checker := health.NewChecker(5 * time.Second)
	if cfg.Metrics.Enabled {
		m := metrics.Default()
		pipeOpts = append(pipeOpts, pipeline.WithMetrics(m))
		shutdown := metrics.StartServer(cfg.Metrics.Port, checker.ReadyHandler())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()
	}

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Warn("closing client", "error", err)
			}
		}
	}()
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("%w: connecting to redis: %w", apperrors.ErrIO, err)
		}
		closers = append(closers, client)
		checker.Register("redis", client)
		pipeOpts = append(pipeOpts, pipeline.WithSinks(histogram.NewRedisSink(client, cfg.Redis.TTL)))
	}
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("%w: connecting to postgres: %w", apperrors.ErrIO, err)
		}
		closers = append(closers, db)
		checker.Register("postgres", db)
		pipeOpts = append(pipeOpts, pipeline.WithSinks(histogram.NewPostgresSink(db)))
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		closers = append(closers, producer)
		checker.Register("kafka", producer)
		pipeOpts = append(pipeOpts, pipeline.WithPublisher(producer))
	}

	p, err := pipeline.New(cfg, pipeOpts...)
	if err != nil {
		return err
	}
	log.Info("indexing corpus",
		"destination", destination,
		"inputs", len(inputs),
		"normalizers", cfg.Indexer.Normalizers,
	)
	res, err := p.Run(ctx, destination, inputs)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("indexing interrupted; index left incomplete", "destination", destination)
		}
		return err
	}
	log.Info("index ready",
		"destination", destination,
		"build_id", res.Manifest.BuildID,
		"docs", res.Manifest.DocCount,
		"terms", res.Manifest.TermCount,
	)
	return nil
}
