package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"tweetcastr/internal/config"
	"tweetcastr/internal/database"
	"tweetcastr/internal/database/boltstore"
	"tweetcastr/internal/database/sqlitestore"
	"tweetcastr/internal/metrics"
	"tweetcastr/internal/stream"
	"tweetcastr/internal/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

const usageText = `Usage: tweetcastr [-config path] [-audit] <collection> <max> [keywords...]

Streams matching posts into <collection> until it holds <max> documents.
Leave [keywords] blank for mining geo-enabled Tweets.
`

// errUsage means the arguments asked for help rather than a run.
var errUsage = errors.New("usage requested")

type options struct {
	configPath string
	audit      bool
	collection string
	max        int
	keywords   []string
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("tweetcastr", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usageText)
		fs.PrintDefaults()
	}

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	fs.BoolVar(&opts.audit, "audit", false, "append persisted text to <collection>.txt")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errUsage
		}
		return nil, err
	}

	rest := fs.Args()
	if len(rest) < 2 {
		fs.Usage()
		return nil, errUsage
	}

	opts.collection = strings.TrimSpace(rest[0])
	if opts.collection == "" {
		return nil, fmt.Errorf("collection name must not be empty")
	}

	target, err := strconv.Atoi(rest[1])
	if err != nil {
		return nil, fmt.Errorf("max must be an integer, got %q", rest[1])
	}
	opts.max = target
	opts.keywords = rest[2:]

	return opts, nil
}

func setupLogging(cfg config.LoggingConfig, out io.Writer) {
	switch strings.ToLower(cfg.Level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Use pretty console logging in development, JSON in production
	if strings.ToLower(cfg.Format) == "json" {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		})
	}
}

// openCollection opens the configured store and returns the named
// collection with a func releasing the store.
func openCollection(cfg config.StorageConfig, name string) (database.Collection, func() error, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlitestore.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		coll, err := store.Collection(name)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		return coll, store.Close, nil
	default:
		store, err := boltstore.Open(boltstore.Options{Path: cfg.Path})
		if err != nil {
			return nil, nil, err
		}
		coll, err := store.Collection(name)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		return coll, store.Close, nil
	}
}

// pipeline is the wired ingestion graph for one run.
type pipeline struct {
	session    *stream.Session
	supervisor *stream.Supervisor
	transport  *stream.WebsocketTransport
}

func buildPipeline(opts *options, cfg *config.Config, dest database.Collection) (*pipeline, error) {
	filter := stream.NewFilterConfig(cfg.Ingest.StopWords, dest, opts.max)

	var spec stream.FilterSpec
	if len(opts.keywords) == 0 {
		filter.SetGeoRegion(stream.ContinentalAmerica)
		spec = stream.GeoSpec()
	} else {
		spec = stream.KeywordSpec(opts.keywords)
	}
	if len(cfg.Stream.Languages) > 0 {
		spec.Languages = cfg.Stream.Languages
	}

	errLog := stream.NewErrorLog(cfg.Ingest.ErrorLog)
	sessionOpts := stream.SessionOptions{
		ErrorLog:       errLog,
		CoordinatesLog: stream.NewCoordinatesLog(cfg.Ingest.CoordinatesLog),
		MaxSeenKeys:    cfg.Ingest.MaxSeenKeys,
	}
	if opts.audit || cfg.Ingest.Audit {
		sessionOpts.TextLog = stream.NewTextLog(cfg.Ingest.AuditLogPath(opts.collection))
	}
	session := stream.NewSession(filter, sessionOpts)

	transport, err := stream.NewWebsocketTransport(stream.TransportConfig{
		Endpoint:         cfg.Stream.Endpoint,
		BearerToken:      cfg.Stream.BearerToken,
		Compress:         cfg.Stream.Compress,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		IdleTimeout:      cfg.Stream.IdleTimeout,
		ReadTimeout:      cfg.Stream.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}

	supervisor := stream.NewSupervisor(transport, session, stream.SupervisorConfig{
		Spec:           spec,
		RateLimitPause: cfg.Ingest.RateLimitPause,
		DialRetryDelay: cfg.Ingest.DialRetryDelay,
		ErrorLog:       errLog,
	})

	return &pipeline{session: session, supervisor: supervisor, transport: transport}, nil
}

func run(ctx context.Context, opts *options, cfg *config.Config) error {
	if cfg.Tracing.Enabled {
		tp, err := tracing.Init(ctx, cfg.Tracing.Endpoint)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Failed to flush traces")
			}
		}()
		log.Info().Str("endpoint", cfg.Tracing.Endpoint).Msg("Tracing enabled")
	}

	dest, closeStore, err := openCollection(cfg.Storage, opts.collection)
	if err != nil {
		return fmt.Errorf("open %s store at %s: %w", cfg.Storage.Driver, cfg.Storage.Path, err)
	}
	defer closeStore()

	log.Info().
		Str("driver", cfg.Storage.Driver).
		Str("path", cfg.Storage.Path).
		Str("collection", dest.Name()).
		Msg("Database opened")

	p, err := buildPipeline(opts, cfg, dest)
	if err != nil {
		return err
	}
	defer p.transport.Close()

	metrics.TargetCount.Set(float64(opts.max))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(cfg.Tracing.Enabled),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("address", cfg.Metrics.Addr).Msg("Starting metrics server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})

		metrics.StartCollector(gctx, metrics.StatsSource{
			DestinationSize: func() int {
				n, err := dest.Count(gctx)
				if err != nil {
					return -1
				}
				return n
			},
			SeenKeys:  func() int { return p.session.Stats().SeenKeys },
			Streaming: p.supervisor.IsStreaming,
		}, cfg.Metrics.CollectInterval)
	}

	g.Go(func() error {
		// Stop sibling goroutines once ingestion ends.
		defer cancel()
		return p.supervisor.Run(gctx)
	})

	err = g.Wait()

	stats := p.session.Stats()
	log.Info().
		Int64("received", stats.Received).
		Int64("persisted", stats.Persisted).
		Int64("duplicates", stats.Duplicates).
		Int64("ignored", stats.Ignored).
		Int64("errors", stats.Errors).
		Int64("subscriptions", p.supervisor.Subscriptions()).
		Bool("target_reached", p.supervisor.TargetReached()).
		Msg("Ingestion finished")

	return err
}

func metricsMux(traced bool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if traced {
		return otelhttp.NewHandler(mux, "metrics")
	}
	return mux
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, errUsage) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging, os.Stdout)

	log.Info().
		Str("collection", opts.collection).
		Int("max", opts.max).
		Strs("keywords", opts.keywords).
		Msg("Starting tweetcastr")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, cfg); err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}
}
