package ilw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aponysus/ilw/config"
	"github.com/aponysus/ilw/observe"
	"github.com/aponysus/ilw/observe/otelobs"
	"github.com/aponysus/ilw/observe/promobs"
	"github.com/aponysus/ilw/observe/zerologobs"
	"github.com/aponysus/ilw/report/wsreport"
	"github.com/aponysus/ilw/store/sqlite"
	"github.com/aponysus/ilw/timeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Sink names registered by FromConfig.
const (
	SinkConsole = "console"
	SinkMetrics = "metrics"
	SinkTracing = "tracing"
	SinkPersist = "persist"
	SinkReport  = "report"
)

// Sinks overrides the defaults FromConfig uses for each sink. Zero fields
// fall back to process-wide defaults.
type Sinks struct {
	Console        io.Writer             // Defaults to os.Stderr.
	Registerer     prometheus.Registerer // Defaults to prometheus.DefaultRegisterer.
	TracerProvider trace.TracerProvider  // Defaults to otel.GetTracerProvider().
	Logger         *zerolog.Logger       // Internal diagnostics; defaults to zerolog.Nop().

	// Extra observers registered after the configured sinks.
	Extra map[string]observe.Observer
}

// Setup is the result of FromConfig.
type Setup struct {
	Logger   Logger
	Registry *observe.Registry

	closers []io.Closer
}

// Close releases the persist and report sinks.
func (s *Setup) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// FromConfig normalizes cfg, opens every sink it enables and returns a logger
// whose records reach them. Records below cfg.Level are dropped; settlements
// always pass. On error, sinks opened so far are closed.
func FromConfig(ctx context.Context, cfg config.Config, sinks Sinks, opts ...Option) (*Setup, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}

	diag := zerolog.Nop()
	if sinks.Logger != nil {
		diag = *sinks.Logger
	}

	setup := &Setup{Registry: observe.NewRegistry()}
	fail := func(err error) (*Setup, error) {
		_ = setup.Close()
		return nil, err
	}

	if cfg.Console {
		out := sinks.Console
		if out == nil {
			out = os.Stderr
		}
		setup.Registry.Register(SinkConsole, zerologobs.NewConsole(out, cfg.NoColor))
	}

	if cfg.Metrics {
		obs, err := newMetrics(sinks.Registerer, cfg.MetricsNamespace)
		if err != nil {
			return fail(err)
		}
		setup.Registry.Register(SinkMetrics, obs)
	}

	if cfg.Tracing {
		tp := sinks.TracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		setup.Registry.Register(SinkTracing, otelobs.New(tp.Tracer(cfg.ServiceName)))
	}

	if cfg.PersistPath != "" {
		store, err := sqlite.Open(cfg.PersistPath, sqlite.WithLogger(diag))
		if err != nil {
			return fail(fmt.Errorf("open persist sink: %w", err))
		}
		setup.closers = append(setup.closers, store)
		setup.Registry.Register(SinkPersist, store)
	}

	if cfg.ReportURL != "" {
		rep, err := wsreport.Dial(ctx, cfg.ReportURL, wsreport.WithLogger(diag))
		if err != nil {
			return fail(fmt.Errorf("open report sink: %w", err))
		}
		setup.closers = append(setup.closers, rep)
		setup.Registry.Register(SinkReport, rep)
	}

	for name, obs := range sinks.Extra {
		if err := setup.Registry.RegisterE(name, obs); err != nil {
			return fail(fmt.Errorf("register sink %q: %w", name, err))
		}
	}

	filter := observe.LevelFilter{Min: cfg.MinLevel(), Next: setup.Registry.Observer()}
	base := []Option{
		WithTimelineOptions(
			timeline.WithHistory(cfg.History),
			timeline.WithReadyZero(cfg.ReadyZero),
			timeline.WithLogger(diag),
		),
	}
	setup.Logger = New(append(append(base, opts...), WithObserver(filter))...)

	diag.Debug().
		Strs("sinks", setup.Registry.Names()).
		Str("level", cfg.Level).
		Msg("ilw configured")
	return setup, nil
}

// newMetrics converts the registration panic of promobs.New into an error.
func newMetrics(reg prometheus.Registerer, namespace string) (obs *promobs.Observer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("register metrics: %v", r)
		}
	}()
	return promobs.New(reg, namespace), nil
}
