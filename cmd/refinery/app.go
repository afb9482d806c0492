package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/refinery/config"
	"github.com/hupe1980/refinery/core"
	"github.com/hupe1980/refinery/events"
	natsevents "github.com/hupe1980/refinery/events/nats"
	"github.com/hupe1980/refinery/logging"
	"github.com/hupe1980/refinery/loop"
	"github.com/hupe1980/refinery/metrics"
	"github.com/hupe1980/refinery/model"
	"github.com/hupe1980/refinery/model/anthropic"
	"github.com/hupe1980/refinery/model/openai"
	"github.com/hupe1980/refinery/pipeline"
	"github.com/hupe1980/refinery/runner"
	"github.com/hupe1980/refinery/steps"
	"github.com/hupe1980/refinery/store"
)

// app holds the wired components for one CLI invocation.
type app struct {
	runner  *runner.Runner
	logger  *logging.RunLogger
	closers []func(context.Context) error
}

// Close releases every resource opened by newApp in reverse order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newApp wires model, steps, loop, pipeline and runner from cfg. progress
// receives lifecycle events for console output and may be nil.
func newApp(cfg *config.Config, progress events.Sink, logOut io.Writer) (*app, error) {
	logger, err := newLogger(cfg.Logging, logOut)
	if err != nil {
		return nil, err
	}

	m, err := newModel(cfg.Model, cfg.Loop.Sentinel)
	if err != nil {
		return nil, err
	}

	p := newPipeline(cfg, m, logger)

	a := &app{logger: logger}

	sinks := []events.Sink{progress}
	if cfg.Events.NATS.Enabled {
		nc, err := natsevents.Connect(cfg.Events.NATS.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return nc.Drain() })
		sinks = append(sinks, natsevents.NewSink(nc, cfg.Events.NATS.SubjectPrefix))
		logger.Info("Publishing run events", "url", cfg.Events.NATS.URL, "prefix", cfg.Events.NATS.SubjectPrefix)
	}

	st := store.NewInMemoryStore()
	recorder := metrics.NoOp()
	if cfg.Metrics.Enabled {
		rec, handler, err := metrics.NewPrometheus()
		if err != nil {
			_ = a.Close(context.Background())
			return nil, err
		}
		recorder = rec
		srv, err := serve(cfg.Metrics, newRouter(cfg.Metrics.Path, handler, st), logger)
		if err != nil {
			_ = a.Close(context.Background())
			return nil, err
		}
		a.closers = append(a.closers, srv.Shutdown)
	}

	a.runner = runner.New(p, func(o *runner.Options) {
		o.MaxConcurrentRuns = cfg.Runner.MaxConcurrentRuns
		o.Store = st
		o.Sinks = sinks
		o.Metrics = recorder
		o.Logger = logger
	})

	return a, nil
}

func newLogger(cfg config.LoggingConfig, out io.Writer) (*logging.RunLogger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    strings.ToLower(cfg.Format),
		Output:    out,
		AddSource: cfg.AddSource,
	}), nil
}

// newModel creates the provider adapter selected by cfg.
func newModel(cfg config.ModelConfig, sentinel string) (model.Model, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = config.ProviderAPIKey(cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.APIKey = apiKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.APIKey = apiKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
		}), nil
	case config.ProviderMock:
		return demoModel(sentinel), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}

// newPipeline builds the writer stage and the refinement loop.
func newPipeline(cfg *config.Config, m model.Model, logger *logging.RunLogger) *pipeline.Pipeline {
	common := []steps.Option{
		steps.WithSentinel(cfg.Loop.Sentinel),
		steps.WithLogger(logger),
		steps.WithStreaming(cfg.Model.Streaming),
	}
	if cfg.Model.MaxCalls > 0 {
		common = append(common, steps.WithLimiter(core.NewCallLimiter(cfg.Model.MaxCalls)))
	}

	withInstruction := func(tmpl string) []steps.Option {
		opts := append([]steps.Option(nil), common...)
		if tmpl != "" {
			opts = append(opts, steps.WithInstruction(tmpl))
		}
		return opts
	}

	writer := steps.NewWriter(m, withInstruction(cfg.Pipeline.WriterInstruction)...)
	critic := steps.NewCritic(m, withInstruction(cfg.Pipeline.CriticInstruction)...)
	refiner := steps.NewRefiner(m, withInstruction(cfg.Pipeline.RefinerInstruction)...)

	loopOpts := append(cfg.Loop.Options(), loop.WithLogger(logger.WithComponent("loop")))
	l := loop.New(critic, refiner, loopOpts...)

	return pipeline.New(writer, l,
		pipeline.WithDefaultTopic(cfg.Pipeline.DefaultTopic),
		pipeline.WithLogger(logger),
	)
}

// demoModel answers the default prompts offline. The critic rejects the
// short draft, the refiner completes the story and the critic then approves
// it with sentinel.
func demoModel(sentinel string) *model.MockModel {
	const final = "A robot named Unit 7 swept the factory floor every night. " +
		"One evening the hum of the machines sounded almost like a song, and a warm flicker stirred in its circuits. " +
		"It paused beside the window and watched the sunrise paint the walls gold. " +
		"From then on, Unit 7 swept a little slower, saving the dawn for last."

	m := model.NewMockModel("demo")
	m.AddRule("saving the dawn for last", model.TextResponse(sentinel))
	m.AddRule("refining a document", model.TextResponse(final))
	m.AddRule("Constructive Critic", model.TextResponse(
		"The draft is too short. Add a sensory detail and give the story a clear ending."))
	m.AddRule("starting a story", model.TextResponse(
		"A robot named Unit 7 swept the factory floor. One day it felt something new."))
	return m
}
