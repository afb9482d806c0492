// Command refinery drafts a document from a topic and refines it through a
// bounded critique/refine loop.
//
// Usage:
//
//	refinery run --topic "a lighthouse keeper's last night"
//	refinery batch --file topics.txt --provider anthropic
//	refinery catalog --docs docs/integrations --out catalog.html
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/hupe1980/refinery/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Draft and refine a single document."`
	Batch   BatchCmd   `cmd:"" help:"Refine one document per topic concurrently."`
	Catalog CatalogCmd `cmd:"" help:"Render the integrations catalog page from markdown docs."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config    string   `short:"c" help:"Path to config file." type:"path"`
	EnvFile   []string `name:"env-file" help:"Additional .env files to load." type:"path"`
	LogLevel  string   `help:"Log level (debug, info, warn, error)."`
	LogFormat string   `help:"Log format (text, json)."`

	Provider      string `help:"Model provider (openai, anthropic, mock)."`
	Model         string `help:"Model name."`
	MaxIterations int    `name:"max-iterations" help:"Maximum critique/refine iterations."`
	NATSURL       string `name:"nats-url" help:"Publish run events to this NATS server."`
	MetricsAddr   string `name:"metrics-addr" help:"Serve Prometheus metrics on this address."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("refinery version %s\n", version())
	return nil
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

// loadConfig reads the config file and applies flag overrides on top.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *CLI) apply(cfg *config.Config) {
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.Logging.Format = c.LogFormat
	}
	if c.Provider != "" {
		cfg.Model.Provider = c.Provider
	}
	if c.Model != "" {
		cfg.Model.Name = c.Model
	}
	if c.MaxIterations != 0 {
		cfg.Loop.MaxIterations = c.MaxIterations
	}
	if c.NATSURL != "" {
		cfg.Events.NATS.Enabled = true
		cfg.Events.NATS.URL = c.NATSURL
	}
	if c.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = c.MetricsAddr
	}
}

func newParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	opts = append([]kong.Option{
		kong.Name("refinery"),
		kong.Description("Iterative document refinement with a writer, a critic and a refiner."),
		kong.UsageOnError(),
	}, opts...)
	return kong.New(cli, opts...)
}

func main() {
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := config.LoadEnvFiles(append([]string{".env.local", ".env"}, cli.EnvFile...)...); err != nil {
		ctx.FatalIfErrorf(err)
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
