// streamsearch subscribes to one or more real-time search queries and prints
// every result as a JSON line on stdout. Archived items come first for each
// query, followed by live items until the process is interrupted, at which
// point every subscription is torn down.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/drblury/streamsearch"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath   string
	apiKey       string
	service      string
	queries      []string
	contextCount int
	verbose      bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	flagSet := pflag.NewFlagSet("streamsearch", pflag.ContinueOnError)
	flagSet.StringVarP(&f.configPath, "config", "c", "", "path to the YAML configuration file")
	flagSet.StringVar(&f.apiKey, "api-key", "", "API key sent with every query (overrides api_key)")
	flagSet.StringVar(&f.service, "service", "", "address of the search service (overrides service)")
	flagSet.StringArrayVarP(&f.queries, "query", "q", nil, "search query; repeat for several queries")
	flagSet.IntVar(&f.contextCount, "context-count", 0, "number of archived items requested per query")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level on stderr")

	if err := flagSet.Parse(args); err != nil {
		return f, err
	}
	f.queries = append(f.queries, flagSet.Args()...)
	if len(f.queries) == 0 {
		return f, errors.New("at least one --query is required")
	}
	return f, nil
}

// loadConfig reads the configuration file and applies the flag overrides.
func loadConfig(f flags) (*streamsearch.Config, error) {
	conf := &streamsearch.Config{}
	if f.configPath != "" {
		var err error
		if conf, err = streamsearch.LoadConfig(f.configPath); err != nil {
			return nil, err
		}
	}
	if conf.PubSubSystem == "" {
		return nil, errors.New("pubsub_system is not configured; pass --config")
	}
	if f.apiKey != "" {
		conf.APIKey = f.apiKey
	}
	if f.service != "" {
		conf.Service = f.service
	}
	if f.contextCount > 0 {
		conf.ContextCount = f.contextCount
	}
	return conf, streamsearch.ValidateConfig(conf)
}

// record is the line printed for each event.
type record struct {
	Kind      streamsearch.EventKind  `json:"kind"`
	Query     string                  `json:"query"`
	Item      *streamsearch.AtomEntry `json:"item,omitempty"`
	Phase     streamsearch.Phase      `json:"phase,omitempty"`
	Condition string                  `json:"condition,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

func newRecord(ev streamsearch.Event) record {
	r := record{Kind: ev.Kind, Query: ev.Query}
	if ev.Failed() {
		r.Phase = ev.Err.Phase
		r.Condition = ev.Response().Condition()
		r.Error = ev.Err.Error()
		return r
	}
	atom, err := ev.Atom()
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Item = &atom
	return r
}

type printer struct {
	mu  sync.Mutex
	out io.Writer
	log streamsearch.ServiceLogger
}

func (p *printer) print(ev streamsearch.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := streamsearch.Encode(p.out, newRecord(ev)); err != nil {
		p.log.Error("Could not write event", err, streamsearch.LogFields{"query": ev.Query})
	}
}

func run(args []string, out io.Writer) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	conf, err := loadConfig(f)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := streamsearch.NewSlogServiceLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := streamsearch.TryNewService(conf, logger, ctx, streamsearch.ServiceDependencies{})
	if err != nil {
		return err
	}
	defer svc.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Start(ctx) }()
	select {
	case <-svc.Running():
	case err := <-runErr:
		return fmt.Errorf("start service: %w", err)
	}

	p := &printer{out: out, log: logger}
	for _, query := range f.queries {
		err := svc.Subscribe(ctx, query, streamsearch.Options{
			APIKey:       conf.APIKey,
			ContextCount: conf.ContextCount,
			Callback:     p.print,
		})
		if err != nil {
			return fmt.Errorf("subscribe %q: %w", query, err)
		}
	}

	<-ctx.Done()
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc.UnsubscribeAll(shutdown)
	return nil
}
