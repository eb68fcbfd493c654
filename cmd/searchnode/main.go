// searchnode runs a reference search service. It answers history and
// subscribe requests from an item store and pushes matching items to live
// subscribers. Items can be fed from a JSON lines file of Atom entries.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/drblury/streamsearch"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath   string
	store        string
	dsn          string
	jid          string
	demoFeed     string
	feedInterval time.Duration
}

func parseFlags(args []string) (flags, error) {
	var f flags
	flagSet := pflag.NewFlagSet("searchnode", pflag.ContinueOnError)
	flagSet.StringVarP(&f.configPath, "config", "c", "", "path to the YAML configuration file")
	flagSet.StringVar(&f.store, "store", "", "item store driver: memory, sqlite3 or postgres (overrides store_driver)")
	flagSet.StringVar(&f.dsn, "dsn", "", "data source name of the SQL store (overrides store_dsn)")
	flagSet.StringVar(&f.jid, "jid", "", "address the node answers on (default: the configured service)")
	flagSet.StringVar(&f.demoFeed, "demo-feed", "", "JSON lines file of items published after startup")
	flagSet.DurationVar(&f.feedInterval, "feed-interval", time.Second, "delay between items of the demo feed")
	return f, flagSet.Parse(args)
}

func loadConfig(f flags) (*streamsearch.Config, error) {
	conf := &streamsearch.Config{PubSubSystem: "channel"}
	if f.configPath != "" {
		var err error
		if conf, err = streamsearch.LoadConfig(f.configPath); err != nil {
			return nil, err
		}
	}
	if f.store != "" {
		conf.StoreDriver = f.store
	}
	if f.dsn != "" {
		conf.StoreDSN = f.dsn
	}
	switch {
	case f.jid != "":
		conf.JID = f.jid
	case conf.JID == "":
		conf.JID = conf.ServiceAddress()
	}
	return conf, streamsearch.ValidateConfig(conf)
}

// readFeed decodes one Atom entry per non-empty line.
func readFeed(r io.Reader) ([]streamsearch.AtomEntry, error) {
	var items []streamsearch.AtomEntry
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var item streamsearch.AtomEntry
		if err := streamsearch.Unmarshal(scanner.Bytes(), &item); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, item)
	}
	return items, scanner.Err()
}

func publishFeed(ctx context.Context, n *streamsearch.Node, items []streamsearch.AtomEntry, interval time.Duration, logger streamsearch.ServiceLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for _, item := range items {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		sent, err := n.Publish(ctx, item)
		if err != nil {
			logger.Error("Could not publish feed item", err, streamsearch.LogFields{"item_id": item.ID})
			continue
		}
		logger.Debug("Feed item published", streamsearch.LogFields{"title": item.Title, "count": sent})
	}
}

func run(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	conf, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger := streamsearch.NewSlogServiceLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	var feed []streamsearch.AtomEntry
	if f.demoFeed != "" {
		file, err := os.Open(f.demoFeed)
		if err != nil {
			return err
		}
		feed, err = readFeed(file)
		_ = file.Close()
		if err != nil {
			return fmt.Errorf("read %s: %w", f.demoFeed, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := streamsearch.OpenStore(ctx, conf.StoreDriver, conf.StoreDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	svc, err := streamsearch.TryNewService(conf, logger, ctx, streamsearch.ServiceDependencies{})
	if err != nil {
		_ = store.Close()
		return err
	}
	defer svc.Close()

	n, err := svc.AttachNode(store)
	if err != nil {
		_ = store.Close()
		return err
	}
	logger.Info("Search node ready", streamsearch.LogFields{"jid": svc.JID(), "store": conf.StoreDriver})

	if len(feed) > 0 {
		go publishFeed(ctx, n, feed, f.feedInterval, logger)
	}
	return svc.Start(ctx)
}
