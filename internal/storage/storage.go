package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mubureterrance/webscraper-scaffolding/internal/config"
	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// Sink persists the result of one harvest run.
type Sink interface {
	// Persist writes result and returns where it was stored.
	Persist(ctx context.Context, result *types.CrawlResult) (string, error)

	// Close releases resources held by the sink.
	Close() error

	// Name returns the sink identifier.
	Name() string
}

// NewFromConfig builds the sinks named in cfg.Types. More than one sink is
// wrapped in a MultiSink.
func NewFromConfig(cfg config.StorageConfig, logger *slog.Logger) (Sink, error) {
	sinks := make([]Sink, 0, len(cfg.Types))
	for _, t := range cfg.Types {
		var (
			s   Sink
			err error
		)
		switch t {
		case "json":
			s = NewJSONSink(cfg.OutputDir, logger)
		case "jsonl":
			s = NewJSONLSink(cfg.OutputDir, logger)
		case "csv":
			s = NewCSVSink(cfg.OutputDir, logger)
		case "summary":
			s = NewSummarySink(cfg.OutputDir, logger)
		case "mongo":
			s, err = NewMongoSink(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
		default:
			err = fmt.Errorf("unsupported sink type: %s", t)
		}
		if err != nil {
			for _, opened := range sinks {
				opened.Close()
			}
			return nil, &types.StorageError{Backend: t, Err: err}
		}
		sinks = append(sinks, s)
	}

	switch len(sinks) {
	case 0:
		return nil, &types.StorageError{Backend: "config", Err: fmt.Errorf("no sinks configured")}
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks, logger), nil
	}
}
