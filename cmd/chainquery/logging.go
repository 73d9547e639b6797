package main

import (
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"

	"github.com/tarancss/chainquery/lib/config"
)

// newLogger logs text to stdout and, when conf.File is set, JSON to that file.
func newLogger(conf config.LogConfig) (*slog.Logger, func() error, error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if conf.Debug {
		opts.Level = slog.LevelDebug
	}

	handlers := []slog.Handler{slog.NewTextHandler(os.Stdout, opts)}
	closer := func() error { return nil }

	if conf.File != "" {
		f, err := os.OpenFile(conf.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}

		handlers = append(handlers, slog.NewJSONHandler(f, opts))
		closer = f.Close
	}

	return slog.New(slogmulti.Fanout(handlers...)).With(slog.String("service", "chainquery")), closer, nil
}
