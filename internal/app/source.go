package app

import (
	"github.com/dshills/kblayout/internal/config"
	"github.com/dshills/kblayout/internal/layout"
	"github.com/dshills/kblayout/internal/logging"
	"github.com/dshills/kblayout/internal/platform"
)

// newReader builds the layout reader for the configured source kind.
// Polling queries the command; everything else reads the config files.
func newReader(cfg config.SourceConfig) layout.Reader {
	if cfg.Kind == config.SourcePoll {
		return layout.NewCommandReader(cfg.Command...)
	}
	return layout.NewFileReader(cfg.Paths...)
}

func newSource(cfg config.SourceConfig, reader layout.Reader, logger *logging.Logger) platform.Source {
	switch cfg.Kind {
	case config.SourcePoll:
		return platform.NewPollSource(reader,
			platform.WithInterval(cfg.PollInterval.Std()),
			platform.WithReadTimeout(cfg.ReadTimeout.Std()),
			platform.WithPollLogger(logger),
		)
	case config.SourceManual:
		return platform.NewManualSource()
	default:
		return platform.NewFileSource(cfg.Paths,
			platform.WithDebounce(cfg.Debounce.Std()),
			platform.WithChangeReader(reader),
			platform.WithFileLogger(logger),
		)
	}
}
