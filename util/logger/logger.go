package logger

import (
	"io"
	"os"

	"go-treedb/config"

	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"gopkg.in/natefinch/lumberjack.v2"
)

var L = &logger.Logger{
	Out:   os.Stderr,
	Level: logger.InfoLevel,
	Hooks: make(logger.LevelHooks),
	Formatter: &prefixed.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	},
}

// For returns an entry tagged with the component name, printed as the
// formatter prefix.
func For(component string) *logger.Entry {
	return L.WithField("prefix", component)
}

// Configure applies level and output settings to L.
func Configure(cfg *config.LoggerConfig) error {
	if cfg == nil {
		return nil
	}

	if cfg.Level != "" {
		lvl, err := logger.ParseLevel(cfg.Level)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", cfg.Level)
		}
		L.SetLevel(lvl)
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
	}
	L.SetOutput(out)
	return nil
}
