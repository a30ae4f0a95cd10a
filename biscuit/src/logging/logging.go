// Package logging builds the logrus loggers used by the drivers and tools.
// Entries go to a console writer and, when a file is configured, to a
// rotated log file.
package logging

import "fmt"
import "io"
import "path"
import "runtime"
import "time"

import "github.com/rifflock/lfshook"
import "github.com/sirupsen/logrus"
import "gopkg.in/natefinch/lumberjack.v2"

var validLevels = []string{"trace", "debug", "info", "warn", "warning", "error", "fatal"}

// Config_t selects the log level and an optional rotated log file.
type Config_t struct {
	// Write to file? if not provided not writing to file
	Filename string `mapstructure:"filename"`
	// Time to wait until old logs are purged. Zero keeps them.
	MaxAge time.Duration `mapstructure:"max_age"`
	// maximum size of the file in MB
	MaxSize int `mapstructure:"max_size"`
	// write caller file:line and package.function on log entries
	ReportCaller bool `mapstructure:"report_caller"`
	// one of trace, debug, info, warn, warning, error, fatal
	Level string `mapstructure:"level"`
	// console timestamps are off by default
	Timestamps bool `mapstructure:"timestamps"`
}

// Validate reports an unsupported level.
func (c *Config_t) Validate() error {
	if c.Level == "" {
		return nil
	}
	for _, l := range validLevels {
		if l == c.Level {
			return nil
		}
	}
	return fmt.Errorf("invalid logging.level %q. supported levels: %v", c.Level, validLevels)
}

func prettyfier(f *runtime.Frame) (string, string) {
	_, filename := path.Split(f.File)
	return path.Base(f.Function), fmt.Sprintf("%s:%d", filename, f.Line)
}

func levelmap(w io.Writer, top logrus.Level) lfshook.WriterMap {
	wm := lfshook.WriterMap{}
	for level := int(top); level > int(logrus.PanicLevel); level-- {
		wm[logrus.Level(level)] = w
	}
	return wm
}

// Setup returns a logger writing to console at the configured level, plus
// a rotated file when cfg.Filename is set.
func Setup(cfg Config_t, console io.Writer) (*logrus.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wanted := logrus.InfoLevel
	if len(cfg.Level) > 0 {
		var err error
		wanted, err = logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
	}

	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(wanted)
	l.SetReportCaller(cfg.ReportCaller)

	l.AddHook(lfshook.NewHook(levelmap(console, wanted), &logrus.TextFormatter{
		DisableColors:    true,
		DisableTimestamp: !cfg.Timestamps,
		FullTimestamp:    cfg.Timestamps,
		CallerPrettyfier: prettyfier,
	}))

	if len(cfg.Filename) > 0 {
		writer := &lumberjack.Logger{
			Filename:  cfg.Filename,
			MaxSize:   cfg.MaxSize,
			Compress:  true,
			MaxAge:    int(cfg.MaxAge / (24 * time.Hour)),
			LocalTime: false,
		}
		l.AddHook(lfshook.NewHook(levelmap(writer, wanted), &logrus.TextFormatter{
			DisableColors:    true,
			FullTimestamp:    true,
			CallerPrettyfier: prettyfier,
		}))
	}
	return l, nil
}

// Discard returns a logger that drops everything, for callers that were
// not given one.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
