package qcore

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// NewLogger builds the logger used by an Application. An empty format picks
// "console" when w is a terminal and "json" otherwise.
func NewLogger(w io.Writer, level zerolog.Level, format string) zerolog.Logger {
	if format == "" {
		format = "json"
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = "console"
		}
	}
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", "qcore").Logger()
}

// warner reports programmer misuse. Repeated warnings of one category are
// rate limited so a misbehaving loop cannot flood the log.
type warner struct {
	log     zerolog.Logger
	limiter *catrate.Limiter
}

func newWarner(log zerolog.Logger, perSecond int) *warner {
	w := &warner{log: log}
	if perSecond > 0 {
		w.limiter = catrate.NewLimiter(map[time.Duration]int{time.Second: perSecond})
	}
	return w
}

// warn returns nil (which zerolog treats as a disabled event) when the
// category is over its rate.
func (w *warner) warn(category string) *zerolog.Event {
	if w.limiter != nil {
		if _, ok := w.limiter.Allow(category); !ok {
			return nil
		}
	}
	return w.log.Warn().Str("category", category)
}

func (w *warner) debug() *zerolog.Event {
	return w.log.Debug()
}

var fallbackWarner = newWarner(NewLogger(os.Stderr, zerolog.WarnLevel, ""), 10)
