// Package output implements the push sinks that emit changed data points as
// newline-terminated records on an output stream, plus the beacon heartbeat.
//
// Available sinks (selector → line format):
//
//	text           [<time> ]<id> <value>        (default, colored on a TTY)
//	csv            [<time>;]<id>;<value>
//	ndjson         {"id": …, "value": …[, "time": …]}
//	eva/datapuller <base> u None <value> / <base> u <value>
//
// Every line is newline-terminated and the stream is flushed after each
// write, so downstream consumers see records as soon as they are produced.
package output

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/edgewatch/edgepull/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Time format
// ─────────────────────────────────────────────────────────────────────────────

// TimeFormat selects the optional timestamp prefix on output lines.
type TimeFormat int

const (
	// TimeNone omits the timestamp (default).
	TimeNone TimeFormat = iota
	// TimeISO prefixes an ISO-8601 local timestamp with offset.
	TimeISO
	// TimeTimestamp prefixes a Unix timestamp with fractional seconds.
	TimeTimestamp
)

const isoLayout = "2006-01-02T15:04:05.000000-07:00"

// ParseTimeFormat resolves the time-format configuration value. An empty
// string means no timestamp.
func ParseTimeFormat(s string) (TimeFormat, error) {
	switch s {
	case "":
		return TimeNone, nil
	case "iso":
		return TimeISO, nil
	case "timestamp":
		return TimeTimestamp, nil
	default:
		return TimeNone, fmt.Errorf("output: unsupported time-format %q", s)
	}
}

// stamp returns the current time rendered per tf, or "" for TimeNone.
// The ndjson sink uses stampValue instead to keep JSON number typing.
func (tf TimeFormat) stamp(now time.Time) string {
	switch tf {
	case TimeISO:
		return now.Format(isoLayout)
	case TimeTimestamp:
		return strconv.FormatFloat(float64(now.UnixNano())/1e9, 'f', 6, 64)
	default:
		return ""
	}
}

// stampValue returns the JSON value form of the timestamp: a string for iso,
// a number for timestamp, nil for none.
func (tf TimeFormat) stampValue(now time.Time) any {
	switch tf {
	case TimeISO:
		return now.Format(isoLayout)
	case TimeTimestamp:
		return float64(now.UnixNano()) / 1e9
	default:
		return nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Sink contract + selector
// ─────────────────────────────────────────────────────────────────────────────

// Sink consumes (id, value) pairs and the beacon heartbeat. All sinks in this
// package are safe for the engine's two writers (processor data lines,
// scheduler beacons) because they share one mutex-guarded LineWriter.
type Sink interface {
	Write(id string, value models.Value) error
	Beacon() error
}

// Config selects and parameterises a sink.
type Config struct {
	// Type is the sink selector: text (default), csv, ndjson, eva/datapuller.
	Type string

	// TimeFormat controls the optional timestamp prefix.
	TimeFormat TimeFormat

	// Writer is the destination stream. nil defaults to os.Stdout.
	Writer io.Writer

	// Now overrides the clock (tests). nil uses time.Now.
	Now func() time.Time
}

// New constructs the sink named by cfg.Type.
func New(cfg Config, logger *slog.Logger) (Sink, error) {
	lw := NewLineWriter(cfg.Writer, logger)
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	base := baseSink{w: lw, tf: cfg.TimeFormat, now: now}

	switch cfg.Type {
	case "", "text":
		return newTextSink(base), nil
	case "csv":
		return &csvSink{baseSink: base}, nil
	case "ndjson":
		return &ndjsonSink{baseSink: base}, nil
	case "eva/datapuller":
		return &evaSink{baseSink: base}, nil
	default:
		return nil, fmt.Errorf("output: unsupported output type %q", cfg.Type)
	}
}

// baseSink carries the pieces every sink shares. Beacon emits a lone newline
// regardless of format.
type baseSink struct {
	w   *LineWriter
	tf  TimeFormat
	now func() time.Time
}

func (b *baseSink) Beacon() error {
	return b.w.WriteLine("")
}

// ─────────────────────────────────────────────────────────────────────────────
// Value rendering
// ─────────────────────────────────────────────────────────────────────────────

// FormatValue renders a data-point value for the line-oriented sinks.
// Booleans render as 1/0; floats always carry a decimal point so integral
// results remain visibly floating-point (100 → "100.0").
func FormatValue(v models.Value) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "1"
		}
		return "0"
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eE") && !math.IsNaN(x) && !math.IsInf(x, 0) {
			s += ".0"
		}
		return s
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}
