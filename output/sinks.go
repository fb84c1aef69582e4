package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/edgewatch/edgepull/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// text — default human-oriented sink
// ─────────────────────────────────────────────────────────────────────────────

// textSink renders `[<time> ]<id> <value>` with terminal styling: faint time,
// bold blue id, yellow value. Styling is disabled automatically on non-TTY
// streams by the color library.
type textSink struct {
	baseSink
	timeStyle *color.Color
	idStyle   *color.Color
	valStyle  *color.Color
}

func newTextSink(base baseSink) *textSink {
	return &textSink{
		baseSink:  base,
		timeStyle: color.New(color.Faint),
		idStyle:   color.New(color.FgBlue, color.Bold),
		valStyle:  color.New(color.FgYellow),
	}
}

func (s *textSink) Write(id string, value models.Value) error {
	var sb strings.Builder
	if ts := s.tf.stamp(s.now()); ts != "" {
		sb.WriteString(s.timeStyle.Sprint(ts))
		sb.WriteByte(' ')
	}
	sb.WriteString(s.idStyle.Sprint(id))
	sb.WriteByte(' ')
	sb.WriteString(s.valStyle.Sprint(FormatValue(value)))
	return s.w.WriteLine(sb.String())
}

// ─────────────────────────────────────────────────────────────────────────────
// csv
// ─────────────────────────────────────────────────────────────────────────────

// csvSink renders `[<time>;]<id>;<value>`.
type csvSink struct {
	baseSink
}

func (s *csvSink) Write(id string, value models.Value) error {
	var sb strings.Builder
	if ts := s.tf.stamp(s.now()); ts != "" {
		sb.WriteString(ts)
		sb.WriteByte(';')
	}
	sb.WriteString(id)
	sb.WriteByte(';')
	sb.WriteString(FormatValue(value))
	return s.w.WriteLine(sb.String())
}

// ─────────────────────────────────────────────────────────────────────────────
// ndjson
// ─────────────────────────────────────────────────────────────────────────────

// ndjsonSink renders one JSON object per line. The value keeps its native
// JSON type (numbers stay numbers, bits become true/false).
type ndjsonSink struct {
	baseSink
}

// record is the per-line schema. Time is a string for iso, a number for
// timestamp, absent otherwise.
type record struct {
	ID    string       `json:"id"`
	Value models.Value `json:"value"`
	Time  any          `json:"time,omitempty"`
}

func (s *ndjsonSink) Write(id string, value models.Value) error {
	data, err := json.Marshal(record{
		ID:    id,
		Value: value,
		Time:  s.tf.stampValue(s.now()),
	})
	if err != nil {
		return fmt.Errorf("output: ndjson marshal %s: %w", id, err)
	}
	return s.w.WriteLine(string(data))
}

// ─────────────────────────────────────────────────────────────────────────────
// eva/datapuller
// ─────────────────────────────────────────────────────────────────────────────

// evaSink renders the eva datapuller exchange format. Identifiers route by
// suffix: `<base>.value` strips the suffix and emits in value mode
// (`<base> u None <value>`); `<base>.status` strips the suffix and emits in
// status mode (`<base> u <value>`); anything else is treated as value mode
// with the id unchanged.
type evaSink struct {
	baseSink
}

func (s *evaSink) Write(id string, value models.Value) error {
	base := id
	valMode := true
	switch {
	case strings.HasSuffix(id, ".value"):
		base = strings.TrimSuffix(id, ".value")
	case strings.HasSuffix(id, ".status"):
		base = strings.TrimSuffix(id, ".status")
		valMode = false
	}

	var line string
	if valMode {
		line = base + " u None " + FormatValue(value)
	} else {
		line = base + " u " + FormatValue(value)
	}
	return s.w.WriteLine(line)
}
