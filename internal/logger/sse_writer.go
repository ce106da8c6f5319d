package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog"
)

const (
	defaultTimeFormat = time.Kitchen
	// LogStream is the sse stream id carrying formatted log lines.
	LogStream = "logs"
)

// SSEPublisher is the part of *sse.Server the writer needs.
type SSEPublisher interface {
	Publish(id string, event *sse.Event)
}

type Formatter func(interface{}) string

// LogMessage is the payload published per log line.
type LogMessage struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (m LogMessage) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// SSEWriter renders zerolog JSON lines in console form and publishes them.
type SSEWriter struct {
	SSE        SSEPublisher
	TimeFormat string
	PartsOrder []string

	FieldsExclude []string
}

func NewSSEWriter(sse SSEPublisher, options ...func(w *SSEWriter)) SSEWriter {
	w := SSEWriter{
		SSE:        sse,
		TimeFormat: defaultTimeFormat,
		PartsOrder: defaultPartsOrder(),
	}

	for _, opt := range options {
		opt(&w)
	}

	return w
}

func (w SSEWriter) Write(p []byte) (n int, err error) {
	if w.SSE == nil {
		return 0, nil
	}

	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	if err := d.Decode(&evt); err != nil {
		return n, fmt.Errorf("cannot decode event: %s", err)
	}

	var buf bytes.Buffer
	for _, part := range []string{zerolog.CallerFieldName, zerolog.MessageFieldName} {
		w.writePart(&buf, evt, part)
	}
	w.writeFields(&buf, evt)

	msg := LogMessage{
		Time:    defaultFormatTimestamp(w.TimeFormat)(evt[zerolog.TimestampFieldName]),
		Level:   defaultFormatLevel()(evt[zerolog.LevelFieldName]),
		Message: strings.TrimSpace(buf.String()),
	}

	data, err := msg.Bytes()
	if err != nil {
		return n, fmt.Errorf("cannot marshal log message: %w", err)
	}

	w.SSE.Publish(LogStream, &sse.Event{Data: data})

	return len(p), nil
}

// writeFields appends every non-standard field as key=value, sorted, error first.
func (w SSEWriter) writeFields(buf *bytes.Buffer, evt map[string]interface{}) {
	fields := make([]string, 0, len(evt))
	for field := range evt {
		switch field {
		case zerolog.LevelFieldName, zerolog.TimestampFieldName, zerolog.MessageFieldName, zerolog.CallerFieldName:
			continue
		}
		excluded := false
		for _, ex := range w.FieldsExclude {
			if ex == field {
				excluded = true
				break
			}
		}
		if !excluded {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	// error goes first
	for i, field := range fields {
		if field == zerolog.ErrorFieldName {
			fields = append([]string{field}, append(fields[:i:i], fields[i+1:]...)...)
			break
		}
	}

	for _, field := range fields {
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}

		var fn, fv Formatter
		if field == zerolog.ErrorFieldName {
			fn = defaultFormatErrFieldName()
			fv = defaultFormatErrFieldValue()
		} else {
			fn = defaultFormatFieldName()
			fv = defaultFormatFieldValue
		}

		buf.WriteString(fn(field))

		switch value := evt[field].(type) {
		case string:
			if needsQuote(value) {
				buf.WriteString(fv(strconv.Quote(value)))
			} else {
				buf.WriteString(fv(value))
			}
		case json.Number:
			buf.WriteString(fv(value))
		default:
			b, err := json.Marshal(value)
			if err != nil {
				fmt.Fprintf(buf, "[error: %v]", err)
			} else {
				buf.WriteString(fv(string(b)))
			}
		}
	}
}

func (w SSEWriter) writePart(buf *bytes.Buffer, evt map[string]interface{}, p string) {
	var f Formatter

	switch p {
	case zerolog.LevelFieldName:
		f = defaultFormatLevel()
	case zerolog.TimestampFieldName:
		f = defaultFormatTimestamp(w.TimeFormat)
	case zerolog.MessageFieldName:
		f = defaultFormatMessage
	case zerolog.CallerFieldName:
		f = defaultFormatCaller()
	default:
		f = defaultFormatFieldValue
	}

	s := f(evt[p])
	if len(s) > 0 {
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(s)
	}
}

func needsQuote(s string) bool {
	for i := range s {
		if s[i] < 0x20 || s[i] > 0x7e || s[i] == ' ' || s[i] == '\\' || s[i] == '"' {
			return true
		}
	}
	return false
}

func defaultPartsOrder() []string {
	return []string{
		zerolog.TimestampFieldName,
		zerolog.LevelFieldName,
		zerolog.CallerFieldName,
		zerolog.MessageFieldName,
	}
}

func defaultFormatTimestamp(timeFormat string) Formatter {
	if timeFormat == "" {
		timeFormat = defaultTimeFormat
	}
	return func(i interface{}) string {
		t := "<nil>"
		switch tt := i.(type) {
		case string:
			ts, err := time.Parse(zerolog.TimeFieldFormat, tt)
			if err != nil {
				t = tt
			} else {
				t = ts.Local().Format(timeFormat)
			}
		case json.Number:
			i, err := tt.Int64()
			if err != nil {
				t = tt.String()
			} else {
				t = time.Unix(i, 0).Local().Format(timeFormat)
			}
		}
		return t
	}
}

func defaultFormatLevel() Formatter {
	return func(i interface{}) string {
		if ll, ok := i.(string); ok {
			switch ll {
			case zerolog.LevelTraceValue:
				return "TRC"
			case zerolog.LevelDebugValue:
				return "DBG"
			case zerolog.LevelInfoValue:
				return "INF"
			case zerolog.LevelWarnValue:
				return "WRN"
			case zerolog.LevelErrorValue:
				return "ERR"
			case zerolog.LevelFatalValue:
				return "FTL"
			case zerolog.LevelPanicValue:
				return "PNC"
			default:
				return ll
			}
		}
		if i == nil {
			return "???"
		}
		return strings.ToUpper(fmt.Sprintf("%s", i))
	}
}

func defaultFormatCaller() Formatter {
	return func(i interface{}) string {
		var c string
		if cc, ok := i.(string); ok {
			c = cc
		}
		if len(c) > 0 {
			if cwd, err := os.Getwd(); err == nil {
				if rel, err := filepath.Rel(cwd, c); err == nil {
					c = rel
				}
			}
			c = c + " >"
		}
		return c
	}
}

func defaultFormatMessage(i interface{}) string {
	if i == nil {
		return ""
	}
	return fmt.Sprintf("%s", i)
}

func defaultFormatFieldName() Formatter {
	return func(i interface{}) string {
		return fmt.Sprintf("%s=", i)
	}
}

func defaultFormatFieldValue(i interface{}) string {
	return fmt.Sprintf("%s", i)
}

func defaultFormatErrFieldName() Formatter {
	return func(i interface{}) string {
		return fmt.Sprintf("%s=", i)
	}
}

func defaultFormatErrFieldValue() Formatter {
	return func(i interface{}) string {
		return fmt.Sprintf("%s", i)
	}
}
