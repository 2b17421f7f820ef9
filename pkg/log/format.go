package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Formatter defines the interface for formatting log entries.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output defines the interface for log outputs.
type Output interface {
	Write(entry *Entry, formattedEntry []byte) error
	Close() error
}

// TextFormatter renders entries as "ts LEVEL message k=v k=v".
type TextFormatter struct{}

// Format renders the entry as a single text line.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(entry.Timestamp.Format(time.RFC3339Nano))
	buf.WriteByte(' ')
	buf.WriteString(entry.Level.String())
	buf.WriteByte(' ')
	buf.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, " %s=%v", k, entry.Fields[k])
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// JSONFormatter renders entries as one JSON object per line.
type JSONFormatter struct{}

// Format renders the entry as a JSON line.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	obj := make(map[string]interface{}, len(entry.Fields)+3)
	obj["ts"] = entry.Timestamp.Format(time.RFC3339Nano)
	obj["level"] = entry.Level.String()
	obj["msg"] = entry.Message
	for k, v := range entry.Fields {
		if err, ok := v.(error); ok {
			obj[k] = err.Error()
			continue
		}
		obj[k] = v
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// ConsoleOutput writes formatted entries to stderr.
type ConsoleOutput struct {
	mu sync.Mutex
}

// NewConsoleOutput returns an Output writing to stderr.
func NewConsoleOutput() *ConsoleOutput { return &ConsoleOutput{} }

// Write emits the formatted entry.
func (o *ConsoleOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := os.Stderr.Write(formatted)
	return err
}

// Close is a no-op for console output.
func (o *ConsoleOutput) Close() error { return nil }
