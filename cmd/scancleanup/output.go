package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// Output format constants.
const (
	outputJSON  = "json"
	outputYAML  = "yaml"
	outputTable = "table"
)

type printer struct {
	format string
	w      io.Writer
}

// print writes v as JSON or YAML, or calls table for the table format.
func (p printer) print(v any, table func(t *tableWriter)) error {
	switch p.format {
	case outputJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(p.w, string(data))
		return err
	case outputYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal YAML: %w", err)
		}
		_, err = p.w.Write(data)
		return err
	default:
		t := newTable(p.w)
		table(t)
		return t.Flush()
	}
}

type tableWriter struct {
	w *tabwriter.Writer
}

func newTable(w io.Writer) *tableWriter {
	return &tableWriter{w: tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)}
}

func (t *tableWriter) Header(headers ...string) {
	fmt.Fprintln(t.w, strings.Join(headers, "\t"))
}

func (t *tableWriter) AddRow(values ...string) {
	fmt.Fprintln(t.w, strings.Join(values, "\t"))
}

// Line writes a line that is not part of the table columns.
func (t *tableWriter) Line(format string, args ...any) {
	fmt.Fprintf(t.w, format+"\n", args...)
}

func (t *tableWriter) Flush() error {
	return t.w.Flush()
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func shortTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func successStr(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAIL"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
