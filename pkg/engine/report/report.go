// Package report holds the result table produced by the coordinator and
// renders it in the supported output formats.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned by Render for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown report format")

// Format selects a rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// Formats lists the accepted format names.
func Formats() []Format {
	return []Format{FormatText, FormatJSON, FormatYAML, FormatCSV}
}

// ParseFormat maps a user supplied name to a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Row is the aggregated timing of one configuration. Times are the maximum
// over all ranks, in seconds.
type Row struct {
	GraphSize  int     `json:"graph_size" yaml:"graph_size"`
	DFSSeconds float64 `json:"dfs_seconds" yaml:"dfs_seconds"`
	BFSSeconds float64 `json:"bfs_seconds" yaml:"bfs_seconds"`
}

// Table accumulates rows in configuration order.
type Table struct {
	Rows []Row `json:"rows" yaml:"rows"`
}

// Append adds the row for one configuration.
func (t *Table) Append(r Row) {
	t.Rows = append(t.Rows, r)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

var header = []string{"Graph Size", "DFS Time (s)", "BFS Time (s)"}

// Render writes the table to w in the given format.
func (t *Table) Render(w io.Writer, f Format) error {
	switch f {
	case FormatText, "":
		return t.renderText(w)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(t); err != nil {
			return err
		}
		return enc.Close()
	case FormatCSV:
		return t.renderCSV(w)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

func (t *Table) renderText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, strings.Join(header, "\t")); err != nil {
		return err
	}
	for _, r := range t.Rows {
		if _, err := fmt.Fprintf(w, "%d\t%.4f\t%.4f\n", r.GraphSize, r.DFSSeconds, r.BFSSeconds); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) renderCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range t.Rows {
		record := []string{
			strconv.Itoa(r.GraphSize),
			strconv.FormatFloat(r.DFSSeconds, 'f', 4, 64),
			strconv.FormatFloat(r.BFSSeconds, 'f', 4, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
