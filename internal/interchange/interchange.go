// Package interchange reads and writes the portable export document
// ({transactions, tags, budget}) as JSON or YAML, and records as CSV.
package interchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"fintrack/internal/core"
	"fintrack/internal/state"
)

// ErrMalformedImport is returned for files that cannot be decoded or
// carry invalid records. State is never modified when it is returned.
var ErrMalformedImport = errors.New("malformed import file")

const midnight = "00:00:00"

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case "yml":
		return FormatYAML, nil
	case FormatYAML, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// FormatFromPath picks the format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return FormatJSON
	}
	return f
}

func (f Format) ContentType() string {
	switch f {
	case FormatYAML:
		return "application/yaml"
	case FormatCSV:
		return "text/csv"
	}
	return "application/json"
}

// Document is the export shape. Absent sections stay nil on import and
// leave the matching state untouched.
type Document struct {
	Transactions []core.Tx     `json:"transactions" yaml:"transactions"`
	Tags         core.Taxonomy `json:"tags" yaml:"tags"`
	Budget       *core.Budget  `json:"budget" yaml:"budget"`
	Goals        []core.Goal   `json:"goals,omitempty" yaml:"goals,omitempty"`
}

// FromState builds the export document of s.
func FromState(s state.State) Document {
	b := s.Budget
	records := s.Records
	if records == nil {
		records = []core.Tx{}
	}
	return Document{
		Transactions: records,
		Tags:         s.Tags.Clone(),
		Budget:       &b,
		Goals:        s.Goals,
	}
}

// Export writes s in format f.
func Export(w io.Writer, s state.State, f Format) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, s.Records)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(FromState(s)); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(FromState(s)); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
}

// Decode parses a JSON or YAML document, or a CSV of records, and
// validates every record it carries.
func Decode(data []byte, f Format) (Document, error) {
	var doc Document
	var err error
	switch f {
	case FormatCSV:
		var records []core.Tx
		records, err = ReadCSV(bytes.NewReader(data))
		doc.Transactions = records
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrMalformedImport, err)
	}
	if err := doc.validate(); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrMalformedImport, err)
	}
	return doc, nil
}

// validate checks every section. A record without a time is placed at
// midnight.
func (d *Document) validate() error {
	seen := make(map[string]bool, len(d.Transactions))
	for i := range d.Transactions {
		tx := &d.Transactions[i]
		if strings.TrimSpace(tx.Time) == "" {
			tx.Time = midnight
		}
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
		if seen[tx.ID] {
			return fmt.Errorf("transaction %d: duplicate id %q", i, tx.ID)
		}
		seen[tx.ID] = true
	}
	if d.Budget != nil {
		if err := d.Budget.Validate(); err != nil {
			return fmt.Errorf("budget: %w", err)
		}
	}
	for i, g := range d.Goals {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("goal %d: %w", i, err)
		}
	}
	return nil
}

// Apply overlays the present sections of d onto s.
func (d Document) Apply(s state.State) state.State {
	next := s.Clone()
	if d.Transactions != nil {
		next.Records = append([]core.Tx(nil), d.Transactions...)
	}
	if d.Tags != nil {
		next.Tags = d.Tags.Clone()
	}
	if d.Budget != nil {
		next.Budget = *d.Budget
	}
	if d.Goals != nil {
		next.Goals = append([]core.Goal(nil), d.Goals...)
	}
	return next
}

// Summary counts what an import touched.
type Summary struct {
	Transactions int  `json:"transactions"`
	Tags         bool `json:"tags"`
	Budget       bool `json:"budget"`
	Goals        int  `json:"goals"`
}

func (d Document) Summary() Summary {
	return Summary{
		Transactions: len(d.Transactions),
		Tags:         d.Tags != nil,
		Budget:       d.Budget != nil,
		Goals:        len(d.Goals),
	}
}

// Import decodes data and loads it into store in one dispatch. Records
// must use the store's accounts.
func Import(ctx context.Context, store *state.Store, data []byte, f Format) (Summary, error) {
	doc, err := Decode(data, f)
	if err != nil {
		return Summary{}, err
	}
	accounts := store.Accounts()
	for i, tx := range doc.Transactions {
		if err := accounts.Check(tx); err != nil {
			return Summary{}, fmt.Errorf("%w: transaction %d: %w", ErrMalformedImport, i, err)
		}
	}
	if _, err := store.Dispatch(ctx, state.LoadSnapshot{State: doc.Apply(store.Snapshot())}); err != nil {
		return Summary{}, fmt.Errorf("load import: %w", err)
	}
	return doc.Summary(), nil
}
