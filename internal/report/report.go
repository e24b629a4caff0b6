// Package report writes the per-release audit trail of a cleanup run as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/stackwatch/relclean/internal/types"
)

// header is the fixed column set of the audit report
var header = []string{"organization_id", "release_id", "version", "date_added", "action"}

// CSVWriter streams audit rows as CSV, header first. It implements the
// engine's Reporter interface.
type CSVWriter struct {
	w           *csv.Writer
	wroteHeader bool
}

// NewCSVWriter creates a writer targeting w (normally stdout)
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Row validates and writes one audit row, emitting the header before the
// first one.
func (c *CSVWriter) Row(row *types.AuditRow) error {
	if err := row.Validate(); err != nil {
		return fmt.Errorf("invalid audit row: %w", err)
	}
	if !c.wroteHeader {
		if err := c.w.Write(header); err != nil {
			return fmt.Errorf("failed to write report header: %w", err)
		}
		c.wroteHeader = true
	}
	record := []string{
		strconv.FormatInt(row.OrganizationID, 10),
		strconv.FormatInt(row.ReleaseID, 10),
		row.Version,
		row.DateAdded.UTC().Format(time.RFC3339),
		string(row.Action),
	}
	if err := c.w.Write(record); err != nil {
		return fmt.Errorf("failed to write report row: %w", err)
	}
	return nil
}

// Flush drains buffered rows to the underlying writer, emitting the header
// even when the run produced no rows. Call once after the run completes.
func (c *CSVWriter) Flush() error {
	if !c.wroteHeader {
		if err := c.w.Write(header); err != nil {
			return fmt.Errorf("failed to write report header: %w", err)
		}
		c.wroteHeader = true
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("failed to flush report: %w", err)
	}
	return nil
}
