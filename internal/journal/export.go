package journal

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"bookflow/internal/timeslot"
)

var (
	submissionColumns = []string{
		"ID", "Reference", "Business", "User", "Name", "Email", "Date", "Time",
		"Duration", "Services", "Client TZ", "Status", "Error", "Redirect", "Created",
	}
	cancellationColumns = []string{
		"ID", "Business", "Product ID", "Product Type", "Status", "Error", "Created",
	}
)

// sheetWriter appends rows to sheets of one workbook.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

func (w *sheetWriter) addSheet(name string) error {
	// Excel limit
	if len(name) > 31 {
		name = name[:31]
	}
	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.writeRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		start, _ := excelize.CoordinatesToCellName(1, 1)
		end, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = w.file.SetCellStyle(w.currentSheet, start, end, style)
	}
	return nil
}

func (w *sheetWriter) writeRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

// ExportXLSX writes submissions and cancellations created in [from, to)
// to a workbook with one sheet each.
func (db *DB) ExportXLSX(ctx context.Context, out io.Writer, from, to time.Time) error {
	subs, err := db.Submissions(ctx, from, to)
	if err != nil {
		return err
	}
	cancels, err := db.Cancellations(ctx, from, to)
	if err != nil {
		return err
	}

	w := newSheetWriter()
	defer w.file.Close()

	if err := w.addSheet("Submissions"); err != nil {
		return err
	}
	if err := w.writeHeader(submissionColumns); err != nil {
		return err
	}
	for _, s := range subs {
		if err := w.writeRow(submissionRow(s)); err != nil {
			return fmt.Errorf("write submission %d: %w", s.ID, err)
		}
	}

	if err := w.addSheet("Cancellations"); err != nil {
		return err
	}
	if err := w.writeHeader(cancellationColumns); err != nil {
		return err
	}
	for _, c := range cancels {
		row := []any{c.ID, c.Business, c.ProductID, c.ProductType, c.Status, c.Error, formatTime(c.CreatedAt)}
		if err := w.writeRow(row); err != nil {
			return fmt.Errorf("write cancellation %d: %w", c.ID, err)
		}
	}

	db.logger.Info().Int("submissions", len(subs)).Int("cancellations", len(cancels)).Msg("journal exported")
	return w.file.Write(out)
}

func submissionRow(s Submission) []any {
	ids := make([]string, len(s.ServiceIDs))
	for i, id := range s.ServiceIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return []any{
		s.ID, s.Reference, s.Business, s.UserID, s.Name, s.Email, s.EventDate,
		timeslot.MinutesToTimeString(s.EventTime), s.Duration, strings.Join(ids, ","),
		s.ClientTZ, s.Status, s.Error, s.RedirectURL, formatTime(s.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
