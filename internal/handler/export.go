// Export and import endpoints: the flat tabular surface of the API.
// GET /export returns all trips and expenses as one denormalized table,
// JSON by default or CSV via ?format=csv. POST /import/{trips,expenses}
// accepts the same column layout back as a CSV body.
package handler

import (
	"bytes"
	"encoding/csv"
	"io"
	"net/http"
	"strconv"

	"github.com/wayfare/backend/internal/domain"
)

// exportHeaders defines the column names written as the first row of any CSV export.
var exportHeaders = []string{
	"trip_id", "trip_number", "origin", "destination", "mode", "status",
	"departure_at", "travelers", "trip_total",
	"expense_id", "description", "amount", "category", "date", "time_of_day",
}

// tripImportHeaders is the expected column layout of a trip import file.
var tripImportHeaders = []string{"origin", "destination", "mode", "departure_at", "notes", "travelers"}

// expenseImportHeaders is the expected column layout of an expense import file.
var expenseImportHeaders = []string{"trip_number", "description", "amount", "category", "date", "time_of_day"}

// GetExport handles GET /export.
// Use ?format=csv to receive CSV; default is JSON.
func (s *Server) GetExport(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		unauthenticated(w)
		return
	}

	rows, err := s.export.Export(r.Context(), ownerID)
	if err != nil {
		writeError(w, err, "export")
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		writeCSVExport(w, rows)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// writeCSVExport encodes the rows as CSV. Traveler names within a row are
// pipe-separated to keep each expense on a single CSV line.
func writeCSVExport(w http.ResponseWriter, rows []domain.ExportRow) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	// csv.Writer on a bytes.Buffer cannot fail; errors surface at Flush.
	_ = cw.Write(exportHeaders)
	for _, r := range rows {
		_ = cw.Write([]string{
			r.TripID, r.TripNumber, r.Origin, r.Destination, r.Mode, r.Status,
			r.DepartureAt, r.Travelers, r.TripTotal,
			r.ExpenseID, r.Description, r.Amount, r.Category, r.Date, r.TimeOfDay,
		})
	}
	cw.Flush()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// ImportTrips handles POST /import/trips with a CSV body.
// Rows that fail validation are reported per line; the rest import.
func (s *Server) ImportTrips(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		unauthenticated(w)
		return
	}

	records, err := readCSV(r.Body, len(tripImportHeaders))
	if err != nil {
		requestError(w, err.Error())
		return
	}

	rows := make([]domain.TripImportRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, domain.TripImportRow{
			Line:        rec.line,
			Origin:      rec.fields[0],
			Destination: rec.fields[1],
			Mode:        rec.fields[2],
			DepartureAt: rec.fields[3],
			Notes:       rec.fields[4],
			Travelers:   rec.fields[5],
		})
	}

	writeJSON(w, http.StatusOK, s.importer.ImportTrips(r.Context(), ownerID, rows))
}

// ImportExpenses handles POST /import/expenses with a CSV body.
func (s *Server) ImportExpenses(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		unauthenticated(w)
		return
	}

	records, err := readCSV(r.Body, len(expenseImportHeaders))
	if err != nil {
		requestError(w, err.Error())
		return
	}

	rows := make([]domain.ImportRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, domain.ImportRow{
			Line:        rec.line,
			TripNumber:  rec.fields[0],
			Description: rec.fields[1],
			Amount:      rec.fields[2],
			Category:    rec.fields[3],
			Date:        rec.fields[4],
			TimeOfDay:   rec.fields[5],
		})
	}

	writeJSON(w, http.StatusOK, s.importer.ImportExpenses(r.Context(), ownerID, rows))
}

// Refresh handles POST /refresh: a synchronous full reload of the caller's
// view, bypassing the interval and debounce.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(r)
	if !ok {
		unauthenticated(w)
		return
	}
	if err := s.refresher.RefreshNow(r.Context(), ownerID); err != nil {
		writeError(w, err, "refresh")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// csvRecord pairs a data row with its 1-based line number for error reports.
type csvRecord struct {
	line   int
	fields []string
}

// readCSV parses the body, skipping an optional header row, and enforces the
// expected column count. Short rows are padded with empty strings so
// trailing optional columns can be omitted.
func readCSV(body io.Reader, columns int) ([]csvRecord, error) {
	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1 // validated per row below

	var records []csvRecord
	line := 0
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errMalformedBody
		}
		line++
		if line == 1 && looksLikeHeader(fields) {
			continue
		}
		if len(fields) > columns {
			return nil, errMalformedBody
		}
		for len(fields) < columns {
			fields = append(fields, "")
		}
		records = append(records, csvRecord{line: line, fields: fields})
	}
	return records, nil
}

// looksLikeHeader reports whether the first row is a column header rather
// than data. Every import layout starts with a non-numeric name column, so
// matching the first cell against the known headers is enough.
func looksLikeHeader(fields []string) bool {
	if len(fields) == 0 {
		return false
	}
	return fields[0] == tripImportHeaders[0] || fields[0] == expenseImportHeaders[0]
}
