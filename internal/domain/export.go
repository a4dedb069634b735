package domain

// ExportRow is a single row in the full-data export.
// It is a flat, denormalized view: one row per expense, with trip fields
// repeated for every expense on that trip. Trips with no expenses yield one
// row with zero values for all expense fields.
//
// All values are pre-formatted strings so the handler can emit the row as a
// CSV record or a JSON object without further conversion.
type ExportRow struct {
	// Trip fields, repeated for every expense on the trip.
	TripID      string `json:"trip_id"`
	TripNumber  string `json:"trip_number"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Mode        string `json:"mode"`
	Status      string `json:"status"`
	DepartureAt string `json:"departure_at"` // RFC 3339
	Travelers   string `json:"travelers"`    // names joined with "|"
	TripTotal   string `json:"trip_total"`   // fixed two decimal places

	// Expense fields, empty strings when the trip has no expenses.
	ExpenseID   string `json:"expense_id"`
	Description string `json:"description"`
	Amount      string `json:"amount"` // fixed two decimal places, empty when no expense
	Category    string `json:"category"`
	Date        string `json:"date"` // "2006-01-02"
	TimeOfDay   string `json:"time_of_day"` // "15:04", may be empty
}

// ImportRow is one parsed line of an expense import file, addressed to a trip
// by its human-readable number. Fields are raw strings; the import service
// validates and converts them.
type ImportRow struct {
	Line        int // 1-based line number in the source file, for error reporting
	TripNumber  string
	Description string
	Amount      string
	Category    string
	Date        string
	TimeOfDay   string
}

// TripImportRow is one parsed line of a trip import file. Fields are raw
// strings; the import service validates and converts them. An unset mode
// defaults to "car".
type TripImportRow struct {
	Line        int
	Origin      string
	Destination string
	Mode        string
	DepartureAt string // RFC 3339
	Notes       string
	Travelers   string // names joined with "|"
}

// RowError records why a single import row was rejected.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportResult summarizes a best-effort import: rows that validated were
// created, the rest are reported individually. A failed row never aborts
// the remainder of the batch.
type ImportResult struct {
	Imported int        `json:"imported"`
	Rejected []RowError `json:"rejected"`
}
