package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fixly/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	sheetName    = "Bookings"
	ledgerFile   = "bookings.xlsx"
	statusColumn = 12
)

var headers = []string{
	"Booking ID", "Client ID", "Vendor ID", "Service ID", "Scheduled",
	"Description", "Address", "Total Price", "Final Price", "Revised",
	"Revision Reason", "Status", "Created At", "Updated At",
}

// Ledger maintains an Excel workbook with one row per booking. It is the
// back-office export target consumed by the export worker.
type Ledger struct {
	path     string
	mu       sync.Mutex
	rowCache map[string]int
	logger   *zerolog.Logger
}

func NewLedger(dir string, logger *zerolog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating export directory: %v", err)
	}

	l := &Ledger{
		path:     filepath.Join(dir, ledgerFile),
		rowCache: make(map[string]int),
		logger:   logger,
	}

	if err := l.warmUpCache(); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *Ledger) warmUpCache() error {
	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	f, err := excelize.OpenFile(l.path)
	if err != nil {
		return fmt.Errorf("error opening ledger: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return fmt.Errorf("error reading ledger rows: %v", err)
	}

	for i, row := range rows {
		if i == 0 || len(row) == 0 || row[0] == "" {
			continue
		}
		l.rowCache[row[0]] = i + 1
	}

	l.logger.Info().Int("rows", len(l.rowCache)).Str("file_path", l.path).Msg("Ledger cache warmed up")
	return nil
}

// UpsertBooking writes the booking snapshot into its row, appending a new
// row for bookings not seen before.
func (l *Ledger) UpsertBooking(booking *models.Booking) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.openOrCreate()
	if err != nil {
		return err
	}
	defer f.Close()

	row, ok := l.rowCache[booking.ID]
	if !ok {
		row = len(l.rowCache) + 2
	}

	values := []interface{}{
		booking.ID,
		booking.ClientID,
		booking.VendorID,
		booking.ServiceID,
		booking.ScheduledDate.Format("2006-01-02 15:04:05"),
		booking.ProblemDescription,
		booking.Address,
		booking.TotalPrice,
		floatOrEmpty(booking.FinalPrice),
		booking.IsPriceRevised,
		stringOrEmpty(booking.RevisionReason),
		booking.Status,
		booking.CreatedAt.Format("2006-01-02 15:04:05"),
		booking.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return fmt.Errorf("error writing cell: %v", err)
		}
	}

	if err := f.SaveAs(l.path); err != nil {
		return fmt.Errorf("error saving ledger: %v", err)
	}

	l.rowCache[booking.ID] = row
	return nil
}

// UpdateBookingStatus rewrites only the status cell of an exported booking.
func (l *Ledger) UpdateBookingStatus(bookingID, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row, ok := l.rowCache[bookingID]
	if !ok {
		return fmt.Errorf("booking %s not found in ledger", bookingID)
	}

	f, err := l.openOrCreate()
	if err != nil {
		return err
	}
	defer f.Close()

	cell, _ := excelize.CoordinatesToCellName(statusColumn, row)
	if err := f.SetCellValue(sheetName, cell, status); err != nil {
		return fmt.Errorf("error writing status cell: %v", err)
	}

	updatedCell, _ := excelize.CoordinatesToCellName(statusColumn+2, row)
	_ = f.SetCellValue(sheetName, updatedCell, time.Now().Format("2006-01-02 15:04:05"))

	if err := f.SaveAs(l.path); err != nil {
		return fmt.Errorf("error saving ledger: %v", err)
	}

	return nil
}

func (l *Ledger) openOrCreate() (*excelize.File, error) {
	if _, err := os.Stat(l.path); err == nil {
		f, err := excelize.OpenFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("error opening ledger: %v", err)
		}
		return f, nil
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	firstCell, _ := excelize.CoordinatesToCellName(1, 1)
	lastCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheetName, firstCell, lastCell, style)
	_ = f.SetColWidth(sheetName, "A", "D", 25)
	_ = f.SetColWidth(sheetName, "E", "N", 20)

	return f, nil
}

func floatOrEmpty(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func stringOrEmpty(v *string) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
