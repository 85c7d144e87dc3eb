// Package spreadsheet persists appointments in a single .xlsx workbook that
// doubles as the database. Every operation re-reads the workbook from disk;
// nothing is cached between calls.
package spreadsheet

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/hospital-appointment-api/internal/domain/entities"
	"github.com/zatekoja/hospital-appointment-api/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/hospital-appointment-api/pkg/errors"
	"github.com/zatekoja/hospital-appointment-api/pkg/filereplace"
	"github.com/zatekoja/hospital-appointment-api/pkg/timefmt"
)

// DefaultSheet is the name of the worksheet holding appointment rows
const DefaultSheet = "Appointments"

// firstDataRow is the row the first appointment lands on; row 1 is the header
const firstDataRow = 2

// AppointmentAdapter implements the AppointmentRepository interface on top of
// a workbook file
type AppointmentAdapter struct {
	path     string
	sheet    string
	location *time.Location
	logger   zerolog.Logger
	metrics  *observability.Metrics

	copyFile    filereplace.CopyFunc
	replaceOpts []filereplace.Option
	replacer    *filereplace.Replacer

	// writeMu serializes EnsureInitialized and Append so concurrent bookings
	// never compute the same next row.
	writeMu sync.Mutex
	// fileMu is held exclusively while bytes are copied over the live file and
	// shared while it is loaded, so readers never see a partial copy.
	fileMu sync.RWMutex
}

// Option configures an AppointmentAdapter
type Option func(*AppointmentAdapter)

// WithSheet overrides the worksheet name
func WithSheet(sheet string) Option {
	return func(a *AppointmentAdapter) {
		if strings.TrimSpace(sheet) != "" {
			a.sheet = sheet
		}
	}
}

// WithLocation sets the time zone appointment times are written and read in
func WithLocation(loc *time.Location) Option {
	return func(a *AppointmentAdapter) {
		if loc != nil {
			a.location = loc
		}
	}
}

// WithLogger sets the adapter logger
func WithLogger(logger zerolog.Logger) Option {
	return func(a *AppointmentAdapter) {
		a.logger = logger
	}
}

// WithMetrics enables store and replace metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(a *AppointmentAdapter) {
		a.metrics = metrics
	}
}

// WithReplacePolicy sets the attempt count and fixed delay used when the live
// file is locked
func WithReplacePolicy(maxAttempts int, delay time.Duration) Option {
	return func(a *AppointmentAdapter) {
		a.replaceOpts = append(a.replaceOpts, filereplace.WithPolicy(maxAttempts, delay))
	}
}

// WithCopyFunc overrides how a candidate is copied over the live file
func WithCopyFunc(fn filereplace.CopyFunc) Option {
	return func(a *AppointmentAdapter) {
		if fn != nil {
			a.copyFile = fn
		}
	}
}

// NewAppointmentAdapter creates an adapter for the workbook at path. The file
// is not touched until the first operation.
func NewAppointmentAdapter(path string, opts ...Option) (*AppointmentAdapter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, apperrors.NewValidationError("appointment file path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to resolve appointment file path", err)
	}

	a := &AppointmentAdapter{
		path:     abs,
		sheet:    DefaultSheet,
		location: time.Local,
		logger:   zerolog.Nop(),
		copyFile: filereplace.CopyFile,
	}
	for _, opt := range opts {
		opt(a)
	}

	replaceOpts := append([]filereplace.Option{}, a.replaceOpts...)
	replaceOpts = append(replaceOpts,
		filereplace.WithCopyFunc(a.guardedCopy),
		filereplace.WithLogger(a.logger),
		filereplace.WithAttemptHook(func(ctx context.Context, attempt int, outcome filereplace.Outcome) {
			observability.RecordReplaceAttempt(ctx, a.metrics, attempt, string(outcome))
		}),
	)
	a.replacer = filereplace.New(replaceOpts...)

	return a, nil
}

// Path returns the absolute path of the live workbook
func (a *AppointmentAdapter) Path() string {
	return a.path
}

// Ready checks that candidate files can be created next to the live file
func (a *AppointmentAdapter) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(a.path), ".ready-*")
	if err != nil {
		return fmt.Errorf("appointment directory is not writable: %w", err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	return os.Remove(name)
}

// EnsureInitialized creates the workbook with its header row if it is missing
func (a *AppointmentAdapter) EnsureInitialized(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, "spreadsheet.EnsureInitialized")
	defer span.End()

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	err := a.ensureInitialized(ctx)
	observability.RecordError(span, err)
	return err
}

func (a *AppointmentAdapter) ensureInitialized(ctx context.Context) error {
	_, err := os.Stat(a.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return apperrors.NewInternalError("failed to stat appointment file", err)
	}

	wb := excelize.NewFile()
	defer wb.Close()

	if err := wb.SetSheetName(wb.GetSheetName(wb.GetActiveSheetIndex()), a.sheet); err != nil {
		return apperrors.NewInternalError("failed to name appointment sheet", err)
	}
	header := make([]interface{}, len(entities.AppointmentColumns))
	for i, col := range entities.AppointmentColumns {
		header[i] = col
	}
	if err := wb.SetSheetRow(a.sheet, "A1", &header); err != nil {
		return apperrors.NewInternalError("failed to write header row", err)
	}

	candidate, err := a.writeCandidate(wb)
	if err != nil {
		return err
	}

	// Nothing can hold a file that does not exist yet, so a rename is enough.
	a.fileMu.Lock()
	err = os.Rename(candidate, a.path)
	a.fileMu.Unlock()
	if err != nil {
		_ = os.Remove(candidate)
		return apperrors.NewInternalError("failed to create appointment file", err)
	}

	a.logger.Info().Str("path", a.path).Str("sheet", a.sheet).Msg("created appointment file")
	return nil
}

// Append writes appointment after the last used row and installs the result
// over the live file
func (a *AppointmentAdapter) Append(ctx context.Context, appointment *entities.Appointment) (err error) {
	ctx, span := observability.StartSpan(ctx, "spreadsheet.Append")
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordStoreMetric(ctx, a.metrics, "append", time.Since(start), err)
		observability.RecordError(span, err)
	}()

	if appointment == nil {
		return apperrors.NewValidationError("appointment is required")
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	if err := a.ensureInitialized(ctx); err != nil {
		return err
	}

	wb, err := a.open()
	if err != nil {
		return err
	}
	defer wb.Close()

	rows, err := a.rows(wb)
	if err != nil {
		return err
	}

	next := len(rows) + 1
	if next < firstDataRow {
		next = firstDataRow
	}
	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return apperrors.NewInternalError("failed to address next row", err)
	}
	values := a.toRow(*appointment)
	if err := wb.SetSheetRow(a.sheet, cell, &values); err != nil {
		return apperrors.NewInternalError("failed to write appointment row", err)
	}

	candidate, err := a.writeCandidate(wb)
	if err != nil {
		return err
	}

	observability.SetSpanAttributes(span, attribute.Int("spreadsheet.row", next))

	if err := a.replacer.Install(ctx, candidate, a.path); err != nil {
		if errors.Is(err, filereplace.ErrFileLocked) {
			return apperrors.NewBusyError("appointment file is busy", err)
		}
		return apperrors.NewInternalError("failed to replace appointment file", err)
	}

	a.logger.Debug().Int("row", next).Msg("appointment appended")
	return nil
}

// ReadAll returns every appointment row in file order. A missing file reads
// as an empty list.
func (a *AppointmentAdapter) ReadAll(ctx context.Context) (list []*entities.Appointment, err error) {
	ctx, span := observability.StartSpan(ctx, "spreadsheet.ReadAll")
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordStoreMetric(ctx, a.metrics, "read_all", time.Since(start), err)
		observability.RecordError(span, err)
	}()

	list = []*entities.Appointment{}
	if _, statErr := os.Stat(a.path); errors.Is(statErr, fs.ErrNotExist) {
		return list, nil
	}

	wb, err := a.open()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return list, nil
		}
		return nil, err
	}
	defer wb.Close()

	rows, err := a.rows(wb)
	if err != nil {
		return nil, err
	}

	for i, row := range rows {
		if i == 0 || isBlank(row) {
			continue
		}
		list = append(list, a.fromRow(row))
	}

	observability.SetSpanAttributes(span, attribute.Int("spreadsheet.appointments", len(list)))
	return list, nil
}

// open loads the whole live workbook into memory
func (a *AppointmentAdapter) open() (*excelize.File, error) {
	a.fileMu.RLock()
	wb, err := excelize.OpenFile(a.path)
	a.fileMu.RUnlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, apperrors.NewInternalError("failed to open appointment file", err)
	}
	return wb, nil
}

// rows returns the sheet rows after checking the header
func (a *AppointmentAdapter) rows(wb *excelize.File) ([][]string, error) {
	rows, err := wb.GetRows(a.sheet)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Sprintf("failed to read sheet %q", a.sheet), err)
	}
	if len(rows) > 0 && !isHeader(rows[0]) {
		return nil, apperrors.NewInternalError(
			fmt.Sprintf("sheet %q does not start with the appointment header", a.sheet), nil)
	}
	return rows, nil
}

// writeCandidate saves wb next to the live file and returns its path
func (a *AppointmentAdapter) writeCandidate(wb *excelize.File) (string, error) {
	dir := filepath.Dir(a.path)
	base := filepath.Base(a.path)
	ext := filepath.Ext(base)

	tmp, err := os.CreateTemp(dir, strings.TrimSuffix(base, ext)+"-candidate-*"+ext)
	if err != nil {
		return "", apperrors.NewInternalError("failed to create candidate file", err)
	}
	name := tmp.Name()

	if err := wb.Write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", apperrors.NewInternalError("failed to write candidate file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", apperrors.NewInternalError("failed to sync candidate file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", apperrors.NewInternalError("failed to close candidate file", err)
	}
	return name, nil
}

func (a *AppointmentAdapter) guardedCopy(src, dst string) error {
	a.fileMu.Lock()
	defer a.fileMu.Unlock()
	return a.copyFile(src, dst)
}

func (a *AppointmentAdapter) toRow(appt entities.Appointment) []interface{} {
	return []interface{}{
		appt.Name,
		appt.Contact,
		appt.Gender,
		timefmt.Format(appt.AppointmentTime, a.location),
		appt.Problem,
		appt.Status,
	}
}

func (a *AppointmentAdapter) fromRow(row []string) *entities.Appointment {
	return &entities.Appointment{
		Name:            cellAt(row, 0),
		Contact:         cellAt(row, 1),
		Gender:          cellAt(row, 2),
		AppointmentTime: timefmt.ParseOrMin(cellAt(row, 3), a.location),
		Problem:         cellAt(row, 4),
		Status:          cellAt(row, 5),
	}
}

// cellAt tolerates rows shortened by trailing empty cells
func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func isHeader(row []string) bool {
	for i, col := range entities.AppointmentColumns {
		if !strings.EqualFold(strings.TrimSpace(cellAt(row, i)), col) {
			return false
		}
	}
	return true
}
