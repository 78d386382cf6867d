package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/tenant"
)

// MaxImportRows bounds the data rows accepted in one upload.
const MaxImportRows = 5000

// ImportColumns is the expected header, in order.
var ImportColumns = []string{"full_name", "admission_number", "email", "program_code", "academic_year_code"}

// requiredImportColumns is how many leading columns a header must carry.
const requiredImportColumns = 2

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ImportInput is an uploaded CSV or XLSX file. The format is chosen by the file extension.
type ImportInput struct {
	Filename        string
	ContentType     string
	Data            []byte
	InstitutionSlug string
}

// ImportResult reports what happened to each data row. Errors are "Row N: message" lines where
// N is the spreadsheet row number, the header being row 1.
type ImportResult struct {
	Created     int
	Skipped     int
	Errors      []string
	ArchivePath string
}

type rowProblem struct {
	row int
	msg string
}

// Import creates students from an upload. Invalid rows are skipped and reported; the valid ones
// are inserted in a single transaction, leaving existing admission numbers untouched.
func (s *Service) Import(ctx context.Context, institutionID uuid.UUID, in ImportInput) (ImportResult, error) {
	if len(in.Data) == 0 {
		return ImportResult{}, domainerr.Invalid("file", "file is empty")
	}
	rows, err := readRows(in.Filename, in.Data)
	if err != nil {
		return ImportResult{}, err
	}
	if len(rows) < 2 {
		return ImportResult{}, domainerr.Invalid("file", "the file has no data rows")
	}
	if err := checkHeader(rows[0].cells); err != nil {
		return ImportResult{}, err
	}
	if len(rows)-1 > MaxImportRows {
		return ImportResult{}, domainerr.Invalid("file", fmt.Sprintf("at most %d rows can be imported at once", MaxImportRows))
	}

	lookup := newCodeLookup(s.catalog, institutionID)
	var problems []rowProblem
	var batch []Student
	rowOf := make(map[string]int)

	for _, row := range rows[1:] {
		n, raw := row.line, row.cells
		if blankRow(raw) {
			continue
		}
		st, fields := s.build(institutionID, CreateInput{
			FullName:        cell(raw, 0),
			AdmissionNumber: cell(raw, 1),
			Email:           cell(raw, 2),
		})
		if len(fields) > 0 {
			problems = append(problems, rowProblem{n, describe(fields)})
			continue
		}
		if prev, dup := rowOf[st.AdmissionNumber]; dup {
			problems = append(problems, rowProblem{n, fmt.Sprintf("admission number %q repeats row %d", st.AdmissionNumber, prev)})
			continue
		}

		if code := cell(raw, 3); code != "" {
			id, err := lookup.program(ctx, code)
			if err != nil {
				if domainerr.Is(err, domainerr.KindNotFound) {
					problems = append(problems, rowProblem{n, fmt.Sprintf("program %q not found", code)})
					continue
				}
				return ImportResult{}, err
			}
			st.ProgramID = &id
		}
		if code := cell(raw, 4); code != "" {
			id, err := lookup.year(ctx, code)
			if err != nil {
				if domainerr.Is(err, domainerr.KindNotFound) {
					problems = append(problems, rowProblem{n, fmt.Sprintf("academic year %q not found", code)})
					continue
				}
				return ImportResult{}, err
			}
			st.AcademicYearID = &id
		}

		rowOf[st.AdmissionNumber] = n
		batch = append(batch, st)
	}

	var result ImportResult
	if len(batch) > 0 {
		inserted, err := s.repo.Import(ctx, institutionID, batch, in.Filename)
		if err != nil {
			return ImportResult{}, err
		}
		created := make(map[string]bool, len(inserted))
		for _, a := range inserted {
			created[a] = true
		}
		for _, st := range batch {
			if !created[st.AdmissionNumber] {
				problems = append(problems, rowProblem{rowOf[st.AdmissionNumber], fmt.Sprintf("admission number %q already exists", st.AdmissionNumber)})
			}
		}
		result.Created = len(inserted)
	}

	sort.SliceStable(problems, func(i, j int) bool { return problems[i].row < problems[j].row })
	for _, p := range problems {
		result.Errors = append(result.Errors, rowError(p.row, "%s", p.msg))
	}
	result.Skipped = len(problems)

	if s.metrics != nil {
		s.metrics.ImportRows("created", result.Created)
		s.metrics.ImportRows("skipped", result.Skipped)
	}
	result.ArchivePath = s.archive(ctx, institutionID, in)

	s.logger.Info("students imported",
		zap.String("institution_id", institutionID.String()),
		zap.String("file", in.Filename),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// archive stores the raw upload. Failures are logged and never fail the import.
func (s *Service) archive(ctx context.Context, institutionID uuid.UUID, in ImportInput) string {
	if s.archiver == nil || in.InstitutionSlug == "" {
		return ""
	}
	prefix := tenant.BuildBasePrefix(s.envKey, in.InstitutionSlug, tenant.ShortID(institutionID))
	name := path.Base(filepath.ToSlash(strings.TrimSpace(in.Filename)))
	if name == "" || name == "." || name == "/" {
		name = "upload"
	}
	key := fmt.Sprintf("imports/students/%s/%s", uuid.NewString(), name)
	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	loc, err := s.archiver.Archive(ctx, prefix, key, contentType, bytes.NewReader(in.Data))
	if err != nil {
		s.logger.Warn("archive student import failed",
			zap.String("institution_id", institutionID.String()),
			zap.String("file", in.Filename),
			zap.Error(err))
		return ""
	}
	return loc.FullPath
}

// sheetRow is one record with its 1-based line in the source file.
type sheetRow struct {
	line  int
	cells []string
}

func readRows(filename string, data []byte) ([]sheetRow, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, domainerr.Invalid("file", "not a readable XLSX workbook")
		}
		defer f.Close()
		rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
		if err != nil {
			return nil, domainerr.Invalid("file", fmt.Sprintf("read worksheet: %v", err))
		}
		out := make([]sheetRow, 0, len(rows))
		for i, cells := range rows {
			out = append(out, sheetRow{line: i + 1, cells: cells})
		}
		return out, nil
	case ".csv":
		// The reader skips empty lines, so line numbers come from FieldPos.
		r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true
		var out []sheetRow
		for {
			cells, err := r.Read()
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			if err != nil {
				return nil, domainerr.Invalid("file", fmt.Sprintf("malformed CSV: %v", err))
			}
			line, _ := r.FieldPos(0)
			out = append(out, sheetRow{line: line, cells: cells})
		}
	default:
		return nil, domainerr.Invalid("file", "unsupported file type; upload a .csv or .xlsx file")
	}
}

// checkHeader accepts a header that names ImportColumns in order. Trailing optional columns may be
// left out; names are compared case-insensitively with spaces read as underscores.
func checkHeader(header []string) error {
	names := make([]string, 0, len(header))
	for _, c := range header {
		names = append(names, strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c)), " ", "_"))
	}
	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	expected := strings.Join(ImportColumns, ",")
	if len(names) < requiredImportColumns || len(names) > len(ImportColumns) {
		return domainerr.Invalid("file", fmt.Sprintf("the header row must be %s", expected))
	}
	for i, name := range names {
		if name != ImportColumns[i] {
			return domainerr.Invalid("file", fmt.Sprintf("header column %d is %q, expected %q (header: %s)", i+1, name, ImportColumns[i], expected))
		}
	}
	return nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func describe(fields domainerr.FieldErrors) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var msgs []string
	for _, k := range keys {
		msgs = append(msgs, fields[k]...)
	}
	return strings.Join(msgs, "; ")
}

// codeLookup caches code to id resolution for one import.
type codeLookup struct {
	catalog       Catalog
	institutionID uuid.UUID
	programs      map[string]uuid.UUID
	years         map[string]uuid.UUID
}

func newCodeLookup(c Catalog, institutionID uuid.UUID) *codeLookup {
	return &codeLookup{catalog: c, institutionID: institutionID, programs: map[string]uuid.UUID{}, years: map[string]uuid.UUID{}}
}

func (l *codeLookup) program(ctx context.Context, code string) (uuid.UUID, error) {
	if id, ok := l.programs[code]; ok {
		return id, nil
	}
	p, err := l.catalog.ProgramByCode(ctx, l.institutionID, code)
	if err != nil {
		return uuid.Nil, err
	}
	l.programs[code] = p.ID
	return p.ID, nil
}

func (l *codeLookup) year(ctx context.Context, code string) (uuid.UUID, error) {
	if id, ok := l.years[code]; ok {
		return id, nil
	}
	y, err := l.catalog.YearByCode(ctx, l.institutionID, code)
	if err != nil {
		return uuid.Nil, err
	}
	l.years[code] = y.ID
	return y.ID, nil
}
