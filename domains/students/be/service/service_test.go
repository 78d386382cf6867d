package service_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	academicsrepo "github.com/zenGate-Global/edupay-saas/domains/academics/be/repo"
	academics "github.com/zenGate-Global/edupay-saas/domains/academics/be/service"
	"github.com/zenGate-Global/edupay-saas/domains/students/be/repo"
	"github.com/zenGate-Global/edupay-saas/domains/students/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/storage"
)

type catalogFixture struct {
	svc     *academics.Service
	school  uuid.UUID
	program academics.Program
	year    academics.AcademicYear
}

func newCatalog(t *testing.T) catalogFixture {
	t.Helper()
	ctx := t.Context()
	svc := academics.New(academicsrepo.NewMemoryRepository())
	school := uuid.New()

	faculty, err := svc.CreateFaculty(ctx, school, academics.FacultyInput{Name: "Business", Code: "BUS"})
	require.NoError(t, err)
	program, err := svc.CreateProgram(ctx, school, academics.ProgramInput{
		FacultyID: faculty.ID, Name: "Diploma in Accounting", Code: "DAC", Type: "diploma", DurationMonths: 24,
	})
	require.NoError(t, err)
	year, err := svc.CreateYear(ctx, school, academics.YearInput{
		Code: "2025", StartDate: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2025, 11, 28, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return catalogFixture{svc: svc, school: school, program: program, year: year}
}

type importCounter map[string]int

func (c importCounter) ImportRows(result string, n int) { c[result] += n }

type brokenArchiver struct{}

func (brokenArchiver) Archive(context.Context, string, string, string, io.Reader) (storage.ObjectLocation, error) {
	return storage.ObjectLocation{}, errors.New("bucket unavailable")
}

func TestCreateValidatesAndScopesPlacement(t *testing.T) {
	cat := newCatalog(t)
	svc := service.New(repo.NewMemoryRepository(), cat.svc)
	ctx := t.Context()

	_, err := svc.Create(ctx, cat.school, service.CreateInput{Email: "not-an-email"})
	var de *domainerr.Error
	require.ErrorAs(t, err, &de)
	require.Contains(t, de.Fields, "fullName")
	require.Contains(t, de.Fields, "admissionNumber")
	require.Contains(t, de.Fields, "email")

	st, err := svc.Create(ctx, cat.school, service.CreateInput{
		FullName: "Amina Njeri", AdmissionNumber: "ADM-001", Email: "Amina@Example.com",
		ProgramID: &cat.program.ID, AcademicYearID: &cat.year.ID,
	})
	require.NoError(t, err)
	require.Equal(t, "amina@example.com", st.Email)
	require.True(t, st.IsActive)

	_, err = svc.Create(ctx, cat.school, service.CreateInput{FullName: "Other", AdmissionNumber: "ADM-001"})
	require.ErrorIs(t, err, service.ErrAdmissionTaken)

	// The program exists, but at another institution.
	_, err = svc.Create(ctx, uuid.New(), service.CreateInput{FullName: "X", AdmissionNumber: "ADM-9", ProgramID: &cat.program.ID})
	require.ErrorIs(t, err, academics.ErrProgramNotFound)
}

func TestListAndDeactivate(t *testing.T) {
	cat := newCatalog(t)
	svc := service.New(repo.NewMemoryRepository(), cat.svc)
	ctx := t.Context()

	for _, in := range []service.CreateInput{
		{FullName: "Brian Otieno", AdmissionNumber: "A1", ProgramID: &cat.program.ID},
		{FullName: "Cynthia Wanjiru", AdmissionNumber: "A2"},
		{FullName: "Brenda Achieng", AdmissionNumber: "B7"},
	} {
		_, err := svc.Create(ctx, cat.school, in)
		require.NoError(t, err)
	}

	res, err := svc.List(ctx, cat.school, service.ListOptions{Search: " br "})
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalItems)

	res, err = svc.List(ctx, cat.school, service.ListOptions{ProgramID: &cat.program.ID})
	require.NoError(t, err)
	require.Len(t, res.Students, 1)
	target := res.Students[0]

	out, err := svc.Deactivate(ctx, cat.school, target.ID)
	require.NoError(t, err)
	require.False(t, out.IsActive)
	again, err := svc.Deactivate(ctx, cat.school, target.ID)
	require.NoError(t, err)
	require.False(t, again.IsActive)

	active := true
	res, err = svc.List(ctx, cat.school, service.ListOptions{Active: &active})
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalItems)

	_, err = svc.Get(ctx, uuid.New(), target.ID)
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestImportCSVReportsRowErrors(t *testing.T) {
	cat := newCatalog(t)
	store := repo.NewMemoryRepository()
	counter := importCounter{}
	svc := service.New(store, cat.svc, service.WithMetrics(counter), service.WithLogger(zaptest.NewLogger(t)))
	ctx := t.Context()

	_, err := svc.Create(ctx, cat.school, service.CreateInput{FullName: "Existing", AdmissionNumber: "ADM-100"})
	require.NoError(t, err)

	csv := strings.Join([]string{
		"full_name,admission_number,email,program_code,academic_year_code",
		"Amina Njeri,ADM-001,amina@example.com,DAC,2025",
		",ADM-002,,,",
		"Brian Otieno,ADM-003,,NOPE,2025",
		"",
		"Cynthia Wanjiru,ADM-001,,,",
		"Existing Again,ADM-100,,,",
		"Dan Kiprop,ADM-004,,dac,",
		"Eve Mutua,ADM-005,,,1999",
	}, "\n")

	res, err := svc.Import(ctx, cat.school, service.ImportInput{Filename: "students.csv", Data: []byte(csv)})
	require.NoError(t, err)
	require.Equal(t, 2, res.Created)
	require.Equal(t, 5, res.Skipped)
	require.Equal(t, []string{
		"Row 3: full name is required",
		`Row 4: program "NOPE" not found`,
		`Row 6: admission number "ADM-001" repeats row 2`,
		`Row 7: admission number "ADM-100" already exists`,
		`Row 9: academic year "1999" not found`,
	}, res.Errors)
	require.Equal(t, 1, store.Imports)
	require.Equal(t, importCounter{"created": 2, "skipped": 5}, counter)
	require.Empty(t, res.ArchivePath)

	listed, err := svc.List(ctx, cat.school, service.ListOptions{Search: "ADM-001"})
	require.NoError(t, err)
	require.Len(t, listed.Students, 1)
	require.Equal(t, cat.program.ID, *listed.Students[0].ProgramID)
	require.Equal(t, cat.year.ID, *listed.Students[0].AcademicYearID)
}

func TestImportXLSX(t *testing.T) {
	cat := newCatalog(t)
	svc := service.New(repo.NewMemoryRepository(), cat.svc)

	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows := [][]any{
		{"full_name", "admission_number", "email", "program_code", "academic_year_code"},
		{"Amina Njeri", "X-1", "amina@example.com", "DAC", "2025"},
		{"Brian Otieno", "X-2"},
		{"Broken", "X-3", "broken@"},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	res, err := svc.Import(t.Context(), cat.school, service.ImportInput{Filename: "Intake.XLSX", Data: buf.Bytes()})
	require.NoError(t, err)
	require.Equal(t, 2, res.Created)
	require.Equal(t, []string{"Row 4: invalid email address"}, res.Errors)
}

func TestImportRejectsUnusableFiles(t *testing.T) {
	cat := newCatalog(t)
	svc := service.New(repo.NewMemoryRepository(), cat.svc)
	ctx := t.Context()

	cases := map[string]service.ImportInput{
		"empty":       {Filename: "a.csv"},
		"header only": {Filename: "a.csv", Data: []byte("full_name,admission_number\n")},
		"legacy xls":  {Filename: "a.xls", Data: []byte("whatever")},
		"not a zip":   {Filename: "a.xlsx", Data: []byte("plain text")},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Import(ctx, cat.school, in)
			require.True(t, domainerr.Is(err, domainerr.KindValidation), "got %v", err)
		})
	}
}

func TestImportValidatesHeader(t *testing.T) {
	cat := newCatalog(t)
	store := repo.NewMemoryRepository()
	svc := service.New(store, cat.svc)
	ctx := t.Context()

	rejected := map[string]string{
		"no header":       "Amina Njeri,A-1,,,\nBrian Otieno,A-2,,,\n",
		"swapped columns": "admission_number,full_name\nA-1,Amina\n",
		"unknown column":  "full_name,admission_number,email,program_code,academic_year_code,house\nAmina,A-1,,,,Kilima\n",
		"too short":       "full_name\nAmina\n",
	}
	for name, data := range rejected {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Import(ctx, cat.school, service.ImportInput{Filename: "intake.csv", Data: []byte(data)})
			var de *domainerr.Error
			require.ErrorAs(t, err, &de)
			require.Equal(t, domainerr.KindValidation, de.Kind)
			require.Contains(t, de.Fields, "file")
		})
	}
	require.Zero(t, store.Imports)

	res, err := svc.Import(ctx, cat.school, service.ImportInput{
		Filename: "intake.csv", Data: []byte(" Full Name , Admission Number ,Email,,\nAmina,A-1,,,\n"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
}

func TestImportArchivesUpload(t *testing.T) {
	cat := newCatalog(t)
	root := t.TempDir()
	svc := service.New(repo.NewMemoryRepository(), cat.svc,
		service.WithArchiver(storage.NewLocalArchiver(root), "dev"),
		service.WithLogger(zaptest.NewLogger(t)))

	data := []byte("full_name,admission_number\nAmina,Z-1\n")
	res, err := svc.Import(t.Context(), cat.school, service.ImportInput{Filename: "../intake.csv", Data: data, InstitutionSlug: "hill-school"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
	require.True(t, strings.HasPrefix(res.ArchivePath, "dev/hill-school-"), res.ArchivePath)
	require.True(t, strings.HasSuffix(res.ArchivePath, "/intake.csv"), res.ArchivePath)

	stored, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(res.ArchivePath)))
	require.NoError(t, err)
	require.Equal(t, data, stored)
}

func TestImportSurvivesArchiveFailure(t *testing.T) {
	cat := newCatalog(t)
	svc := service.New(repo.NewMemoryRepository(), cat.svc,
		service.WithArchiver(brokenArchiver{}, "dev"),
		service.WithLogger(zaptest.NewLogger(t)))

	res, err := svc.Import(t.Context(), cat.school, service.ImportInput{
		Filename: "intake.csv", Data: []byte("full_name,admission_number\nAmina,Z-1\n"), InstitutionSlug: "hill-school",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
	require.Empty(t, res.ArchivePath)
}
