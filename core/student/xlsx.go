package student

import (
	"context"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/shule/core"
)

// RosterColumns are the columns of student roster spreadsheets, in order.
var RosterColumns = []string{
	"admission_no", "first_name", "last_name", "gender", "date_of_birth", "email", "phone", "address",
}

const rosterSheet = "Students"

type (
	SkippedRow struct {
		Row    int    `json:"row"`
		Reason string `json:"reason"`
	}

	// ImportReport summarises a roster import.
	ImportReport struct {
		Created int          `json:"created"`
		Skipped []SkippedRow `json:"skipped"`
	}
)

// Import enrolls the students listed in the first sheet of the XLSX roster r into class classID.
// The first row is a header. Invalid rows are skipped and reported, they do not abort the import.
func (svc *Service) Import(ctx context.Context, r io.Reader, classID string, validate *validator.Validate) (ImportReport, error) {
	report := ImportReport{Skipped: []SkippedRow{}}
	if _, err := svc.classes.GetClass(ctx, classID); err != nil {
		return report, err
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return report, core.NewFieldError("file", "not a valid xlsx file")
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return report, core.NewFieldError("file", "the file has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return report, errors.Wrap(err, "reading rows")
	}

	for i, row := range rows {
		if i == 0 || isBlankRow(row) {
			continue // header
		}
		ns := NewStudent{
			AdmissionNo: cell(row, 0),
			FirstName:   cell(row, 1),
			LastName:    cell(row, 2),
			Gender:      cell(row, 3),
			DateOfBirth: cell(row, 4),
			Email:       cell(row, 5),
			Phone:       cell(row, 6),
			Address:     cell(row, 7),
			ClassID:     classID,
		}
		if err := ns.Validate(validate); err != nil {
			report.Skipped = append(report.Skipped, SkippedRow{Row: i + 1, Reason: reason(err)})
			continue
		}
		if _, err := svc.Create(ctx, ns); err != nil {
			if _, ok := errors.Cause(err).(*core.ValidationError); !ok {
				return report, errors.Wrapf(err, "importing row %d", i+1)
			}
			report.Skipped = append(report.Skipped, SkippedRow{Row: i + 1, Reason: reason(err)})
			continue
		}
		report.Created++
	}
	return report, nil
}

// Export writes the students matching filter as an XLSX roster to w.
func (svc *Service) Export(ctx context.Context, w io.Writer, filter *QueryFilter) (int, error) {
	students, err := svc.Query(ctx, filter, []core.DBOrdering{{Field: "admission_no", Ascending: true}})
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), rosterSheet); err != nil {
		return 0, errors.Wrap(err, "naming sheet")
	}

	for col, name := range RosterColumns {
		if err := setCell(f, col, 1, name); err != nil {
			return 0, err
		}
	}
	for i, s := range students {
		var dob string
		if !s.DateOfBirth.IsZero() {
			dob = s.DateOfBirth.Format(core.DateLayout)
		}
		values := []string{s.AdmissionNo, s.FirstName, s.LastName, s.Gender, dob, s.Email, s.Phone, s.Address}
		for col, v := range values {
			if err := setCell(f, col, i+2, v); err != nil {
				return 0, err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return 0, errors.Wrap(err, "writing xlsx")
	}
	return len(students), nil
}

func setCell(f *excelize.File, col, row int, value string) error {
	name, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return errors.Wrap(err, "cell name")
	}
	return errors.Wrap(f.SetCellValue(rosterSheet, name, value), "setting cell")
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func reason(err error) string {
	switch e := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		msgs := make([]string, 0, len(e))
		for _, fe := range e {
			msgs = append(msgs, fe.Field()+": "+fe.Tag())
		}
		return strings.Join(msgs, "; ")
	case *core.ValidationError:
		if len(e.Fields) > 0 {
			msgs := make([]string, 0, len(e.Fields))
			for _, fe := range e.Fields {
				msgs = append(msgs, fe.Field+": "+fe.Error)
			}
			return strings.Join(msgs, "; ")
		}
	}
	return err.Error()
}
