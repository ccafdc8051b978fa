package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"attendtrack/internal/model"
)

const (
	summarySheet  = "Summary"
	studentsSheet = "Students"
)

// ContentType is the MIME type of the workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var studentHeader = []string{"Roll No", "Full Name", "Attendance %", "Status", "Present (period)", "Recorded (period)"}

// Filename returns the download name of a report.
func Filename(r model.Report) string {
	name := fmt.Sprintf("attendance_%s_%s", r.ClassID, r.GeneratedAt.Format("2006-01-02"))
	return strings.Map(func(c rune) rune {
		if c == '/' || c == '\\' || c == ' ' {
			return '_'
		}
		return c
	}, name) + ".xlsx"
}

// Build renders the report into a two-sheet workbook.
func Build(r model.Report) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(studentsSheet); err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	period := "all time"
	if r.Period.StartDate != "" || r.Period.EndDate != "" {
		period = r.Period.StartDate + " .. " + r.Period.EndDate
	}
	summary := [][]any{
		{"Report", r.Type},
		{"Class", r.ClassName},
		{"Generated", r.GeneratedAt.Format("2006-01-02 15:04 MST")},
		{"Period", period},
		{"Total students", r.Summary.TotalStudents},
		{"Average attendance %", r.Summary.AverageAttendance},
		{"Present today", r.Summary.PresentToday},
		{"Absent today", r.Summary.AbsentToday},
	}
	for i, row := range summary {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return nil, err
		}
	}
	_ = f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(summary)), bold)
	_ = f.SetColWidth(summarySheet, "A", "A", 24)
	_ = f.SetColWidth(summarySheet, "B", "B", 30)

	header := make([]any, len(studentHeader))
	for i, h := range studentHeader {
		header[i] = h
	}
	if err := setRow(f, studentsSheet, 1, header); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(studentHeader), 1)
	_ = f.SetCellStyle(studentsSheet, "A1", last, bold)
	_ = f.AutoFilter(studentsSheet, "A1:"+last, nil)
	for i, s := range r.Students {
		row := []any{s.RollNo, s.FullName, s.AttendanceRate, string(s.Status), s.PeriodPresent, s.PeriodTotal}
		if err := setRow(f, studentsSheet, i+2, row); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(studentsSheet, "A", "A", 10)
	_ = f.SetColWidth(studentsSheet, "B", "B", 28)
	_ = f.SetColWidth(studentsSheet, "C", "F", 16)
	return f, nil
}

// WriteExcel streams the report workbook to w.
func WriteExcel(w io.Writer, r model.Report) error {
	f, err := Build(r)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("set row %d: %w", row, err)
	}
	return nil
}
