package model

import "time"

// DashboardStats summarises today's attendance for a class.
type DashboardStats struct {
	TotalStudents  int     `json:"totalStudents"`
	PresentToday   int     `json:"presentToday"`
	AbsentToday    int     `json:"absentToday"`
	AttendanceRate float64 `json:"attendanceRate"`
}

// WeeklyAttendance is one day of the weekly trend.
type WeeklyAttendance struct {
	Day        string `json:"day"`
	Date       string `json:"date"`
	Present    int    `json:"present"`
	Absent     int    `json:"absent"`
	Percentage int    `json:"percentage"`
}

// StudentWithStats is the roster row shown on the dashboard.
type StudentWithStats struct {
	ID             string  `json:"id"`
	RollNo         string  `json:"rollNo"`
	FullName       string  `json:"fullName"`
	PhotoURL       *string `json:"photoUrl"`
	AttendanceRate float64 `json:"attendanceRate"`
	IsPresent      bool    `json:"isPresent"`
	Status         Status  `json:"status"`
}

// ClassSummary is a class card on the "my classes" page.
type ClassSummary struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Subject        string     `json:"subject"`
	TotalStudents  int        `json:"totalStudents"`
	AttendanceRate float64    `json:"attendanceRate"`
	LastUpdated    *time.Time `json:"lastUpdated"`
	IsActive       bool       `json:"isActive"`
}

// ReportPeriod bounds a report; empty strings mean unbounded.
type ReportPeriod struct {
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// ReportSummary is the header block of a report.
type ReportSummary struct {
	TotalStudents     int     `json:"totalStudents"`
	AverageAttendance float64 `json:"averageAttendance"`
	PresentToday      int     `json:"presentToday"`
	AbsentToday       int     `json:"absentToday"`
}

// ReportRow is one student line of a report.
type ReportRow struct {
	RollNo         string  `json:"rollNo"`
	FullName       string  `json:"fullName"`
	AttendanceRate float64 `json:"attendanceRate"`
	Status         Status  `json:"status"`
	PeriodPresent  int     `json:"periodPresent"`
	PeriodTotal    int     `json:"periodTotal"`
}

// Report is a generated attendance report for a class.
type Report struct {
	Type        string        `json:"type"`
	GeneratedAt time.Time     `json:"generatedAt"`
	ClassID     string        `json:"classId"`
	ClassName   string        `json:"className"`
	Period      ReportPeriod  `json:"period"`
	Summary     ReportSummary `json:"summary"`
	Students    []ReportRow   `json:"students"`
	DownloadURL string        `json:"downloadUrl"`
}
