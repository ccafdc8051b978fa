package model

import "time"

// Role is the access role of a user.
type Role string

const (
	RoleTeacher    Role = "teacher"
	RoleAdmin      Role = "admin"
	RoleGovernment Role = "government"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleTeacher, RoleAdmin, RoleGovernment:
		return true
	default:
		return false
	}
}

// Method is how an attendance record was captured.
type Method string

const (
	MethodManual Method = "manual"
	MethodFacial Method = "facial"
	MethodRFID   Method = "rfid"
)

// Valid reports whether m is a supported capture method.
func (m Method) Valid() bool {
	switch m {
	case MethodManual, MethodFacial, MethodRFID:
		return true
	default:
		return false
	}
}

// Status buckets a student's attendance rate.
type Status string

const (
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusWarning   Status = "warning"
	StatusCritical  Status = "critical"
)

// DateLayout is the storage format of attendance dates.
const DateLayout = "2006-01-02"

// User is a staff account. Passwords are not handled by this service.
type User struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	FullName   string  `json:"fullName"`
	Role       Role    `json:"role"`
	RFIDCardID *string `json:"rfidCardId"`
}

// Class is a teaching group owned by a teacher.
type Class struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	TeacherID string `json:"teacherId"`
	SchoolID  string `json:"schoolId"`
}

// Student belongs to exactly one class.
type Student struct {
	ID         string  `json:"id"`
	RollNo     string  `json:"rollNo"`
	FullName   string  `json:"fullName"`
	ClassID    string  `json:"classId"`
	PhotoURL   *string `json:"photoUrl"`
	RFIDCardID *string `json:"rfidCardId"`
}

// AttendanceRecord is one presence/absence entry for a student on a date.
type AttendanceRecord struct {
	ID        string    `json:"id"`
	StudentID string    `json:"studentId"`
	ClassID   string    `json:"classId"`
	Date      string    `json:"date"`
	IsPresent bool      `json:"isPresent"`
	MarkedAt  time.Time `json:"markedAt"`
	MarkedBy  string    `json:"markedBy"`
	Method    Method    `json:"method"`
}

// AttendanceStats is the cached aggregate for one student.
type AttendanceStats struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"studentId"`
	ClassID        string    `json:"classId"`
	TotalDays      int       `json:"totalDays"`
	PresentDays    int       `json:"presentDays"`
	AttendanceRate float64   `json:"attendanceRate"`
	LastUpdated    time.Time `json:"lastUpdated"`
}
