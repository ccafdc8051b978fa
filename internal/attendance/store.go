package attendance

import (
	"context"
	"time"

	"attendtrack/internal/model"
)

// Store is the persistence contract used by Service. Lookups return
// (nil, nil) when the row does not exist.
type Store interface {
	Ping(ctx context.Context) error

	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByRFID(ctx context.Context, cardID string) (*model.User, error)
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	UpdateUserRFID(ctx context.Context, id, cardID string) (*model.User, error)
	UpdateUserFullName(ctx context.Context, id, fullName string) (*model.User, error)

	GetClass(ctx context.Context, id string) (*model.Class, error)
	ListClasses(ctx context.Context) ([]model.Class, error)
	ListClassesByTeacher(ctx context.Context, teacherID string) ([]model.Class, error)
	CreateClass(ctx context.Context, c model.Class) (model.Class, error)

	GetStudent(ctx context.Context, id string) (*model.Student, error)
	GetStudentByRFID(ctx context.Context, cardID string) (*model.Student, error)
	ListStudentsByClass(ctx context.Context, classID string) ([]model.Student, error)
	CreateStudent(ctx context.Context, s model.Student) (model.Student, error)
	UpdateStudentRFID(ctx context.Context, id, cardID string) (*model.Student, error)
	UpdateStudentPhoto(ctx context.Context, id, photoURL string) (*model.Student, error)

	InsertAttendance(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error)
	ListAttendanceByDate(ctx context.Context, classID, date string) ([]model.AttendanceRecord, error)
	// ListAttendanceBetween returns records with from <= date <= to (inclusive).
	ListAttendanceBetween(ctx context.Context, classID, from, to string) ([]model.AttendanceRecord, error)
	ListAttendanceHistory(ctx context.Context, studentID string, limit int) ([]model.AttendanceRecord, error)
	ListStudentClassAttendance(ctx context.Context, studentID, classID string) ([]model.AttendanceRecord, error)
	CountAttendanceSince(ctx context.Context, since time.Time) (int, error)
	LatestMarkInClass(ctx context.Context, classID string) (*time.Time, error)

	// UpsertStats inserts or replaces the single stats row of the student.
	UpsertStats(ctx context.Context, st model.AttendanceStats) (model.AttendanceStats, error)
	GetStats(ctx context.Context, studentID string) (*model.AttendanceStats, error)
	ListStatsByClass(ctx context.Context, classID string) ([]model.AttendanceStats, error)
}
