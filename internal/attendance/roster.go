package attendance

import (
	"context"
	"strings"

	"attendtrack/internal/model"
)

// DefaultSchoolID is assigned to classes created without a school.
const DefaultSchoolID = "demo-school"

// CreateClass registers a class owned by teacherID.
func (s *Service) CreateClass(ctx context.Context, name, subject, teacherID string) (model.Class, error) {
	name, subject = strings.TrimSpace(name), strings.TrimSpace(subject)
	if name == "" || subject == "" {
		return model.Class{}, validationf("class name and subject are required")
	}
	if teacherID == "" {
		return model.Class{}, validationf("teacherId is required")
	}
	teacher, err := s.store.GetUser(ctx, teacherID)
	if err != nil {
		return model.Class{}, persistence("get teacher", err)
	}
	if teacher == nil {
		return model.Class{}, notFoundf("teacher %s", teacherID)
	}
	c, err := s.store.CreateClass(ctx, model.Class{
		Name:      name,
		Subject:   subject,
		TeacherID: teacherID,
		SchoolID:  DefaultSchoolID,
	})
	if err != nil {
		return model.Class{}, persistence("create class", err)
	}
	return c, nil
}

// ClassesByTeacher lists the classes a teacher owns.
func (s *Service) ClassesByTeacher(ctx context.Context, teacherID string) ([]model.Class, error) {
	classes, err := s.store.ListClassesByTeacher(ctx, teacherID)
	if err != nil {
		return nil, persistence("list classes", err)
	}
	if classes == nil {
		classes = []model.Class{}
	}
	return classes, nil
}

// CreateStudent adds a student to an existing class roster.
func (s *Service) CreateStudent(ctx context.Context, st model.Student) (model.Student, error) {
	st.RollNo, st.FullName = strings.TrimSpace(st.RollNo), strings.TrimSpace(st.FullName)
	if st.RollNo == "" || st.FullName == "" || st.ClassID == "" {
		return model.Student{}, validationf("rollNo, fullName and classId are required")
	}
	if st.RFIDCardID != nil && *st.RFIDCardID == "" {
		st.RFIDCardID = nil
	}
	class, err := s.store.GetClass(ctx, st.ClassID)
	if err != nil {
		return model.Student{}, persistence("get class", err)
	}
	if class == nil {
		return model.Student{}, notFoundf("class %s", st.ClassID)
	}
	if st.RFIDCardID != nil {
		if owner, err := s.store.GetStudentByRFID(ctx, *st.RFIDCardID); err != nil {
			return model.Student{}, persistence("lookup card", err)
		} else if owner != nil {
			return model.Student{}, conflictf("RFID card already assigned to another student")
		}
	}
	st.ID = ""
	created, err := s.store.CreateStudent(ctx, st)
	if err != nil {
		return model.Student{}, persistence("create student", err)
	}
	return created, nil
}

// Student returns a student or ErrNotFound.
func (s *Service) Student(ctx context.Context, id string) (*model.Student, error) {
	st, err := s.store.GetStudent(ctx, id)
	if err != nil {
		return nil, persistence("get student", err)
	}
	if st == nil {
		return nil, notFoundf("student not found")
	}
	return st, nil
}

// StudentByRFID resolves a card to its student.
func (s *Service) StudentByRFID(ctx context.Context, cardID string) (*model.Student, error) {
	st, err := s.store.GetStudentByRFID(ctx, cardID)
	if err != nil {
		return nil, persistence("lookup card", err)
	}
	if st == nil {
		return nil, notFoundf("student not found for RFID card")
	}
	return st, nil
}

// UserByRFID resolves a card to its user.
func (s *Service) UserByRFID(ctx context.Context, cardID string) (*model.User, error) {
	u, err := s.store.GetUserByRFID(ctx, cardID)
	if err != nil {
		return nil, persistence("lookup card", err)
	}
	if u == nil {
		return nil, notFoundf("user not found for RFID card")
	}
	return u, nil
}

// AssignStudentRFID gives a card to a student. A card owned by another
// student is a conflict; re-assigning the same card is a no-op update.
func (s *Service) AssignStudentRFID(ctx context.Context, studentID, cardID string) (*model.Student, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return nil, validationf("RFID card ID is required")
	}
	owner, err := s.store.GetStudentByRFID(ctx, cardID)
	if err != nil {
		return nil, persistence("lookup card", err)
	}
	if owner != nil && owner.ID != studentID {
		return nil, conflictf("RFID card already assigned to another student")
	}
	updated, err := s.store.UpdateStudentRFID(ctx, studentID, cardID)
	if err != nil {
		return nil, persistence("assign card", err)
	}
	if updated == nil {
		return nil, notFoundf("student not found")
	}
	return updated, nil
}

// AssignUserRFID gives a card to a staff user.
func (s *Service) AssignUserRFID(ctx context.Context, userID, cardID string) (*model.User, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return nil, validationf("RFID card ID is required")
	}
	owner, err := s.store.GetUserByRFID(ctx, cardID)
	if err != nil {
		return nil, persistence("lookup card", err)
	}
	if owner != nil && owner.ID != userID {
		return nil, conflictf("RFID card already assigned to another user")
	}
	updated, err := s.store.UpdateUserRFID(ctx, userID, cardID)
	if err != nil {
		return nil, persistence("assign card", err)
	}
	if updated == nil {
		return nil, notFoundf("user not found")
	}
	return updated, nil
}

// SetStudentPhoto stores an uploaded photo URL.
func (s *Service) SetStudentPhoto(ctx context.Context, studentID, photoURL string) (*model.Student, error) {
	updated, err := s.store.UpdateStudentPhoto(ctx, studentID, photoURL)
	if err != nil {
		return nil, persistence("update photo", err)
	}
	if updated == nil {
		return nil, notFoundf("student not found")
	}
	return updated, nil
}

// UserByUsername returns a user or ErrNotFound.
func (s *Service) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, persistence("get user", err)
	}
	if u == nil {
		return nil, notFoundf("user %s", username)
	}
	return u, nil
}

// UpdateFullName changes a user's display name.
func (s *Service) UpdateFullName(ctx context.Context, userID, fullName string) (*model.User, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, validationf("fullName is required")
	}
	u, err := s.store.UpdateUserFullName(ctx, userID, fullName)
	if err != nil {
		return nil, persistence("update user", err)
	}
	if u == nil {
		return nil, notFoundf("user not found")
	}
	return u, nil
}

// AttendanceOn lists a class's records for a date.
func (s *Service) AttendanceOn(ctx context.Context, classID, date string) ([]model.AttendanceRecord, error) {
	d, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.ListAttendanceByDate(ctx, classID, d)
	if err != nil {
		return nil, persistence("list attendance", err)
	}
	if recs == nil {
		recs = []model.AttendanceRecord{}
	}
	return recs, nil
}

// History lists a student's most recent records, newest date first.
func (s *Service) History(ctx context.Context, studentID string, limit int) ([]model.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	recs, err := s.store.ListAttendanceHistory(ctx, studentID, limit)
	if err != nil {
		return nil, persistence("attendance history", err)
	}
	if recs == nil {
		recs = []model.AttendanceRecord{}
	}
	return recs, nil
}
