package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendtrack/internal/model"
)

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]model.User
	classes  map[string]model.Class
	students map[string]model.Student
	records  []model.AttendanceRecord
	stats    map[string]model.AttendanceStats // by student id
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]model.User),
		classes:  make(map[string]model.Class),
		students: make(map[string]model.Student),
		stats:    make(map[string]model.AttendanceStats),
	}
}

var _ Store = (*MemoryStore)(nil)

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

func cardEq(p *string, card string) bool { return p != nil && *p == card }

func strPtr(s string) *string { return &s }

// GetUser returns a user by id.
func (m *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

// GetUserByUsername returns a user by login name.
func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

// GetUserByRFID returns the user owning a card.
func (m *MemoryStore) GetUserByRFID(_ context.Context, cardID string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if cardEq(u.RFIDCardID, cardID) {
			return &u, nil
		}
	}
	return nil, nil
}

// CreateUser inserts a user, enforcing unique usernames and cards.
func (m *MemoryStore) CreateUser(_ context.Context, u model.User) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = model.RoleTeacher
	}
	for _, other := range m.users {
		if other.ID == u.ID || other.Username == u.Username {
			return model.User{}, conflictf("create user: duplicate user %q", u.Username)
		}
		if u.RFIDCardID != nil && cardEq(other.RFIDCardID, *u.RFIDCardID) {
			return model.User{}, conflictf("create user: card in use")
		}
	}
	m.users[u.ID] = u
	return u, nil
}

// UpdateUserRFID assigns a card to a user.
func (m *MemoryStore) UpdateUserRFID(_ context.Context, id, cardID string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	for oid, other := range m.users {
		if oid != id && cardEq(other.RFIDCardID, cardID) {
			return nil, conflictf("update user rfid: card in use")
		}
	}
	u.RFIDCardID = strPtr(cardID)
	m.users[id] = u
	return &u, nil
}

// UpdateUserFullName changes the display name of a user.
func (m *MemoryStore) UpdateUserFullName(_ context.Context, id, fullName string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	u.FullName = fullName
	m.users[id] = u
	return &u, nil
}

// GetClass returns a class by id.
func (m *MemoryStore) GetClass(_ context.Context, id string) (*model.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func sortedClasses(in []model.Class) []model.Class {
	sort.Slice(in, func(i, j int) bool { return in[i].Name < in[j].Name })
	return in
}

// ListClasses returns every class ordered by name.
func (m *MemoryStore) ListClasses(context.Context) ([]model.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]model.Class, 0, len(m.classes))
	for _, c := range m.classes {
		res = append(res, c)
	}
	return sortedClasses(res), nil
}

// ListClassesByTeacher returns the classes owned by a teacher.
func (m *MemoryStore) ListClassesByTeacher(_ context.Context, teacherID string) ([]model.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []model.Class
	for _, c := range m.classes {
		if c.TeacherID == teacherID {
			res = append(res, c)
		}
	}
	return sortedClasses(res), nil
}

// CreateClass inserts a class.
func (m *MemoryStore) CreateClass(_ context.Context, c model.Class) (model.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := m.classes[c.ID]; ok {
		return model.Class{}, conflictf("create class: duplicate id %q", c.ID)
	}
	if _, ok := m.users[c.TeacherID]; !ok {
		return model.Class{}, validationf("create class: unknown reference (teacher %q)", c.TeacherID)
	}
	m.classes[c.ID] = c
	return c, nil
}

// GetStudent returns a student by id.
func (m *MemoryStore) GetStudent(_ context.Context, id string) (*model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, nil
}

// GetStudentByRFID returns the student owning a card.
func (m *MemoryStore) GetStudentByRFID(_ context.Context, cardID string) (*model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.students {
		if cardEq(s.RFIDCardID, cardID) {
			return &s, nil
		}
	}
	return nil, nil
}

// ListStudentsByClass returns the roster ordered by roll number.
func (m *MemoryStore) ListStudentsByClass(_ context.Context, classID string) ([]model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []model.Student
	for _, s := range m.students {
		if s.ClassID == classID {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RollNo < res[j].RollNo })
	return res, nil
}

// CreateStudent inserts a student.
func (m *MemoryStore) CreateStudent(_ context.Context, s model.Student) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, ok := m.classes[s.ClassID]; !ok {
		return model.Student{}, validationf("create student: unknown reference (class %q)", s.ClassID)
	}
	for _, other := range m.students {
		if other.ID == s.ID {
			return model.Student{}, conflictf("create student: duplicate id %q", s.ID)
		}
		if s.RFIDCardID != nil && cardEq(other.RFIDCardID, *s.RFIDCardID) {
			return model.Student{}, conflictf("create student: card in use")
		}
	}
	m.students[s.ID] = s
	return s, nil
}

// UpdateStudentRFID assigns a card to a student.
func (m *MemoryStore) UpdateStudentRFID(_ context.Context, id, cardID string) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	for oid, other := range m.students {
		if oid != id && cardEq(other.RFIDCardID, cardID) {
			return nil, conflictf("update student rfid: card in use")
		}
	}
	s.RFIDCardID = strPtr(cardID)
	m.students[id] = s
	return &s, nil
}

// UpdateStudentPhoto stores the photo URL of a student.
func (m *MemoryStore) UpdateStudentPhoto(_ context.Context, id, photoURL string) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	s.PhotoURL = strPtr(photoURL)
	m.students[id] = s
	return &s, nil
}

// refsLocked mirrors the student and class foreign keys of the SQL schema.
func (m *MemoryStore) refsLocked(op, studentID, classID string) error {
	if _, ok := m.students[studentID]; !ok {
		return validationf("%s: unknown reference (student %q)", op, studentID)
	}
	if _, ok := m.classes[classID]; !ok {
		return validationf("%s: unknown reference (class %q)", op, classID)
	}
	return nil
}

// InsertAttendance appends a record.
func (m *MemoryStore) InsertAttendance(_ context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refsLocked("insert attendance", rec.StudentID, rec.ClassID); err != nil {
		return model.AttendanceRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = time.Now().UTC()
	}
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *MemoryStore) filterRecords(keep func(model.AttendanceRecord) bool) []model.AttendanceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []model.AttendanceRecord
	for _, r := range m.records {
		if keep(r) {
			res = append(res, r)
		}
	}
	return res
}

// ListAttendanceByDate returns a class's records on one date.
func (m *MemoryStore) ListAttendanceByDate(_ context.Context, classID, date string) ([]model.AttendanceRecord, error) {
	return m.filterRecords(func(r model.AttendanceRecord) bool {
		return r.ClassID == classID && r.Date == date
	}), nil
}

// ListAttendanceBetween returns a class's records in an inclusive date range.
func (m *MemoryStore) ListAttendanceBetween(_ context.Context, classID, from, to string) ([]model.AttendanceRecord, error) {
	res := m.filterRecords(func(r model.AttendanceRecord) bool {
		return r.ClassID == classID && r.Date >= from && r.Date <= to
	})
	sort.SliceStable(res, func(i, j int) bool { return res[i].Date < res[j].Date })
	return res, nil
}

// ListAttendanceHistory returns a student's newest records first.
func (m *MemoryStore) ListAttendanceHistory(_ context.Context, studentID string, limit int) ([]model.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	res := m.filterRecords(func(r model.AttendanceRecord) bool { return r.StudentID == studentID })
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Date != res[j].Date {
			return res[i].Date > res[j].Date
		}
		return res[i].MarkedAt.After(res[j].MarkedAt)
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// ListStudentClassAttendance returns every record of a student in a class.
func (m *MemoryStore) ListStudentClassAttendance(_ context.Context, studentID, classID string) ([]model.AttendanceRecord, error) {
	return m.filterRecords(func(r model.AttendanceRecord) bool {
		return r.StudentID == studentID && r.ClassID == classID
	}), nil
}

// CountAttendanceSince counts records marked after since.
func (m *MemoryStore) CountAttendanceSince(_ context.Context, since time.Time) (int, error) {
	return len(m.filterRecords(func(r model.AttendanceRecord) bool { return r.MarkedAt.After(since) })), nil
}

// LatestMarkInClass returns the newest mark time of a class, nil if none.
func (m *MemoryStore) LatestMarkInClass(_ context.Context, classID string) (*time.Time, error) {
	var latest *time.Time
	for _, r := range m.filterRecords(func(r model.AttendanceRecord) bool { return r.ClassID == classID }) {
		if latest == nil || r.MarkedAt.After(*latest) {
			t := r.MarkedAt
			latest = &t
		}
	}
	return latest, nil
}

// UpsertStats replaces the student's stats row.
func (m *MemoryStore) UpsertStats(_ context.Context, st model.AttendanceStats) (model.AttendanceStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refsLocked("upsert stats", st.StudentID, st.ClassID); err != nil {
		return model.AttendanceStats{}, err
	}
	if prev, ok := m.stats[st.StudentID]; ok {
		st.ID = prev.ID
	} else if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.LastUpdated.IsZero() {
		st.LastUpdated = time.Now().UTC()
	}
	m.stats[st.StudentID] = st
	return st, nil
}

// GetStats returns the stats row of a student.
func (m *MemoryStore) GetStats(_ context.Context, studentID string) (*model.AttendanceStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.stats[studentID]; ok {
		return &st, nil
	}
	return nil, nil
}

// ListStatsByClass returns the stats rows of a class.
func (m *MemoryStore) ListStatsByClass(_ context.Context, classID string) ([]model.AttendanceStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []model.AttendanceStats
	for _, st := range m.stats {
		if st.ClassID == classID {
			res = append(res, st)
		}
	}
	return res, nil
}
