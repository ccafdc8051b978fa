package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"attendtrack/internal/faceclient"
	"attendtrack/internal/metrics"
	"attendtrack/internal/model"
)

// Notifier receives every record written by the service.
type Notifier interface {
	AttendanceMarked(rec model.AttendanceRecord)
}

// FaceVerifier performs 1:1 face verification.
type FaceVerifier interface {
	Verify(ctx context.Context, userID, imageURL string) (*faceclient.VerifyResult, error)
}

// Options tunes a Service. Zero values are replaced with defaults.
type Options struct {
	Location      *time.Location
	Now           func() time.Time
	Notifier      Notifier
	Face          FaceVerifier
	MinSimilarity float64
}

// Service implements attendance marking, stats recomputation and the read models.
type Service struct {
	store         Store
	log           *zap.Logger
	loc           *time.Location
	now           func() time.Time
	notifier      Notifier
	face          FaceVerifier
	minSimilarity float64
	locks         *keyedLock
}

// NewService creates a service backed by a store.
func NewService(store Store, log *zap.Logger, opts Options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:         store,
		log:           log,
		loc:           opts.Location,
		now:           opts.Now,
		notifier:      opts.Notifier,
		face:          opts.Face,
		minSimilarity: opts.MinSimilarity,
		locks:         newKeyedLock(),
	}
}

// Store exposes the underlying persistence.
func (s *Service) Store() Store { return s.store }

// Today returns the current school date.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(model.DateLayout)
}

// ParseDate validates a YYYY-MM-DD date and returns it normalised.
func ParseDate(v string) (string, error) {
	t, err := time.Parse(model.DateLayout, strings.TrimSpace(v))
	if err != nil {
		return "", validationf("date %q must be YYYY-MM-DD", v)
	}
	return t.Format(model.DateLayout), nil
}

func (s *Service) dateOrToday(v string) (string, error) {
	if strings.TrimSpace(v) == "" {
		return s.Today(), nil
	}
	return ParseDate(v)
}

// MarkInput is a single attendance mark request.
type MarkInput struct {
	StudentID string
	ClassID   string
	Date      string
	IsPresent *bool
	MarkedBy  string
	Method    model.Method
}

func (in MarkInput) validate() (model.AttendanceRecord, error) {
	var missing []string
	if in.StudentID == "" {
		missing = append(missing, "studentId")
	}
	if in.ClassID == "" {
		missing = append(missing, "classId")
	}
	if in.Date == "" {
		missing = append(missing, "date")
	}
	if in.IsPresent == nil {
		missing = append(missing, "isPresent")
	}
	if in.MarkedBy == "" {
		missing = append(missing, "markedBy")
	}
	if in.Method == "" {
		missing = append(missing, "method")
	}
	if len(missing) > 0 {
		return model.AttendanceRecord{}, validationf("missing fields: %s", strings.Join(missing, ", "))
	}
	date, err := ParseDate(in.Date)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	if !in.Method.Valid() {
		return model.AttendanceRecord{}, validationf("method %q must be manual, facial or rfid", in.Method)
	}
	return model.AttendanceRecord{
		StudentID: in.StudentID,
		ClassID:   in.ClassID,
		Date:      date,
		IsPresent: *in.IsPresent,
		MarkedBy:  in.MarkedBy,
		Method:    in.Method,
	}, nil
}

// Mark inserts a record unconditionally and recomputes the student's stats.
// It does not check for an existing record on the same date. When only the
// recompute fails, the stored record is returned with an error matching
// both ErrStatsStale and ErrPersistence.
func (s *Service) Mark(ctx context.Context, in MarkInput) (model.AttendanceRecord, error) {
	rec, err := in.validate()
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	unlock := s.locks.lock(rec.StudentID)
	defer unlock()
	return s.markLocked(ctx, rec)
}

// markLocked requires the student's lock to be held.
func (s *Service) markLocked(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	rec.ID = ""
	rec.MarkedAt = s.now().UTC()
	saved, err := s.store.InsertAttendance(ctx, rec)
	if err != nil {
		return model.AttendanceRecord{}, persistence("insert attendance", err)
	}
	metrics.AttendanceMarks.WithLabelValues(string(saved.Method)).Inc()

	if s.notifier != nil {
		s.notifier.AttendanceMarked(saved)
	}
	if err := s.recomputeLocked(ctx, saved.StudentID, saved.ClassID); err != nil {
		s.log.Error("stats recompute failed",
			zap.String("record_id", saved.ID),
			zap.String("student_id", saved.StudentID), zap.String("class_id", saved.ClassID), zap.Error(err))
		return saved, fmt.Errorf("%w: %w", ErrStatsStale, err)
	}
	return saved, nil
}

// Recompute rebuilds the stats row of a student from the full history.
func (s *Service) Recompute(ctx context.Context, studentID, classID string) error {
	if studentID == "" || classID == "" {
		return validationf("studentId and classId required")
	}
	unlock := s.locks.lock(studentID)
	defer unlock()
	return s.recomputeLocked(ctx, studentID, classID)
}

func (s *Service) recomputeLocked(ctx context.Context, studentID, classID string) error {
	start := time.Now()
	defer func() { metrics.StatsRecompute.Observe(time.Since(start).Seconds()) }()

	records, err := s.store.ListStudentClassAttendance(ctx, studentID, classID)
	if err != nil {
		return persistence("load history", err)
	}
	st := ComputeStats(records)
	st.StudentID = studentID
	st.ClassID = classID
	st.LastUpdated = s.now().UTC()
	if _, err := s.store.UpsertStats(ctx, st); err != nil {
		return persistence("upsert stats", err)
	}
	return nil
}

// ComputeStats derives totals and rate from a set of records.
func ComputeStats(records []model.AttendanceRecord) model.AttendanceStats {
	var st model.AttendanceStats
	st.TotalDays = len(records)
	for _, r := range records {
		if r.IsPresent {
			st.PresentDays++
		}
	}
	if st.TotalDays > 0 {
		st.AttendanceRate = float64(st.PresentDays) / float64(st.TotalDays) * 100
	}
	return st
}

// StudentRef is the short student form returned by RFID endpoints.
type StudentRef struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	RollNo   string `json:"rollNo"`
}

func refOf(st *model.Student) StudentRef {
	return StudentRef{ID: st.ID, FullName: st.FullName, RollNo: st.RollNo}
}

// ScanResult is the outcome of a single card scan or face check.
type ScanResult struct {
	Success    bool                   `json:"success"`
	Student    StudentRef             `json:"student"`
	Attendance model.AttendanceRecord `json:"attendance"`
}

// ScanInput is a single RFID scan.
type ScanInput struct {
	RFIDCardID string
	ClassID    string
	MarkedBy   string
	Date       string
}

// MarkByRFID resolves a card and marks the owner present.
func (s *Service) MarkByRFID(ctx context.Context, in ScanInput) (ScanResult, error) {
	if in.RFIDCardID == "" || in.ClassID == "" || in.MarkedBy == "" {
		return ScanResult{}, validationf("missing required fields: rfidCardId, classId, markedBy")
	}
	date, err := s.dateOrToday(in.Date)
	if err != nil {
		return ScanResult{}, err
	}
	student, err := s.store.GetStudentByRFID(ctx, in.RFIDCardID)
	if err != nil {
		return ScanResult{}, persistence("lookup card", err)
	}
	if student == nil {
		return ScanResult{}, notFoundf("student not found for RFID card")
	}
	if student.ClassID != in.ClassID {
		return ScanResult{}, validationf("student does not belong to this class")
	}
	present := true
	rec, err := s.Mark(ctx, MarkInput{
		StudentID: student.ID,
		ClassID:   in.ClassID,
		Date:      date,
		IsPresent: &present,
		MarkedBy:  in.MarkedBy,
		Method:    model.MethodRFID,
	})
	if err != nil {
		return ScanResult{}, err
	}
	return ScanResult{Success: true, Student: refOf(student), Attendance: rec}, nil
}

// FaceInput is a facial attendance request.
type FaceInput struct {
	StudentID string
	ClassID   string
	ImageURL  string
	MarkedBy  string
	Date      string
}

// MarkByFace verifies the student's face and marks them present.
func (s *Service) MarkByFace(ctx context.Context, in FaceInput) (ScanResult, error) {
	if in.StudentID == "" || in.ClassID == "" || in.ImageURL == "" || in.MarkedBy == "" {
		return ScanResult{}, validationf("missing required fields: studentId, classId, imageUrl, markedBy")
	}
	if s.face == nil {
		return ScanResult{}, fmt.Errorf("%w: facial recognition is not configured", ErrUnavailable)
	}
	date, err := s.dateOrToday(in.Date)
	if err != nil {
		return ScanResult{}, err
	}
	student, err := s.store.GetStudent(ctx, in.StudentID)
	if err != nil {
		return ScanResult{}, persistence("get student", err)
	}
	if student == nil {
		return ScanResult{}, notFoundf("student %s", in.StudentID)
	}
	if student.ClassID != in.ClassID {
		return ScanResult{}, validationf("student does not belong to this class")
	}
	res, err := s.face.Verify(ctx, student.ID, in.ImageURL)
	if err != nil {
		return ScanResult{}, fmt.Errorf("%w: face verify: %w", ErrUnavailable, err)
	}
	if !res.Verified || res.Similarity < s.minSimilarity {
		return ScanResult{}, validationf("face not verified (similarity %.2f)", res.Similarity)
	}
	present := true
	rec, err := s.Mark(ctx, MarkInput{
		StudentID: student.ID,
		ClassID:   in.ClassID,
		Date:      date,
		IsPresent: &present,
		MarkedBy:  in.MarkedBy,
		Method:    model.MethodFacial,
	})
	if err != nil {
		return ScanResult{}, err
	}
	return ScanResult{Success: true, Student: refOf(student), Attendance: rec}, nil
}
