package attendance

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"attendtrack/internal/metrics"
	"attendtrack/internal/model"
)

// Failure reasons reported per batch item.
const (
	ReasonStudentNotFound = "Student not found"
	ReasonWrongClass      = "Wrong class"
	ReasonAlreadyMarked   = "Already marked"
	ReasonProcessingError = "Processing error"
)

// BatchInput is a list of scanned cards for one class and date.
type BatchInput struct {
	CardIDs  []string
	ClassID  string
	MarkedBy string
	Date     string
}

// BatchSuccess is a card that produced a new record. StatsStale is set
// when the record was stored but the stats row was not recomputed.
type BatchSuccess struct {
	RFIDCardID string                 `json:"rfidCardId"`
	Student    StudentRef             `json:"student"`
	Attendance model.AttendanceRecord `json:"attendance"`
	StatsStale bool                   `json:"statsStale,omitempty"`
}

// BatchFailure is a card that was rejected.
type BatchFailure struct {
	RFIDCardID string `json:"rfidCardId"`
	Student    string `json:"student,omitempty"`
	Error      string `json:"error"`
}

// BatchResult partitions every input card into Successful or Failed.
type BatchResult struct {
	Successful []BatchSuccess `json:"successful"`
	Failed     []BatchFailure `json:"failed"`
	Total      int            `json:"total"`
}

// ProcessBatch marks every resolvable card present, in input order.
// Items are independent: a failure never rolls back earlier successes.
// Unlike Mark, a student already holding a record for the date is rejected.
func (s *Service) ProcessBatch(ctx context.Context, in BatchInput) (BatchResult, error) {
	if in.CardIDs == nil || in.ClassID == "" || in.MarkedBy == "" {
		return BatchResult{}, validationf("missing required fields: scans (array), classId, markedBy")
	}
	date, err := s.dateOrToday(in.Date)
	if err != nil {
		return BatchResult{}, err
	}

	res := BatchResult{
		Successful: []BatchSuccess{},
		Failed:     []BatchFailure{},
		Total:      len(in.CardIDs),
	}
	for _, card := range in.CardIDs {
		ok, fail := s.processCard(ctx, card, in.ClassID, in.MarkedBy, date)
		if fail != nil {
			res.Failed = append(res.Failed, *fail)
			metrics.RFIDBatchItems.WithLabelValues(fail.Error).Inc()
			s.log.Debug("rfid batch item rejected", zap.String("card", card), zap.String("reason", fail.Error))
			continue
		}
		res.Successful = append(res.Successful, *ok)
		metrics.RFIDBatchItems.WithLabelValues("success").Inc()
	}

	s.log.Info("rfid batch processed",
		zap.String("class_id", in.ClassID),
		zap.String("date", date),
		zap.Int("total", res.Total),
		zap.Int("successful", len(res.Successful)),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}

func (s *Service) processCard(ctx context.Context, card, classID, markedBy, date string) (*BatchSuccess, *BatchFailure) {
	fail := func(student, reason string) (*BatchSuccess, *BatchFailure) {
		return nil, &BatchFailure{RFIDCardID: card, Student: student, Error: reason}
	}
	if ctx.Err() != nil {
		return fail("", ReasonProcessingError)
	}

	student, err := s.store.GetStudentByRFID(ctx, card)
	if err != nil {
		s.log.Warn("rfid batch lookup failed", zap.String("card", card), zap.Error(err))
		return fail("", ReasonProcessingError)
	}
	if student == nil {
		return fail("", ReasonStudentNotFound)
	}
	if student.ClassID != classID {
		return fail(student.FullName, ReasonWrongClass)
	}

	// Duplicate check and insert happen under the same student lock.
	unlock := s.locks.lock(student.ID)
	defer unlock()

	existing, err := s.store.ListAttendanceByDate(ctx, classID, date)
	if err != nil {
		s.log.Warn("rfid batch duplicate check failed", zap.String("card", card), zap.Error(err))
		return fail(student.FullName, ReasonProcessingError)
	}
	for _, r := range existing {
		if r.StudentID == student.ID {
			return fail(student.FullName, ReasonAlreadyMarked)
		}
	}

	rec, err := s.markLocked(ctx, model.AttendanceRecord{
		StudentID: student.ID,
		ClassID:   classID,
		Date:      date,
		IsPresent: true,
		MarkedBy:  markedBy,
		Method:    model.MethodRFID,
	})
	stale := errors.Is(err, ErrStatsStale)
	if err != nil && !stale {
		s.log.Warn("rfid batch mark failed", zap.String("card", card), zap.Error(err))
		return fail(student.FullName, ReasonProcessingError)
	}
	return &BatchSuccess{RFIDCardID: card, Student: refOf(student), Attendance: rec, StatsStale: stale}, nil
}
