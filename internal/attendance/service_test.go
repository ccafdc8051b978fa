package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"attendtrack/internal/faceclient"
	"attendtrack/internal/model"
)

var testNow = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	recs []model.AttendanceRecord
}

func (n *recordingNotifier) AttendanceMarked(rec model.AttendanceRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recs = append(n.recs, rec)
}

type fakeVerifier struct {
	res *faceclient.VerifyResult
	err error
}

func (f fakeVerifier) Verify(context.Context, string, string) (*faceclient.VerifyResult, error) {
	return f.res, f.err
}

func ptr[T any](v T) *T { return &v }

var errInjected = errors.New("injected store failure")

// flakyStore fails selected writes of the wrapped MemoryStore.
type flakyStore struct {
	*MemoryStore
	failStats      bool
	failStudentsAt int // fail the n-th CreateStudent call (1-based), 0 never
	studentCalls   int
	failInsertsAt  int // fail the n-th InsertAttendance call (1-based), 0 never
	insertCalls    int
}

func (f *flakyStore) InsertAttendance(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	f.insertCalls++
	if f.insertCalls == f.failInsertsAt {
		return model.AttendanceRecord{}, errInjected
	}
	return f.MemoryStore.InsertAttendance(ctx, rec)
}

func (f *flakyStore) UpsertStats(ctx context.Context, st model.AttendanceStats) (model.AttendanceStats, error) {
	if f.failStats {
		return model.AttendanceStats{}, errInjected
	}
	return f.MemoryStore.UpsertStats(ctx, st)
}

func (f *flakyStore) CreateStudent(ctx context.Context, st model.Student) (model.Student, error) {
	f.studentCalls++
	if f.studentCalls == f.failStudentsAt {
		return model.Student{}, errInjected
	}
	return f.MemoryStore.CreateStudent(ctx, st)
}

// newTestService returns a service over a store holding class c1 with
// students s1..s3 (cards A, B, C) and class c2 with s4 (card W).
func newTestService(t *testing.T, opts Options) (*Service, *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	svc := NewService(store, nil, opts)
	teacher, err := store.CreateUser(ctx, model.User{ID: "t1", Username: "teacher", FullName: "Teacher"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	for _, id := range []string{"c1", "c2"} {
		if _, err := store.CreateClass(ctx, model.Class{ID: id, Name: id, Subject: "Maths", TeacherID: teacher.ID}); err != nil {
			t.Fatalf("create class: %v", err)
		}
	}
	for _, st := range []model.Student{
		{ID: "s1", RollNo: "1", FullName: "One", ClassID: "c1", RFIDCardID: ptr("A")},
		{ID: "s2", RollNo: "2", FullName: "Two", ClassID: "c1", RFIDCardID: ptr("B")},
		{ID: "s3", RollNo: "3", FullName: "Three", ClassID: "c1", RFIDCardID: ptr("C")},
		{ID: "s4", RollNo: "4", FullName: "Four", ClassID: "c2", RFIDCardID: ptr("W")},
	} {
		if _, err := store.CreateStudent(ctx, st); err != nil {
			t.Fatalf("create student: %v", err)
		}
	}
	return svc, store
}

func markInput(student, date string, present bool) MarkInput {
	return MarkInput{StudentID: student, ClassID: "c1", Date: date, IsPresent: &present, MarkedBy: "t1", Method: model.MethodManual}
}

func TestMarkRecomputesStats(t *testing.T) {
	n := &recordingNotifier{}
	svc, store := newTestService(t, Options{Notifier: n})
	ctx := context.Background()

	for i, present := range []bool{true, true, false, true} {
		date := testNow.AddDate(0, 0, -i).Format(model.DateLayout)
		rec, err := svc.Mark(ctx, markInput("s1", date, present))
		if err != nil {
			t.Fatalf("mark: %v", err)
		}
		if rec.Date != date || rec.IsPresent != present || !rec.MarkedAt.Equal(testNow) {
			t.Fatalf("record = %+v", rec)
		}
	}
	st, _ := store.GetStats(ctx, "s1")
	if st == nil || st.TotalDays != 4 || st.PresentDays != 3 || st.AttendanceRate != 75 {
		t.Fatalf("stats = %+v", st)
	}
	if len(n.recs) != 4 {
		t.Fatalf("notified %d times", len(n.recs))
	}
}

func TestMarkAllowsSameDayDuplicates(t *testing.T) {
	svc, store := newTestService(t, Options{})
	ctx := context.Background()
	if _, err := svc.Mark(ctx, markInput("s1", "2024-03-13", true)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := svc.Mark(ctx, markInput("s1", "2024-03-13", false)); err != nil {
		t.Fatalf("second: %v", err)
	}
	recs, _ := store.ListAttendanceByDate(ctx, "c1", "2024-03-13")
	if len(recs) != 2 {
		t.Fatalf("records = %d", len(recs))
	}
	st, _ := store.GetStats(ctx, "s1")
	if st.TotalDays != 2 || st.PresentDays != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestMarkValidation(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()
	cases := map[string]MarkInput{
		"missing present": {StudentID: "s1", ClassID: "c1", Date: "2024-03-13", MarkedBy: "t1", Method: model.MethodManual},
		"bad date":        markInput("s1", "2024-13-40", true),
		"bad method": func() MarkInput {
			in := markInput("s1", "2024-03-13", true)
			in.Method = "sms"
			return in
		}(),
	}
	for name, in := range cases {
		if _, err := svc.Mark(ctx, in); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: err = %v", name, err)
		}
	}
}

func TestConcurrentMarksKeepStatsConsistent(t *testing.T) {
	svc, store := newTestService(t, Options{})
	ctx := context.Background()
	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.Mark(ctx, markInput("s1", "2024-03-13", i%2 == 0)); err != nil {
				t.Errorf("mark: %v", err)
			}
		}(i)
	}
	wg.Wait()
	st, _ := store.GetStats(ctx, "s1")
	if st == nil || st.TotalDays != n || st.PresentDays != n/2 {
		t.Fatalf("stats = %+v", st)
	}
	if svc.locks.size() != 0 {
		t.Fatalf("lock entries leaked: %d", svc.locks.size())
	}
}

func TestMarkByRFID(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	res, err := svc.MarkByRFID(ctx, ScanInput{RFIDCardID: "A", ClassID: "c1", MarkedBy: "t1"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !res.Success || res.Student.ID != "s1" || res.Attendance.Date != "2024-03-13" || res.Attendance.Method != model.MethodRFID {
		t.Fatalf("result = %+v", res)
	}
	if _, err := svc.MarkByRFID(ctx, ScanInput{RFIDCardID: "nope", ClassID: "c1", MarkedBy: "t1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown card: %v", err)
	}
	if _, err := svc.MarkByRFID(ctx, ScanInput{RFIDCardID: "W", ClassID: "c1", MarkedBy: "t1"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("wrong class: %v", err)
	}
	if _, err := svc.MarkByRFID(ctx, ScanInput{RFIDCardID: "A", ClassID: "c1"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing markedBy: %v", err)
	}
}

func TestSchoolDateUsesLocation(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	late := time.Date(2024, 3, 13, 20, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, Options{Location: kolkata, Now: func() time.Time { return late }})
	if got := svc.Today(); got != "2024-03-14" {
		t.Fatalf("today = %q", got)
	}
}

func TestMarkByFace(t *testing.T) {
	ctx := context.Background()
	in := FaceInput{StudentID: "s1", ClassID: "c1", ImageURL: "https://img/x.jpg", MarkedBy: "t1"}

	svc, _ := newTestService(t, Options{})
	if _, err := svc.MarkByFace(ctx, in); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("no verifier: %v", err)
	}

	svc, _ = newTestService(t, Options{Face: fakeVerifier{res: &faceclient.VerifyResult{Verified: true, Similarity: 0.3}}, MinSimilarity: 0.45})
	if _, err := svc.MarkByFace(ctx, in); !errors.Is(err, ErrValidation) {
		t.Fatalf("low similarity: %v", err)
	}

	svc, _ = newTestService(t, Options{Face: fakeVerifier{err: errors.New("timeout")}})
	if _, err := svc.MarkByFace(ctx, in); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("service down: %v", err)
	}

	svc, store := newTestService(t, Options{Face: fakeVerifier{res: &faceclient.VerifyResult{Verified: true, Similarity: 0.9}}, MinSimilarity: 0.45})
	res, err := svc.MarkByFace(ctx, in)
	if err != nil {
		t.Fatalf("verified: %v", err)
	}
	if res.Attendance.Method != model.MethodFacial || !res.Attendance.IsPresent {
		t.Fatalf("record = %+v", res.Attendance)
	}
	if st, _ := store.GetStats(ctx, "s1"); st == nil || st.AttendanceRate != 100 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRosterRFIDAssignment(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	if _, err := svc.AssignStudentRFID(ctx, "s2", "A"); !errors.Is(err, ErrConflict) {
		t.Fatalf("taken card: %v", err)
	}
	if _, err := svc.AssignStudentRFID(ctx, "s1", "A"); err != nil {
		t.Fatalf("same owner: %v", err)
	}
	if _, err := svc.AssignStudentRFID(ctx, "ghost", "Z"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown student: %v", err)
	}
	if _, err := svc.AssignStudentRFID(ctx, "s1", " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank card: %v", err)
	}
	u, err := svc.AssignUserRFID(ctx, "t1", "STAFF-1")
	if err != nil || u.RFIDCardID == nil || *u.RFIDCardID != "STAFF-1" {
		t.Fatalf("user card: %+v %v", u, err)
	}
	if got, err := svc.UserByRFID(ctx, "STAFF-1"); err != nil || got.ID != "t1" {
		t.Fatalf("lookup: %+v %v", got, err)
	}
	if _, err := svc.CreateStudent(ctx, model.Student{RollNo: "9", FullName: "Nine", ClassID: "c1", RFIDCardID: ptr("B")}); !errors.Is(err, ErrConflict) {
		t.Fatalf("create with taken card: %v", err)
	}
	if _, err := svc.CreateStudent(ctx, model.Student{RollNo: "9", FullName: "Nine", ClassID: "nowhere"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown class: %v", err)
	}
	if _, err := svc.CreateClass(ctx, "5B", "Maths", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown teacher: %v", err)
	}
}

func TestRateRoundedInRosterView(t *testing.T) {
	svc, store := newTestService(t, Options{})
	ctx := context.Background()
	for i, present := range []bool{true, true, false} {
		date := testNow.AddDate(0, 0, -i).Format(model.DateLayout)
		if _, err := svc.Mark(ctx, markInput("s1", date, present)); err != nil {
			t.Fatalf("mark: %v", err)
		}
	}
	st, _ := store.GetStats(ctx, "s1")
	if st.TotalDays != 3 || st.PresentDays != 2 {
		t.Fatalf("stats = %+v", st)
	}
	rows, err := svc.StudentsWithStats(ctx, "c1")
	if err != nil {
		t.Fatalf("students: %v", err)
	}
	if rows[0].AttendanceRate != 67 || rows[0].Status != model.StatusCritical {
		t.Fatalf("row = %+v", rows[0])
	}
}

func TestMemoryStoreRejectsDanglingReferences(t *testing.T) {
	svc, store := newTestService(t, Options{})
	ctx := context.Background()

	if _, err := svc.Mark(ctx, markInput("ghost", "2024-03-13", true)); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown student: %v", err)
	}
	if st, _ := store.GetStats(ctx, "ghost"); st != nil {
		t.Fatalf("stats written: %+v", st)
	}
	if _, err := store.UpsertStats(ctx, model.AttendanceStats{StudentID: "s1", ClassID: "nowhere"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown class: %v", err)
	}
	if _, err := store.CreateStudent(ctx, model.Student{RollNo: "9", FullName: "Nine", ClassID: "nowhere"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("student in unknown class: %v", err)
	}
	if _, err := store.CreateClass(ctx, model.Class{Name: "X", Subject: "Y", TeacherID: "ghost"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("class of unknown teacher: %v", err)
	}
}

func TestMarkReturnsStoredRecordWhenRecomputeFails(t *testing.T) {
	_, mem := newTestService(t, Options{})
	flaky := &flakyStore{MemoryStore: mem, failStats: true}
	svc := NewService(flaky, nil, Options{Now: func() time.Time { return testNow }})
	ctx := context.Background()

	rec, err := svc.Mark(ctx, markInput("s1", "2024-03-13", true))
	if !errors.Is(err, ErrStatsStale) || !errors.Is(err, ErrPersistence) || !errors.Is(err, errInjected) {
		t.Fatalf("err = %v", err)
	}
	if rec.ID == "" || rec.StudentID != "s1" {
		t.Fatalf("record = %+v", rec)
	}

	res, err := svc.ProcessBatch(ctx, BatchInput{CardIDs: []string{"B", "B"}, ClassID: "c1", MarkedBy: "t1"})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(res.Successful) != 1 || !res.Successful[0].StatsStale || res.Successful[0].Attendance.ID == "" {
		t.Fatalf("successful = %+v", res.Successful)
	}
	if len(res.Failed) != 1 || res.Failed[0].Error != ReasonAlreadyMarked {
		t.Fatalf("failed = %+v", res.Failed)
	}

	flaky.failStats = false
	if err := svc.Recompute(ctx, "s2", "c1"); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if st, _ := mem.GetStats(ctx, "s2"); st == nil || st.TotalDays != 1 {
		t.Fatalf("stats = %+v", st)
	}
}
