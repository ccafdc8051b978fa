//go:build testutil

package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"

	"attendtrack/internal/model"
	"attendtrack/internal/store"
	"attendtrack/internal/testutil/testdb"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(h.Close)
	db, err := store.NewDB(ctx, h.URI)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db.Client)
}

func TestRepositoryRoundTrip(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	svc := NewService(repo, nil, Options{})

	seeded, err := svc.SeedDemo(ctx, "anita.sharma")
	if err != nil || !seeded {
		t.Fatalf("seed: %v %v", seeded, err)
	}
	roster, err := repo.ListStudentsByClass(ctx, DemoClassID)
	if err != nil || len(roster) != len(demoStudentNames) {
		t.Fatalf("roster: %d %v", len(roster), err)
	}
	if roster[0].RollNo != "101" {
		t.Fatalf("order = %+v", roster[0])
	}

	st, err := repo.GetStudentByRFID(ctx, "RFID-101")
	if err != nil || st == nil {
		t.Fatalf("card lookup: %+v %v", st, err)
	}
	if _, err := repo.UpdateStudentRFID(ctx, roster[1].ID, "RFID-101"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate card: %v", err)
	}
	if _, err := repo.CreateClass(ctx, model.Class{Name: "X", Subject: "Y", TeacherID: "ghost", SchoolID: DefaultSchoolID}); !errors.Is(err, ErrValidation) {
		t.Fatalf("dangling teacher: %v", err)
	}
	present := true
	if _, err := svc.Mark(ctx, MarkInput{StudentID: "ghost", ClassID: DemoClassID, Date: "2024-03-13", IsPresent: &present, MarkedBy: "x", Method: model.MethodManual}); !errors.Is(err, ErrValidation) {
		t.Fatalf("dangling student: %v", err)
	}

	stats, err := repo.GetStats(ctx, st.ID)
	if err != nil || stats == nil || stats.TotalDays != seedSchoolDays {
		t.Fatalf("stats: %+v %v", stats, err)
	}
	if hist, err := repo.ListAttendanceHistory(ctx, st.ID, 5); err != nil || len(hist) != 5 || hist[0].Date < hist[4].Date {
		t.Fatalf("history: %+v %v", hist, err)
	}
	if last, err := repo.LatestMarkInClass(ctx, DemoClassID); err != nil || last == nil {
		t.Fatalf("latest: %v %v", last, err)
	}
}

func TestRepositoryConcurrentStatsUpsert(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	svc := NewService(repo, nil, Options{})
	if _, err := svc.SeedDemo(ctx, "anita.sharma"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	st, _ := repo.GetStudentByRFID(ctx, "RFID-102")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			present := true
			if _, err := svc.Mark(ctx, MarkInput{StudentID: st.ID, ClassID: DemoClassID, Date: "2020-01-01", IsPresent: &present, MarkedBy: "x", Method: model.MethodManual}); err != nil {
				t.Errorf("mark: %v", err)
			}
		}()
	}
	wg.Wait()

	rows, err := repo.ListStatsByClass(ctx, DemoClassID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	count := 0
	for _, r := range rows {
		if r.StudentID == st.ID {
			count++
			if r.TotalDays != seedSchoolDays+10 {
				t.Fatalf("stats = %+v", r)
			}
		}
	}
	if count != 1 {
		t.Fatalf("stats rows for student = %d", count)
	}
}
