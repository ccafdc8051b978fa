package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"attendtrack/internal/model"
)

func TestSchoolDaysBackSkipsSundays(t *testing.T) {
	monday := time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)
	days := schoolDaysBack(monday, 3)
	want := []string{"2024-03-08", "2024-03-09", "2024-03-11"}
	for i := range want {
		if days[i] != want[i] {
			t.Fatalf("days = %v", days)
		}
	}
}

func TestSeedDemoIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil, Options{Now: func() time.Time { return testNow }})
	ctx := context.Background()

	seeded, err := svc.SeedDemo(ctx, "anita.sharma")
	if err != nil || !seeded {
		t.Fatalf("seed: %v %v", seeded, err)
	}
	students, _ := store.ListStudentsByClass(ctx, DemoClassID)
	if len(students) != len(demoStudentNames) {
		t.Fatalf("students = %d", len(students))
	}
	stats, _ := store.ListStatsByClass(ctx, DemoClassID)
	if len(stats) != len(students) {
		t.Fatalf("stats rows = %d", len(stats))
	}
	for _, st := range stats {
		if st.TotalDays != seedSchoolDays {
			t.Fatalf("stats = %+v", st)
		}
	}
	today, _ := store.ListAttendanceByDate(ctx, DemoClassID, "2024-03-13")
	if len(today) != len(students) {
		t.Fatalf("today records = %d", len(today))
	}
	if st, _ := svc.StudentByRFID(ctx, "RFID-101"); st == nil || st.RollNo != "101" {
		t.Fatalf("card lookup = %+v", st)
	}

	again, err := svc.SeedDemo(ctx, "anita.sharma")
	if err != nil || again {
		t.Fatalf("second seed: %v %v", again, err)
	}
	students, _ = store.ListStudentsByClass(ctx, DemoClassID)
	if len(students) != len(demoStudentNames) {
		t.Fatalf("students after reseed = %d", len(students))
	}

	u, _ := svc.UserByUsername(ctx, "anita.sharma")
	if u.Role != model.RoleTeacher {
		t.Fatalf("teacher = %+v", u)
	}
}

func TestSeedDemoResumesAfterFailure(t *testing.T) {
	ctx := context.Background()
	now := func() time.Time { return testNow }

	for _, tc := range []struct {
		name  string
		flaky *flakyStore
	}{
		{"student insert", &flakyStore{failStudentsAt: 10}},
		{"history insert", &flakyStore{failInsertsAt: 3*seedSchoolDays + 12}},
	} {
		mem := NewMemoryStore()
		tc.flaky.MemoryStore = mem
		if _, err := NewService(tc.flaky, nil, Options{Now: now}).SeedDemo(ctx, "anita.sharma"); !errors.Is(err, errInjected) {
			t.Fatalf("%s: first run err = %v", tc.name, err)
		}

		svc := NewService(mem, nil, Options{Now: now})
		seeded, err := svc.SeedDemo(ctx, "anita.sharma")
		if err != nil || !seeded {
			t.Fatalf("%s: resume: %v %v", tc.name, seeded, err)
		}
		students, _ := mem.ListStudentsByClass(ctx, DemoClassID)
		if len(students) != len(demoStudentNames) {
			t.Fatalf("%s: students = %d", tc.name, len(students))
		}
		for _, st := range students {
			recs, _ := mem.ListStudentClassAttendance(ctx, st.ID, DemoClassID)
			stats, _ := mem.GetStats(ctx, st.ID)
			if len(recs) != seedSchoolDays || stats == nil || stats.TotalDays != seedSchoolDays {
				t.Fatalf("%s: student %s has %d records, stats %+v", tc.name, st.RollNo, len(recs), stats)
			}
		}
		if again, err := svc.SeedDemo(ctx, "anita.sharma"); err != nil || again {
			t.Fatalf("%s: third run: %v %v", tc.name, again, err)
		}
	}
}

func TestSeedDemoMatchesCleanRunAfterResume(t *testing.T) {
	ctx := context.Background()
	now := func() time.Time { return testNow }

	clean := NewMemoryStore()
	if _, err := NewService(clean, nil, Options{Now: now}).SeedDemo(ctx, "anita.sharma"); err != nil {
		t.Fatalf("clean: %v", err)
	}
	resumed := NewMemoryStore()
	_, _ = NewService(&flakyStore{MemoryStore: resumed, failInsertsAt: 5*seedSchoolDays + 7}, nil, Options{Now: now}).SeedDemo(ctx, "anita.sharma")
	if _, err := NewService(resumed, nil, Options{Now: now}).SeedDemo(ctx, "anita.sharma"); err != nil {
		t.Fatalf("resume: %v", err)
	}

	want, _ := clean.ListStatsByClass(ctx, DemoClassID)
	got, _ := resumed.ListStatsByClass(ctx, DemoClassID)
	present := func(store *MemoryStore, stats []model.AttendanceStats) map[string]int {
		out := map[string]int{}
		for _, st := range stats {
			s, _ := store.GetStudent(ctx, st.StudentID)
			out[s.RollNo] = st.PresentDays
		}
		return out
	}
	w, g := present(clean, want), present(resumed, got)
	if len(w) != len(g) {
		t.Fatalf("stats rows: clean %d, resumed %d", len(w), len(g))
	}
	for roll, n := range w {
		if g[roll] != n {
			t.Fatalf("roll %s: clean %d present days, resumed %d", roll, n, g[roll])
		}
	}
}
