package attendance

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"attendtrack/internal/model"
)

// DemoClassID is the id of the seeded class.
const DemoClassID = "demo"

// seedSchoolDays is the history length written per student, today included.
const seedSchoolDays = 30

var demoStudentNames = []string{
	"Aarav Kumar", "Priya Sharma", "Rohan Singh", "Sneha Patel", "Arjun Reddy",
	"Kavya Nair", "Vikram Gupta", "Ananya Joshi", "Rahul Verma", "Divya Rao",
	"Karthik Iyer", "Meera Agarwal", "Siddharth Shah", "Pooja Mishra", "Aryan Das",
	"Tanya Malhotra", "Varun Khanna", "Ishita Bansal", "Nikhil Sinha", "Ritika Jain",
	"Aditya Pandey", "Shreya Saxena", "Manish Kumar", "Neha Singh", "Raj Patel",
	"Swati Gupta", "Akash Sharma", "Riya Agarwal", "Deepak Yadav", "Sakshi Tiwari",
	"Rohit Chandra", "Nisha Kapoor",
}

// schoolDaysBack returns n dates ending at ref, skipping Sundays, oldest first.
func schoolDaysBack(ref time.Time, n int) []string {
	out := make([]string, 0, n)
	for d := ref; len(out) < n; d = d.AddDate(0, 0, -1) {
		if d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, d.Format(model.DateLayout))
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// SeedDemo creates the demo teacher, class and roster with a history of
// manual marks, and reports whether anything was written. Every step skips
// rows that already exist, so a run interrupted part way is completed by
// the next one. Stats are derived from the written records.
func (s *Service) SeedDemo(ctx context.Context, username string) (bool, error) {
	if username == "" {
		username = "anita.sharma"
	}
	wrote := false

	teacher, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return false, persistence("seed lookup", err)
	}
	if teacher == nil {
		u, err := s.store.CreateUser(ctx, model.User{
			Username: username,
			FullName: "Anita Sharma",
			Role:     model.RoleTeacher,
		})
		if err != nil {
			return false, persistence("seed teacher", err)
		}
		teacher, wrote = &u, true
	}

	class, err := s.store.GetClass(ctx, DemoClassID)
	if err != nil {
		return false, persistence("seed class lookup", err)
	}
	if class == nil {
		if _, err := s.store.CreateClass(ctx, model.Class{
			ID:        DemoClassID,
			Name:      "Class 5A",
			Subject:   "Mathematics",
			TeacherID: teacher.ID,
			SchoolID:  DefaultSchoolID,
		}); err != nil {
			return wrote, persistence("seed class", err)
		}
		wrote = true
	}

	roster, err := s.store.ListStudentsByClass(ctx, DemoClassID)
	if err != nil {
		return wrote, persistence("seed roster", err)
	}
	byRoll := make(map[string]model.Student, len(roster))
	for _, st := range roster {
		byRoll[st.RollNo] = st
	}

	// The generator is drawn in full for every student, seeded or not, so
	// a resumed run writes the same history a clean run would.
	rng := rand.New(rand.NewSource(42))
	now := s.now()
	days := schoolDaysBack(now.In(s.loc), seedSchoolDays)
	for i, name := range demoStudentNames {
		p := 0.55 + rng.Float64()*0.45 // per-student presence probability
		present := make([]bool, len(days))
		for d := range days {
			present[d] = rng.Float64() < p
		}

		did, err := s.seedStudent(ctx, teacher.ID, fmt.Sprintf("%d", 101+i), name, days, present, byRoll, now)
		wrote = wrote || did
		if err != nil {
			return wrote, err
		}
	}

	if wrote {
		s.log.Info("demo data seeded",
			zap.String("teacher", username),
			zap.String("class_id", DemoClassID),
			zap.Int("students", len(demoStudentNames)),
			zap.Int("days", len(days)))
	}
	return wrote, nil
}

// seedStudent writes one demo student and the days of history it still
// lacks. A student with a stats row was finished by an earlier run.
func (s *Service) seedStudent(ctx context.Context, teacherID, roll, name string, days []string, present []bool, byRoll map[string]model.Student, now time.Time) (bool, error) {
	have := map[string]bool{}
	st, ok := byRoll[roll]
	if ok {
		stats, err := s.store.GetStats(ctx, st.ID)
		if err != nil {
			return false, persistence("seed stats lookup", err)
		}
		if stats != nil {
			return false, nil
		}
		existing, err := s.store.ListStudentClassAttendance(ctx, st.ID, DemoClassID)
		if err != nil {
			return false, persistence("seed history lookup", err)
		}
		for _, r := range existing {
			have[r.Date] = true
		}
	} else {
		card := "RFID-" + roll
		created, err := s.store.CreateStudent(ctx, model.Student{
			RollNo:     roll,
			FullName:   name,
			ClassID:    DemoClassID,
			RFIDCardID: &card,
		})
		if err != nil {
			return false, persistence("seed student", err)
		}
		st = created
	}

	for d, day := range days {
		if have[day] {
			continue
		}
		if _, err := s.store.InsertAttendance(ctx, model.AttendanceRecord{
			StudentID: st.ID,
			ClassID:   DemoClassID,
			Date:      day,
			IsPresent: present[d],
			MarkedAt:  now.UTC(),
			MarkedBy:  teacherID,
			Method:    model.MethodManual,
		}); err != nil {
			return true, persistence("seed attendance", err)
		}
	}
	// stats last: its presence marks the student as complete
	if err := s.Recompute(ctx, st.ID, DemoClassID); err != nil {
		return true, err
	}
	return true, nil
}
