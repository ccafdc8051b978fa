package attendance

import (
	"math"
	"time"

	"attendtrack/internal/model"
)

// DefaultLowAttendanceThreshold is the cut-off used when none is given.
const DefaultLowAttendanceThreshold = 75.0

// Classify buckets a rate. Thresholds are inclusive lower bounds.
func Classify(rate float64) model.Status {
	switch {
	case rate >= 95:
		return model.StatusExcellent
	case rate >= 85:
		return model.StatusGood
	case rate >= 75:
		return model.StatusWarning
	default:
		return model.StatusCritical
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// latestByStudent keeps the most recently marked record per student.
func latestByStudent(records []model.AttendanceRecord) map[string]model.AttendanceRecord {
	out := make(map[string]model.AttendanceRecord, len(records))
	for _, r := range records {
		if prev, ok := out[r.StudentID]; !ok || !r.MarkedAt.Before(prev.MarkedAt) {
			out[r.StudentID] = r
		}
	}
	return out
}

// BuildDashboardStats summarises one day for a class roster.
// Each student counts once, by their latest record of the day; students
// without a record count as neither present nor absent.
func BuildDashboardStats(roster []model.Student, today []model.AttendanceRecord) model.DashboardStats {
	st := model.DashboardStats{TotalStudents: len(roster)}
	for _, r := range latestByStudent(today) {
		if r.IsPresent {
			st.PresentToday++
		} else {
			st.AbsentToday++
		}
	}
	if st.TotalStudents > 0 {
		st.AttendanceRate = round1(float64(st.PresentToday) / float64(st.TotalStudents) * 100)
	}
	return st
}

type rosterRow struct {
	view model.StudentWithStats
	rate float64
}

func buildRosterRows(roster []model.Student, stats []model.AttendanceStats, today []model.AttendanceRecord) []rosterRow {
	rates := make(map[string]float64, len(stats))
	for _, st := range stats {
		rates[st.StudentID] = st.AttendanceRate
	}
	latest := latestByStudent(today)
	rows := make([]rosterRow, 0, len(roster))
	for _, s := range roster {
		rate := rates[s.ID]
		rows = append(rows, rosterRow{
			rate: rate,
			view: model.StudentWithStats{
				ID:             s.ID,
				RollNo:         s.RollNo,
				FullName:       s.FullName,
				PhotoURL:       s.PhotoURL,
				AttendanceRate: math.Round(rate),
				IsPresent:      latest[s.ID].IsPresent,
				Status:         Classify(rate),
			},
		})
	}
	return rows
}

// BuildStudentsWithStats joins the roster with stats and today's records.
// Students without a stats row have rate 0.
func BuildStudentsWithStats(roster []model.Student, stats []model.AttendanceStats, today []model.AttendanceRecord) []model.StudentWithStats {
	rows := buildRosterRows(roster, stats, today)
	out := make([]model.StudentWithStats, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.view)
	}
	return out
}

// FilterLowAttendance keeps students whose exact rate is below threshold.
func FilterLowAttendance(roster []model.Student, stats []model.AttendanceStats, today []model.AttendanceRecord, threshold float64) []model.StudentWithStats {
	out := []model.StudentWithStats{}
	for _, r := range buildRosterRows(roster, stats, today) {
		if r.rate < threshold {
			out = append(out, r.view)
		}
	}
	return out
}

// WeekDays returns Monday through Saturday of the week containing ref.
func WeekDays(ref time.Time) []time.Time {
	offset := (int(ref.Weekday()) + 6) % 7 // days since Monday
	monday := time.Date(ref.Year(), ref.Month(), ref.Day()-offset, 0, 0, 0, 0, ref.Location())
	days := make([]time.Time, 6)
	for i := range days {
		days[i] = monday.AddDate(0, 0, i)
	}
	return days
}

// BuildWeeklyTrend buckets records by day. Absent is the part of the
// roster not marked present, so unmarked students count as absent.
func BuildWeeklyTrend(rosterSize int, records []model.AttendanceRecord, days []time.Time) []model.WeeklyAttendance {
	byDate := make(map[string][]model.AttendanceRecord)
	for _, r := range records {
		byDate[r.Date] = append(byDate[r.Date], r)
	}
	out := make([]model.WeeklyAttendance, 0, len(days))
	for _, d := range days {
		date := d.Format(model.DateLayout)
		present := 0
		for _, r := range latestByStudent(byDate[date]) {
			if r.IsPresent {
				present++
			}
		}
		if present > rosterSize {
			present = rosterSize
		}
		w := model.WeeklyAttendance{
			Day:     d.Format("Mon"),
			Date:    date,
			Present: present,
			Absent:  rosterSize - present,
		}
		if rosterSize > 0 {
			w.Percentage = int(math.Round(float64(present) / float64(rosterSize) * 100))
		}
		out = append(out, w)
	}
	return out
}

// periodCounts counts attended and recorded days per student,
// one vote per (student, date) using the latest record.
func periodCounts(records []model.AttendanceRecord) (present, total map[string]int) {
	present = make(map[string]int)
	total = make(map[string]int)
	byDate := make(map[string][]model.AttendanceRecord)
	for _, r := range records {
		byDate[r.Date] = append(byDate[r.Date], r)
	}
	for _, recs := range byDate {
		for id, r := range latestByStudent(recs) {
			total[id]++
			if r.IsPresent {
				present[id]++
			}
		}
	}
	return present, total
}
