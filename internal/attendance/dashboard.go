package attendance

import (
	"context"
	"net/url"
	"strings"

	"attendtrack/internal/model"
)

func (s *Service) rosterAndToday(ctx context.Context, classID string) ([]model.Student, []model.AttendanceRecord, error) {
	roster, err := s.store.ListStudentsByClass(ctx, classID)
	if err != nil {
		return nil, nil, persistence("list students", err)
	}
	today, err := s.store.ListAttendanceByDate(ctx, classID, s.Today())
	if err != nil {
		return nil, nil, persistence("list attendance", err)
	}
	return roster, today, nil
}

// DashboardStats summarises today's attendance for a class.
func (s *Service) DashboardStats(ctx context.Context, classID string) (model.DashboardStats, error) {
	roster, today, err := s.rosterAndToday(ctx, classID)
	if err != nil {
		return model.DashboardStats{}, err
	}
	return BuildDashboardStats(roster, today), nil
}

func (s *Service) rosterView(ctx context.Context, classID string) ([]model.Student, []model.AttendanceStats, []model.AttendanceRecord, error) {
	roster, today, err := s.rosterAndToday(ctx, classID)
	if err != nil {
		return nil, nil, nil, err
	}
	stats, err := s.store.ListStatsByClass(ctx, classID)
	if err != nil {
		return nil, nil, nil, persistence("list stats", err)
	}
	return roster, stats, today, nil
}

// StudentsWithStats returns the class roster with rates and today's presence.
func (s *Service) StudentsWithStats(ctx context.Context, classID string) ([]model.StudentWithStats, error) {
	roster, stats, today, err := s.rosterView(ctx, classID)
	if err != nil {
		return nil, err
	}
	return BuildStudentsWithStats(roster, stats, today), nil
}

// LowAttendance returns students whose rate is strictly below threshold.
func (s *Service) LowAttendance(ctx context.Context, classID string, threshold float64) ([]model.StudentWithStats, error) {
	roster, stats, today, err := s.rosterView(ctx, classID)
	if err != nil {
		return nil, err
	}
	return FilterLowAttendance(roster, stats, today, threshold), nil
}

// WeeklyAttendance aggregates the current week (Mon-Sat) from stored records.
func (s *Service) WeeklyAttendance(ctx context.Context, classID string) ([]model.WeeklyAttendance, error) {
	roster, err := s.store.ListStudentsByClass(ctx, classID)
	if err != nil {
		return nil, persistence("list students", err)
	}
	days := WeekDays(s.now().In(s.loc))
	from := days[0].Format(model.DateLayout)
	to := days[len(days)-1].Format(model.DateLayout)
	recs, err := s.store.ListAttendanceBetween(ctx, classID, from, to)
	if err != nil {
		return nil, persistence("list attendance", err)
	}
	return BuildWeeklyTrend(len(roster), recs, days), nil
}

// TeacherClasses summarises every class for the class picker.
func (s *Service) TeacherClasses(ctx context.Context) ([]model.ClassSummary, error) {
	classes, err := s.store.ListClasses(ctx)
	if err != nil {
		return nil, persistence("list classes", err)
	}
	out := make([]model.ClassSummary, 0, len(classes))
	for _, c := range classes {
		roster, today, err := s.rosterAndToday(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		last, err := s.store.LatestMarkInClass(ctx, c.ID)
		if err != nil {
			return nil, persistence("latest mark", err)
		}
		stats := BuildDashboardStats(roster, today)
		out = append(out, model.ClassSummary{
			ID:             c.ID,
			Name:           c.Name,
			Subject:        c.Subject,
			TotalStudents:  stats.TotalStudents,
			AttendanceRate: stats.AttendanceRate,
			LastUpdated:    last,
			IsActive:       len(today) > 0,
		})
	}
	return out, nil
}

// ReportRequest selects a class and an optional date window.
type ReportRequest struct {
	Type      string
	ClassID   string
	StartDate string
	EndDate   string
}

// GenerateReport builds the report document for a class.
func (s *Service) GenerateReport(ctx context.Context, req ReportRequest) (model.Report, error) {
	req.Type = strings.TrimSpace(req.Type)
	if req.Type == "" || req.ClassID == "" {
		return model.Report{}, validationf("type and classId are required")
	}
	from, to := "0000-01-01", "9999-12-31"
	var err error
	if req.StartDate != "" {
		if from, err = ParseDate(req.StartDate); err != nil {
			return model.Report{}, err
		}
	}
	if req.EndDate != "" {
		if to, err = ParseDate(req.EndDate); err != nil {
			return model.Report{}, err
		}
	}
	if from > to {
		return model.Report{}, validationf("startDate must not be after endDate")
	}

	class, err := s.store.GetClass(ctx, req.ClassID)
	if err != nil {
		return model.Report{}, persistence("get class", err)
	}
	if class == nil {
		return model.Report{}, notFoundf("class %s", req.ClassID)
	}
	roster, stats, today, err := s.rosterView(ctx, req.ClassID)
	if err != nil {
		return model.Report{}, err
	}
	periodRecs, err := s.store.ListAttendanceBetween(ctx, req.ClassID, from, to)
	if err != nil {
		return model.Report{}, persistence("list attendance", err)
	}
	present, total := periodCounts(periodRecs)
	dash := BuildDashboardStats(roster, today)

	rows := make([]model.ReportRow, 0, len(roster))
	for _, st := range BuildStudentsWithStats(roster, stats, today) {
		rows = append(rows, model.ReportRow{
			RollNo:         st.RollNo,
			FullName:       st.FullName,
			AttendanceRate: st.AttendanceRate,
			Status:         st.Status,
			PeriodPresent:  present[st.ID],
			PeriodTotal:    total[st.ID],
		})
	}

	q := url.Values{}
	q.Set("type", req.Type)
	q.Set("classId", req.ClassID)
	if req.StartDate != "" {
		q.Set("startDate", from)
	}
	if req.EndDate != "" {
		q.Set("endDate", to)
	}

	return model.Report{
		Type:        req.Type,
		GeneratedAt: s.now().UTC(),
		ClassID:     class.ID,
		ClassName:   class.Name,
		Period:      model.ReportPeriod{StartDate: req.StartDate, EndDate: req.EndDate},
		Summary: model.ReportSummary{
			TotalStudents:     len(roster),
			AverageAttendance: dash.AttendanceRate,
			PresentToday:      dash.PresentToday,
			AbsentToday:       dash.AbsentToday,
		},
		Students:    rows,
		DownloadURL: "/api/reports/download?" + q.Encode(),
	}, nil
}
