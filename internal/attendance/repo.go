package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"attendtrack/internal/model"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// mapErr turns driver errors into the package taxonomy.
func mapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return conflictf("%s: %s", op, pgErr.ConstraintName)
		case "23503":
			return validationf("%s: unknown reference (%s)", op, pgErr.ConstraintName)
		}
	}
	return persistence(op, err)
}

const userCols = `id, username, full_name, role, rfid_card_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*model.User, error) {
	var u model.User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &role, &u.RFIDCardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

func (r *Repository) getUserWhere(ctx context.Context, op, where string, arg any) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE `+where, arg))
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

// GetUser returns a user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (*model.User, error) {
	return r.getUserWhere(ctx, "get user", "id = $1", id)
}

// GetUserByUsername returns a user by login name.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getUserWhere(ctx, "get user by username", "username = $1", username)
}

// GetUserByRFID returns the user owning a card.
func (r *Repository) GetUserByRFID(ctx context.Context, cardID string) (*model.User, error) {
	return r.getUserWhere(ctx, "get user by rfid", "rfid_card_id = $1", cardID)
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = model.RoleTeacher
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, full_name, role, rfid_card_id)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Username, u.FullName, string(u.Role), u.RFIDCardID)
	if err != nil {
		return model.User{}, mapErr("create user", err)
	}
	return u, nil
}

// UpdateUserRFID assigns a card to a user.
func (r *Repository) UpdateUserRFID(ctx context.Context, id, cardID string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users SET rfid_card_id = $2 WHERE id = $1
		RETURNING `+userCols, id, cardID))
	if err != nil {
		return nil, mapErr("update user rfid", err)
	}
	return u, nil
}

// UpdateUserFullName changes the display name of a user.
func (r *Repository) UpdateUserFullName(ctx context.Context, id, fullName string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users SET full_name = $2 WHERE id = $1
		RETURNING `+userCols, id, fullName))
	if err != nil {
		return nil, mapErr("update user name", err)
	}
	return u, nil
}

const classCols = `id, name, subject, teacher_id, school_id`

func (r *Repository) queryClasses(ctx context.Context, op, query string, args ...any) ([]model.Class, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()
	var res []model.Class
	for rows.Next() {
		var c model.Class
		if err := rows.Scan(&c.ID, &c.Name, &c.Subject, &c.TeacherID, &c.SchoolID); err != nil {
			return nil, mapErr(op, err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(op, err)
	}
	return res, nil
}

// GetClass returns a class by id.
func (r *Repository) GetClass(ctx context.Context, id string) (*model.Class, error) {
	var c model.Class
	err := r.db.QueryRowContext(ctx, `SELECT `+classCols+` FROM classes WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Subject, &c.TeacherID, &c.SchoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapErr("get class", err)
	}
	return &c, nil
}

// ListClasses returns every class ordered by name.
func (r *Repository) ListClasses(ctx context.Context) ([]model.Class, error) {
	return r.queryClasses(ctx, "list classes", `SELECT `+classCols+` FROM classes ORDER BY name`)
}

// ListClassesByTeacher returns the classes owned by a teacher.
func (r *Repository) ListClassesByTeacher(ctx context.Context, teacherID string) ([]model.Class, error) {
	return r.queryClasses(ctx, "list classes by teacher",
		`SELECT `+classCols+` FROM classes WHERE teacher_id = $1 ORDER BY name`, teacherID)
}

// CreateClass inserts a class.
func (r *Repository) CreateClass(ctx context.Context, c model.Class) (model.Class, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO classes (id, name, subject, teacher_id, school_id)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Name, c.Subject, c.TeacherID, c.SchoolID)
	if err != nil {
		return model.Class{}, mapErr("create class", err)
	}
	return c, nil
}

const studentCols = `id, roll_no, full_name, class_id, photo_url, rfid_card_id`

func scanStudent(row scanner) (*model.Student, error) {
	var s model.Student
	if err := row.Scan(&s.ID, &s.RollNo, &s.FullName, &s.ClassID, &s.PhotoURL, &s.RFIDCardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// GetStudent returns a student by id.
func (r *Repository) GetStudent(ctx context.Context, id string) (*model.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("get student", err)
	}
	return s, nil
}

// GetStudentByRFID returns the student owning a card.
func (r *Repository) GetStudentByRFID(ctx context.Context, cardID string) (*model.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE rfid_card_id = $1`, cardID))
	if err != nil {
		return nil, mapErr("get student by rfid", err)
	}
	return s, nil
}

// ListStudentsByClass returns the roster ordered by roll number.
func (r *Repository) ListStudentsByClass(ctx context.Context, classID string) ([]model.Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+studentCols+` FROM students
		WHERE class_id = $1
		ORDER BY roll_no
	`, classID)
	if err != nil {
		return nil, mapErr("list students", err)
	}
	defer rows.Close()
	var res []model.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, mapErr("list students", err)
		}
		res = append(res, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list students", err)
	}
	return res, nil
}

// CreateStudent inserts a student.
func (r *Repository) CreateStudent(ctx context.Context, s model.Student) (model.Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, roll_no, full_name, class_id, photo_url, rfid_card_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.RollNo, s.FullName, s.ClassID, s.PhotoURL, s.RFIDCardID)
	if err != nil {
		return model.Student{}, mapErr("create student", err)
	}
	return s, nil
}

// UpdateStudentRFID assigns a card to a student.
func (r *Repository) UpdateStudentRFID(ctx context.Context, id, cardID string) (*model.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `
		UPDATE students SET rfid_card_id = $2 WHERE id = $1
		RETURNING `+studentCols, id, cardID))
	if err != nil {
		return nil, mapErr("update student rfid", err)
	}
	return s, nil
}

// UpdateStudentPhoto stores the photo URL of a student.
func (r *Repository) UpdateStudentPhoto(ctx context.Context, id, photoURL string) (*model.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `
		UPDATE students SET photo_url = $2 WHERE id = $1
		RETURNING `+studentCols, id, photoURL))
	if err != nil {
		return nil, mapErr("update student photo", err)
	}
	return s, nil
}

const recordCols = `id, student_id, class_id, date, is_present, marked_at, marked_by, method`

func (r *Repository) queryRecords(ctx context.Context, op, query string, args ...any) ([]model.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()
	var res []model.AttendanceRecord
	for rows.Next() {
		var rec model.AttendanceRecord
		var method string
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.ClassID, &rec.Date, &rec.IsPresent, &rec.MarkedAt, &rec.MarkedBy, &method); err != nil {
			return nil, mapErr(op, err)
		}
		rec.Method = model.Method(method)
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(op, err)
	}
	return res, nil
}

// InsertAttendance writes a new record. Duplicates per (student, date) are allowed.
func (r *Repository) InsertAttendance(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, class_id, date, is_present, marked_at, marked_by, method)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.ID, rec.StudentID, rec.ClassID, rec.Date, rec.IsPresent, rec.MarkedAt, rec.MarkedBy, string(rec.Method))
	if err != nil {
		return model.AttendanceRecord{}, mapErr("insert attendance", err)
	}
	return rec, nil
}

// ListAttendanceByDate returns a class's records on one date.
func (r *Repository) ListAttendanceByDate(ctx context.Context, classID, date string) ([]model.AttendanceRecord, error) {
	return r.queryRecords(ctx, "list attendance by date", `
		SELECT `+recordCols+` FROM attendance_records
		WHERE class_id = $1 AND date = $2
		ORDER BY marked_at
	`, classID, date)
}

// ListAttendanceBetween returns a class's records in an inclusive date range.
func (r *Repository) ListAttendanceBetween(ctx context.Context, classID, from, to string) ([]model.AttendanceRecord, error) {
	return r.queryRecords(ctx, "list attendance between", `
		SELECT `+recordCols+` FROM attendance_records
		WHERE class_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date, marked_at
	`, classID, from, to)
}

// ListAttendanceHistory returns a student's newest records first.
func (r *Repository) ListAttendanceHistory(ctx context.Context, studentID string, limit int) ([]model.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	return r.queryRecords(ctx, "list attendance history", `
		SELECT `+recordCols+` FROM attendance_records
		WHERE student_id = $1
		ORDER BY date DESC, marked_at DESC
		LIMIT $2
	`, studentID, limit)
}

// ListStudentClassAttendance returns every record of a student in a class.
func (r *Repository) ListStudentClassAttendance(ctx context.Context, studentID, classID string) ([]model.AttendanceRecord, error) {
	return r.queryRecords(ctx, "list student attendance", `
		SELECT `+recordCols+` FROM attendance_records
		WHERE student_id = $1 AND class_id = $2
	`, studentID, classID)
}

// CountAttendanceSince counts records marked after since.
func (r *Repository) CountAttendanceSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM attendance_records WHERE marked_at > $1`, since).Scan(&n)
	if err != nil {
		return 0, mapErr("count attendance", err)
	}
	return n, nil
}

// LatestMarkInClass returns the newest mark time of a class, nil if none.
func (r *Repository) LatestMarkInClass(ctx context.Context, classID string) (*time.Time, error) {
	var ts sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT max(marked_at) FROM attendance_records WHERE class_id = $1`, classID).Scan(&ts)
	if err != nil {
		return nil, mapErr("latest mark", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	t := ts.Time
	return &t, nil
}

// UpsertStats replaces the student's stats row atomically.
func (r *Repository) UpsertStats(ctx context.Context, st model.AttendanceStats) (model.AttendanceStats, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.LastUpdated.IsZero() {
		st.LastUpdated = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_stats (id, student_id, class_id, total_days, present_days, attendance_rate, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (student_id) DO UPDATE SET
			class_id = EXCLUDED.class_id,
			total_days = EXCLUDED.total_days,
			present_days = EXCLUDED.present_days,
			attendance_rate = EXCLUDED.attendance_rate,
			last_updated = EXCLUDED.last_updated
		RETURNING id
	`, st.ID, st.StudentID, st.ClassID, st.TotalDays, st.PresentDays, st.AttendanceRate, st.LastUpdated).Scan(&st.ID)
	if err != nil {
		return model.AttendanceStats{}, mapErr("upsert stats", err)
	}
	return st, nil
}

const statsCols = `id, student_id, class_id, total_days, present_days, attendance_rate, last_updated`

// GetStats returns the stats row of a student.
func (r *Repository) GetStats(ctx context.Context, studentID string) (*model.AttendanceStats, error) {
	var st model.AttendanceStats
	err := r.db.QueryRowContext(ctx, `SELECT `+statsCols+` FROM attendance_stats WHERE student_id = $1`, studentID).
		Scan(&st.ID, &st.StudentID, &st.ClassID, &st.TotalDays, &st.PresentDays, &st.AttendanceRate, &st.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapErr("get stats", err)
	}
	return &st, nil
}

// ListStatsByClass returns the stats rows of a class.
func (r *Repository) ListStatsByClass(ctx context.Context, classID string) ([]model.AttendanceStats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+statsCols+` FROM attendance_stats WHERE class_id = $1`, classID)
	if err != nil {
		return nil, mapErr("list stats", err)
	}
	defer rows.Close()
	var res []model.AttendanceStats
	for rows.Next() {
		var st model.AttendanceStats
		if err := rows.Scan(&st.ID, &st.StudentID, &st.ClassID, &st.TotalDays, &st.PresentDays, &st.AttendanceRate, &st.LastUpdated); err != nil {
			return nil, mapErr("list stats", err)
		}
		res = append(res, st)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list stats", err)
	}
	return res, nil
}
