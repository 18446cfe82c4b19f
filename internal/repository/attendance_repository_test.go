package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scantrack/attendance-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var attendanceColumns = []string{"id", "student_id", "session_id", "date", "status", "scan_time", "marked_by", "reason", "created_at", "updated_at"}

func TestAttendanceRepositoryFind(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM attendance_logs WHERE student_id = \\$1 AND session_id = \\$2").
		WithArgs("ADM-001", "sess-1").
		WillReturnRows(sqlmock.NewRows(attendanceColumns).
			AddRow("rec-1", "ADM-001", "sess-1", now, "present", now, "admin-1", nil, now, now))

	record, err := repo.Find(context.Background(), "ADM-001", "sess-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.AttendanceStatusPresent, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFindMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM attendance_logs WHERE student_id").
		WithArgs("ADM-001", "sess-1").
		WillReturnRows(sqlmock.NewRows(attendanceColumns))

	record, err := repo.Find(context.Background(), "ADM-001", "sess-1")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestAttendanceRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance_logs").
		WithArgs(sqlmock.AnyArg(), "ADM-001", "sess-1", sqlmock.AnyArg(), "present", sqlmock.AnyArg(), "admin-1", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.AttendanceRecord{
		StudentID: "ADM-001",
		SessionID: "sess-1",
		Date:      time.Now(),
		Status:    models.AttendanceStatusPresent,
		ScanTime:  time.Now(),
		MarkedBy:  "admin-1",
	}
	require.NoError(t, repo.Insert(context.Background(), record))
	assert.NotEmpty(t, record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance_logs").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Insert(context.Background(), &models.AttendanceRecord{StudentID: "ADM-001", SessionID: "sess-1"})
	require.ErrorIs(t, err, ErrDuplicateRecord)
}

func TestAttendanceRepositoryBulkInsertCountsNewRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	// First row inserts, second hits the conflict clause.
	mock.ExpectExec("INSERT INTO attendance_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO attendance_logs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	inserted, err := repo.BulkInsertIgnoringConflicts(context.Background(), []models.AttendanceRecord{
		{StudentID: "ADM-001", SessionID: "sess-1", Status: models.AttendanceStatusAbsent},
		{StudentID: "ADM-002", SessionID: "sess-1", Status: models.AttendanceStatusAbsent},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBulkInsertEmpty(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	inserted, err := repo.BulkInsertIgnoringConflicts(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
}

func TestAttendanceRepositoryUpdateStatusMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("UPDATE attendance_logs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "rec-404", models.AttendanceStatusExcused, nil, time.Now(), "admin-1")
	require.Error(t, err)
}

func TestAttendanceRepositorySummaryBySession(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) AS cnt FROM attendance_logs").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "cnt"}).
			AddRow("present", 18).
			AddRow("late", 3).
			AddRow("absent", 4).
			AddRow("excused", 1))

	summary, err := repo.SummaryBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 18, summary.Present)
	assert.Equal(t, 3, summary.Late)
	assert.Equal(t, 4, summary.Absent)
	assert.Equal(t, 1, summary.Excused)
	assert.Equal(t, 26, summary.Total)
}

func TestAttendanceRepositoryListStudentIDsBySession(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("SELECT student_id FROM attendance_logs WHERE session_id").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("ADM-001").AddRow("ADM-002"))

	ids, err := repo.ListStudentIDsBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ADM-001", "ADM-002"}, ids)
}
