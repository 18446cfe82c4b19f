package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scantrack/attendance-api/internal/models"
)

var studentColumns = []string{"admission_number", "full_name", "class", "section", "created_at", "updated_at"}

func TestStudentRepositoryGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM students WHERE admission_number").
		WithArgs("ADM-001").
		WillReturnRows(sqlmock.NewRows(studentColumns).
			AddRow("ADM-001", "Ayesha Khan", "10", "A", now, now))

	student, err := repo.Get(context.Background(), "ADM-001")
	require.NoError(t, err)
	require.NotNil(t, student)
	assert.Equal(t, "Ayesha Khan", student.FullName)
}

func TestStudentRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM students WHERE admission_number").
		WithArgs("ADM-404").
		WillReturnRows(sqlmock.NewRows(studentColumns))

	student, err := repo.Get(context.Background(), "ADM-404")
	require.NoError(t, err)
	assert.Nil(t, student)
}

func TestStudentRepositoryListAdmissionNumbersScoped(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT admission_number FROM students WHERE 1=1 AND class = \\$1 AND section = \\$2").
		WithArgs("10", "A").
		WillReturnRows(sqlmock.NewRows([]string{"admission_number"}).AddRow("ADM-001").AddRow("ADM-002"))

	ids, err := repo.ListAdmissionNumbers(context.Background(), "10", "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"ADM-001", "ADM-002"}, ids)
}

func TestStudentRepositoryListAdmissionNumbersWholeRoster(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT admission_number FROM students WHERE 1=1").
		WillReturnRows(sqlmock.NewRows([]string{"admission_number"}).AddRow("ADM-001"))

	ids, err := repo.ListAdmissionNumbers(context.Background(), "", "")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestStudentRepositoryListWithFilter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM students WHERE 1=1 AND class = \\$1").
		WithArgs("10").
		WillReturnRows(sqlmock.NewRows(studentColumns).
			AddRow("ADM-001", "Ayesha Khan", "10", "A", now, now))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM students").
		WithArgs("10").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{Class: "10"})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 1, total)
}
