package sqlxrepos

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/staffhub/backend/core/cases"
	testutil "github.com/staffhub/backend/tests"
)

func setupMockDB(t *testing.T) (*casesRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewCasesRepository(sqlx.NewDb(db, "postgres")), mock
}

// withKey is the upsert argument list: the key first, anything for the other columns.
func withKey(key driver.Value, columns int) []driver.Value {
	args := []driver.Value{key}
	for i := 1; i < columns; i++ {
		args = append(args, sqlmock.AnyArg())
	}
	return args
}

func TestCasesRepository_writerUpsert(t *testing.T) {
	tests := []struct {
		name        string
		rec         cases.Record
		existsQuery string
		upsertQuery string
		upsertArgs  []driver.Value
		exists      bool
		want        cases.UpsertResult
	}{
		{
			name: "new student",
			rec: cases.Student{
				CasesID: "S001", FirstName: "Jane", LastName: "Citizen",
				DateOfBirth: null.TimeFrom(time.Date(2012, 3, 1, 0, 0, 0, 0, time.UTC)),
				YearLevel:   null.IntFrom(8), Active: true,
			},
			existsQuery: "SELECT EXISTS (SELECT 1 FROM students WHERE cases_id = $1)",
			upsertQuery: "INSERT INTO students (cases_id, first_name, last_name, date_of_birth, sex, year_level, home_group, house, email, phone, active)",
			upsertArgs: []driver.Value{
				"S001", "Jane", "Citizen", time.Date(2012, 3, 1, 0, 0, 0, 0, time.UTC),
				nil, int64(8), nil, nil, nil, nil, true,
			},
			want: cases.UpsertResult{Created: 1},
		},
		{
			name:        "existing enrolment",
			rec:         cases.Enrolment{StudentCasesID: "S001", ClassCode: "9MAT1", Term: null.IntFrom(2), Year: 2026},
			existsQuery: "SELECT EXISTS (SELECT 1 FROM enrolments WHERE external_key = $1)",
			upsertQuery: "INSERT INTO enrolments (external_key, student_cases_id, class_code, subject, period, teacher_cases_id, room, term, year)",
			upsertArgs:  []driver.Value{"S001|9MAT1|2026|2", "S001", "9MAT1", nil, nil, nil, nil, int64(2), int64(2026)},
			exists:      true,
			want:        cases.UpsertResult{Updated: 1},
		},
		{
			name:        "new staff",
			rec:         cases.Staff{CasesID: "T001", LastName: "Smith"},
			existsQuery: "SELECT EXISTS (SELECT 1 FROM staff WHERE cases_id = $1)",
			upsertQuery: "INSERT INTO staff (cases_id,",
			upsertArgs:  withKey("T001", 9),
			want:        cases.UpsertResult{Created: 1},
		},
		{
			name:        "existing parent",
			rec:         cases.Parent{CasesID: "P001", StudentCasesID: "S001"},
			existsQuery: "SELECT EXISTS (SELECT 1 FROM parents WHERE cases_id = $1)",
			upsertQuery: "INSERT INTO parents (cases_id,",
			upsertArgs:  withKey("P001", 8),
			exists:      true,
			want:        cases.UpsertResult{Updated: 1},
		},
		{
			name:        "new home group",
			rec:         cases.HomeGroup{Code: "8B"},
			existsQuery: "SELECT EXISTS (SELECT 1 FROM home_groups WHERE code = $1)",
			upsertQuery: "INSERT INTO home_groups (code,",
			upsertArgs:  withKey("8B", 4),
			want:        cases.UpsertResult{Created: 1},
		},
		{
			name:        "new house",
			rec:         cases.House{Code: "RED"},
			existsQuery: "SELECT EXISTS (SELECT 1 FROM houses WHERE code = $1)",
			upsertQuery: "INSERT INTO houses (code,",
			upsertArgs:  withKey("RED", 3),
			want:        cases.UpsertResult{Created: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupMockDB(t)
			mock.ExpectQuery(regexp.QuoteMeta(tt.existsQuery)).
				WithArgs(tt.rec.ExternalID()).
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.exists))
			mock.ExpectExec(regexp.QuoteMeta(tt.upsertQuery)).
				WithArgs(tt.upsertArgs...).
				WillReturnResult(sqlmock.NewResult(0, 1))

			res := cases.NewWriter(repo, testutil.NewLogger()).Upsert(context.Background(), tt.rec)

			assert.Equal(t, tt.want, res)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCasesRepository_Upsert_error(t *testing.T) {
	repo, mock := setupMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO students")).
		WillReturnError(errors.New("connection reset"))

	err := repo.Upsert(context.Background(), cases.Student{CasesID: "S001"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upserting students S001")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCasesRepository_unknownEntity(t *testing.T) {
	repo, mock := setupMockDB(t)
	ctx := context.Background()

	_, err := repo.Exists(ctx, "unknown", "x")
	assert.ErrorIs(t, err, cases.ErrUnknownEntity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectCounts(mock sqlmock.Sqlmock, students, staff, enrolments, parents int) {
	for _, c := range []struct {
		table string
		n     int
	}{{"students", students}, {"staff", staff}, {"enrolments", enrolments}, {"parents", parents}} {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM " + c.table)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(c.n))
	}
}

func TestCasesRepository_Snapshot(t *testing.T) {
	repo, mock := setupMockDB(t)
	mock.ExpectBegin()
	expectCounts(mock, 120, 30, 900, 150)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO etl_snapshots (id, students, staff, enrolments, parents, created_at)")).
		WithArgs(sqlmock.AnyArg(), 120, 30, 900, 150, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM etl_snapshots WHERE id NOT IN")).
		WithArgs(cases.SnapshotsKept).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	snap, err := repo.Snapshot(context.Background())

	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, 120, snap.Students)
	assert.Equal(t, 30, snap.Staff)
	assert.Equal(t, 900, snap.Enrolments)
	assert.Equal(t, 150, snap.Parents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCasesRepository_Snapshot_rollback(t *testing.T) {
	tests := []struct {
		name    string
		expect  func(mock sqlmock.Sqlmock)
		wantErr string
	}{
		{
			name: "count fails",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students")).
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
				mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM staff")).
					WillReturnError(errors.New(`relation "staff" does not exist`))
			},
			wantErr: "counting staff",
		},
		{
			name: "insert fails",
			expect: func(mock sqlmock.Sqlmock) {
				expectCounts(mock, 1, 1, 1, 1)
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO etl_snapshots")).
					WillReturnError(errors.New("disk full"))
			},
			wantErr: "saving snapshot",
		},
		{
			name: "prune fails",
			expect: func(mock sqlmock.Sqlmock) {
				expectCounts(mock, 1, 1, 1, 1)
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO etl_snapshots")).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(regexp.QuoteMeta("DELETE FROM etl_snapshots")).
					WillReturnError(errors.New("lock timeout"))
			},
			wantErr: "pruning snapshots",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupMockDB(t)
			mock.ExpectBegin()
			tt.expect(mock)
			mock.ExpectRollback()

			_, err := repo.Snapshot(context.Background())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCasesRepository_Snapshots(t *testing.T) {
	repo, mock := setupMockDB(t)
	newer := time.Date(2026, 10, 15, 2, 0, 0, 0, time.UTC)
	older := newer.Add(-24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, students, staff, enrolments, parents, created_at FROM etl_snapshots ORDER BY created_at DESC LIMIT $1")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "students", "staff", "enrolments", "parents", "created_at"}).
			AddRow("b", 12, 3, 40, 9, newer).
			AddRow("a", 11, 3, 38, 9, older))

	snaps, err := repo.Snapshots(context.Background(), 2)

	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, cases.Snapshot{ID: "b", Students: 12, Staff: 3, Enrolments: 40, Parents: 9, CreatedAt: newer}, snaps[0])
	assert.Equal(t, "a", snaps[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
