package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthspan/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "pgx"), mock
}

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestHabitUpsertReportsInsertOrUpdate(t *testing.T) {
	db, mock := newMock(t)
	s := NewHabitStore(db)
	user := uuid.New()
	existing := uuid.New()

	mock.ExpectQuery(`INSERT INTO habit_entries .* ON CONFLICT \(user_id, local_date, habit_type\)`).
		WithArgs(sqlmock.AnyArg(), user, day("2025-03-10"), "water", `8`, nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(existing.String(), false))

	e := &models.HabitEntry{UserID: user, LocalDate: day("2025-03-10"), HabitType: "water", Value: models.JSON(`8`)}
	inserted, err := s.Upsert(context.Background(), e)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, existing, e.ID, "id of the replaced row wins")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHabitImportBatchCommits(t *testing.T) {
	db, mock := newMock(t)
	s := NewHabitStore(db)
	user := uuid.New()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO habit_entries`)
	prep.ExpectQuery().WithArgs(sqlmock.AnyArg(), user, day("2025-03-01"), "sleep", `{"hours":7}`, nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(uuid.New().String(), true))
	prep.ExpectQuery().WithArgs(sqlmock.AnyArg(), user, day("2025-03-02"), "sleep", `{"hours":6}`, nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(uuid.New().String(), true))
	mock.ExpectCommit()

	entries := []models.HabitEntry{
		{LocalDate: day("2025-03-01"), HabitType: "sleep", Value: models.JSON(`{"hours":7}`)},
		{LocalDate: day("2025-03-02"), HabitType: "sleep", Value: models.JSON(`{"hours":6}`)},
	}
	n, err := s.ImportBatch(context.Background(), user, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, user, entries[1].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHabitImportBatchRollsBack(t *testing.T) {
	db, mock := newMock(t)
	s := NewHabitStore(db)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO habit_entries`)
	prep.ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(uuid.New().String(), true))
	prep.ExpectQuery().WillReturnError(errors.New("check constraint"))
	mock.ExpectRollback()

	entries := []models.HabitEntry{
		{LocalDate: day("2025-03-01"), HabitType: "water", Value: models.JSON(`5`)},
		{LocalDate: day("2025-03-02"), HabitType: "water", Value: models.JSON(`-1`)},
	}
	n, err := s.ImportBatch(context.Background(), uuid.New(), entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import entry 1")
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHabitListBuildsFilter(t *testing.T) {
	db, mock := newMock(t)
	s := NewHabitStore(db)
	user := uuid.New()
	from, to := day("2025-03-01"), day("2025-03-31")

	mock.ExpectQuery(regexp.QuoteMeta(
		`FROM habit_entries WHERE user_id=$1 AND local_date >= $2 AND local_date <= $3 AND habit_type = $4 ORDER BY local_date DESC, habit_type LIMIT $5`)).
		WithArgs(user, from, to, "meditation", 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "local_date", "habit_type", "value"}).
			AddRow(uuid.New().String(), user.String(), day("2025-03-05"), "meditation", []byte(`true`)))

	out, err := s.List(context.Background(), HabitFilter{UserID: user, From: &from, To: &to, HabitType: "meditation", Limit: 20})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "true", string(out[0].Value))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHabitDeleteNotFound(t *testing.T) {
	db, mock := newMock(t)
	s := NewHabitStore(db)

	mock.ExpectExec(`DELETE FROM habit_entries`).WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.Delete(context.Background(), uuid.New(), day("2025-03-01"), "water")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectExec(`DELETE FROM habit_entries`).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, s.Delete(context.Background(), uuid.New(), day("2025-03-01"), "water"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHabitDateQueries(t *testing.T) {
	db, mock := newMock(t)
	s := NewHabitStore(db)
	user := uuid.New()
	ctx := context.Background()

	mock.ExpectQuery(`SELECT local_date FROM habit_entries`).
		WithArgs(user, "sleep").
		WillReturnRows(sqlmock.NewRows([]string{"local_date"}).AddRow(day("2025-03-10")).AddRow(day("2025-03-09")))
	dates, err := s.Dates(ctx, user, "sleep")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day("2025-03-10"), day("2025-03-09")}, dates)

	mock.ExpectQuery(`SELECT COUNT\(DISTINCT local_date\)`).
		WithArgs(user, day("2025-03-04"), day("2025-03-10")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	n, err := s.DistinctDays(ctx, user, day("2025-03-04"), day("2025-03-10"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	mock.ExpectQuery(`SELECT habit_type, MAX\(local_date\)`).
		WithArgs(user).
		WillReturnRows(sqlmock.NewRows([]string{"habit_type", "max"}).
			AddRow("water", day("2025-03-10")).
			AddRow("exercise", day("2025-03-02")))
	last, err := s.LastLogged(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Time{"water": day("2025-03-10"), "exercise": day("2025-03-02")}, last)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertCreateAndStamp(t *testing.T) {
	db, mock := newMock(t)
	s := NewAlertStore(db)
	user := uuid.New()
	ctx := context.Background()

	a := &models.HealthAlert{UserID: user, Kind: models.AlertPoorSleep, Severity: models.SeverityWarning, Message: "sleep is short"}
	mock.ExpectExec(`INSERT INTO health_alerts`).
		WithArgs(sqlmock.AnyArg(), user, "poor_sleep", "warning", "sleep is short", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Create(ctx, a))
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.False(t, a.TriggeredAt.IsZero())

	mock.ExpectExec(regexp.QuoteMeta(`SET acknowledged_at = COALESCE(acknowledged_at, NOW())`)).
		WithArgs(a.ID, user).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, s.Acknowledge(ctx, user, a.ID))

	mock.ExpectExec(regexp.QuoteMeta(`SET resolved_at = COALESCE(resolved_at, NOW())`)).
		WithArgs(a.ID, uuid.Nil).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.Resolve(ctx, uuid.Nil, a.ID), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertListUnresolved(t *testing.T) {
	db, mock := newMock(t)
	s := NewAlertStore(db)
	user := uuid.New()

	mock.ExpectQuery(`AND resolved_at IS NULL ORDER BY triggered_at DESC LIMIT \$2`).
		WithArgs(user, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "alert_type", "severity", "message", "triggered_at"}).
			AddRow(uuid.New().String(), user.String(), "stress_pattern", "critical", "stress is high", time.Now()))
	out, err := s.List(context.Background(), user, true, 50)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.SeverityCritical, out[0].Severity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserUpdateProfile(t *testing.T) {
	db, mock := newMock(t)
	s := NewUserStore(db)
	id := uuid.New()
	name, birth, gender := "Ada", "1990-04-01", ""

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET name=$1, birth_date=$2, gender=NULL WHERE id=$3 AND deleted_at IS NULL`)).
		WithArgs("Ada", day("1990-04-01"), id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.UpdateProfile(context.Background(), id, ProfileUpdate{Name: &name, BirthDate: &birth, Gender: &gender}))

	bad := "April"
	assert.Error(t, s.UpdateProfile(context.Background(), id, ProfileUpdate{BirthDate: &bad}))
	assert.NoError(t, s.UpdateProfile(context.Background(), id, ProfileUpdate{}), "empty update is a no-op")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetMapsNoRows(t *testing.T) {
	db, mock := newMock(t)
	s := NewUserStore(db)

	mock.ExpectQuery(`FROM users WHERE id = \$1 AND deleted_at IS NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityFilesForReadings(t *testing.T) {
	db, mock := newMock(t)
	s := NewActivityFileStore(db)
	user := uuid.New()
	r1, r2 := uuid.New(), uuid.New()

	files, err := s.ForReadings(context.Background(), user, nil)
	require.NoError(t, err)
	assert.Nil(t, files)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id = $1 AND reading_id IN ($2, $3)`)).
		WithArgs(user, r1, r2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "reading_id", "user_id", "object_key", "file_type", "file_size"}).
			AddRow(uuid.New().String(), r2.String(), user.String(), "activities/u/2.fit", "fit", 2048))
	files, err = s.ForReadings(context.Background(), user, []uuid.UUID{r1, r2})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, r2, files[0].ReadingID)
	assert.EqualValues(t, 2048, files[0].FileSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}
