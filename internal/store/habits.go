package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"healthspan/internal/models"
)

const habitColumns = `id, user_id, local_date, habit_type, value, duration_minutes, quality_score, energy_level, note, created_at, updated_at`

type HabitStore struct {
	db *sqlx.DB
}

func NewHabitStore(db *sqlx.DB) *HabitStore { return &HabitStore{db: db} }

const upsertHabitSQL = `INSERT INTO habit_entries (id, user_id, local_date, habit_type, value, duration_minutes, quality_score, energy_level, note, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	ON CONFLICT (user_id, local_date, habit_type)
	DO UPDATE SET
	  value = EXCLUDED.value,
	  duration_minutes = EXCLUDED.duration_minutes,
	  quality_score = EXCLUDED.quality_score,
	  energy_level = EXCLUDED.energy_level,
	  note = EXCLUDED.note,
	  updated_at = NOW()
	RETURNING id, (xmax = 0)`

// Upsert writes e, replacing any entry for the same (user, date, kind).
// e.ID is set to the stored row's id. inserted is false when an existing
// row was replaced.
func (s *HabitStore) Upsert(ctx context.Context, e *models.HabitEntry) (inserted bool, err error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err = s.db.QueryRowxContext(ctx, upsertHabitSQL,
		e.ID, e.UserID, e.LocalDate, e.HabitType, e.Value,
		e.DurationMinutes, e.QualityScore, e.EnergyLevel, e.Note,
	).Scan(&e.ID, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert habit: %w", err)
	}
	return inserted, nil
}

// ImportBatch upserts all entries for one user in a single transaction.
func (s *HabitStore) ImportBatch(ctx context.Context, userID uuid.UUID, entries []models.HabitEntry) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, upsertHabitSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		var inserted bool
		if err := stmt.QueryRowxContext(ctx,
			e.ID, userID, e.LocalDate, e.HabitType, e.Value,
			e.DurationMinutes, e.QualityScore, e.EnergyLevel, e.Note,
		).Scan(&e.ID, &inserted); err != nil {
			return 0, fmt.Errorf("import entry %d: %w", i, err)
		}
		e.UserID = userID
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(entries), nil
}

// HabitFilter narrows List. Zero fields are ignored.
type HabitFilter struct {
	UserID    uuid.UUID
	From      *time.Time
	To        *time.Time
	HabitType string
	Ascending bool
	Limit     int
}

func (s *HabitStore) List(ctx context.Context, f HabitFilter) ([]models.HabitEntry, error) {
	where := "WHERE user_id=$1"
	args := []interface{}{f.UserID}
	if f.From != nil {
		args = append(args, *f.From)
		where += fmt.Sprintf(" AND local_date >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where += fmt.Sprintf(" AND local_date <= $%d", len(args))
	}
	if f.HabitType != "" {
		args = append(args, f.HabitType)
		where += fmt.Sprintf(" AND habit_type = $%d", len(args))
	}
	order := " ORDER BY local_date DESC, habit_type"
	if f.Ascending {
		order = " ORDER BY local_date ASC, habit_type"
	}
	query := "SELECT " + habitColumns + " FROM habit_entries " + where + order
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var out []models.HabitEntry
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	return out, nil
}

func (s *HabitStore) Delete(ctx context.Context, userID uuid.UUID, date time.Time, habitType string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM habit_entries WHERE user_id = $1 AND local_date = $2 AND habit_type = $3`,
		userID, date, habitType)
	if err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Dates returns every logged date for one kind, most recent first.
func (s *HabitStore) Dates(ctx context.Context, userID uuid.UUID, habitType string) ([]time.Time, error) {
	var out []time.Time
	err := s.db.SelectContext(ctx, &out,
		`SELECT local_date FROM habit_entries WHERE user_id = $1 AND habit_type = $2 ORDER BY local_date DESC`,
		userID, habitType)
	if err != nil {
		return nil, fmt.Errorf("habit dates: %w", err)
	}
	return out, nil
}

// DistinctDays counts days in [from, to] with at least one entry of any kind.
func (s *HabitStore) DistinctDays(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(DISTINCT local_date) FROM habit_entries WHERE user_id = $1 AND local_date >= $2 AND local_date <= $3`,
		userID, from, to)
	if err != nil {
		return 0, fmt.Errorf("distinct habit days: %w", err)
	}
	return n, nil
}

// LastLogged maps each kind the user has ever logged to its latest date.
func (s *HabitStore) LastLogged(ctx context.Context, userID uuid.UUID) (map[string]time.Time, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT habit_type, MAX(local_date) FROM habit_entries WHERE user_id = $1 GROUP BY habit_type`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("last logged: %w", err)
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var kind string
		var last time.Time
		if err := rows.Scan(&kind, &last); err != nil {
			return nil, fmt.Errorf("scan last logged: %w", err)
		}
		out[kind] = last
	}
	return out, rows.Err()
}

// KindStat aggregates one habit kind over a window.
type KindStat struct {
	HabitType  string   `db:"habit_type" json:"habit_type"`
	Count      int      `db:"count" json:"count"`
	AvgQuality *float64 `db:"avg_quality" json:"avg_quality"`
	AvgEnergy  *float64 `db:"avg_energy" json:"avg_energy"`
}

func (s *HabitStore) KindStats(ctx context.Context, userID uuid.UUID, from time.Time) ([]KindStat, error) {
	var out []KindStat
	err := s.db.SelectContext(ctx, &out, `
		SELECT habit_type, COUNT(*) AS count,
		       AVG(quality_score)::float8 AS avg_quality,
		       AVG(energy_level)::float8 AS avg_energy
		FROM habit_entries
		WHERE user_id = $1 AND local_date >= $2
		GROUP BY habit_type
		ORDER BY habit_type`, userID, from)
	if err != nil {
		return nil, fmt.Errorf("habit kind stats: %w", err)
	}
	return out, nil
}
