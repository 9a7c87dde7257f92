package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
)

// Record is an archived finished workout with its storage identity.
type Record struct {
	ID uuid.UUID `json:"id"`
	models.FinishedWorkout
}

// InsertFinishedWorkout archives a finished session: one workout row plus a
// batch of flattened set rows. Returns the record ID. Inserting the same
// record twice is a no-op (ON CONFLICT DO NOTHING).
func (db *DB) InsertFinishedWorkout(ctx context.Context, fw *models.FinishedWorkout) (uuid.UUID, error) {
	id := uuid.New()

	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO finished_workouts (id, workout_id, name, start_time, end_time, duration, elapsed_sec, paused_sec)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT DO NOTHING`,
		id, fw.WorkoutID, fw.Name, fw.StartTime, fw.EndTime, fw.Duration,
		fw.ElapsedSeconds, fw.PausedSeconds)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting finished workout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, fmt.Errorf("inserting finished workout: duplicate id")
	}

	if err := db.insertFinishedSets(ctx, id, fw.Exercises); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (db *DB) insertFinishedSets(ctx context.Context, recordID uuid.UUID, exercises []models.Exercise) error {
	var (
		args         []any
		valueStrings []string
	)
	n := 0
	for _, ex := range exercises {
		for _, set := range ex.Sets {
			base := n * 11
			valueStrings = append(valueStrings, fmt.Sprintf(
				"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6,
				base+7, base+8, base+9, base+10, base+11,
			))
			args = append(args, recordID, ex.ID, ex.Name, ex.Position,
				set.ID, set.Position, string(set.Type), set.Reps, set.WeightKg,
				set.RestTimeSeconds, set.Completed)
			n++
		}
	}
	if n == 0 {
		return nil
	}

	query := `INSERT INTO finished_sets (record_id, exercise_id, exercise_name, exercise_position,
		set_id, set_position, set_type, reps, weight_kg, rest_sec, completed) VALUES ` +
		strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"

	if _, err := db.Pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting finished sets: %w", err)
	}
	return nil
}

// QueryFinishedWorkouts retrieves archived workouts in a time range, newest
// first, without their set detail.
func (db *DB) QueryFinishedWorkouts(ctx context.Context, start, end time.Time) ([]Record, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, workout_id, name, start_time, end_time, duration, elapsed_sec, paused_sec
		 FROM finished_workouts
		 WHERE start_time >= $1 AND start_time < $2
		 ORDER BY start_time DESC`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("querying finished workouts: %w", err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.WorkoutID, &r.Name, &r.StartTime, &r.EndTime,
			&r.Duration, &r.ElapsedSeconds, &r.PausedSeconds); err != nil {
			return nil, fmt.Errorf("scanning finished workout: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// GetFinishedWorkout retrieves a single archived workout with its exercise
// and set tree rebuilt in order.
func (db *DB) GetFinishedWorkout(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT id, workout_id, name, start_time, end_time, duration, elapsed_sec, paused_sec
		 FROM finished_workouts
		 WHERE id = $1`,
		id)

	var r Record
	err := row.Scan(&r.ID, &r.WorkoutID, &r.Name, &r.StartTime, &r.EndTime,
		&r.Duration, &r.ElapsedSeconds, &r.PausedSeconds)
	if err != nil {
		return nil, fmt.Errorf("querying finished workout: %w", err)
	}

	setRows, err := db.Pool.Query(ctx,
		`SELECT exercise_id, exercise_name, exercise_position,
		 set_id, set_position, set_type, reps, weight_kg, rest_sec, completed
		 FROM finished_sets
		 WHERE record_id = $1
		 ORDER BY exercise_position ASC, set_position ASC`,
		id)
	if err != nil {
		return nil, fmt.Errorf("querying finished sets: %w", err)
	}
	defer setRows.Close()

	for setRows.Next() {
		var (
			exID, exName string
			exPos        int
			set          models.Set
			setType      string
		)
		if err := setRows.Scan(&exID, &exName, &exPos,
			&set.ID, &set.Position, &setType, &set.Reps, &set.WeightKg,
			&set.RestTimeSeconds, &set.Completed); err != nil {
			return nil, fmt.Errorf("scanning finished set: %w", err)
		}
		set.Type = models.SetType(setType)

		if n := len(r.Exercises); n == 0 || r.Exercises[n-1].ID != exID {
			r.Exercises = append(r.Exercises, models.Exercise{ID: exID, Name: exName, Position: exPos})
		}
		last := &r.Exercises[len(r.Exercises)-1]
		last.Sets = append(last.Sets, set)
	}

	return &r, setRows.Err()
}
