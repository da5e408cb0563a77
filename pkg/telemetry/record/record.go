// Package record keeps a local history of car states in SQLite.
package record

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/robotalks/legocar.go/pkg/car"
	"github.com/robotalks/legocar.go/pkg/telemetry"
)

const schema = `
CREATE TABLE IF NOT EXISTS car_state (
	seq INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	speed REAL,
	yaw REAL,
	motor_left INTEGER,
	motor_right INTEGER,
	steer_angle INTEGER,
	temp REAL,
	state BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS car_state_recorded_at ON car_state (recorded_at);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

// Recorder implements telemetry.Sink by appending to the car_state table.
// The full state is stored CBOR encoded next to a few queryable columns.
type Recorder struct {
	DB *sql.DB

	enc telemetry.Encoder
}

var _ telemetry.Sink = &Recorder{}

// Open opens or creates the database at path.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	enc, err := telemetry.NewCBOREncoder()
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Recorder{DB: db, enc: enc}, nil
}

// Publish implements telemetry.Sink.
func (r *Recorder) Publish(ctx context.Context, s *car.State) error {
	blob, err := r.enc.Encode(s)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO car_state (seq, recorded_at, speed, yaw, motor_left, motor_right, steer_angle, temp, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(s.Sequence), s.Timestamp.UnixNano(), s.Speed.X, s.Orientation.Yaw,
		s.LeftMotor, s.RightMotor, s.SteerAngle, s.Temp, blob)
	if err != nil {
		return fmt.Errorf("record state %d: %w", s.Sequence, err)
	}
	return nil
}

// Recent returns up to n latest states, newest first.
func (r *Recorder) Recent(ctx context.Context, n int) ([]*car.State, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT state FROM car_state ORDER BY recorded_at DESC, seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var states []*car.State
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		s, err := r.enc.Decode(blob)
		if err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

// Prune deletes states recorded before t and returns how many.
func (r *Recorder) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM car_state WHERE recorded_at < ?`, before.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close implements io.Closer.
func (r *Recorder) Close() error {
	return r.DB.Close()
}
