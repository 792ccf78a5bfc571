package server

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite session history.
type DB struct {
	conn *sql.DB
}

// HitRow is one recorded bullet hit.
type HitRow struct {
	Tick    int32
	Shooter uint64
	Victim  *uint64
	X, Y    float64
	At      time.Time
}

// ScoreRow is a finished or running connection with its score.
type ScoreRow struct {
	ClientID    uint64    `json:"client_id"`
	Nickname    string    `json:"nickname"`
	Score       int32     `json:"score"`
	ConnectedAt time.Time `json:"connected_at"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc serialises writers; one connection avoids SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS connections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL,
		nickname TEXT NOT NULL DEFAULT '',
		connected_at INTEGER NOT NULL,
		disconnected_at INTEGER,
		final_score INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS hits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		shooter INTEGER NOT NULL,
		victim INTEGER,
		x REAL NOT NULL,
		y REAL NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_connections_score ON connections(final_score);
	CREATE INDEX IF NOT EXISTS idx_hits_shooter ON hits(shooter);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// RecordConnect stores a new connection and returns its row id.
func (db *DB) RecordConnect(client uint64, nickname string, at time.Time) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO connections (client_id, nickname, connected_at) VALUES (?, ?, ?)",
		int64(client), nickname, at.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecordDisconnect closes a connection row with the final score.
func (db *DB) RecordDisconnect(id int64, at time.Time, score int32) error {
	_, err := db.conn.Exec(
		"UPDATE connections SET disconnected_at = ?, final_score = ? WHERE id = ?",
		at.UnixMilli(), score, id,
	)
	return err
}

// InsertHits writes a batch of hits in one transaction.
func (db *DB) InsertHits(hits []HitRow) error {
	if len(hits) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO hits (tick, shooter, victim, x, y, created_at) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, h := range hits {
		victim := sql.NullInt64{}
		if h.Victim != nil {
			victim = sql.NullInt64{Int64: int64(*h.Victim), Valid: true}
		}
		if _, err := stmt.Exec(h.Tick, int64(h.Shooter), victim, h.X, h.Y, h.At.UnixMilli()); err != nil {
			return fmt.Errorf("insert hit: %w", err)
		}
	}
	return tx.Commit()
}

// HitCount returns the number of recorded hits.
func (db *DB) HitCount() (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM hits").Scan(&n)
	return n, err
}

// TopScores returns the best finished connections.
func (db *DB) TopScores(limit int) ([]ScoreRow, error) {
	rows, err := db.conn.Query(`
		SELECT client_id, nickname, final_score, connected_at FROM connections
		WHERE disconnected_at IS NOT NULL
		ORDER BY final_score DESC, connected_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScoreRow
	for rows.Next() {
		var r ScoreRow
		var cid, at int64
		if err := rows.Scan(&cid, &r.Nickname, &r.Score, &at); err != nil {
			return nil, err
		}
		r.ClientID = uint64(cid)
		r.ConnectedAt = time.UnixMilli(at).UTC()
		result = append(result, r)
	}
	return result, rows.Err()
}
