package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"annexparse/internal"
)

const MetaLastProcessedStamp = "last_processed_stamp"

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS batches (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL UNIQUE,
  sourceFile TEXT NOT NULL,
  stamp TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'started',
  count INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  originalPath TEXT NOT NULL,
  parsedPath TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_batches_stamp ON batches(stamp);

CREATE TABLE IF NOT EXISTS requests (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  batchId INTEGER NOT NULL,
  seq INTEGER NOT NULL,
  itemId TEXT,
  rawJson TEXT NOT NULL,
  itemBarcode TEXT,
  deliveryStopCode TEXT,
  locationCode TEXT,
  patronName TEXT,
  patronBarcode TEXT,
  itemTitle TEXT,
  requestDate TEXT,
  patronNote TEXT,
  status TEXT NOT NULL,
  error TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(batchId, seq),
  FOREIGN KEY(batchId) REFERENCES batches(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// InsertBatch records the start of a run over one export file.
func (d *DB) InsertBatch(runID, sourceFile, stamp, originalPath string) (int64, error) {
	result, err := d.conn.Exec(`
INSERT INTO batches (runId, sourceFile, stamp, status, originalPath)
VALUES (?, ?, ?, ?, ?)
`, runID, sourceFile, stamp, string(internal.BatchStarted), originalPath)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) FinishBatch(batchID int64, count int, parsedPath string) error {
	_, err := d.conn.Exec(`
UPDATE batches SET status = ?, count = ?, parsedPath = ?, error = NULL, updatedAt = CURRENT_TIMESTAMP
WHERE id = ?
`, string(internal.BatchProcessed), count, parsedPath, batchID)
	return err
}

func (d *DB) FailBatch(batchID int64, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	_, err := d.conn.Exec(`
UPDATE batches SET status = ?, count = 0, error = ?, updatedAt = CURRENT_TIMESTAMP
WHERE id = ?
`, string(internal.BatchFailed), msg, batchID)
	return err
}

func (d *DB) InsertRequests(batchID int64, rows []internal.RequestRow) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO requests (
  batchId, seq, itemId, rawJson,
  itemBarcode, deliveryStopCode, locationCode, patronName, patronBarcode,
  itemTitle, requestDate, patronNote, status, error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(batchId, seq) DO UPDATE SET
  itemId=excluded.itemId,
  rawJson=excluded.rawJson,
  itemBarcode=excluded.itemBarcode,
  deliveryStopCode=excluded.deliveryStopCode,
  locationCode=excluded.locationCode,
  patronName=excluded.patronName,
  patronBarcode=excluded.patronBarcode,
  itemTitle=excluded.itemTitle,
  requestDate=excluded.requestDate,
  patronNote=excluded.patronNote,
  status=excluded.status,
  error=excluded.error
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		rawJSON, err := json.Marshal(r.Raw)
		if err != nil {
			return fmt.Errorf("encode request %d: %w", r.Seq, err)
		}
		var out [8]*string
		if r.Record != nil {
			fields := r.Record.Fields()[1:]
			for i := range out {
				v := fields[i]
				out[i] = &v
			}
		}
		if _, err := stmt.Exec(
			batchID, r.Seq, r.Raw.ItemID, string(rawJSON),
			out[0], out[1], out[2], out[3], out[4], out[5], out[6], out[7],
			string(r.Status), r.Error,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) GetBatch(batchID int64) (*internal.BatchRow, error) {
	var row internal.BatchRow
	err := d.conn.QueryRow(`
SELECT id, runId, sourceFile, stamp, status, count, error, originalPath, parsedPath, createdAt, updatedAt
FROM batches WHERE id = ?
`, batchID).Scan(
		&row.ID, &row.RunID, &row.SourceFile, &row.Stamp, &row.Status, &row.Count, &row.Error,
		&row.OriginalPath, &row.ParsedPath, &row.CreatedAt, &row.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListBatches returns the most recent batches first.
func (d *DB) ListBatches(limit int) ([]internal.BatchRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(`
SELECT id, runId, sourceFile, stamp, status, count, error, originalPath, parsedPath, createdAt, updatedAt
FROM batches ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.BatchRow
	for rows.Next() {
		var row internal.BatchRow
		if err := rows.Scan(
			&row.ID, &row.RunID, &row.SourceFile, &row.Stamp, &row.Status, &row.Count, &row.Error,
			&row.OriginalPath, &row.ParsedPath, &row.CreatedAt, &row.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) GetBatchRequests(batchID int64) ([]internal.RequestExportRow, error) {
	rows, err := d.conn.Query(`
SELECT
  batchId, seq, itemId, status, error, rawJson,
  itemBarcode, deliveryStopCode, locationCode, patronName, patronBarcode,
  itemTitle, requestDate, patronNote, createdAt
FROM requests
WHERE batchId = ?
ORDER BY seq ASC
`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RequestExportRow
	for rows.Next() {
		var row internal.RequestExportRow
		var itemID sql.NullString
		var rawJSON string
		var out8 [8]sql.NullString
		if err := rows.Scan(
			&row.BatchID, &row.Seq, &itemID, &row.Status, &row.Error, &rawJSON,
			&out8[0], &out8[1], &out8[2], &out8[3], &out8[4], &out8[5], &out8[6], &out8[7],
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		row.ItemID = itemID.String
		if err := json.Unmarshal([]byte(rawJSON), &row.Raw); err != nil {
			return nil, fmt.Errorf("decode request %d: %w", row.Seq, err)
		}
		if out8[0].Valid {
			row.Record = &internal.NormalizedRequest{
				ItemID:           row.ItemID,
				ItemBarcode:      out8[0].String,
				DeliveryStopCode: out8[1].String,
				LocationCode:     out8[2].String,
				PatronName:       out8[3].String,
				PatronBarcode:    out8[4].String,
				ItemTitle:        out8[5].String,
				RequestDate:      out8[6].String,
				PatronNote:       out8[7].String,
			}
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *DB) MustBatch(batchID int64) (internal.BatchRow, error) {
	row, err := d.GetBatch(batchID)
	if err != nil {
		return internal.BatchRow{}, err
	}
	if row == nil {
		return internal.BatchRow{}, fmt.Errorf("batch not found: id=%d", batchID)
	}
	return *row, nil
}
