package printers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tampa-backend/internal/platform/db"
)

// Store は printers と print_job_results の永続化。Manager はこれだけに依存する。
type Store interface {
	ListPrinters(ctx context.Context, orgID string) ([]PrinterConfig, error)
	InsertPrinter(ctx context.Context, p PrinterConfig) error
	UpdatePrinter(ctx context.Context, p PrinterConfig) error
	DeletePrinter(ctx context.Context, orgID, id string) error
	// ReassignDefault は同じ station の既定を外してから id を既定にする（1トランザクション）。
	// 影響行数は clientFoundRows 前提で一致行数として扱う。
	ReassignDefault(ctx context.Context, orgID, id, station string, now time.Time) error
	InsertJobResult(ctx context.Context, r PrintJobResult) error
	// ListJobResults は orgID のプリンタに属する結果だけを返す
	ListJobResults(ctx context.Context, orgID, printerID string) ([]PrintJobResult, error)
}

type SQLStore struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *SQLStore { return &SQLStore{db: conn} }

const printerColumns = `printer_id, organization_id, name, connection_type, ip_address, port,
	bluetooth_address, station, model, is_default, created_at, updated_at`

func (s *SQLStore) ListPrinters(ctx context.Context, orgID string) ([]PrinterConfig, error) {
	q := `SELECT ` + printerColumns + ` FROM printers WHERE organization_id = ? ORDER BY created_at, printer_id`
	rows, err := s.db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PrinterConfig
	for rows.Next() {
		var (
			p                      PrinterConfig
			ip, bt, station, model sql.NullString
			port                   sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.ConnectionType, &ip, &port,
			&bt, &station, &model, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.IPAddress, p.BluetoothAddress = ip.String, bt.String
		p.Station, p.Model = station.String, model.String
		p.Port = int(port.Int64)
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertPrinter: 既定として登録する場合は同じ station の既定解除と同じトランザクションで挿入する
func (s *SQLStore) InsertPrinter(ctx context.Context, p PrinterConfig) error {
	if !p.IsDefault {
		return insertPrinter(ctx, s.db, p)
	}
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if err := unsetDefaults(ctx, tx, p.OrganizationID, p.ID, p.Station, p.CreatedAt); err != nil {
			return err
		}
		return insertPrinter(ctx, tx, p)
	})
}

func insertPrinter(ctx context.Context, conn db.DBTX, p PrinterConfig) error {
	q := `INSERT INTO printers (` + printerColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := conn.ExecContext(ctx, q,
		p.ID, p.OrganizationID, p.Name, p.ConnectionType, nullString(p.IPAddress), nullPort(p.Port),
		nullString(p.BluetoothAddress), nullString(p.Station), nullString(p.Model), p.IsDefault,
		p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *SQLStore) UpdatePrinter(ctx context.Context, p PrinterConfig) error {
	const q = `
		UPDATE printers
		SET name = ?, connection_type = ?, ip_address = ?, port = ?, bluetooth_address = ?,
		    station = ?, model = ?, is_default = ?, updated_at = ?
		WHERE printer_id = ? AND organization_id = ?`
	res, err := s.db.ExecContext(ctx, q,
		p.Name, p.ConnectionType, nullString(p.IPAddress), nullPort(p.Port), nullString(p.BluetoothAddress),
		nullString(p.Station), nullString(p.Model), p.IsDefault, p.UpdatedAt,
		p.ID, p.OrganizationID)
	if err != nil {
		return err
	}
	return expectOne(res, p.ID)
}

func (s *SQLStore) DeletePrinter(ctx context.Context, orgID, id string) error {
	const q = `DELETE FROM printers WHERE printer_id = ? AND organization_id = ?`
	res, err := s.db.ExecContext(ctx, q, id, orgID)
	if err != nil {
		return err
	}
	return expectOne(res, id)
}

func (s *SQLStore) ReassignDefault(ctx context.Context, orgID, id, station string, now time.Time) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if err := unsetDefaults(ctx, tx, orgID, id, station, now); err != nil {
			return err
		}

		const set = `
			UPDATE printers
			SET is_default = 1, station = ?, updated_at = ?
			WHERE printer_id = ? AND organization_id = ?`
		res, err := tx.ExecContext(ctx, set, nullString(station), now, id, orgID)
		if err != nil {
			return err
		}
		return expectOne(res, id)
	})
}

// unsetDefaults: keep 以外で同じ station の既定を外す
func unsetDefaults(ctx context.Context, tx db.DBTX, orgID, keep, station string, now time.Time) error {
	const q = `
		UPDATE printers
		SET is_default = 0, updated_at = ?
		WHERE organization_id = ? AND COALESCE(station, '') = ? AND is_default = 1 AND printer_id <> ?`
	_, err := tx.ExecContext(ctx, q, now, orgID, station, keep)
	return err
}

func (s *SQLStore) InsertJobResult(ctx context.Context, r PrintJobResult) error {
	const q = `
		INSERT INTO print_job_results
		(job_id, label_id, printer_id, printer_name, status, printed_at, printed_by, error, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var errText sql.NullString
	if r.Error != nil {
		errText = sql.NullString{String: *r.Error, Valid: true}
	}
	var latency sql.NullInt64
	if r.LatencyMS != nil {
		latency = sql.NullInt64{Int64: *r.LatencyMS, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, q,
		r.JobID, nullString(r.LabelID), r.PrinterID, r.PrinterName, r.Status,
		r.PrintedAt, r.PrintedBy, errText, latency)
	return err
}

func (s *SQLStore) ListJobResults(ctx context.Context, orgID, printerID string) ([]PrintJobResult, error) {
	const q = `
		SELECT r.job_id, r.label_id, r.printer_id, r.printer_name, r.status, r.printed_at, r.printed_by, r.error, r.latency_ms
		FROM print_job_results r
		JOIN printers p ON p.printer_id = r.printer_id
		WHERE r.printer_id = ? AND p.organization_id = ?
		ORDER BY r.printed_at`

	var out []PrintJobResult
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		rows, err := tx.QueryContext(ctx, q, printerID, orgID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				r       PrintJobResult
				labelID sql.NullString
				errText sql.NullString
				latency sql.NullInt64
			)
			if err := rows.Scan(&r.JobID, &labelID, &r.PrinterID, &r.PrinterName, &r.Status,
				&r.PrintedAt, &r.PrintedBy, &errText, &latency); err != nil {
				return err
			}
			r.LabelID = labelID.String
			if errText.Valid {
				v := errText.String
				r.Error = &v
			}
			if latency.Valid {
				v := latency.Int64
				r.LatencyMS = &v
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ---- helpers ----
func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullPort(p int) sql.NullInt64 {
	if p <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(p), Valid: true}
}

func expectOne(res sql.Result, id string) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: %s", ErrPrinterNotFound, id)
	}
	return nil
}
