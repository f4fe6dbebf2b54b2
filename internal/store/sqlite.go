package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	scanerrors "github.com/scanweave/scanweave/internal/errors"
	"github.com/scanweave/scanweave/internal/logging"
	"github.com/scanweave/scanweave/internal/metrics"
	"github.com/scanweave/scanweave/internal/scanning"
)

const schema = `
CREATE TABLE IF NOT EXISTS scan_results (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	host       TEXT NOT NULL,
	hostname   TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL,
	partial    INTEGER NOT NULL DEFAULT 0,
	mode       TEXT NOT NULL DEFAULT '',
	scanned_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS port_scans (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	result_id INTEGER NOT NULL REFERENCES scan_results(id) ON DELETE CASCADE,
	port      INTEGER NOT NULL,
	protocol  TEXT NOT NULL,
	state     TEXT NOT NULL,
	service   TEXT NOT NULL DEFAULT '',
	product   TEXT NOT NULL DEFAULT '',
	version   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_scan_results_host ON scan_results(host);
CREATE INDEX IF NOT EXISTS idx_port_scans_result ON port_scans(result_id);
`

// resultRow maps a scan_results row.
type resultRow struct {
	ID        int64     `db:"id"`
	Host      string    `db:"host"`
	Hostname  string    `db:"hostname"`
	State     string    `db:"state"`
	Partial   bool      `db:"partial"`
	Mode      string    `db:"mode"`
	ScannedAt time.Time `db:"scanned_at"`
}

// portRow maps a port_scans row.
type portRow struct {
	ID       int64  `db:"id"`
	ResultID int64  `db:"result_id"`
	Port     uint16 `db:"port"`
	Protocol string `db:"protocol"`
	State    string `db:"state"`
	Service  string `db:"service"`
	Product  string `db:"product"`
	Version  string `db:"version"`
}

// DB is a SQLite-backed result store.
type DB struct {
	conn *sqlx.DB
	log  *logging.Logger
}

// Open opens (creating if necessary) the database at path and ensures the
// schema exists. WAL mode keeps concurrent worker commits from serializing
// on the whole file.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)

	conn, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, scanerrors.WrapStoreError(scanerrors.CodeStoreConnection,
			"failed to open result database", "open", err)
	}
	// modernc's driver is single-writer; one connection sidesteps SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, scanerrors.WrapStoreError(scanerrors.CodeStoreConnection,
			"failed to apply result schema", "migrate", err)
	}

	return &DB{
		conn: conn,
		log:  logging.Default().WithComponent("store"),
	}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// SaveResult persists one scan result and its port scans in a single
// transaction.
func (d *DB) SaveResult(ctx context.Context, mode string, result *scanning.ScanResult) error {
	tx, err := d.conn.BeginTxx(ctx, nil)
	if err != nil {
		return scanerrors.WrapStoreError(scanerrors.CodeStoreQuery,
			"failed to begin transaction", "save_result", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO scan_results (host, hostname, state, partial, mode, scanned_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		result.Host, result.Hostname, result.State, result.Partial, mode, result.ScannedAt)
	if err != nil {
		return scanerrors.WrapStoreError(scanerrors.CodeStoreQuery,
			"failed to insert scan result", "save_result", err)
	}

	resultID, err := res.LastInsertId()
	if err != nil {
		return scanerrors.WrapStoreError(scanerrors.CodeStoreQuery,
			"failed to read inserted result id", "save_result", err)
	}

	for _, p := range result.Ports {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO port_scans (result_id, port, protocol, state, service, product, version)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			resultID, p.Number, p.Protocol, p.State, p.Service, p.Product, p.Version); err != nil {
			return scanerrors.WrapStoreError(scanerrors.CodeStoreQuery,
				"failed to insert port scan", "save_result", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return scanerrors.WrapStoreError(scanerrors.CodeStoreQuery,
			"failed to commit scan result", "save_result", err)
	}

	metrics.GetGlobalMetrics().IncrementStoreCommits()
	d.log.Debug("Persisted scan result", "host", result.Host, "ports", len(result.Ports))
	return nil
}

// LoadResults returns persisted results matching the filter, oldest first.
// Port-level filter fields narrow which hosts are returned, not which ports
// a returned result carries.
func (d *DB) LoadResults(ctx context.Context, filter Filter) ([]scanning.ScanResult, error) {
	query := `SELECT id, host, hostname, state, partial, mode, scanned_at FROM scan_results`
	var conds []string
	var args []interface{}

	if filter.Host != "" {
		conds = append(conds, "host = ?")
		args = append(args, filter.Host)
	}
	if filter.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, filter.State)
	}
	if filter.Protocol != "" || filter.Port != 0 || filter.PortState != "" {
		// One EXISTS over all port-level fields so they must match the
		// same port entry, mirroring MemoryStore.Query.
		sub := "EXISTS (SELECT 1 FROM port_scans WHERE result_id = scan_results.id"
		if filter.Protocol != "" {
			sub += " AND protocol = ?"
			args = append(args, filter.Protocol)
		}
		if filter.Port != 0 {
			sub += " AND port = ?"
			args = append(args, filter.Port)
		}
		if filter.PortState != "" {
			sub += " AND state = ?"
			args = append(args, filter.PortState)
		}
		conds = append(conds, sub+")")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	var rows []resultRow
	if err := d.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, scanerrors.WrapStoreError(scanerrors.CodeStoreQuery,
			"failed to query scan results", "load_results", err)
	}

	results := make([]scanning.ScanResult, 0, len(rows))
	for _, row := range rows {
		ports, err := d.loadPorts(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		results = append(results, scanning.ScanResult{
			Host:      row.Host,
			Hostname:  row.Hostname,
			State:     row.State,
			Partial:   row.Partial,
			Ports:     ports,
			ScannedAt: row.ScannedAt,
		})
	}

	metrics.GetGlobalMetrics().IncrementStoreQueries()
	return results, nil
}

func (d *DB) loadPorts(ctx context.Context, resultID int64) ([]scanning.Port, error) {
	var rows []portRow
	err := d.conn.SelectContext(ctx, &rows,
		`SELECT id, result_id, port, protocol, state, service, product, version
		 FROM port_scans WHERE result_id = ? ORDER BY port`, resultID)
	if err != nil && err != sql.ErrNoRows {
		return nil, scanerrors.WrapStoreError(scanerrors.CodeStoreQuery,
			"failed to query port scans", "load_results", err)
	}

	ports := make([]scanning.Port, 0, len(rows))
	for _, row := range rows {
		ports = append(ports, scanning.Port{
			Number:   row.Port,
			Protocol: row.Protocol,
			State:    row.State,
			Service:  row.Service,
			Product:  row.Product,
			Version:  row.Version,
		})
	}
	return ports, nil
}
