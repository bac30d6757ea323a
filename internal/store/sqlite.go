package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/jpalmerr/devicewatch/internal/inventory"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore is a [Store] backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (or creates) the SQLite database at path and makes sure the
// inventory tables exist.
//
// The connection is configured with WAL journaling, a 5-second busy timeout
// and foreign key enforcement. A single open connection is used because
// SQLite allows one writer at a time.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying handle for seeding and administrative queries.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

const deviceColumns = `id, ip, name, type, "user", sector, status`

func scanDevice(row interface{ Scan(...any) error }) (inventory.Device, error) {
	var d inventory.Device
	var typ string
	var status int
	if err := row.Scan(&d.ID, &d.Address, &d.Name, &typ, &d.Owner, &d.Sector, &status); err != nil {
		return inventory.Device{}, err
	}
	d.Type = inventory.DeviceType(typ)
	d.Status = inventory.Status(status)
	return d, nil
}

// ListDevices returns every device ordered by id.
func (s *SQLiteStore) ListDevices(ctx context.Context) ([]inventory.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := []inventory.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("list devices: scan: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

// GetDevice returns one device by id.
func (s *SQLiteStore) GetDevice(ctx context.Context, id int64) (inventory.Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Device{}, ErrNotFound
	}
	if err != nil {
		return inventory.Device{}, fmt.Errorf("get device %d: %w", id, err)
	}
	return d, nil
}

// InsertDevice adds a device and returns it with its assigned id.
func (s *SQLiteStore) InsertDevice(ctx context.Context, d inventory.Device) (inventory.Device, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (ip, name, type, "user", sector, status) VALUES (?, ?, ?, ?, ?, ?)`,
		d.Address, d.Name, string(d.Type), d.Owner, d.Sector, int(d.Status),
	)
	if err != nil {
		return inventory.Device{}, fmt.Errorf("insert device: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return inventory.Device{}, fmt.Errorf("insert device: %w", err)
	}
	d.ID = id
	return d, nil
}

// UpdateStatus sets the status column of one device.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id int64, status inventory.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE devices SET status = ? WHERE id = ?`, int(status), id)
	if err != nil {
		return fmt.Errorf("update status of device %d: %w", id, err)
	}
	return expectAffected(res)
}

// ListRouters returns routers joined with their device.
func (s *SQLiteStore) ListRouters(ctx context.Context) ([]inventory.Router, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.device_id, r.login_username, r.login_password,
		       r.wifi_ssid, r.wifi_password, r.hidden, d.ip, d.name, d.status
		FROM routers r
		JOIN devices d ON r.device_id = d.id
		ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("list routers: %w", err)
	}
	defer rows.Close()

	routers := []inventory.Router{}
	for rows.Next() {
		var r inventory.Router
		var status int
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.LoginUsername, &r.LoginPassword,
			&r.WifiSSID, &r.WifiPassword, &r.Hidden, &r.Address, &r.Name, &status); err != nil {
			return nil, fmt.Errorf("list routers: scan: %w", err)
		}
		r.Status = inventory.Status(status)
		routers = append(routers, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list routers: %w", err)
	}
	return routers, nil
}

// ListPrinters returns printers joined with their device.
func (s *SQLiteStore) ListPrinters(ctx context.Context) ([]inventory.Printer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.device_id, p.model, p.npat, p.li, p.lf, p.online,
		       d.ip, d.sector, d.status
		FROM printers p
		JOIN devices d ON p.device_id = d.id
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("list printers: %w", err)
	}
	defer rows.Close()

	printers := []inventory.Printer{}
	for rows.Next() {
		var p inventory.Printer
		var status int
		if err := rows.Scan(&p.ID, &p.DeviceID, &p.Model, &p.NPat, &p.LI, &p.LF, &p.Online,
			&p.Address, &p.Sector, &status); err != nil {
			return nil, fmt.Errorf("list printers: scan: %w", err)
		}
		p.Status = inventory.Status(status)
		printers = append(printers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list printers: %w", err)
	}
	return printers, nil
}

// SetPrinterOnline sets the online flag of a printer row.
func (s *SQLiteStore) SetPrinterOnline(ctx context.Context, printerID int64, online int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE printers SET online = ? WHERE id = ?`, online, printerID)
	if err != nil {
		return fmt.Errorf("set printer %d online: %w", printerID, err)
	}
	return expectAffected(res)
}

const boxQuery = `
	SELECT b.id, b.device_id, b.power_status, d.ip, d.name, d.status
	FROM boxes b
	JOIN devices d ON b.device_id = d.id`

func scanBox(row interface{ Scan(...any) error }) (inventory.Box, error) {
	var b inventory.Box
	var status int
	if err := row.Scan(&b.ID, &b.DeviceID, &b.PowerStatus, &b.Address, &b.Name, &status); err != nil {
		return inventory.Box{}, err
	}
	b.Status = inventory.Status(status)
	return b, nil
}

// ListBoxes returns power boxes joined with their device.
func (s *SQLiteStore) ListBoxes(ctx context.Context) ([]inventory.Box, error) {
	rows, err := s.db.QueryContext(ctx, boxQuery+` ORDER BY b.id`)
	if err != nil {
		return nil, fmt.Errorf("list boxes: %w", err)
	}
	defer rows.Close()

	boxes := []inventory.Box{}
	for rows.Next() {
		b, err := scanBox(rows)
		if err != nil {
			return nil, fmt.Errorf("list boxes: scan: %w", err)
		}
		boxes = append(boxes, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list boxes: %w", err)
	}
	return boxes, nil
}

// SetBoxPowerStatus sets the power status of the box attached to deviceID
// and reads the joined row back.
func (s *SQLiteStore) SetBoxPowerStatus(ctx context.Context, deviceID int64, powerStatus int) (inventory.Box, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE boxes SET power_status = ? WHERE device_id = ?`, powerStatus, deviceID)
	if err != nil {
		return inventory.Box{}, fmt.Errorf("set box %d power status: %w", deviceID, err)
	}
	if err := expectAffected(res); err != nil {
		return inventory.Box{}, err
	}

	b, err := scanBox(s.db.QueryRowContext(ctx, boxQuery+` WHERE b.device_id = ?`, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Box{}, ErrNotFound
	}
	if err != nil {
		return inventory.Box{}, fmt.Errorf("read box %d: %w", deviceID, err)
	}
	return b, nil
}

// CreateUser inserts a user row.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (inventory.User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`, username, passwordHash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return inventory.User{}, ErrConflict
		}
		return inventory.User{}, fmt.Errorf("create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return inventory.User{}, fmt.Errorf("create user: %w", err)
	}
	return inventory.User{ID: id, Username: username, PasswordHash: passwordHash}, nil
}

// UserByUsername returns a user by name.
func (s *SQLiteStore) UserByUsername(ctx context.Context, username string) (inventory.User, error) {
	var u inventory.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.User{}, ErrNotFound
	}
	if err != nil {
		return inventory.User{}, fmt.Errorf("get user %q: %w", username, err)
	}
	return u, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
