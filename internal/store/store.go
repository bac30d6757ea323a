package store

import (
	"context"
	"errors"

	"github.com/jpalmerr/devicewatch/internal/inventory"
)

var (
	// ErrNotFound is returned when a keyed row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")
)

// DeviceStore is the device table surface consumed by the reconciler.
type DeviceStore interface {
	// ListDevices returns a snapshot of every device.
	ListDevices(ctx context.Context) ([]inventory.Device, error)

	// GetDevice returns a single device or ErrNotFound.
	GetDevice(ctx context.Context, id int64) (inventory.Device, error)

	// UpdateStatus sets the status column of one device.
	// Returns ErrNotFound if the device no longer exists.
	UpdateStatus(ctx context.Context, id int64, status inventory.Status) error
}

// UserStore persists API accounts.
type UserStore interface {
	// CreateUser inserts a user. Returns ErrConflict if the username is taken.
	CreateUser(ctx context.Context, username, passwordHash string) (inventory.User, error)

	// UserByUsername returns a user or ErrNotFound.
	UserByUsername(ctx context.Context, username string) (inventory.User, error)
}

// Store is the full inventory surface used by the HTTP API.
type Store interface {
	DeviceStore
	UserStore

	// ListRouters returns every router joined with its device.
	ListRouters(ctx context.Context) ([]inventory.Router, error)

	// ListPrinters returns every printer joined with its device.
	ListPrinters(ctx context.Context) ([]inventory.Printer, error)

	// SetPrinterOnline sets the online flag of the printer row with the given id.
	// Returns ErrNotFound if no row was affected.
	SetPrinterOnline(ctx context.Context, printerID int64, online int) error

	// ListBoxes returns every power box joined with its device.
	ListBoxes(ctx context.Context) ([]inventory.Box, error)

	// SetBoxPowerStatus sets the power status of the box attached to deviceID
	// and returns the updated row. Returns ErrNotFound if no row was affected.
	SetBoxPowerStatus(ctx context.Context, deviceID int64, powerStatus int) (inventory.Box, error)
}
