package store

import (
	"context"
	"sync"

	"github.com/jpalmerr/devicewatch/internal/inventory"
)

// MemoryStore is an in-memory implementation of [Store].
//
// Devices are listed in insertion order, which keeps sweep order
// deterministic in tests. All methods are safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	order    []int64
	devices  map[int64]inventory.Device
	routers  []inventory.Router
	printers []inventory.Printer
	boxes    []inventory.Box
	users    map[string]inventory.User
	nextUser int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a [MemoryStore] seeded with the given devices.
func NewMemoryStore(devices ...inventory.Device) *MemoryStore {
	m := &MemoryStore{
		devices: make(map[int64]inventory.Device, len(devices)),
		users:   make(map[string]inventory.User),
	}
	for _, d := range devices {
		m.PutDevice(d)
	}
	return m
}

// PutDevice inserts or replaces a device.
func (m *MemoryStore) PutDevice(d inventory.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[d.ID]; !exists {
		m.order = append(m.order, d.ID)
	}
	m.devices[d.ID] = d
}

// DeleteDevice removes a device. Unknown ids are ignored.
func (m *MemoryStore) DeleteDevice(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[id]; !exists {
		return
	}
	delete(m.devices, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// PutRouter appends a router row.
func (m *MemoryStore) PutRouter(r inventory.Router) {
	m.mu.Lock()
	m.routers = append(m.routers, r)
	m.mu.Unlock()
}

// PutPrinter appends a printer row.
func (m *MemoryStore) PutPrinter(p inventory.Printer) {
	m.mu.Lock()
	m.printers = append(m.printers, p)
	m.mu.Unlock()
}

// PutBox appends a box row.
func (m *MemoryStore) PutBox(b inventory.Box) {
	m.mu.Lock()
	m.boxes = append(m.boxes, b)
	m.mu.Unlock()
}

// ListDevices returns a copy of all devices in insertion order.
func (m *MemoryStore) ListDevices(ctx context.Context) ([]inventory.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]inventory.Device, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.devices[id])
	}
	return out, nil
}

// GetDevice returns the device with the given id.
func (m *MemoryStore) GetDevice(_ context.Context, id int64) (inventory.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[id]
	if !ok {
		return inventory.Device{}, ErrNotFound
	}
	return d, nil
}

// UpdateStatus sets the status of a device.
func (m *MemoryStore) UpdateStatus(_ context.Context, id int64, status inventory.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = status
	m.devices[id] = d
	return nil
}

// ListRouters returns routers with their device columns refreshed.
func (m *MemoryStore) ListRouters(_ context.Context) ([]inventory.Router, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]inventory.Router, 0, len(m.routers))
	for _, r := range m.routers {
		if d, ok := m.devices[r.DeviceID]; ok {
			r.Address, r.Name, r.Status = d.Address, d.Name, d.Status
		}
		out = append(out, r)
	}
	return out, nil
}

// ListPrinters returns printers with their device columns refreshed.
func (m *MemoryStore) ListPrinters(_ context.Context) ([]inventory.Printer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]inventory.Printer, 0, len(m.printers))
	for _, p := range m.printers {
		if d, ok := m.devices[p.DeviceID]; ok {
			p.Address, p.Sector, p.Status = d.Address, d.Sector, d.Status
		}
		out = append(out, p)
	}
	return out, nil
}

// SetPrinterOnline sets the online flag of a printer row.
func (m *MemoryStore) SetPrinterOnline(_ context.Context, printerID int64, online int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.printers {
		if m.printers[i].ID == printerID {
			m.printers[i].Online = online
			return nil
		}
	}
	return ErrNotFound
}

// ListBoxes returns boxes with their device columns refreshed.
func (m *MemoryStore) ListBoxes(_ context.Context) ([]inventory.Box, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]inventory.Box, 0, len(m.boxes))
	for _, b := range m.boxes {
		out = append(out, m.joinBox(b))
	}
	return out, nil
}

// SetBoxPowerStatus sets the power status of the box attached to deviceID.
func (m *MemoryStore) SetBoxPowerStatus(_ context.Context, deviceID int64, powerStatus int) (inventory.Box, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.boxes {
		if m.boxes[i].DeviceID == deviceID {
			m.boxes[i].PowerStatus = powerStatus
			return m.joinBox(m.boxes[i]), nil
		}
	}
	return inventory.Box{}, ErrNotFound
}

// joinBox copies device columns onto b. Caller must hold m.mu.
func (m *MemoryStore) joinBox(b inventory.Box) inventory.Box {
	if d, ok := m.devices[b.DeviceID]; ok {
		b.Address, b.Name, b.Status = d.Address, d.Name, d.Status
	}
	return b
}

// CreateUser inserts a user with a generated id.
func (m *MemoryStore) CreateUser(_ context.Context, username, passwordHash string) (inventory.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[username]; exists {
		return inventory.User{}, ErrConflict
	}
	m.nextUser++
	u := inventory.User{ID: m.nextUser, Username: username, PasswordHash: passwordHash}
	m.users[username] = u
	return u, nil
}

// UserByUsername looks a user up by name.
func (m *MemoryStore) UserByUsername(_ context.Context, username string) (inventory.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[username]
	if !ok {
		return inventory.User{}, ErrNotFound
	}
	return u, nil
}
