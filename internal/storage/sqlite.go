package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/jlauha/seuranta/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteStorage implements Storage with a SQLite backend.
type SQLiteStorage struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// NewStorage creates a SQLite-backed storage under dataDir.
func NewStorage(dataDir string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, "seuranta.db")

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ss := &SQLiteStorage{
		db:   db,
		path: dbPath,
	}

	if err := ss.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return ss, nil
}

func (ss *SQLiteStorage) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}

	_, err = ss.db.Exec(string(schema))
	return err
}

// Close closes the database connection.
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

// CreateEntity inserts a new tracked entity. A duplicate name yields
// ErrNameConflict.
func (ss *SQLiteStorage) CreateEntity(entity *model.TrackedEntity) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	_, err := ss.db.Exec(`
		INSERT INTO entities (id, name, created_at)
		VALUES (?, ?, ?)
	`, entity.ID, entity.Name, entity.CreatedAt)
	if err != nil {
		if conflictErr := mapConflict(err); conflictErr != nil {
			return conflictErr
		}
		return fmt.Errorf("inserting entity: %w", err)
	}

	return nil
}

// GetEntity retrieves a tracked entity by ID, including its devices.
func (ss *SQLiteStorage) GetEntity(id string) (*model.TrackedEntity, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	return ss.queryEntity("SELECT id, name, created_at FROM entities WHERE id = ?", id)
}

// GetEntityByName retrieves a tracked entity by exact name, including its
// devices.
func (ss *SQLiteStorage) GetEntityByName(name string) (*model.TrackedEntity, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	return ss.queryEntity("SELECT id, name, created_at FROM entities WHERE name = ?", name)
}

// ListEntities returns all tracked entities ordered by name, without their
// devices.
func (ss *SQLiteStorage) ListEntities() ([]model.TrackedEntity, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.db.Query("SELECT id, name, created_at FROM entities ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// RenameEntity updates an entity's name. A duplicate name yields
// ErrNameConflict.
func (ss *SQLiteStorage) RenameEntity(id, name string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result, err := ss.db.Exec("UPDATE entities SET name = ? WHERE id = ?", name, id)
	if err != nil {
		if conflictErr := mapConflict(err); conflictErr != nil {
			return conflictErr
		}
		return fmt.Errorf("renaming entity: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrEntityNotFound
	}

	return nil
}

// CreateDevice inserts a new device. A duplicate hardware address yields
// ErrMACConflict.
func (ss *SQLiteStorage) CreateDevice(device *model.Device) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	_, err := ss.db.Exec(`
		INSERT INTO devices (id, mac, hostname, entity_id)
		VALUES (?, ?, ?, ?)
	`, device.ID, device.MAC, device.Hostname, device.EntityID)
	if err != nil {
		if conflictErr := mapConflict(err); conflictErr != nil {
			return conflictErr
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// GetDeviceByMAC retrieves the device with the given hardware address.
func (ss *SQLiteStorage) GetDeviceByMAC(mac string) (*model.Device, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var d model.Device
	err := ss.db.QueryRow(`
		SELECT id, mac, hostname, entity_id FROM devices WHERE mac = ?
	`, mac).Scan(&d.ID, &d.MAC, &d.Hostname, &d.EntityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}

	return &d, nil
}

// ListDevices returns all devices ordered by hardware address.
func (ss *SQLiteStorage) ListDevices() ([]model.Device, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.db.Query("SELECT id, mac, hostname, entity_id FROM devices ORDER BY mac")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	return scanDevices(rows)
}

// ReassignDevice repoints a device's owning entity.
func (ss *SQLiteStorage) ReassignDevice(deviceID, entityID string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result, err := ss.db.Exec("UPDATE devices SET entity_id = ? WHERE id = ?", entityID, deviceID)
	if err != nil {
		return fmt.Errorf("reassigning device: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// EntityNamesByMACs returns the sorted names of entities owning a device
// whose MAC is in macs. Duplicates collapse since names are unique.
func (ss *SQLiteStorage) EntityNamesByMACs(macs []string) ([]string, error) {
	if len(macs) == 0 {
		return []string{}, nil
	}

	ss.mu.RLock()
	defer ss.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(macs)), ",")
	query := fmt.Sprintf(`
		SELECT DISTINCT e.name
		FROM entities e
		INNER JOIN devices d ON d.entity_id = e.id
		WHERE d.mac IN (%s)
		ORDER BY e.name
	`, placeholders)

	args := make([]interface{}, len(macs))
	for i, mac := range macs {
		args[i] = mac
	}

	rows, err := ss.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying present names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning name: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// GetDatabasePath returns the database file path.
func (ss *SQLiteStorage) GetDatabasePath() string {
	return ss.path
}

// Helper functions

func (ss *SQLiteStorage) queryEntity(query string, arg interface{}) (*model.TrackedEntity, error) {
	var e model.TrackedEntity
	err := ss.db.QueryRow(query, arg).Scan(&e.ID, &e.Name, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying entity: %w", err)
	}

	if err := ss.loadEntityDevices(&e); err != nil {
		return nil, err
	}

	return &e, nil
}

func (ss *SQLiteStorage) loadEntityDevices(entity *model.TrackedEntity) error {
	rows, err := ss.db.Query(`
		SELECT id, mac, hostname, entity_id FROM devices WHERE entity_id = ? ORDER BY mac
	`, entity.ID)
	if err != nil {
		return fmt.Errorf("querying entity devices: %w", err)
	}
	defer rows.Close()

	devices, err := scanDevices(rows)
	if err != nil {
		return err
	}

	entity.Devices = devices
	return nil
}

func scanEntities(rows *sql.Rows) ([]model.TrackedEntity, error) {
	var entities []model.TrackedEntity

	for rows.Next() {
		var e model.TrackedEntity
		if err := rows.Scan(&e.ID, &e.Name, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		entities = append(entities, e)
	}

	return entities, rows.Err()
}

func scanDevices(rows *sql.Rows) ([]model.Device, error) {
	var devices []model.Device

	for rows.Next() {
		var d model.Device
		if err := rows.Scan(&d.ID, &d.MAC, &d.Hostname, &d.EntityID); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, d)
	}

	return devices, rows.Err()
}

// mapConflict translates SQLite UNIQUE violations into the storage-level
// conflict errors, or returns nil for anything else.
func mapConflict(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	switch {
	case strings.Contains(msg, "entities.name"):
		return ErrNameConflict
	case strings.Contains(msg, "devices.mac"):
		return ErrMACConflict
	}
	return nil
}
