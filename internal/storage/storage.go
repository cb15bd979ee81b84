package storage

import (
	"errors"

	"github.com/jlauha/seuranta/internal/model"
)

var (
	ErrEntityNotFound = errors.New("tracked entity not found")
	ErrDeviceNotFound = errors.New("device not found")

	// ErrNameConflict and ErrMACConflict report uniqueness violations. They
	// are distinct from validation failures so callers can tell "your name
	// is invalid" apart from "someone already claimed this".
	ErrNameConflict = errors.New("entity name already taken")
	ErrMACConflict  = errors.New("hardware address already registered")
)

// Storage defines the persistence operations for tracked entities and their
// devices.
type Storage interface {
	CreateEntity(entity *model.TrackedEntity) error
	GetEntity(id string) (*model.TrackedEntity, error)
	GetEntityByName(name string) (*model.TrackedEntity, error)
	ListEntities() ([]model.TrackedEntity, error)
	RenameEntity(id, name string) error

	CreateDevice(device *model.Device) error
	GetDeviceByMAC(mac string) (*model.Device, error)
	ListDevices() ([]model.Device, error)
	ReassignDevice(deviceID, entityID string) error

	// EntityNamesByMACs returns the sorted, de-duplicated names of entities
	// owning a device whose MAC is in macs.
	EntityNamesByMACs(macs []string) ([]string, error)

	Close() error
}
