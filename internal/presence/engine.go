package presence

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/jlauha/seuranta/internal/lease"
	"github.com/jlauha/seuranta/internal/log"
	"github.com/jlauha/seuranta/internal/model"
	"github.com/jlauha/seuranta/internal/storage"
)

// ErrEmptyName reports a submitted name that sanitized down to nothing. It
// is a validation failure, distinct from the storage conflict errors.
var ErrEmptyName = errors.New("name is empty after sanitization")

// Engine associates lease-holding devices with tracked entities. It is
// constructed once by the composition root and shared by the HTTP layer and
// the poll cycle hook.
type Engine struct {
	store storage.Storage
	cache *lease.Cache
}

// NewEngine creates a presence engine over the given storage and lease
// cache.
func NewEngine(store storage.Storage, cache *lease.Cache) *Engine {
	return &Engine{store: store, cache: cache}
}

// Resolve maps a requester's network address to its tracked entity:
// address to lease, lease to device by MAC, device to owning entity. Any
// missing link yields (nil, nil) - an unknown requester is not an error.
func (e *Engine) Resolve(remoteAddr string) (*model.TrackedEntity, error) {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}

	ls, ok := e.cache.LookupByAddress(host)
	if !ok {
		return nil, nil
	}

	device, err := e.store.GetDeviceByMAC(ls.MAC)
	if errors.Is(err, storage.ErrDeviceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving device: %w", err)
	}

	entity, err := e.store.GetEntity(device.EntityID)
	if err != nil {
		return nil, fmt.Errorf("resolving entity: %w", err)
	}

	return entity, nil
}

// ResolveLease returns the lease for a requester's network address, if any.
func (e *Engine) ResolveLease(remoteAddr string) (model.Lease, bool) {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	return e.cache.LookupByAddress(host)
}

// Reconcile performs the idempotent create-or-merge of a tracked entity and
// its device association. The name is sanitized before any lookup; an
// existing entity with that name is reused, otherwise one is created. If a
// lease is supplied, the device with that MAC is repointed to the target
// entity, or created under it. The second return reports whether the entity
// was newly created, as opposed to merged into.
func (e *Engine) Reconcile(name string, ls *model.Lease) (*model.TrackedEntity, bool, error) {
	sanitized := SanitizeName(name)
	if sanitized == "" {
		return nil, false, ErrEmptyName
	}

	entity, created, err := e.ensureEntity(sanitized)
	if err != nil {
		return nil, false, err
	}

	if ls != nil {
		if err := e.attachDevice(entity, ls); err != nil {
			return nil, false, err
		}
	} else {
		log.Warn("Reconciling entity with no device association", "name", sanitized)
	}

	full, err := e.store.GetEntity(entity.ID)
	if err != nil {
		return nil, false, err
	}

	return full, created, nil
}

// Rename changes the resolved entity's name. The target is the entity by id,
// never by name lookup, so a rename cannot take over another entity.
func (e *Engine) Rename(entityID, name string) (*model.TrackedEntity, error) {
	sanitized := SanitizeName(name)
	if sanitized == "" {
		return nil, ErrEmptyName
	}

	if err := e.store.RenameEntity(entityID, sanitized); err != nil {
		return nil, err
	}

	return e.store.GetEntity(entityID)
}

// PresentNames computes the names of entities currently online by
// intersecting the snapshot's hardware addresses with persisted devices.
// Recomputed in full on every call; lease sets are small and replaced
// wholesale anyway.
func (e *Engine) PresentNames() ([]string, error) {
	macs := e.cache.HardwareAddresses()
	if len(macs) == 0 {
		return []string{}, nil
	}

	return e.store.EntityNamesByMACs(macs)
}

// ensureEntity looks up an entity by sanitized name, creating it if absent.
// A creation race on the name is resolved by re-reading once: losing the
// insert means someone else created it, so use theirs. The second return
// reports whether the entity was created here.
func (e *Engine) ensureEntity(name string) (*model.TrackedEntity, bool, error) {
	entity, err := e.store.GetEntityByName(name)
	if err == nil {
		return entity, false, nil
	}
	if !errors.Is(err, storage.ErrEntityNotFound) {
		return nil, false, fmt.Errorf("looking up entity: %w", err)
	}

	entity = &model.TrackedEntity{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	err = e.store.CreateEntity(entity)
	if errors.Is(err, storage.ErrNameConflict) {
		log.Debug("Lost entity creation race, reusing winner", "name", name)
		winner, err := e.store.GetEntityByName(name)
		if err != nil {
			return nil, false, err
		}
		return winner, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	log.Info("Tracked entity created", "id", entity.ID, "name", name)
	return entity, true, nil
}

// attachDevice binds the lease's hardware address to the target entity,
// repointing an existing device or creating a new one.
func (e *Engine) attachDevice(entity *model.TrackedEntity, ls *model.Lease) error {
	device, err := e.store.GetDeviceByMAC(ls.MAC)
	if err == nil {
		if device.EntityID == entity.ID {
			return nil
		}
		log.Info("Reassigning device", "mac", device.MAC, "entity_id", entity.ID)
		return e.store.ReassignDevice(device.ID, entity.ID)
	}
	if !errors.Is(err, storage.ErrDeviceNotFound) {
		return fmt.Errorf("looking up device: %w", err)
	}

	device = &model.Device{
		ID:       uuid.New().String(),
		MAC:      ls.MAC,
		Hostname: ls.Hostname,
		EntityID: entity.ID,
	}

	err = e.store.CreateDevice(device)
	if errors.Is(err, storage.ErrMACConflict) {
		// lost a creation race on the MAC; the device exists now, repoint it
		existing, getErr := e.store.GetDeviceByMAC(ls.MAC)
		if getErr != nil {
			return getErr
		}
		return e.store.ReassignDevice(existing.ID, entity.ID)
	}
	if err != nil {
		return err
	}

	log.Info("Device registered", "mac", device.MAC, "entity_id", entity.ID)
	return nil
}
