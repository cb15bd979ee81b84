package model

import (
	"time"
)

// NameMaxLength is the upper bound on a tracked entity's display name after
// sanitization.
const NameMaxLength = 20

// TrackedEntity is the persistent named identity a person is mapped to.
// Names are unique after sanitization.
type TrackedEntity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Devices   []Device  `json:"devices,omitempty"`
}

// Device is a persisted record of one hardware address and the entity that
// currently claims it. The hardware address is globally unique; the owning
// entity is reassignable.
type Device struct {
	ID       string `json:"id"`
	MAC      string `json:"mac"`
	Hostname string `json:"hostname,omitempty"`
	EntityID string `json:"entity_id"`
}
