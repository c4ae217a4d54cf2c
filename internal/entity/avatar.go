package entity

import "sync/atomic"

// ID identifies a networked entity for the lifetime of the process.
type ID uint32

const (
	// MaxHealth is the health every avatar spawns with.
	MaxHealth = 100
	// DefaultUsername is shown for players that never picked a name.
	DefaultUsername = "Unknown"
)

// Sequence mints entity ids. The zero value starts at 1.
type Sequence struct {
	next atomic.Uint32
}

// Next returns a fresh id.
func (s *Sequence) Next() ID {
	return ID(s.next.Add(1))
}

// Avatar is the in-room entity representing one member.
type Avatar struct {
	ID        ID
	RoomID    uint64
	OwnerID   string
	Username  string
	Health    int
	MaxHealth int

	canTakeDamage bool
	eliminated    bool
}

// NewAvatar spawns a full-health avatar with damage disabled.
func NewAvatar(id ID, roomID uint64, ownerID, username string) *Avatar {
	if username == "" {
		username = DefaultUsername
	}
	return &Avatar{
		ID:        id,
		RoomID:    roomID,
		OwnerID:   ownerID,
		Username:  username,
		Health:    MaxHealth,
		MaxHealth: MaxHealth,
	}
}

// CanTakeDamage reports whether damage is currently applied.
func (a *Avatar) CanTakeDamage() bool {
	return a != nil && a.canTakeDamage && !a.eliminated
}

// SetCanTakeDamage toggles the damage gate.
func (a *Avatar) SetCanTakeDamage(enabled bool) {
	if a == nil {
		return
	}
	a.canTakeDamage = enabled
}

// Eliminated reports whether health reached zero.
func (a *Avatar) Eliminated() bool {
	return a != nil && a.eliminated
}

// DamageResult describes the outcome of TakeDamage.
type DamageResult struct {
	Applied    bool
	Health     int
	Eliminated bool
}

// TakeDamage subtracts amount from health, clamping at zero. Damage is ignored
// while the gate is closed, for non-positive amounts, and after elimination.
// Eliminated is only true on the hit that brought health to zero.
func (a *Avatar) TakeDamage(amount int) DamageResult {
	if !a.CanTakeDamage() || amount <= 0 {
		if a == nil {
			return DamageResult{}
		}
		return DamageResult{Health: a.Health}
	}
	a.Health -= amount
	if a.Health < 0 {
		a.Health = 0
	}
	result := DamageResult{Applied: true, Health: a.Health}
	if a.Health == 0 {
		a.eliminated = true
		result.Eliminated = true
	}
	return result
}

// EntityID implements visibility.Networked.
func (a *Avatar) EntityID() ID {
	return a.ID
}

// OwningRoom implements visibility.Networked.
func (a *Avatar) OwningRoom() uint64 {
	return a.RoomID
}
