// Package reserve stores and exposes the base-reserve configuration consumed
// by ephemeral accounts at initialization time. Every account must keep a
// fixed collateral overhead (the base reserve) alongside user payments; this
// registry answers one question: what is the configured base reserve amount.
package reserve

import (
	"errors"
	"math/big"

	"bridgelet/core/events"
)

// MaxBaseReserve is a safety ceiling that catches operator mistakes such as
// configuring a value in whole units instead of the smallest denomination.
// Raise it if the hosting network ever increases its base reserve beyond this
// threshold.
var MaxBaseReserve = big.NewInt(100_000_000_000)

var (
	ErrAlreadyInitialized = errors.New("reserve: already initialized")
	ErrNotInitialized     = errors.New("reserve: not initialized")
	ErrUnauthorized       = errors.New("reserve: unauthorized")
	ErrInvalidAmount      = errors.New("reserve: amount must be positive")
	ErrAmountTooLarge     = errors.New("reserve: amount exceeds ceiling")
	ErrReserveNotSet      = errors.New("reserve: base reserve not configured")

	errNilState = errors.New("reserve registry: state not configured")
)

type registryState interface {
	ReserveAdminGet() ([20]byte, bool)
	ReserveAdminPut(admin [20]byte) error
	BaseReserveGet() (*big.Int, bool)
	BaseReservePut(amount *big.Int) error
}

// Registry guards the single global base-reserve value behind admin access
// control. It is initialized once; afterwards only the stored admin may
// update the value. Reads never mutate the stored configuration.
type Registry struct {
	state   registryState
	emitter events.Emitter
}

// NewRegistry creates a registry with a no-op emitter.
func NewRegistry() *Registry {
	return &Registry{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Initialize stores the admin address. Must be called exactly once before any
// state-changing operation; subsequent calls are rejected to prevent admin
// takeover. The caller must already be authenticated as the admin principal.
func (r *Registry) Initialize(admin [20]byte) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if _, ok := r.state.ReserveAdminGet(); ok {
		return ErrAlreadyInitialized
	}
	if err := r.state.ReserveAdminPut(admin); err != nil {
		return err
	}
	r.emitter.Emit(newInitializedEvent(admin))
	return nil
}

// SetBaseReserve stores a new base reserve amount. Only the admin recorded at
// initialization may call it; each successful call overwrites the previous
// value and emits an update event for off-chain auditability.
func (r *Registry) SetBaseReserve(caller [20]byte, amount *big.Int) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	admin, ok := r.state.ReserveAdminGet()
	if !ok {
		return ErrNotInitialized
	}
	if caller != admin {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(MaxBaseReserve) > 0 {
		return ErrAmountTooLarge
	}
	oldValue := big.NewInt(0)
	if existing, ok := r.state.BaseReserveGet(); ok && existing != nil {
		oldValue = new(big.Int).Set(existing)
	}
	if err := r.state.BaseReservePut(new(big.Int).Set(amount)); err != nil {
		return err
	}
	r.emitter.Emit(newUpdatedEvent(oldValue, amount, admin))
	return nil
}

// BaseReserve returns the configured amount and whether one has been stored.
func (r *Registry) BaseReserve() (*big.Int, bool) {
	if r == nil || r.state == nil {
		return nil, false
	}
	amount, ok := r.state.BaseReserveGet()
	if !ok || amount == nil {
		return nil, false
	}
	return new(big.Int).Set(amount), true
}

// RequireBaseReserve returns the configured amount or ErrReserveNotSet. Use
// it when the caller cannot proceed without a configured reserve, e.g. during
// account initialization.
func (r *Registry) RequireBaseReserve() (*big.Int, error) {
	amount, ok := r.BaseReserve()
	if !ok {
		return nil, ErrReserveNotSet
	}
	return amount, nil
}

// HasBaseReserve reports whether a base reserve has been stored. Cheaper than
// BaseReserve when only presence matters.
func (r *Registry) HasBaseReserve() bool {
	if r == nil || r.state == nil {
		return false
	}
	_, ok := r.state.BaseReserveGet()
	return ok
}

// Admin returns the admin address, if the registry has been initialized.
func (r *Registry) Admin() ([20]byte, bool) {
	if r == nil || r.state == nil {
		return [20]byte{}, false
	}
	return r.state.ReserveAdminGet()
}
