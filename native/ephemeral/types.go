package ephemeral

import (
	"errors"
	"math/big"
)

// MaxPayments caps the number of distinct-asset payments a single account can
// hold. The cap bounds sweep enumeration cost.
const MaxPayments = 10

// Status represents the lifecycle states of an ephemeral account. Swept and
// Expired are terminal and mutually exclusive.
type Status uint8

const (
	StatusActive Status = iota
	StatusPaymentReceived
	StatusSwept
	StatusExpired
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaymentReceived, StatusSwept, StatusExpired:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPaymentReceived:
		return "payment_received"
	case StatusSwept:
		return "swept"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status permanently closes the account.
func (s Status) Terminal() bool {
	return s == StatusSwept || s == StatusExpired
}

var (
	ErrAlreadyInitialized = errors.New("ephemeral: already initialized")
	ErrNotInitialized     = errors.New("ephemeral: not initialized")
	ErrInvalidExpiry      = errors.New("ephemeral: expiry must be in the future")
	ErrInvalidAmount      = errors.New("ephemeral: invalid amount")
	ErrDuplicateAsset     = errors.New("ephemeral: asset already recorded")
	ErrTooManyPayments    = errors.New("ephemeral: payment limit reached")
	ErrAlreadySwept       = errors.New("ephemeral: already swept")
	ErrNoPaymentReceived  = errors.New("ephemeral: no payment received")
	ErrAccountExpired     = errors.New("ephemeral: account expired")
	ErrUnauthorized       = errors.New("ephemeral: unauthorized")
	ErrNotExpired         = errors.New("ephemeral: not expired")
	ErrInvalidStatus      = errors.New("ephemeral: invalid status")
)

// Account captures the immutable restrictions and runtime status of a single
// ephemeral escrow account. Creator, ExpiryLedger and RecoveryAddress are set
// once during initialization and never change; SweptTo is recorded when a
// sweep or expiry transition commits.
type Account struct {
	Creator         [20]byte
	ExpiryLedger    uint64
	RecoveryAddress [20]byte
	Status          Status
	SweptTo         *[20]byte
}

// Clone returns a deep copy of the account so callers can safely mutate the
// copy without affecting the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.SweptTo != nil {
		dest := *a.SweptTo
		clone.SweptTo = &dest
	}
	return &clone
}

// Payment records a single inbound payment. At most one payment per asset is
// ever stored; payments are never removed individually.
type Payment struct {
	Asset      [20]byte
	Amount     *big.Int
	ReceivedAt uint64
}

// Clone returns a deep copy of the payment.
func (p Payment) Clone() Payment {
	clone := p
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return clone
}

// ReserveState tracks the base-reserve obligation of an account. Remaining is
// the total still owed to the terminal destination; Available is the portion
// currently liquid. Available may lag behind Remaining when the collateral
// pool is only partially funded, which is why reclamation supports multiple
// installments.
type ReserveState struct {
	Remaining   *big.Int
	Available   *big.Int
	Reclaimed   bool
	LastSweepID uint64
	EventCount  uint32
	LastEvent   *ReserveReclaimed
}

// Clone returns a deep copy of the reserve state.
func (r *ReserveState) Clone() *ReserveState {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Remaining = cloneBigInt(r.Remaining)
	clone.Available = cloneBigInt(r.Available)
	clone.LastEvent = r.LastEvent.Clone()
	return &clone
}

// ReserveReclaimed is the audit record stored and emitted for every reclaim
// attempt, including idempotent zero-amount reclaims after full reclamation.
// Only the most recent record is retained in storage; the full history must be
// reconstructed from emitted events.
type ReserveReclaimed struct {
	Destination      [20]byte
	Amount           *big.Int
	SweepID          uint64
	FullyReclaimed   bool
	RemainingReserve *big.Int
}

// Clone returns a deep copy of the reclaim record.
func (r *ReserveReclaimed) Clone() *ReserveReclaimed {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Amount = cloneBigInt(r.Amount)
	clone.RemainingReserve = cloneBigInt(r.RemainingReserve)
	return &clone
}

// AccountInfo aggregates the full externally visible view of an account.
type AccountInfo struct {
	Creator         [20]byte
	Status          Status
	ExpiryLedger    uint64
	RecoveryAddress [20]byte
	PaymentReceived bool
	PaymentCount    int
	Payments        []Payment
	SweptTo         *[20]byte
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
