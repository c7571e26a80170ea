package ephemeral

import (
	"errors"
	"math/big"
	"time"

	"bridgelet/core/events"
)

var (
	errNilState         = errors.New("ephemeral engine: state not configured")
	errNilReserveConfig = errors.New("ephemeral engine: reserve config not configured")
)

type engineState interface {
	EphemeralExists(id [20]byte) bool
	EphemeralGet(id [20]byte) (*Account, bool)
	EphemeralPut(id [20]byte, acct *Account) error
	EphemeralPayments(id [20]byte) ([]Payment, error)
	EphemeralPaymentGet(id [20]byte, asset [20]byte) (*Payment, bool)
	EphemeralPaymentAdd(id [20]byte, payment Payment) error
	EphemeralReserveGet(id [20]byte) (*ReserveState, bool)
	EphemeralReservePut(id [20]byte, reserve *ReserveState) error
}

// SweepAuthorizer validates that an off-chain authorization covers a sweep to
// the requested destination. The verification scheme is supplied by the host
// environment; the engine only enforces the contract that a non-nil error
// blocks the sweep.
type SweepAuthorizer interface {
	Authorize(destination [20]byte, signature []byte) error
}

// AcceptAllAuthorizer approves every sweep request. It mirrors the behaviour
// of deployments that delegate signature checks entirely to the off-chain
// system and is the engine default.
type AcceptAllAuthorizer struct{}

// Authorize implements SweepAuthorizer.
func (AcceptAllAuthorizer) Authorize([20]byte, []byte) error { return nil }

// ReserveConfig supplies the globally configured base reserve consumed once
// per account at initialization time.
type ReserveConfig interface {
	RequireBaseReserve() (*big.Int, error)
}

// Engine wires the ephemeral-account business logic with external state,
// authorization and event emitters. The hosting environment serializes all
// invocations against a given account, so the engine performs no locking of
// its own.
type Engine struct {
	state   engineState
	emitter events.Emitter
	auth    SweepAuthorizer
	reserve ReserveConfig
	seqFn   func() uint64
	nowFn   func() uint64
}

// NewEngine creates an engine with a no-op emitter and an accept-all sweep
// authorizer. Callers override collaborators via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		auth:    AcceptAllAuthorizer{},
		seqFn:   func() uint64 { return uint64(time.Now().Unix()) },
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetReserveConfig configures the registry supplying the base reserve amount.
func (e *Engine) SetReserveConfig(cfg ReserveConfig) { e.reserve = cfg }

// SetAuthorizer configures the sweep authorization hook. Passing nil resets
// the hook to the accept-all default.
func (e *Engine) SetAuthorizer(auth SweepAuthorizer) {
	if auth == nil {
		e.auth = AcceptAllAuthorizer{}
		return
	}
	e.auth = auth
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetSequenceFunc overrides the logical clock source. Primarily intended for
// tests and for hosts that drive the engine from a ledger sequence counter.
func (e *Engine) SetSequenceFunc(seq func() uint64) {
	if seq == nil {
		e.seqFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.seqFn = seq
}

// SetNowFunc overrides the wall-clock timestamp source used for payment
// records.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *accountEvent) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(*event)
}

func (e *Engine) sequence() uint64 {
	if e == nil || e.seqFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.seqFn()
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

func (e *Engine) loadAccount(id [20]byte) (*Account, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acct, ok := e.state.EphemeralGet(id)
	if !ok {
		return nil, ErrNotInitialized
	}
	return acct, nil
}

func (e *Engine) loadReserve(id [20]byte) (*ReserveState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	reserve, ok := e.state.EphemeralReserveGet(id)
	if !ok {
		return nil, ErrNotInitialized
	}
	return reserve, nil
}

// Initialize performs the one-time setup of an ephemeral account. The caller
// must already be authenticated as the creator; expiry must be strictly after
// the current ledger sequence. The base reserve obligation is seeded from the
// configured reserve registry.
func (e *Engine) Initialize(id, creator [20]byte, expiryLedger uint64, recovery [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.state.EphemeralExists(id) {
		return ErrAlreadyInitialized
	}
	if expiryLedger <= e.sequence() {
		return ErrInvalidExpiry
	}
	if e.reserve == nil {
		return errNilReserveConfig
	}
	baseReserve, err := e.reserve.RequireBaseReserve()
	if err != nil {
		return err
	}
	if baseReserve == nil || baseReserve.Sign() < 0 {
		return ErrInvalidAmount
	}
	acct := &Account{
		Creator:         creator,
		ExpiryLedger:    expiryLedger,
		RecoveryAddress: recovery,
		Status:          StatusActive,
	}
	if err := e.state.EphemeralPut(id, acct); err != nil {
		return err
	}
	reserve := &ReserveState{
		Remaining: new(big.Int).Set(baseReserve),
		Available: new(big.Int).Set(baseReserve),
		Reclaimed: baseReserve.Sign() == 0,
	}
	if err := e.state.EphemeralReservePut(id, reserve); err != nil {
		return err
	}
	e.emit(newAccountCreatedEvent(id, creator, expiryLedger))
	return nil
}

// RecordPayment stores an inbound payment for the provided asset. Each asset
// may be recorded at most once and the account holds at most MaxPayments
// distinct assets. The first payment transitions the account from Active to
// PaymentReceived.
func (e *Engine) RecordPayment(id, asset [20]byte, amount *big.Int) error {
	acct, err := e.loadAccount(id)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, exists := e.state.EphemeralPaymentGet(id, asset); exists {
		return ErrDuplicateAsset
	}
	payments, err := e.state.EphemeralPayments(id)
	if err != nil {
		return err
	}
	if len(payments) >= MaxPayments {
		return ErrTooManyPayments
	}
	payment := Payment{
		Asset:      asset,
		Amount:     new(big.Int).Set(amount),
		ReceivedAt: e.now(),
	}
	if err := e.state.EphemeralPaymentAdd(id, payment); err != nil {
		return err
	}
	if len(payments) == 0 {
		acct.Status = StatusPaymentReceived
		if err := e.state.EphemeralPut(id, acct); err != nil {
			return err
		}
		e.emit(newPaymentReceivedEvent(id, asset, amount))
		return nil
	}
	e.emit(newMultiPaymentReceivedEvent(id, asset, amount))
	return nil
}

// Sweep transfers the account's holdings to the destination. The terminal
// status and destination are committed before any value movement so a
// reentrant or repeated call is rejected at the AlreadySwept guard rather
// than double-executing the transition. The reserve reclaim toward the
// destination runs after the sweep commit and may be completed in later
// installments via ReclaimReserve.
func (e *Engine) Sweep(id, destination [20]byte, signature []byte) error {
	acct, err := e.loadAccount(id)
	if err != nil {
		return err
	}
	if acct.Status == StatusSwept {
		return ErrAlreadySwept
	}
	payments, err := e.state.EphemeralPayments(id)
	if err != nil {
		return err
	}
	if len(payments) == 0 {
		return ErrNoPaymentReceived
	}
	if e.sequence() >= acct.ExpiryLedger {
		return ErrAccountExpired
	}
	if err := e.auth.Authorize(destination, signature); err != nil {
		return err
	}

	// Commit the terminal transition before reclaiming any value.
	dest := destination
	acct.Status = StatusSwept
	acct.SweptTo = &dest
	if err := e.state.EphemeralPut(id, acct); err != nil {
		return err
	}

	sweepID := e.sequence()
	reserve, err := e.loadReserve(id)
	if err != nil {
		return err
	}
	reserve.LastSweepID = sweepID
	if err := e.state.EphemeralReservePut(id, reserve); err != nil {
		return err
	}

	e.emit(newSweepExecutedEvent(id, destination, payments))

	if _, err := e.reclaimReserveTo(id, destination, sweepID); err != nil {
		return err
	}
	return nil
}

// Expire closes the account to its recovery address once the expiry boundary
// has been reached. Any recorded payments are summed for the expiry
// notification; the reserve is reclaimed toward the recovery address.
func (e *Engine) Expire(id [20]byte) error {
	acct, err := e.loadAccount(id)
	if err != nil {
		return err
	}
	if acct.Status.Terminal() {
		return ErrInvalidStatus
	}
	if e.sequence() < acct.ExpiryLedger {
		return ErrNotExpired
	}
	recovery := acct.RecoveryAddress

	acct.Status = StatusExpired
	acct.SweptTo = &recovery
	if err := e.state.EphemeralPut(id, acct); err != nil {
		return err
	}

	payments, err := e.state.EphemeralPayments(id)
	if err != nil {
		return err
	}
	total := big.NewInt(0)
	for _, payment := range payments {
		if payment.Amount == nil || payment.Amount.Sign() < 0 {
			return ErrInvalidAmount
		}
		total.Add(total, payment.Amount)
	}

	sweepID := e.sequence()
	reserve, err := e.loadReserve(id)
	if err != nil {
		return err
	}
	reserve.LastSweepID = sweepID
	if err := e.state.EphemeralReservePut(id, reserve); err != nil {
		return err
	}

	reclaimed, err := e.reclaimReserveTo(id, recovery, sweepID)
	if err != nil {
		return err
	}
	e.emit(newAccountExpiredEvent(id, recovery, total, reclaimed))
	return nil
}

// ReclaimReserve releases outstanding base reserve for a terminal account
// toward its recorded destination. Safe to call repeatedly: once the reserve
// is fully reclaimed, subsequent calls move nothing and only extend the audit
// trail. This supports topping up the collateral pool after a sweep or expiry
// that found it only partially liquid.
func (e *Engine) ReclaimReserve(id [20]byte) (*big.Int, error) {
	acct, err := e.loadAccount(id)
	if err != nil {
		return nil, err
	}
	if !acct.Status.Terminal() {
		return nil, ErrInvalidStatus
	}
	if acct.SweptTo == nil {
		return nil, ErrInvalidStatus
	}
	reserve, err := e.loadReserve(id)
	if err != nil {
		return nil, err
	}
	return e.reclaimReserveTo(id, *acct.SweptTo, reserve.LastSweepID)
}

// CreditAvailableReserve records additional liquid collateral for the
// account's reserve obligation. Used by the host when the backing pool is
// topped up between reclaim installments.
func (e *Engine) CreditAvailableReserve(id [20]byte, amount *big.Int) error {
	if _, err := e.loadAccount(id); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	reserve, err := e.loadReserve(id)
	if err != nil {
		return err
	}
	reserve.Available = new(big.Int).Add(cloneBigInt(reserve.Available), amount)
	return e.state.EphemeralReservePut(id, reserve)
}

func (e *Engine) reclaimReserveTo(id, destination [20]byte, sweepID uint64) (*big.Int, error) {
	reserve, err := e.loadReserve(id)
	if err != nil {
		return nil, err
	}
	remaining := cloneBigInt(reserve.Remaining)
	available := cloneBigInt(reserve.Available)
	if remaining.Sign() < 0 || available.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	if remaining.Sign() == 0 {
		reserve.Reclaimed = true
		record := &ReserveReclaimed{
			Destination:      destination,
			Amount:           big.NewInt(0),
			SweepID:          sweepID,
			FullyReclaimed:   true,
			RemainingReserve: big.NewInt(0),
		}
		if err := e.storeReserveEvent(id, reserve, record); err != nil {
			return nil, err
		}
		return big.NewInt(0), nil
	}

	reclaim := new(big.Int).Set(remaining)
	if available.Cmp(remaining) < 0 {
		reclaim.Set(available)
	}
	newAvailable := new(big.Int).Sub(available, reclaim)
	newRemaining := new(big.Int).Sub(remaining, reclaim)
	if newAvailable.Sign() < 0 || newRemaining.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	reserve.Available = newAvailable
	reserve.Remaining = newRemaining
	reserve.Reclaimed = newRemaining.Sign() == 0

	record := &ReserveReclaimed{
		Destination:      destination,
		Amount:           new(big.Int).Set(reclaim),
		SweepID:          sweepID,
		FullyReclaimed:   newRemaining.Sign() == 0,
		RemainingReserve: new(big.Int).Set(newRemaining),
	}
	if err := e.storeReserveEvent(id, reserve, record); err != nil {
		return nil, err
	}
	return reclaim, nil
}

func (e *Engine) storeReserveEvent(id [20]byte, reserve *ReserveState, record *ReserveReclaimed) error {
	nextCount := reserve.EventCount + 1
	if nextCount == 0 {
		return ErrInvalidAmount
	}
	reserve.EventCount = nextCount
	reserve.LastEvent = record.Clone()
	if err := e.state.EphemeralReservePut(id, reserve); err != nil {
		return err
	}
	e.emit(newReserveReclaimedEvent(id, record))
	return nil
}

// IsExpired reports whether the account's expiry boundary has been reached.
// An uninitialized account is never expired.
func (e *Engine) IsExpired(id [20]byte) bool {
	acct, err := e.loadAccount(id)
	if err != nil {
		return false
	}
	return e.sequence() >= acct.ExpiryLedger
}

// Status returns the current account status. A never-initialized account
// reports Active so external observers cannot distinguish it from a fresh
// account.
func (e *Engine) Status(id [20]byte) Status {
	acct, err := e.loadAccount(id)
	if err != nil {
		return StatusActive
	}
	return acct.Status
}

// Info returns the full account view including every recorded payment.
func (e *Engine) Info(id [20]byte) (*AccountInfo, error) {
	acct, err := e.loadAccount(id)
	if err != nil {
		return nil, err
	}
	payments, err := e.state.EphemeralPayments(id)
	if err != nil {
		return nil, err
	}
	cloned := make([]Payment, 0, len(payments))
	for _, payment := range payments {
		cloned = append(cloned, payment.Clone())
	}
	return &AccountInfo{
		Creator:         acct.Creator,
		Status:          acct.Status,
		ExpiryLedger:    acct.ExpiryLedger,
		RecoveryAddress: acct.RecoveryAddress,
		PaymentReceived: len(cloned) > 0,
		PaymentCount:    len(cloned),
		Payments:        cloned,
		SweptTo:         acct.Clone().SweptTo,
	}, nil
}

// ReserveRemaining returns the reserve still owed; zero for uninitialized
// accounts.
func (e *Engine) ReserveRemaining(id [20]byte) *big.Int {
	reserve, err := e.loadReserve(id)
	if err != nil {
		return big.NewInt(0)
	}
	return cloneBigInt(reserve.Remaining)
}

// ReserveAvailable returns the reserve currently liquid; zero for
// uninitialized accounts.
func (e *Engine) ReserveAvailable(id [20]byte) *big.Int {
	reserve, err := e.loadReserve(id)
	if err != nil {
		return big.NewInt(0)
	}
	return cloneBigInt(reserve.Available)
}

// IsReserveReclaimed reports whether the reserve obligation has been fully
// settled.
func (e *Engine) IsReserveReclaimed(id [20]byte) bool {
	reserve, err := e.loadReserve(id)
	if err != nil {
		return false
	}
	return reserve.Reclaimed
}

// LastReserveEvent returns the most recent reclaim audit record, or nil when
// none has been emitted.
func (e *Engine) LastReserveEvent(id [20]byte) *ReserveReclaimed {
	reserve, err := e.loadReserve(id)
	if err != nil {
		return nil
	}
	return reserve.LastEvent.Clone()
}

// ReserveReclaimEventCount returns the number of reclaim records emitted for
// the account.
func (e *Engine) ReserveReclaimEventCount(id [20]byte) uint32 {
	reserve, err := e.loadReserve(id)
	if err != nil {
		return 0
	}
	return reserve.EventCount
}
