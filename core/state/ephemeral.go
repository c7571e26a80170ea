package state

import (
	"fmt"
	"math/big"

	"bridgelet/native/ephemeral"
)

// storedPayment is the RLP-friendly representation of a recorded payment.
type storedPayment struct {
	Asset      [20]byte
	Amount     *big.Int
	ReceivedAt uint64
}

// storedReserveEvent flattens the reclaim audit record for RLP encoding.
type storedReserveEvent struct {
	Destination      [20]byte
	Amount           *big.Int
	SweepID          uint64
	FullyReclaimed   bool
	RemainingReserve *big.Int
}

func newStoredReserveEvent(record *ephemeral.ReserveReclaimed) *storedReserveEvent {
	if record == nil {
		return nil
	}
	amount := big.NewInt(0)
	if record.Amount != nil {
		amount = new(big.Int).Set(record.Amount)
	}
	remaining := big.NewInt(0)
	if record.RemainingReserve != nil {
		remaining = new(big.Int).Set(record.RemainingReserve)
	}
	return &storedReserveEvent{
		Destination:      record.Destination,
		Amount:           amount,
		SweepID:          record.SweepID,
		FullyReclaimed:   record.FullyReclaimed,
		RemainingReserve: remaining,
	}
}

func (s *storedReserveEvent) toRecord() *ephemeral.ReserveReclaimed {
	if s == nil {
		return nil
	}
	record := &ephemeral.ReserveReclaimed{
		Destination:      s.Destination,
		Amount:           big.NewInt(0),
		SweepID:          s.SweepID,
		FullyReclaimed:   s.FullyReclaimed,
		RemainingReserve: big.NewInt(0),
	}
	if s.Amount != nil {
		record.Amount = new(big.Int).Set(s.Amount)
	}
	if s.RemainingReserve != nil {
		record.RemainingReserve = new(big.Int).Set(s.RemainingReserve)
	}
	return record
}

// EphemeralExists reports whether the account has completed initialization.
// Presence of the Initialized slot is the authoritative signal.
func (m *Manager) EphemeralExists(id [20]byte) bool {
	ok, err := m.has(ephemeralKey(id, KeyInitialized))
	if err != nil {
		return false
	}
	return ok
}

// EphemeralGet loads the account record. Read failures are reported as
// absence, matching the best-effort semantics required by the engine.
func (m *Manager) EphemeralGet(id [20]byte) (*ephemeral.Account, bool) {
	if !m.EphemeralExists(id) {
		return nil, false
	}
	acct := &ephemeral.Account{}
	if ok, err := m.read(ephemeralKey(id, KeyCreator), &acct.Creator); err != nil || !ok {
		return nil, false
	}
	if ok, err := m.read(ephemeralKey(id, KeyExpiryLedger), &acct.ExpiryLedger); err != nil || !ok {
		return nil, false
	}
	if ok, err := m.read(ephemeralKey(id, KeyRecoveryAddress), &acct.RecoveryAddress); err != nil || !ok {
		return nil, false
	}
	var status uint8
	if ok, err := m.read(ephemeralKey(id, KeyStatus), &status); err != nil || !ok {
		return nil, false
	}
	acct.Status = ephemeral.Status(status)
	if !acct.Status.Valid() {
		return nil, false
	}
	var sweptTo [20]byte
	if ok, err := m.read(ephemeralKey(id, KeySweptTo), &sweptTo); err == nil && ok {
		acct.SweptTo = &sweptTo
	}
	return acct, true
}

// EphemeralPut persists every account slot. The Initialized marker is written
// last so a partially failed write never presents as an initialized account.
func (m *Manager) EphemeralPut(id [20]byte, acct *ephemeral.Account) error {
	if acct == nil {
		return fmt.Errorf("state: nil account")
	}
	if !acct.Status.Valid() {
		return fmt.Errorf("state: invalid account status %d", acct.Status)
	}
	if err := m.write(ephemeralKey(id, KeyCreator), acct.Creator); err != nil {
		return err
	}
	if err := m.write(ephemeralKey(id, KeyExpiryLedger), acct.ExpiryLedger); err != nil {
		return err
	}
	if err := m.write(ephemeralKey(id, KeyRecoveryAddress), acct.RecoveryAddress); err != nil {
		return err
	}
	if err := m.write(ephemeralKey(id, KeyStatus), uint8(acct.Status)); err != nil {
		return err
	}
	if acct.SweptTo != nil {
		if err := m.write(ephemeralKey(id, KeySweptTo), *acct.SweptTo); err != nil {
			return err
		}
	}
	return m.write(ephemeralKey(id, KeyInitialized), true)
}

func (m *Manager) loadPayments(id [20]byte) ([]storedPayment, error) {
	var stored []storedPayment
	ok, err := m.read(ephemeralKey(id, KeyPayments), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []storedPayment{}, nil
	}
	return stored, nil
}

// EphemeralPayments returns every recorded payment for the account. Order
// follows insertion but carries no contract beyond full enumeration.
func (m *Manager) EphemeralPayments(id [20]byte) ([]ephemeral.Payment, error) {
	stored, err := m.loadPayments(id)
	if err != nil {
		return nil, err
	}
	payments := make([]ephemeral.Payment, 0, len(stored))
	for _, s := range stored {
		amount := big.NewInt(0)
		if s.Amount != nil {
			amount = new(big.Int).Set(s.Amount)
		}
		payments = append(payments, ephemeral.Payment{
			Asset:      s.Asset,
			Amount:     amount,
			ReceivedAt: s.ReceivedAt,
		})
	}
	return payments, nil
}

// EphemeralPaymentGet returns the payment recorded for the asset, if any.
func (m *Manager) EphemeralPaymentGet(id [20]byte, asset [20]byte) (*ephemeral.Payment, bool) {
	stored, err := m.loadPayments(id)
	if err != nil {
		return nil, false
	}
	for _, s := range stored {
		if s.Asset == asset {
			amount := big.NewInt(0)
			if s.Amount != nil {
				amount = new(big.Int).Set(s.Amount)
			}
			return &ephemeral.Payment{Asset: s.Asset, Amount: amount, ReceivedAt: s.ReceivedAt}, true
		}
	}
	return nil, false
}

// EphemeralPaymentAdd appends a payment to the account's ledger. Duplicate
// and cap enforcement belong to the engine; the binding refuses duplicates
// defensively so a mis-sequenced caller cannot corrupt the uniqueness
// invariant.
func (m *Manager) EphemeralPaymentAdd(id [20]byte, payment ephemeral.Payment) error {
	stored, err := m.loadPayments(id)
	if err != nil {
		return err
	}
	for _, s := range stored {
		if s.Asset == payment.Asset {
			return ephemeral.ErrDuplicateAsset
		}
	}
	amount := big.NewInt(0)
	if payment.Amount != nil {
		amount = new(big.Int).Set(payment.Amount)
	}
	stored = append(stored, storedPayment{
		Asset:      payment.Asset,
		Amount:     amount,
		ReceivedAt: payment.ReceivedAt,
	})
	return m.write(ephemeralKey(id, KeyPayments), stored)
}

// EphemeralReserveGet loads the reserve tracking slots for the account.
// Missing slots default to zero values, mirroring the engine's expectation
// that a partially written reserve behaves as empty rather than failing.
func (m *Manager) EphemeralReserveGet(id [20]byte) (*ephemeral.ReserveState, bool) {
	if !m.EphemeralExists(id) {
		return nil, false
	}
	reserve := &ephemeral.ReserveState{
		Remaining: big.NewInt(0),
		Available: big.NewInt(0),
	}
	remaining := new(big.Int)
	if ok, err := m.read(ephemeralKey(id, KeyBaseReserveRemaining), remaining); err == nil && ok {
		reserve.Remaining = remaining
	}
	available := new(big.Int)
	if ok, err := m.read(ephemeralKey(id, KeyAvailableReserve), available); err == nil && ok {
		reserve.Available = available
	}
	var reclaimed bool
	if ok, err := m.read(ephemeralKey(id, KeyReserveReclaimed), &reclaimed); err == nil && ok {
		reserve.Reclaimed = reclaimed
	}
	var lastSweepID uint64
	if ok, err := m.read(ephemeralKey(id, KeyLastSweepID), &lastSweepID); err == nil && ok {
		reserve.LastSweepID = lastSweepID
	}
	var eventCount uint32
	if ok, err := m.read(ephemeralKey(id, KeyReserveEventCount), &eventCount); err == nil && ok {
		reserve.EventCount = eventCount
	}
	stored := new(storedReserveEvent)
	if ok, err := m.read(ephemeralKey(id, KeyLastReserveEvent), stored); err == nil && ok {
		reserve.LastEvent = stored.toRecord()
	}
	return reserve, true
}

// EphemeralReservePut persists the reserve tracking slots.
func (m *Manager) EphemeralReservePut(id [20]byte, reserve *ephemeral.ReserveState) error {
	if reserve == nil {
		return fmt.Errorf("state: nil reserve state")
	}
	remaining := big.NewInt(0)
	if reserve.Remaining != nil {
		remaining = reserve.Remaining
	}
	available := big.NewInt(0)
	if reserve.Available != nil {
		available = reserve.Available
	}
	if remaining.Sign() < 0 || available.Sign() < 0 {
		return ephemeral.ErrInvalidAmount
	}
	if err := m.write(ephemeralKey(id, KeyBaseReserveRemaining), remaining); err != nil {
		return err
	}
	if err := m.write(ephemeralKey(id, KeyAvailableReserve), available); err != nil {
		return err
	}
	if err := m.write(ephemeralKey(id, KeyReserveReclaimed), reserve.Reclaimed); err != nil {
		return err
	}
	if err := m.write(ephemeralKey(id, KeyLastSweepID), reserve.LastSweepID); err != nil {
		return err
	}
	if err := m.write(ephemeralKey(id, KeyReserveEventCount), reserve.EventCount); err != nil {
		return err
	}
	if reserve.LastEvent != nil {
		if err := m.write(ephemeralKey(id, KeyLastReserveEvent), newStoredReserveEvent(reserve.LastEvent)); err != nil {
			return err
		}
	}
	return nil
}
