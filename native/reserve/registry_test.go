package reserve

import (
	"errors"
	"math/big"
	"testing"

	"bridgelet/core/events"
	"bridgelet/core/types"
)

type mockRegistryState struct {
	admin   *[20]byte
	reserve *big.Int
}

func (m *mockRegistryState) ReserveAdminGet() ([20]byte, bool) {
	if m.admin == nil {
		return [20]byte{}, false
	}
	return *m.admin, true
}

func (m *mockRegistryState) ReserveAdminPut(admin [20]byte) error {
	stored := admin
	m.admin = &stored
	return nil
}

func (m *mockRegistryState) BaseReserveGet() (*big.Int, bool) {
	if m.reserve == nil {
		return nil, false
	}
	return new(big.Int).Set(m.reserve), true
}

func (m *mockRegistryState) BaseReservePut(amount *big.Int) error {
	m.reserve = new(big.Int).Set(amount)
	return nil
}

type recordingEmitter struct {
	events []*types.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	r.events = append(r.events, carrier.Event())
}

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func newTestRegistry() (*Registry, *mockRegistryState, *recordingEmitter) {
	state := &mockRegistryState{}
	emitter := &recordingEmitter{}
	registry := NewRegistry()
	registry.SetState(state)
	registry.SetEmitter(emitter)
	return registry, state, emitter
}

func TestInitialize(t *testing.T) {
	registry, _, emitter := newTestRegistry()
	admin := addr(0x01)
	if err := registry.Initialize(admin); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	got, ok := registry.Admin()
	if !ok || got != admin {
		t.Fatalf("admin not stored")
	}
	if len(emitter.events) != 1 || emitter.events[0].Type != EventTypeInitialized {
		t.Fatalf("expected initialized event, got %+v", emitter.events)
	}
	if err := registry.Initialize(addr(0x02)); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	got, _ = registry.Admin()
	if got != admin {
		t.Fatalf("admin must survive takeover attempt")
	}
}

func TestSetBaseReserve(t *testing.T) {
	registry, _, emitter := newTestRegistry()
	admin := addr(0x01)
	if err := registry.SetBaseReserve(admin, big.NewInt(100)); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := registry.Initialize(admin); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := registry.SetBaseReserve(addr(0x02), big.NewInt(100)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1)} {
		if err := registry.SetBaseReserve(admin, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %v: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	tooLarge := new(big.Int).Add(MaxBaseReserve, big.NewInt(1))
	if err := registry.SetBaseReserve(admin, tooLarge); !errors.Is(err, ErrAmountTooLarge) {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}

	if err := registry.SetBaseReserve(admin, big.NewInt(1_000_000_000)); err != nil {
		t.Fatalf("set base reserve: %v", err)
	}
	amount, ok := registry.BaseReserve()
	if !ok || amount.Int64() != 1_000_000_000 {
		t.Fatalf("unexpected base reserve: %v", amount)
	}
	updated := emitter.events[len(emitter.events)-1]
	if updated.Type != EventTypeUpdated {
		t.Fatalf("expected updated event, got %s", updated.Type)
	}
	if updated.Attributes["oldValue"] != "0" || updated.Attributes["newValue"] != "1000000000" {
		t.Fatalf("unexpected update attrs: %v", updated.Attributes)
	}

	if err := registry.SetBaseReserve(admin, big.NewInt(2_000_000_000)); err != nil {
		t.Fatalf("update base reserve: %v", err)
	}
	updated = emitter.events[len(emitter.events)-1]
	if updated.Attributes["oldValue"] != "1000000000" || updated.Attributes["newValue"] != "2000000000" {
		t.Fatalf("unexpected update attrs: %v", updated.Attributes)
	}
}

func TestSetBaseReserveAtCeiling(t *testing.T) {
	registry, _, _ := newTestRegistry()
	admin := addr(0x01)
	if err := registry.Initialize(admin); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := registry.SetBaseReserve(admin, new(big.Int).Set(MaxBaseReserve)); err != nil {
		t.Fatalf("ceiling value should be accepted: %v", err)
	}
}

func TestRequireBaseReserve(t *testing.T) {
	registry, _, _ := newTestRegistry()
	if _, err := registry.RequireBaseReserve(); !errors.Is(err, ErrReserveNotSet) {
		t.Fatalf("expected ErrReserveNotSet, got %v", err)
	}
	admin := addr(0x01)
	if err := registry.Initialize(admin); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := registry.SetBaseReserve(admin, big.NewInt(42)); err != nil {
		t.Fatalf("set base reserve: %v", err)
	}
	amount, err := registry.RequireBaseReserve()
	if err != nil {
		t.Fatalf("require base reserve: %v", err)
	}
	if amount.Int64() != 42 {
		t.Fatalf("unexpected amount: %v", amount)
	}
	// The returned copy must not alias stored state.
	amount.SetInt64(7)
	stored, _ := registry.BaseReserve()
	if stored.Int64() != 42 {
		t.Fatalf("stored value mutated through returned copy")
	}
	if !registry.HasBaseReserve() {
		t.Fatalf("HasBaseReserve should report true")
	}
}

func TestRegistryWithoutState(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Initialize(addr(0x01)); err == nil {
		t.Fatalf("expected error without state backend")
	}
	if _, ok := registry.BaseReserve(); ok {
		t.Fatalf("BaseReserve should report absence without state")
	}
	if registry.HasBaseReserve() {
		t.Fatalf("HasBaseReserve should report false without state")
	}
	if _, ok := registry.Admin(); ok {
		t.Fatalf("Admin should report absence without state")
	}
}
