package state

import (
	"math/big"
)

// ReserveAdminGet returns the registry admin address, if one was stored.
func (m *Manager) ReserveAdminGet() ([20]byte, bool) {
	var admin [20]byte
	ok, err := m.read(registryKey(KeyReserveAdmin), &admin)
	if err != nil || !ok {
		return [20]byte{}, false
	}
	return admin, true
}

// ReserveAdminPut stores the registry admin address.
func (m *Manager) ReserveAdminPut(admin [20]byte) error {
	return m.write(registryKey(KeyReserveAdmin), admin)
}

// BaseReserveGet returns the configured base reserve amount, if set.
func (m *Manager) BaseReserveGet() (*big.Int, bool) {
	amount := new(big.Int)
	ok, err := m.read(registryKey(KeyBaseReserve), amount)
	if err != nil || !ok {
		return nil, false
	}
	return amount, true
}

// BaseReservePut stores the base reserve amount. Validation belongs to the
// registry; the binding only persists.
func (m *Manager) BaseReservePut(amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return m.write(registryKey(KeyBaseReserve), amount)
}
