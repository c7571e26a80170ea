package state

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"bridgelet/storage"
)

// DataKey enumerates the closed set of logical storage slots used by the
// escrow core. Keeping the key space enumerated (instead of open strings)
// keeps the storage contract exhaustive and checkable at compile time.
type DataKey uint8

const (
	KeyInitialized DataKey = iota
	KeyCreator
	KeyExpiryLedger
	KeyRecoveryAddress
	KeyPayments
	KeyStatus
	KeySweptTo
	KeyBaseReserveRemaining
	KeyAvailableReserve
	KeyReserveReclaimed
	KeyLastSweepID
	KeyReserveEventCount
	KeyLastReserveEvent

	// Registry-scoped keys, stored outside any account scope.
	KeyReserveAdmin
	KeyBaseReserve
)

var (
	ephemeralPrefix = []byte("ephemeral:")
	registryPrefix  = []byte("reservecfg:")
)

// Manager provides typed read/write access to escrow state on top of a raw
// key-value database. Every logical slot is addressed by a DataKey scoped to
// an account instance; physical keys are keccak256 hashes of the scoped key
// material and values are RLP encoded.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func ephemeralKey(id [20]byte, key DataKey) []byte {
	buf := make([]byte, 0, len(ephemeralPrefix)+len(id)+2)
	buf = append(buf, ephemeralPrefix...)
	buf = append(buf, id[:]...)
	buf = append(buf, ':', byte(key))
	return ethcrypto.Keccak256(buf)
}

func registryKey(key DataKey) []byte {
	buf := make([]byte, 0, len(registryPrefix)+1)
	buf = append(buf, registryPrefix...)
	buf = append(buf, byte(key))
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) has(key []byte) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state: database not configured")
	}
	return m.db.Has(key)
}

func (m *Manager) read(key []byte, out interface{}) (bool, error) {
	ok, err := m.has(key)
	if err != nil || !ok {
		return false, err
	}
	data, err := m.db.Get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) write(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: database not configured")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}
