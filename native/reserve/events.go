package reserve

import (
	"encoding/hex"
	"math/big"

	"bridgelet/core/types"
)

const (
	EventTypeInitialized = "reserve.initialized"
	EventTypeUpdated     = "reserve.updated"
)

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

func newInitializedEvent(admin [20]byte) registryEvent {
	return registryEvent{evt: &types.Event{
		Type: EventTypeInitialized,
		Attributes: map[string]string{
			"admin": hex.EncodeToString(admin[:]),
		},
	}}
}

// newUpdatedEvent records both the old and new value; oldValue is zero when no
// previous reserve existed.
func newUpdatedEvent(oldValue, newValue *big.Int, admin [20]byte) registryEvent {
	format := func(v *big.Int) string {
		if v == nil {
			return "0"
		}
		return v.String()
	}
	return registryEvent{evt: &types.Event{
		Type: EventTypeUpdated,
		Attributes: map[string]string{
			"oldValue": format(oldValue),
			"newValue": format(newValue),
			"admin":    hex.EncodeToString(admin[:]),
		},
	}}
}
