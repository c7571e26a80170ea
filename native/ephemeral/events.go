package ephemeral

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"

	"bridgelet/core/types"
)

const (
	EventTypeAccountCreated       = "ephemeral.created"
	EventTypePaymentReceived      = "ephemeral.payment.received"
	EventTypeMultiPaymentReceived = "ephemeral.payment.multi"
	EventTypeSweepExecuted        = "ephemeral.swept"
	EventTypeAccountExpired       = "ephemeral.expired"
	EventTypeReserveReclaimed     = "ephemeral.reserve.reclaimed"
)

type accountEvent struct {
	evt *types.Event
}

func (e accountEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e accountEvent) Event() *types.Event { return e.evt }

func newAccountCreatedEvent(id, creator [20]byte, expiryLedger uint64) *accountEvent {
	return &accountEvent{evt: &types.Event{
		Type: EventTypeAccountCreated,
		Attributes: map[string]string{
			"account":      hex.EncodeToString(id[:]),
			"creator":      hex.EncodeToString(creator[:]),
			"expiryLedger": strconv.FormatUint(expiryLedger, 10),
		},
	}}
}

func newPaymentReceivedEvent(id, asset [20]byte, amount *big.Int) *accountEvent {
	return &accountEvent{evt: &types.Event{
		Type: EventTypePaymentReceived,
		Attributes: map[string]string{
			"account": hex.EncodeToString(id[:]),
			"asset":   hex.EncodeToString(asset[:]),
			"amount":  formatAmount(amount),
		},
	}}
}

func newMultiPaymentReceivedEvent(id, asset [20]byte, amount *big.Int) *accountEvent {
	return &accountEvent{evt: &types.Event{
		Type: EventTypeMultiPaymentReceived,
		Attributes: map[string]string{
			"account": hex.EncodeToString(id[:]),
			"asset":   hex.EncodeToString(asset[:]),
			"amount":  formatAmount(amount),
		},
	}}
}

// newSweepExecutedEvent carries every recorded payment. Payments are sorted by
// asset so the attribute layout stays deterministic for audit consumers.
func newSweepExecutedEvent(id, destination [20]byte, payments []Payment) *accountEvent {
	attrs := map[string]string{
		"account":      hex.EncodeToString(id[:]),
		"destination":  hex.EncodeToString(destination[:]),
		"paymentCount": strconv.Itoa(len(payments)),
	}
	sorted := make([]Payment, len(payments))
	copy(sorted, payments)
	sort.Slice(sorted, func(i, j int) bool {
		return hex.EncodeToString(sorted[i].Asset[:]) < hex.EncodeToString(sorted[j].Asset[:])
	})
	for i, payment := range sorted {
		attrs[fmt.Sprintf("asset%d", i)] = hex.EncodeToString(payment.Asset[:])
		attrs[fmt.Sprintf("amount%d", i)] = formatAmount(payment.Amount)
	}
	return &accountEvent{evt: &types.Event{Type: EventTypeSweepExecuted, Attributes: attrs}}
}

func newAccountExpiredEvent(id, recovery [20]byte, totalAmount, reclaimedReserve *big.Int) *accountEvent {
	return &accountEvent{evt: &types.Event{
		Type: EventTypeAccountExpired,
		Attributes: map[string]string{
			"account":          hex.EncodeToString(id[:]),
			"recovery":         hex.EncodeToString(recovery[:]),
			"totalAmount":      formatAmount(totalAmount),
			"reclaimedReserve": formatAmount(reclaimedReserve),
		},
	}}
}

func newReserveReclaimedEvent(id [20]byte, record *ReserveReclaimed) *accountEvent {
	attrs := map[string]string{
		"account": hex.EncodeToString(id[:]),
	}
	if record != nil {
		attrs["destination"] = hex.EncodeToString(record.Destination[:])
		attrs["amount"] = formatAmount(record.Amount)
		attrs["sweepId"] = strconv.FormatUint(record.SweepID, 10)
		attrs["fullyReclaimed"] = strconv.FormatBool(record.FullyReclaimed)
		attrs["remainingReserve"] = formatAmount(record.RemainingReserve)
	}
	return &accountEvent{evt: &types.Event{Type: EventTypeReserveReclaimed, Attributes: attrs}}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
