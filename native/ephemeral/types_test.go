package ephemeral

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusValid(t *testing.T) {
	for _, status := range []Status{StatusActive, StatusPaymentReceived, StatusSwept, StatusExpired} {
		require.True(t, status.Valid(), "status %v", status)
	}
	require.False(t, Status(4).Valid())
	require.False(t, Status(255).Valid())
}

func TestStatusTerminal(t *testing.T) {
	require.False(t, StatusActive.Terminal())
	require.False(t, StatusPaymentReceived.Terminal())
	require.True(t, StatusSwept.Terminal())
	require.True(t, StatusExpired.Terminal())
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "active", StatusActive.String())
	require.Equal(t, "payment_received", StatusPaymentReceived.String())
	require.Equal(t, "swept", StatusSwept.String())
	require.Equal(t, "expired", StatusExpired.String())
	require.Equal(t, "unknown", Status(42).String())
}

func TestAccountClone(t *testing.T) {
	dest := newTestAddress(0x05)
	acct := &Account{
		Creator:         newTestAddress(0x01),
		ExpiryLedger:    1100,
		RecoveryAddress: newTestAddress(0x02),
		Status:          StatusSwept,
		SweptTo:         &dest,
	}
	clone := acct.Clone()
	require.Equal(t, acct, clone)

	*clone.SweptTo = newTestAddress(0x06)
	require.Equal(t, newTestAddress(0x05), *acct.SweptTo, "clone must not alias SweptTo")

	var nilAccount *Account
	require.Nil(t, nilAccount.Clone())
}

func TestPaymentClone(t *testing.T) {
	payment := Payment{Asset: newTestAddress(0x10), Amount: big.NewInt(100), ReceivedAt: 7}
	clone := payment.Clone()
	clone.Amount.SetInt64(999)
	require.Equal(t, int64(100), payment.Amount.Int64(), "clone must not alias Amount")

	empty := Payment{Asset: newTestAddress(0x11)}
	require.Zero(t, empty.Clone().Amount.Sign(), "nil amount clones to zero")
}

func TestReserveStateClone(t *testing.T) {
	reserve := &ReserveState{
		Remaining:   big.NewInt(750),
		Available:   big.NewInt(250),
		LastSweepID: 42,
		EventCount:  2,
		LastEvent: &ReserveReclaimed{
			Destination:      newTestAddress(0x05),
			Amount:           big.NewInt(250),
			SweepID:          42,
			RemainingReserve: big.NewInt(750),
		},
	}
	clone := reserve.Clone()
	require.Equal(t, reserve, clone)

	clone.Remaining.SetInt64(0)
	clone.LastEvent.Amount.SetInt64(0)
	require.Equal(t, int64(750), reserve.Remaining.Int64())
	require.Equal(t, int64(250), reserve.LastEvent.Amount.Int64())

	var nilReserve *ReserveState
	require.Nil(t, nilReserve.Clone())
}
