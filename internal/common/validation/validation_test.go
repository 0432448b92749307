package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayoutAddress(t *testing.T) {
	got, err := PayoutAddress("  ravi@upi \n")
	require.NoError(t, err)
	assert.Equal(t, "ravi@upi", got)

	for _, bad := range []string{"", "   ", "ravi\n@upi", strings.Repeat("x", MaxPayoutAddressLength+1)} {
		_, err := PayoutAddress(bad)
		assert.Error(t, err, bad)
	}

	_, err = PayoutAddress(strings.Repeat("₹", MaxPayoutAddressLength))
	assert.NoError(t, err)
}

func TestBroadcastMessage(t *testing.T) {
	assert.NoError(t, BroadcastMessage("Earn ₹3 per ad!"))
	assert.Error(t, BroadcastMessage(" \n "))
	assert.Error(t, BroadcastMessage(strings.Repeat("a", MaxMessageLength+1)))
}

func TestBroadcastInterval(t *testing.T) {
	assert.NoError(t, BroadcastInterval(1))
	assert.NoError(t, BroadcastInterval(MaxBroadcastIntervalMinutes))
	assert.Error(t, BroadcastInterval(0))
	assert.Error(t, BroadcastInterval(MaxBroadcastIntervalMinutes+1))
}
