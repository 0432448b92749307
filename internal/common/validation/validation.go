package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxPayoutAddressLength = 128
	// MaxMessageLength is Telegram's limit for one text message.
	MaxMessageLength = 4096

	MinBroadcastIntervalMinutes = 1
	MaxBroadcastIntervalMinutes = 7 * 24 * 60
)

// PayoutAddress trims a free-text payout handle and checks it is usable.
// The content is not interpreted: any UPI id, phone number or wallet handle is accepted.
func PayoutAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("payout address cannot be empty")
	}
	if utf8.RuneCountInString(address) > MaxPayoutAddressLength {
		return "", fmt.Errorf("payout address cannot exceed %d characters", MaxPayoutAddressLength)
	}
	if strings.ContainsAny(address, "\r\n") {
		return "", fmt.Errorf("payout address must be a single line")
	}
	return address, nil
}

// BroadcastMessage checks an admin-supplied broadcast text.
func BroadcastMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message cannot be empty")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return fmt.Errorf("message cannot exceed %d characters", MaxMessageLength)
	}
	return nil
}

// BroadcastInterval checks the group broadcast period in minutes.
func BroadcastInterval(minutes int) error {
	if minutes < MinBroadcastIntervalMinutes || minutes > MaxBroadcastIntervalMinutes {
		return fmt.Errorf("interval must be between %d and %d minutes", MinBroadcastIntervalMinutes, MaxBroadcastIntervalMinutes)
	}
	return nil
}
