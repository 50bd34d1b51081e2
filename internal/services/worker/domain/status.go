// Package domain implements notification delivery-status tracking: provider
// vocabulary mapping and history compaction.
package domain

// DeliveryStatus is the internal delivery-status vocabulary for one
// notification.
type DeliveryStatus string

const (
	// StatusSending marks an in-flight delivery.
	StatusSending DeliveryStatus = "SENDING"
	// StatusDelivered marks a confirmed delivery.
	StatusDelivered DeliveryStatus = "DELIVERED"
	// StatusFailed marks a delivery the provider gave up on.
	StatusFailed DeliveryStatus = "FAILED"
	// StatusUnknown absorbs provider values outside the known vocabulary.
	StatusUnknown DeliveryStatus = "UNKNOWN"
)

// Precedence orders statuses for compaction. Terminal statuses outrank
// in-flight ones.
func (s DeliveryStatus) Precedence() int {
	switch s {
	case StatusSending:
		return 1
	case StatusDelivered, StatusFailed, StatusUnknown:
		return 3
	default:
		return 0
	}
}

// MapProviderStatus translates the delivery provider's status strings into
// the internal vocabulary. Unrecognized values map to UNKNOWN rather than
// erroring so a provider vocabulary change never stalls ingestion.
func MapProviderStatus(raw string) DeliveryStatus {
	switch raw {
	case "delivered":
		return StatusDelivered
	case "permanent-failure", "temporary-failure", "technical-failure":
		return StatusFailed
	case "created", "sending":
		return StatusSending
	default:
		return StatusUnknown
	}
}
