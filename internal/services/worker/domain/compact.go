package domain

import "time"

// NotifyAttempt is one delivery-status update for a notification, as
// supplied by the provider callback or recorded at send time.
type NotifyAttempt struct {
	NotificationID      string
	EventAuditReference string
	Status              DeliveryStatus
	SentTo              string
	CreatedAt           time.Time
	CompletedAt         *time.Time
	SentAt              *time.Time
	ChannelType         string
	TemplateID          string
	TemplateVersion     string
}

// CompactHistory reduces repeated delivery-status updates to exactly one
// representative per notification id: the attempt with the highest status
// precedence, first seen winning ties. Output order follows the first
// appearance of each notification id; empty input yields empty output.
func CompactHistory(attempts []NotifyAttempt) []NotifyAttempt {
	if len(attempts) == 0 {
		return nil
	}

	index := make(map[string]int, len(attempts))
	var compacted []NotifyAttempt
	for _, attempt := range attempts {
		i, seen := index[attempt.NotificationID]
		if !seen {
			index[attempt.NotificationID] = len(compacted)
			compacted = append(compacted, attempt)
			continue
		}
		if attempt.Status.Precedence() > compacted[i].Status.Precedence() {
			compacted[i] = attempt
		}
	}
	return compacted
}
