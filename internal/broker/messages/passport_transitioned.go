package messages

import "time"

const TopicPassportTransitioned = "passport.transitioned"

// PassportTransitioned is published once per applied transition, keyed by
// passport id.
type PassportTransitioned struct {
	PassportID    string            `json:"passport_id"`
	SerialNumber  string            `json:"serial_number"`
	FromStatus    string            `json:"from_status"`
	ToStatus      string            `json:"to_status"`
	ActorEmail    string            `json:"actor_email"`
	ActorRole     string            `json:"actor_role"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	PointsAwarded int32             `json:"points_awarded,omitempty"`
	Bulk          bool              `json:"bulk,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}
