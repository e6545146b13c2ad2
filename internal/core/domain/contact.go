package domain

import "time"

// Contact holds a user's notification endpoints. Either field may be empty;
// delivery to an empty endpoint is skipped, not an error.
type Contact struct {
	UserID    string    `json:"user_id"`
	PushToken string    `json:"push_token,omitempty"`
	Email     string    `json:"email,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
