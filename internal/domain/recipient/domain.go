package recipient

import "context"

// Recipient is the read model channel senders use to resolve a user id
// into a concrete delivery address.
type Recipient struct {
	UserID    string
	Email     string
	Phone     string
	PushToken string
}

type Repo interface {
	GetByUserID(ctx context.Context, userID string) (*Recipient, error)
}
