package domain

import "github.com/google/uuid"

type Notification struct {
	ToUserID uuid.UUID
	OfferID  uuid.UUID
	Title    string
	Message  string
}
