package bot

import "github.com/google/uuid"

type CreatedEvent struct {
	Bot *Bot
}

type ActivatedEvent struct {
	Bot *Bot
}

type DeactivatedEvent struct {
	Bot *Bot
}

type DeletedEvent struct {
	ID uuid.UUID
}
