package domain

import "github.com/google/uuid"

// ChangeSet — изменения одной фиксации, в порядке их появления.
type ChangeSet struct {
	PinsCreated   []Pin
	PinsDeleted   []uuid.UUID
	PhotosCreated []Photo
	PhotosUpdated []Photo
	PhotosDeleted []uuid.UUID
}

func (c ChangeSet) Empty() bool {
	return len(c.PinsCreated) == 0 && len(c.PinsDeleted) == 0 &&
		len(c.PhotosCreated) == 0 && len(c.PhotosUpdated) == 0 && len(c.PhotosDeleted) == 0
}
