package database

import "medbook/internal/domain"

// The ledger surfaces the shared engine taxonomy; aliases keep call sites
// inside this package short.
var (
	ErrSlotTaken              = domain.ErrSlotTaken
	ErrNotFound               = domain.ErrNotFound
	ErrConcurrentModification = domain.ErrConflict
)
