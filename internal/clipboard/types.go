package clipboard

import (
	"time"

	"github.com/google/uuid"
)

// Event is a single observed clipboard change, queued for the capture
// pipeline. Kind is database.KindText or database.KindImage; Data holds the
// raw payload (UTF-8 text or PNG bytes).
type Event struct {
	ID   uuid.UUID
	Kind string
	Data []byte
	At   time.Time
}
