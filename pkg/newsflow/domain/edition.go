package domain

import "time"

// Edition is one publication of an outlet that news items are placed in.
type Edition struct {
	ID              int64
	OutletID        int64
	Name            string
	PublicationDate time.Time
	Open            bool
}
