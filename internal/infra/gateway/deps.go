package gateway

import (
	"log/slog"
	"time"
)

// Deps are the ambient collaborators shared by every adapter.
type Deps struct {
	Logger *slog.Logger
	Now    func() time.Time
}

func (d Deps) now() func() time.Time {
	if d.Now != nil {
		return d.Now
	}
	return time.Now
}
