package clock

import (
	"time"

	"github.com/retrofund/retrofund/internal/core/ports"
)

type systemClock struct{}

func NewSystemClock() ports.Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}
