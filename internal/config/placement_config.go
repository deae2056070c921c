package config

import "time"

type PlacementConfig interface {
	GetCancelWindow() int
	GetTickInterval() time.Duration
}

type Placement struct{}

var _ PlacementConfig = Placement{}

// GetCancelWindow is the number of ticks a freshly placed order can be cancelled for.
func (Placement) GetCancelWindow() int {
	return 5
}

func (Placement) GetTickInterval() time.Duration {
	return 1 * time.Second
}
