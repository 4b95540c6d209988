package wxdecoder

import "time"

// Observation is one decoded weather sample. Nil fields were not reported.
type Observation struct {
	Observed      *time.Time
	Altitude      *int // feet
	Latitude      *float64
	Longitude     *float64
	WindSpeed     *int // knots
	WindDirection *int // degrees true
	Temperature   *float64
}

// Complete reports whether the observation can be stored: time, altitude
// and position are all present.
func (o Observation) Complete() bool {
	return o.Observed != nil && o.Altitude != nil && o.Latitude != nil && o.Longitude != nil
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
