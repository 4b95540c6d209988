package storage

import (
	"math"
	"testing"
)

func TestKilometers(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"same point", 47.45, -122.31, 47.45, -122.31, 0},
		{"one degree of longitude at the equator", 0, 0, 0, 1, 111.195},
		{"one degree of latitude", 10, 20, 11, 20, 111.195},
		{"antimeridian", 0, 179.5, 0, -179.5, 111.195},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Kilometers(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > 0.01 {
				t.Errorf("Kilometers = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}

func TestLatitudeWindowCoversRadius(t *testing.T) {
	w := latitudeWindow(350)
	// A point due north at exactly the window edge is at the radius.
	if d := Kilometers(0, 0, w, 0); math.Abs(d-350) > 0.01 {
		t.Errorf("edge distance = %.3f, want 350", d)
	}
}
