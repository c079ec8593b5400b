package geo

import (
	"math"
	"testing"
)

func TestDistanceMiles(t *testing.T) {
	tests := []struct {
		name             string
		lat1, lng1       float64
		lat2, lng2       float64
		wantMiles        float64
		tolerancePercent float64
	}{
		{
			name: "St Peters to downtown St Louis",
			lat1: 38.7839, lng1: -90.4974, // shop
			lat2: 38.6270, lng2: -90.1994, // Gateway Arch area
			wantMiles:        19.2,
			tolerancePercent: 2,
		},
		{
			name: "Same point",
			lat1: 38.7839, lng1: -90.4974,
			lat2: 38.7839, lng2: -90.4974,
			wantMiles:        0,
			tolerancePercent: 0,
		},
		{
			name: "St Louis to Chicago",
			lat1: 38.6270, lng1: -90.1994,
			lat2: 41.8781, lng2: -87.6298,
			wantMiles:        262,
			tolerancePercent: 1,
		},
		{
			name: "One degree of latitude",
			lat1: 0, lng1: 0,
			lat2: 1, lng2: 0,
			wantMiles:        69.1,
			tolerancePercent: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMiles(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if tt.wantMiles == 0 {
				if got != 0 {
					t.Errorf("expected 0, got %f", got)
				}
				return
			}
			diff := math.Abs(got-tt.wantMiles) / tt.wantMiles * 100
			if diff > tt.tolerancePercent {
				t.Errorf("DistanceMiles = %f mi, want ~%f mi (diff %.1f%%)", got, tt.wantMiles, diff)
			}
		})
	}
}

func TestDistanceMilesSymmetry(t *testing.T) {
	pairs := [][4]float64{
		{38.7839, -90.4974, 38.6270, -90.1994},
		{0, 0, 0, 2},
		{-33.8688, 151.2093, 51.5074, -0.1278},
	}

	for _, p := range pairs {
		ab := DistanceMiles(p[0], p[1], p[2], p[3])
		ba := DistanceMiles(p[2], p[3], p[0], p[1])
		if ab != ba {
			t.Errorf("DistanceMiles not symmetric: %f vs %f for %v", ab, ba, p)
		}
	}
}
