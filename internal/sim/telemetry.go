// Package sim contains the tanker lifecycle simulation engine: telemetry
// synthesis, the status transition policy, the per-tick coordinator and the
// periodic scheduler driving them.
package sim

import (
	"math"
	"math/rand"
	"time"

	"tankersim/internal/store"
)

// TelemetryConfig bounds the synthesized observations.
type TelemetryConfig struct {
	SpeedMinKmh float64
	SpeedMaxKmh float64

	// Volume change rates, liters per minute.
	FillRate     float64 // while Loading
	UnloadRate   float64 // while Unloading
	TransitDrain float64 // slow consumption while moving
}

func (c *TelemetryConfig) applyDefaults() {
	if c.SpeedMinKmh <= 0 {
		c.SpeedMinKmh = 60
	}
	if c.SpeedMaxKmh <= c.SpeedMinKmh {
		c.SpeedMaxKmh = c.SpeedMinKmh + 20
	}
	if c.FillRate <= 0 {
		c.FillRate = 800
	}
	if c.UnloadRate <= 0 {
		c.UnloadRate = 400
	}
	if c.TransitDrain <= 0 {
		c.TransitDrain = 2
	}
}

// Telemetry is one synthesized observation for a tanker.
type Telemetry struct {
	Lat               *float64
	Lon               *float64
	AvgSpeedKmh       float64
	OilVolumeLiters   float64
	TripDurationHours float64
}

// Synthesizer produces the next plausible observation for a tanker. It is a
// pure function of (snapshot, elapsed time, RNG state); all persistence
// happens in the coordinator.
type Synthesizer struct {
	cfg TelemetryConfig
}

// NewSynthesizer creates a synthesizer with the given bounds.
func NewSynthesizer(cfg TelemetryConfig) *Synthesizer {
	cfg.applyDefaults()
	return &Synthesizer{cfg: cfg}
}

// Next computes the observation that elapsed time has produced since the
// snapshot was last updated. Deterministic for a fixed rng state.
func (s *Synthesizer) Next(snap *store.Tanker, elapsed time.Duration, rng *rand.Rand) Telemetry {
	if elapsed < 0 {
		elapsed = 0
	}

	tel := Telemetry{
		Lat:               snap.Lat,
		Lon:               snap.Lon,
		AvgSpeedKmh:       snap.AvgSpeedKmh,
		OilVolumeLiters:   snap.OilVolumeLiters,
		TripDurationHours: snap.TripDurationHours,
	}

	tel.AvgSpeedKmh = s.nextSpeed(snap, rng)
	s.nextPosition(snap, &tel, elapsed, rng)
	tel.OilVolumeLiters = s.nextVolume(snap, elapsed)
	tel.TripDurationHours = nextTripDuration(snap, elapsed)

	return tel
}

func (s *Synthesizer) nextSpeed(snap *store.Tanker, rng *rand.Rand) float64 {
	if snap.Status != store.StatusInTransit {
		// Delayed and all dwelling states are stationary.
		return 0
	}

	speed := snap.AvgSpeedKmh
	if speed < s.cfg.SpeedMinKmh || speed > s.cfg.SpeedMaxKmh {
		// Just departed (or bad data): start somewhere in the plausible band.
		return s.cfg.SpeedMinKmh + rng.Float64()*(s.cfg.SpeedMaxKmh-s.cfg.SpeedMinKmh)
	}

	// Bounded random walk, ±2.5 km/h per observation.
	speed += (rng.Float64() - 0.5) * 5
	return clamp(speed, s.cfg.SpeedMinKmh, s.cfg.SpeedMaxKmh)
}

func (s *Synthesizer) nextPosition(snap *store.Tanker, tel *Telemetry, elapsed time.Duration, rng *rand.Rand) {
	lat, lon, ok := currentPosition(snap)
	if !ok {
		return
	}

	if snap.Status == store.StatusInTransit && snap.Destination != nil {
		dest := snap.Destination
		remaining := haversineKm(lat, lon, dest.Lat, dest.Lon)
		if remaining > 0.01 {
			traveled := tel.AvgSpeedKmh * elapsed.Hours()
			frac := math.Min(1, traveled/remaining)
			lat += (dest.Lat - lat) * frac
			lon += (dest.Lon - lon) * frac
		} else {
			lat, lon = dest.Lat, dest.Lon
		}
	} else {
		// Stationary: small positional jitter, well under 100 m.
		lat += (rng.Float64() - 0.5) * 0.0008
		lon += (rng.Float64() - 0.5) * 0.0008
	}

	lat = round6(lat)
	lon = round6(lon)
	tel.Lat = &lat
	tel.Lon = &lon
}

func (s *Synthesizer) nextVolume(snap *store.Tanker, elapsed time.Duration) float64 {
	minutes := elapsed.Minutes()
	vol := snap.OilVolumeLiters

	switch snap.Status {
	case store.StatusLoading:
		vol += s.cfg.FillRate * minutes
	case store.StatusUnloading:
		vol -= s.cfg.UnloadRate * minutes
	case store.StatusInTransit, store.StatusDelayed:
		vol -= s.cfg.TransitDrain * minutes
	}

	return clamp(vol, 0, snap.MaxCapacityLiters)
}

func nextTripDuration(snap *store.Tanker, elapsed time.Duration) float64 {
	switch snap.Status {
	case store.StatusInTransit, store.StatusDelayed:
		return snap.TripDurationHours + elapsed.Hours()
	case store.StatusAtSource:
		return 0
	default:
		return snap.TripDurationHours
	}
}

// currentPosition resolves the tanker's position, falling back to its depot
// before the first observation exists.
func currentPosition(snap *store.Tanker) (float64, float64, bool) {
	if snap.Lat != nil && snap.Lon != nil {
		return *snap.Lat, *snap.Lon, true
	}
	if snap.SourceDepot != nil {
		return snap.SourceDepot.Lat, snap.SourceDepot.Lon, true
	}
	return 0, 0, false
}

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
