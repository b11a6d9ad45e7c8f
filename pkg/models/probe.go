package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ProbePoint is a ground location the upstream is queried from
type ProbePoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p ProbePoint) String() string {
	return fmt.Sprintf("%.4f,%.4f", p.Lat, p.Lng)
}

// ProbePoints is an ordered list of probe locations
type ProbePoints []ProbePoint

// ParseProbePoints parses "lat:lng;lat:lng"
func ParseProbePoints(value string) (ProbePoints, error) {
	var points ProbePoints
	for _, raw := range strings.Split(value, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		parts := strings.Split(raw, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid probe point %q: expected lat:lng", raw)
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("invalid latitude in probe point %q", raw)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || lng < -180 || lng > 180 {
			return nil, fmt.Errorf("invalid longitude in probe point %q", raw)
		}

		points = append(points, ProbePoint{Lat: lat, Lng: lng})
	}
	return points, nil
}

// DefaultProbePoints spreads coverage over ten major cities
func DefaultProbePoints() ProbePoints {
	return ProbePoints{
		{Lat: 40.7128, Lng: -74.0060},  // New York
		{Lat: 51.5074, Lng: -0.1278},   // London
		{Lat: 35.6895, Lng: 139.6917},  // Tokyo
		{Lat: -33.8688, Lng: 151.2093}, // Sydney
		{Lat: 48.8566, Lng: 2.3522},    // Paris
		{Lat: 1.3521, Lng: 103.8198},   // Singapore
		{Lat: 19.0760, Lng: 72.8777},   // Mumbai
		{Lat: -23.5505, Lng: -46.6333}, // São Paulo
		{Lat: 30.0444, Lng: 31.2357},   // Cairo
		{Lat: 37.7749, Lng: -122.4194}, // San Francisco
	}
}
