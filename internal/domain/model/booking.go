package model

import (
	"fmt"
	"time"

	"booking-scraper-service/internal/domain"
)

const (
	DirectionOutbound = "outbound"
	DirectionReturn   = "return"
)

type Segment struct {
	FlightNumber string `json:"flightNumber"`
	Carrier      string `json:"carrier,omitempty"`
	Origin       string `json:"origin"`
	Destination  string `json:"destination"`
	Departure    string `json:"departure"`
	Arrival      string `json:"arrival"`
	Duration     string `json:"duration"`
}

type Trip struct {
	Direction string    `json:"direction"`
	Segments  []Segment `json:"segments"`
}

type Baggage struct {
	PersonalItem bool `json:"personalItem"`
	CarryOn      bool `json:"carryOn"`
	Checked      bool `json:"checked"`
}

type Passenger struct {
	Name          string   `json:"name"`
	Seat          string   `json:"seat,omitempty"`
	BoardingGroup string   `json:"boardingGroup,omitempty"`
	Baggage       *Baggage `json:"baggage,omitempty"`
}

// BookingRecord is the normalized result of a lookup.
type BookingRecord struct {
	Provider          Provider    `json:"provider"`
	FlightNumber      string      `json:"flightNumber"`
	DepartureDateTime string      `json:"departureDateTime"`
	Origin            string      `json:"origin"`
	Destination       string      `json:"destination"`
	Itinerary         []Trip      `json:"itinerary"`
	Passengers        []Passenger `json:"passengers"`
}

// NewBookingRecord derives the summary fields from the full itinerary:
// origin is the first segment of the first trip, destination the last
// segment of the last trip. Trips without segments are dropped.
func NewBookingRecord(provider Provider, trips []Trip, passengers []Passenger) (*BookingRecord, error) {
	kept := make([]Trip, 0, len(trips))
	for _, t := range trips {
		if len(t.Segments) > 0 {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: itinerary has no segments", domain.ErrParse)
	}
	for i := range kept {
		kept[i].Direction = DirectionOutbound
		if i > 0 {
			kept[i].Direction = DirectionReturn
		}
	}
	if passengers == nil {
		passengers = []Passenger{}
	}

	first := kept[0].Segments[0]
	lastTrip := kept[len(kept)-1]
	last := lastTrip.Segments[len(lastTrip.Segments)-1]

	return &BookingRecord{
		Provider:          provider,
		FlightNumber:      first.FlightNumber,
		DepartureDateTime: first.Departure,
		Origin:            first.Origin,
		Destination:       last.Destination,
		Itinerary:         kept,
		Passengers:        passengers,
	}, nil
}

// CanonicalTime renders a portal timestamp as RFC 3339. Values that carry
// an offset keep it; naive values are read in loc and converted to UTC.
func CanonicalTime(raw string, loc *time.Location) (string, error) {
	if raw == "" {
		return "", nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.Format(time.RFC3339), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC().Format(time.RFC3339), nil
		}
	}
	return "", fmt.Errorf("%w: unrecognized timestamp %q", domain.ErrParse, raw)
}

// FormatDuration renders d as "2h 05m".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	mins := int(d.Round(time.Minute) / time.Minute)
	return fmt.Sprintf("%dh %02dm", mins/60, mins%60)
}

type ProxyDescriptor struct {
	Endpoint string
	Username string
	Password string
}

// IsZero reports a direct (unproxied) egress.
func (p ProxyDescriptor) IsZero() bool { return p.Endpoint == "" }
