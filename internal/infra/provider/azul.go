package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/adapter"
	"booking-scraper-service/internal/infra/logging"
)

// Azul opens the "my trips" deep link carrying locator and origin, and reads
// the journeys payload the page fetches on load.
type Azul struct {
	portal
}

func NewAzul(base portal) *Azul { return &Azul{portal: base} }

func (s *Azul) Provider() model.Provider { return model.ProviderAzul }

func (s *Azul) Validate(req model.LookupRequest) error {
	return requireField(model.ProviderAzul, "origin", req.Origin)
}

func (s *Azul) Run(ctx context.Context, page adapter.Page, req model.LookupRequest) (*model.BookingRecord, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	link, err := s.deepLink(req)
	if err != nil {
		return nil, err
	}

	responses, stop := page.Subscribe(jsonResponses("", "voeazul.com.br", "azul"))
	defer stop()

	if err := s.navigate(ctx, page, link); err != nil {
		return nil, err
	}
	// The journeys call can trail the document load by a while.
	resp, err := awaitResponse(ctx, responses, hasAzulJourneys, s.cfg.NavigationTimeout)
	if err != nil {
		return nil, err
	}
	logging.With(ctx, s.log).Debug().Str("url", resp.URL).Msg("journeys payload captured")

	return parseAzul(resp.Body, s.loc)
}

func (s *Azul) deepLink(req model.LookupRequest) (string, error) {
	u, err := url.Parse(s.cfg.AzulURL)
	if err != nil {
		return "", fmt.Errorf("azul url: %w", err)
	}
	q := u.Query()
	q.Set("pnr", req.Locator)
	q.Set("origin", req.Origin)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type azulBooking struct {
	Journeys   []azulJourney `json:"journeys"`
	Passengers []struct {
		PassengerKey string `json:"passengerKey"`
		Name         struct {
			First string `json:"first"`
			Last  string `json:"last"`
		} `json:"name"`
		BagCount int `json:"bagCount"`
	} `json:"passengers"`
}

type azulJourney struct {
	Segments []struct {
		Identifier struct {
			CarrierCode      string     `json:"carrierCode"`
			FlightNumber     flexString `json:"flightNumber"`
			DepartureStation string     `json:"departureStation"`
			ArrivalStation   string     `json:"arrivalStation"`
			STD              string     `json:"std"`
			STA              string     `json:"sta"`
		} `json:"identifier"`
		PassengerSegment json.RawMessage `json:"passengerSegment"`
	} `json:"segments"`
}

type azulPaxSegment struct {
	PassengerKey string `json:"passengerKey"`
	Seat         *struct {
		Designator string `json:"designator"`
	} `json:"seat"`
}

type azulEnvelope struct {
	Data *azulBooking `json:"data"`
	azulBooking
}

func (e azulEnvelope) booking() *azulBooking {
	if e.Data != nil && len(e.Data.Journeys) > 0 {
		return e.Data
	}
	if len(e.Journeys) > 0 {
		return &e.azulBooking
	}
	return nil
}

func hasAzulJourneys(body []byte) bool {
	var e azulEnvelope
	return json.Unmarshal(body, &e) == nil && e.booking() != nil
}

// seatMap reads passengerSegment, which the API sends either as a list or
// as an object keyed by passenger key.
func seatMap(raw json.RawMessage) map[string]string {
	seats := map[string]string{}
	var list []azulPaxSegment
	if json.Unmarshal(raw, &list) != nil {
		var byKey map[string]azulPaxSegment
		if json.Unmarshal(raw, &byKey) != nil {
			return seats
		}
		for k, v := range byKey {
			if v.PassengerKey == "" {
				v.PassengerKey = k
			}
			list = append(list, v)
		}
	}
	for _, ps := range list {
		if ps.Seat != nil && ps.Seat.Designator != "" {
			seats[ps.PassengerKey] = ps.Seat.Designator
		}
	}
	return seats
}

func parseAzul(body []byte, loc *time.Location) (*model.BookingRecord, error) {
	var e azulEnvelope
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: AZUL payload: %v", domain.ErrParse, err)
	}
	b := e.booking()
	if b == nil {
		return nil, fmt.Errorf("%w: AZUL payload has no journeys", domain.ErrParse)
	}

	trips := make([]model.Trip, 0, len(b.Journeys))
	for _, j := range b.Journeys {
		var trip model.Trip
		for _, seg := range j.Segments {
			id := seg.Identifier
			dep, err := model.CanonicalTime(id.STD, loc)
			if err != nil {
				return nil, err
			}
			arr, err := model.CanonicalTime(id.STA, loc)
			if err != nil {
				return nil, err
			}
			trip.Segments = append(trip.Segments, model.Segment{
				FlightNumber: id.CarrierCode + string(id.FlightNumber),
				Carrier:      id.CarrierCode,
				Origin:       id.DepartureStation,
				Destination:  id.ArrivalStation,
				Departure:    dep,
				Arrival:      arr,
				Duration:     gap(dep, arr),
			})
		}
		trips = append(trips, trip)
	}

	// Seats come from the first flown segment.
	seats := map[string]string{}
	if len(b.Journeys) > 0 && len(b.Journeys[0].Segments) > 0 {
		seats = seatMap(b.Journeys[0].Segments[0].PassengerSegment)
	}

	passengers := make([]model.Passenger, 0, len(b.Passengers))
	for _, p := range b.Passengers {
		passengers = append(passengers, model.Passenger{
			Name: fullName(p.Name.First, p.Name.Last),
			Seat: seats[p.PassengerKey],
			Baggage: &model.Baggage{
				PersonalItem: true,
				CarryOn:      true,
				Checked:      p.BagCount > 0,
			},
		})
	}

	return model.NewBookingRecord(model.ProviderAzul, trips, passengers)
}
