package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/adapter"
	"booking-scraper-service/internal/infra/logging"
)

var (
	latamCookies     = adapter.Locator{CSS: "button", Text: `aceite todos os cookies`}
	latamLocator     = adapter.Locator{CSS: "input", Text: `n[uú]mero de compra ou c[oó]digo`}
	latamLocatorByID = adapter.Locator{CSS: "#confirmationCode"}
	latamLastName    = adapter.Locator{CSS: "input", Text: `sobrenome do passageiro`}
	latamSearch      = adapter.Locator{CSS: "button", Text: `^\s*procurar\s*$`}
	latamBoarding    = adapter.Locator{CSS: "button, a", Text: `cart[aã]o de embarque|boarding pass`}
)

// latamPopupGrace bounds the wait for the payload of the popup's own load.
const latamPopupGrace = 5 * time.Second

// Latam fills the "my trips" form, opens the boarding pass tab and reads the
// trip JSON that tab fetches.
type Latam struct {
	portal
}

func NewLatam(base portal) *Latam { return &Latam{portal: base} }

func (s *Latam) Provider() model.Provider { return model.ProviderLatam }

func (s *Latam) Validate(req model.LookupRequest) error {
	return requireField(model.ProviderLatam, "lastName", req.LastName)
}

func (s *Latam) Run(ctx context.Context, page adapter.Page, req model.LookupRequest) (*model.BookingRecord, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}
	log := logging.With(ctx, s.log)

	if err := s.navigate(ctx, page, s.cfg.LatamURL); err != nil {
		return nil, err
	}
	if err := s.sleep(ctx, 3*time.Second); err != nil {
		return nil, err
	}
	s.dismiss(ctx, page, latamCookies, 5*time.Second)
	if err := s.sleep(ctx, time.Second); err != nil {
		return nil, err
	}

	locatorField, err := s.firstVisible(ctx, page, 10*time.Second, latamLocator, latamLocatorByID)
	if err != nil {
		return nil, err
	}
	if err := page.Click(ctx, locatorField); err != nil {
		return nil, err
	}
	if err := page.TypeSlowly(ctx, locatorField, req.Locator, 100*time.Millisecond); err != nil {
		return nil, err
	}
	if err := page.WaitVisible(ctx, latamLastName, s.cfg.ElementTimeout); err != nil {
		return nil, err
	}
	if err := page.Click(ctx, latamLastName); err != nil {
		return nil, err
	}
	if err := page.TypeSlowly(ctx, latamLastName, req.LastName, 100*time.Millisecond); err != nil {
		return nil, err
	}

	log.Debug().Msg("form filled, searching")
	if err := page.Click(ctx, latamSearch); err != nil {
		return nil, err
	}
	if err := s.sleep(ctx, 5*time.Second); err != nil {
		return nil, err
	}
	if err := page.Scroll(ctx, 1000); err != nil {
		return nil, err
	}
	if err := s.sleep(ctx, 2*time.Second); err != nil {
		return nil, err
	}

	if err := page.WaitVisible(ctx, latamBoarding, 15*time.Second); err != nil {
		return nil, err
	}
	popup, err := page.ClickForPopup(ctx, latamBoarding, s.cfg.ElementTimeout)
	if err != nil {
		return nil, err
	}
	defer popup.Close()

	responses, stop := popup.Subscribe(jsonResponses("GET", "boarding-pass", "record", "trip"))
	defer stop()
	resp, err := awaitResponse(ctx, responses, nil, min(latamPopupGrace, s.cfg.ResponseTimeout))
	if errors.Is(err, domain.ErrTimeout) {
		// The tab can finish its booking request before the listener is
		// attached. One reload replays it with the listener in place.
		log.Debug().Msg("boarding pass payload missed, reloading popup")
		navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
		err = popup.Reload(navCtx)
		cancel()
		if err != nil {
			return nil, err
		}
		resp, err = awaitResponse(ctx, responses, nil, s.cfg.ResponseTimeout)
	}
	if err != nil {
		return nil, err
	}
	log.Debug().Str("url", resp.URL).Int("bytes", len(resp.Body)).Msg("boarding pass payload captured")

	return parseLatam(resp.Body, s.loc)
}

type latamPayload struct {
	latamTrip
	Trip           *latamTrip `json:"trip"`
	BoardingPasses []struct {
		PassengerID   flexString `json:"passengerId"`
		SeatNumber    string     `json:"seatNumber"`
		BoardingGroup string     `json:"boardingGroup"`
	} `json:"boardingPasses"`
}

type latamTrip struct {
	ItineraryParts []struct {
		Segments []latamSegment `json:"segments"`
	} `json:"itineraryParts"`
	Passengers []struct {
		ID          flexString `json:"id"`
		PassengerID flexString `json:"passengerId"`
		FirstName   string     `json:"firstName"`
		LastName    string     `json:"lastName"`
	} `json:"passengers"`
}

type latamPoint struct {
	Airport struct {
		AirportCode string `json:"airportCode"`
	} `json:"airport"`
	DateTime struct {
		IsoValue string `json:"isoValue"`
	} `json:"dateTime"`
}

type latamSegment struct {
	AirlineCode  string          `json:"airlineCode"`
	FlightNumber flexString      `json:"flightNumber"`
	Departure    latamPoint      `json:"departure"`
	Arrival      latamPoint      `json:"arrival"`
	Duration     json.RawMessage `json:"duration"`
	DeltaTime    json.RawMessage `json:"deltaTime"`
}

func parseLatam(body []byte, loc *time.Location) (*model.BookingRecord, error) {
	var p latamPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: LATAM payload: %v", domain.ErrParse, err)
	}
	src := p.latamTrip
	if len(src.ItineraryParts) == 0 && p.Trip != nil {
		src.ItineraryParts = p.Trip.ItineraryParts
	}
	if len(src.Passengers) == 0 && p.Trip != nil {
		src.Passengers = p.Trip.Passengers
	}
	if len(src.ItineraryParts) == 0 {
		return nil, fmt.Errorf("%w: LATAM payload has no itineraryParts", domain.ErrParse)
	}

	trips := make([]model.Trip, 0, len(src.ItineraryParts))
	for _, part := range src.ItineraryParts {
		var trip model.Trip
		for _, seg := range part.Segments {
			dep, err := model.CanonicalTime(seg.Departure.DateTime.IsoValue, loc)
			if err != nil {
				return nil, err
			}
			arr, err := model.CanonicalTime(seg.Arrival.DateTime.IsoValue, loc)
			if err != nil {
				return nil, err
			}
			raw := seg.Duration
			if len(raw) == 0 || string(raw) == "null" {
				raw = seg.DeltaTime
			}
			trip.Segments = append(trip.Segments, model.Segment{
				FlightNumber: seg.AirlineCode + string(seg.FlightNumber),
				Carrier:      seg.AirlineCode,
				Origin:       seg.Departure.Airport.AirportCode,
				Destination:  seg.Arrival.Airport.AirportCode,
				Departure:    dep,
				Arrival:      arr,
				Duration:     durationText(raw, dep, arr),
			})
		}
		trips = append(trips, trip)
	}

	passengers := make([]model.Passenger, 0, len(src.Passengers))
	for _, sp := range src.Passengers {
		pax := model.Passenger{Name: fullName(sp.FirstName, sp.LastName)}
		for _, bp := range p.BoardingPasses {
			if bp.PassengerID != "" && (bp.PassengerID == sp.ID || bp.PassengerID == sp.PassengerID) {
				pax.Seat = bp.SeatNumber
				pax.BoardingGroup = bp.BoardingGroup
				break
			}
		}
		passengers = append(passengers, pax)
	}

	return model.NewBookingRecord(model.ProviderLatam, trips, passengers)
}

// durationText renders a portal duration given as minutes or ISO 8601
// ("PT2H5M"), falling back to the gap between departure and arrival.
func durationText(raw json.RawMessage, dep, arr string) string {
	var mins float64
	if err := json.Unmarshal(raw, &mins); err == nil && mins > 0 {
		return model.FormatDuration(time.Duration(mins) * time.Minute)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		if d, ok := parseISODuration(s); ok {
			return model.FormatDuration(d)
		}
		return s
	}
	return gap(dep, arr)
}

func gap(dep, arr string) string {
	d, err1 := time.Parse(time.RFC3339, dep)
	a, err2 := time.Parse(time.RFC3339, arr)
	if err1 != nil || err2 != nil || a.Before(d) {
		return ""
	}
	return model.FormatDuration(a.Sub(d))
}

func parseISODuration(s string) (time.Duration, bool) {
	s = strings.ToUpper(s)
	if !strings.HasPrefix(s, "PT") {
		return 0, false
	}
	d, err := time.ParseDuration(strings.ToLower(strings.TrimPrefix(s, "PT")))
	if err != nil {
		return 0, false
	}
	return d, true
}
