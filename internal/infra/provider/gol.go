package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/adapter"
	"booking-scraper-service/internal/infra/logging"
)

const golSuggestions = `.cdk-overlay-pane mat-option, .cdk-overlay-pane gds-list-item, .cdk-overlay-pane div[role="option"], .cdk-overlay-pane li`

var (
	golCookies  = adapter.Locator{CSS: "button", Text: `aceitar|concordo|fechar`}
	golLocator  = adapter.Locator{CSS: `input[name="codigoReserva"], #input-reservation-ticket`}
	golOrigin   = adapter.Locator{CSS: `input[name="origem"], #input-departure`}
	golLastName = adapter.Locator{CSS: `input[name="sobrenome"], #input-last-name`}
	golSubmit   = adapter.Locator{CSS: `button[type="submit"], gds-button`, Text: `encontrar|continuar`}
	golOverlay  = adapter.Locator{CSS: ".cdk-overlay-pane"}
	golLoading  = adapter.Locator{CSS: `#loadMytravel gds-progress-bar > div, gds-loader, [role="progressbar"]`}
)

// Gol fills the Angular "find trip" form, resolving the origin airport
// through its autocomplete, then waits for the results page to settle while
// keeping the latest booking payload seen on the wire.
type Gol struct {
	portal
}

func NewGol(base portal) *Gol { return &Gol{portal: base} }

func (s *Gol) Provider() model.Provider { return model.ProviderGol }

func (s *Gol) Validate(req model.LookupRequest) error {
	return requireField(model.ProviderGol, "lastName", req.LastName)
}

func (s *Gol) Run(ctx context.Context, page adapter.Page, req model.LookupRequest) (*model.BookingRecord, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}
	log := logging.With(ctx, s.log)

	responses, stop := page.Subscribe(jsonResponses("", "retrieve", "Booking"))
	var slot payloadSlot
	collected := collect(responses, hasGolPNR, &slot)
	defer func() {
		stop()
		<-collected
	}()

	if err := s.navigate(ctx, page, s.cfg.GolURL); err != nil {
		return nil, err
	}
	s.dismiss(ctx, page, golCookies, 5*time.Second)

	if err := page.WaitVisible(ctx, golLocator, s.cfg.ElementTimeout); err != nil {
		return nil, err
	}
	if err := page.Fill(ctx, golLocator, req.Locator); err != nil {
		return nil, err
	}

	if req.Origin != "" {
		if err := s.selectOrigin(ctx, page, req.Origin); err != nil {
			return nil, err
		}
	}

	if err := page.WaitVisible(ctx, golLastName, s.cfg.ElementTimeout); err != nil {
		return nil, err
	}
	if err := page.Fill(ctx, golLastName, req.LastName); err != nil {
		return nil, err
	}

	log.Debug().Msg("form filled, submitting")
	if err := page.Focus(ctx, golSubmit); err != nil {
		return nil, err
	}
	if err := page.Click(ctx, golSubmit); err != nil {
		return nil, err
	}

	if err := AwaitStable(ctx, s.cfg.Stability, s.probe(page, req.Locator)); err != nil {
		return nil, err
	}

	stop()
	<-collected
	body := slot.load()
	if body == nil {
		return nil, fmt.Errorf("%w: results rendered but no booking payload was observed", domain.ErrParse)
	}
	return parseGol(body, s.loc)
}

// selectOrigin types the airport code and picks it from the suggestion
// list: exact match first, then the first suggestion, then the keyboard.
// The field must end up containing the code.
func (s *Gol) selectOrigin(ctx context.Context, page adapter.Page, origin string) error {
	log := logging.With(ctx, s.log)

	if err := page.WaitVisible(ctx, golOrigin, s.cfg.ElementTimeout); err != nil {
		return err
	}
	if err := page.Click(ctx, golOrigin); err != nil {
		return err
	}
	if err := page.Clear(ctx, golOrigin); err != nil {
		return err
	}
	if err := page.TypeSlowly(ctx, golOrigin, origin, s.cfg.TypingDelay); err != nil {
		return err
	}

	selected := false
	if page.WaitVisible(ctx, golOverlay, 5*time.Second) == nil {
		exact := adapter.Locator{CSS: golSuggestions, Text: regexp.QuoteMeta(origin)}
		first := adapter.Locator{CSS: golSuggestions}
		for _, cand := range []adapter.Locator{exact, first} {
			if page.WaitVisible(ctx, cand, 2*time.Second) != nil {
				continue
			}
			if err := page.Click(ctx, cand); err == nil {
				selected = true
				break
			}
		}
	}

	if !selected {
		log.Debug().Msg("no clickable suggestion, selecting with the keyboard")
		if err := page.Focus(ctx, golOrigin); err != nil {
			return err
		}
		if err := s.sleep(ctx, 500*time.Millisecond); err != nil {
			return err
		}
		if err := page.PressKey(ctx, adapter.KeyArrowDown); err != nil {
			return err
		}
		if err := s.sleep(ctx, 300*time.Millisecond); err != nil {
			return err
		}
		if err := page.PressKey(ctx, adapter.KeyEnter); err != nil {
			return err
		}
	}

	if err := s.sleep(ctx, time.Second); err != nil {
		return err
	}
	value, err := page.InputValue(ctx, golOrigin)
	if err != nil {
		return err
	}
	if !strings.Contains(strings.ToUpper(value), strings.ToUpper(origin)) {
		return fmt.Errorf("%w: origin field reads %q after selecting %s", domain.ErrAutocomplete, value, origin)
	}
	return nil
}

func (s *Gol) probe(page adapter.Page, locator string) Probe {
	return func(ctx context.Context) (Signals, error) {
		var sig Signals

		notFound, err := page.HasText(ctx, "não foi encontrada")
		if err != nil {
			return sig, err
		}
		if notFound {
			sig.Failure = fmt.Errorf("%w: GOL reports no matching reservation", domain.ErrNotFound)
			return sig, nil
		}
		invalid, err := page.HasText(ctx, "Verifique os dados")
		if err != nil {
			return sig, err
		}
		if invalid {
			sig.Failure = fmt.Errorf("%w: GOL rejected the lookup data", domain.ErrValidation)
			return sig, nil
		}

		if sig.Loading, err = page.IsVisible(ctx, golLoading); err != nil {
			return sig, err
		}
		if sig.Success, err = page.HasText(ctx, "Código da reserva"); err != nil {
			return sig, err
		}
		if !sig.Success && !sig.Loading {
			if sig.Success, err = page.HasText(ctx, locator); err != nil {
				return sig, err
			}
		}
		return sig, nil
	}
}

type golEnvelope struct {
	Response *struct {
		PnrRetrieveResponse *struct {
			Pnr *golPNR `json:"pnr"`
		} `json:"pnrRetrieveResponse"`
	} `json:"response"`
	Pnr *golPNR `json:"pnr"`
}

func (e golEnvelope) pnr() *golPNR {
	if e.Response != nil && e.Response.PnrRetrieveResponse != nil && e.Response.PnrRetrieveResponse.Pnr != nil {
		return e.Response.PnrRetrieveResponse.Pnr
	}
	return e.Pnr
}

type golPNR struct {
	Itinerary struct {
		ItineraryParts []struct {
			Segments []struct {
				Flight struct {
					AirlineCode  string     `json:"airlineCode"`
					FlightNumber flexString `json:"flightNumber"`
				} `json:"flight"`
				Origin      string `json:"origin"`
				Destination string `json:"destination"`
				Departure   string `json:"departure"`
				Arrival     string `json:"arrival"`
				Duration    int    `json:"duration"` // minutes
			} `json:"segments"`
		} `json:"itineraryParts"`
	} `json:"itinerary"`
	Passengers []struct {
		PassengerDetails struct {
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
		} `json:"passengerDetails"`
	} `json:"passengers"`
}

func hasGolPNR(body []byte) bool {
	var e golEnvelope
	return json.Unmarshal(body, &e) == nil && e.pnr() != nil
}

func parseGol(body []byte, loc *time.Location) (*model.BookingRecord, error) {
	var e golEnvelope
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: GOL payload: %v", domain.ErrParse, err)
	}
	pnr := e.pnr()
	if pnr == nil {
		return nil, fmt.Errorf("%w: GOL payload has no pnr", domain.ErrParse)
	}

	trips := make([]model.Trip, 0, len(pnr.Itinerary.ItineraryParts))
	for _, part := range pnr.Itinerary.ItineraryParts {
		var trip model.Trip
		for _, seg := range part.Segments {
			dep, err := model.CanonicalTime(seg.Departure, loc)
			if err != nil {
				return nil, err
			}
			arr, err := model.CanonicalTime(seg.Arrival, loc)
			if err != nil {
				return nil, err
			}
			trip.Segments = append(trip.Segments, model.Segment{
				FlightNumber: seg.Flight.AirlineCode + string(seg.Flight.FlightNumber),
				Carrier:      seg.Flight.AirlineCode,
				Origin:       seg.Origin,
				Destination:  seg.Destination,
				Departure:    dep,
				Arrival:      arr,
				Duration:     model.FormatDuration(time.Duration(seg.Duration) * time.Minute),
			})
		}
		trips = append(trips, trip)
	}

	passengers := make([]model.Passenger, 0, len(pnr.Passengers))
	for _, p := range pnr.Passengers {
		passengers = append(passengers, model.Passenger{
			Name: fullName(p.PassengerDetails.FirstName, p.PassengerDetails.LastName),
			// The retrieve payload carries no baggage detail; every GOL fare
			// includes the personal item and carry-on.
			Baggage: &model.Baggage{PersonalItem: true, CarryOn: true},
		})
	}

	return model.NewBookingRecord(model.ProviderGol, trips, passengers)
}
