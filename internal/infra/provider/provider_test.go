//go:build !integration

package provider

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"booking-scraper-service/internal/config"
	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/adapter"
)

func TestAwaitStable(t *testing.T) {
	cfg := config.StabilityConfig{Interval: 5 * time.Millisecond, Window: 40 * time.Millisecond, Timeout: 400 * time.Millisecond}
	ctx := context.Background()

	t.Run("loading then held success reports success once", func(t *testing.T) {
		var calls atomic.Int32
		probe := func(ctx context.Context) (Signals, error) {
			if calls.Add(1) <= 3 {
				return Signals{Loading: true}, nil
			}
			return Signals{Success: true}, nil
		}

		start := time.Now()
		if err := AwaitStable(ctx, cfg, probe); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if time.Since(start) < cfg.Window {
			t.Error("success reported before the stability window elapsed")
		}
		seen := calls.Load()
		time.Sleep(20 * time.Millisecond)
		if calls.Load() != seen {
			t.Error("probe kept running after success was reported")
		}
	})

	t.Run("flickering success never settles", func(t *testing.T) {
		var calls atomic.Int32
		probe := func(ctx context.Context) (Signals, error) {
			// Success for two polls (10ms), then a loading blip.
			if calls.Add(1)%3 == 0 {
				return Signals{Loading: true}, nil
			}
			return Signals{Success: true}, nil
		}
		if err := AwaitStable(ctx, cfg, probe); !errors.Is(err, domain.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("portal error ends the wait immediately", func(t *testing.T) {
		var calls atomic.Int32
		probe := func(ctx context.Context) (Signals, error) {
			calls.Add(1)
			return Signals{Failure: domain.ErrNotFound}, nil
		}
		if err := AwaitStable(ctx, cfg, probe); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("expected a single probe, got %d", calls.Load())
		}
	})

	t.Run("cancelled context stops polling", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		probe := func(ctx context.Context) (Signals, error) { return Signals{}, nil }
		if err := AwaitStable(cctx, cfg, probe); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestRegistry_Lookup(t *testing.T) {
	base := testPortal(t)
	reg := NewRegistry(NewLatam(base), NewGol(base), NewAzul(base))

	for _, p := range model.Providers {
		s, err := reg.Lookup(p)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", p, err)
		}
		if s.Provider() != p {
			t.Errorf("Lookup(%s) returned %s strategy", p, s.Provider())
		}
	}
	if _, err := reg.Lookup("KLM"); !errors.Is(err, domain.ErrProviderUnsupported) {
		t.Errorf("expected ErrProviderUnsupported, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := testPortal(t)
	cases := []struct {
		name    string
		s       adapter.Strategy
		req     model.LookupRequest
		wantErr bool
	}{
		{"latam needs last name", NewLatam(base), model.LookupRequest{Locator: "ABCDEF"}, true},
		{"latam ok", NewLatam(base), model.LookupRequest{Locator: "ABCDEF", LastName: "SILVA"}, false},
		{"gol needs last name", NewGol(base), model.LookupRequest{Locator: "ABCDEF", Origin: "GRU"}, true},
		{"gol origin optional", NewGol(base), model.LookupRequest{Locator: "ABCDEF", LastName: "SOUZA"}, false},
		{"azul needs origin", NewAzul(base), model.LookupRequest{Locator: "ABCDEF", LastName: "LIMA"}, true},
		{"azul last name optional", NewAzul(base), model.LookupRequest{Locator: "ABCDEF", Origin: "VCP"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.s.Validate(tc.req)
			if tc.wantErr && !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestAzul_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("missing origin fails before touching the page", func(t *testing.T) {
		page := &fakePage{}
		_, err := NewAzul(testPortal(t)).Run(ctx, page, model.LookupRequest{Provider: model.ProviderAzul, Locator: "ABCDEF"})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if calls := page.Calls(); len(calls) != 0 {
			t.Errorf("expected no page interaction, got %v", calls)
		}
	})

	t.Run("deep link and journeys payload", func(t *testing.T) {
		body := fixture(t, "azul_journeys.json")
		page := &fakePage{
			OnNavigate: func(p *fakePage, url string) {
				p.emitJSON("https://www.voeazul.com.br/api/config", []byte(`{"features":[]}`))
				p.emitJSON("https://b2c-api.voeazul.com.br/reservation", body)
			},
		}

		rec, err := NewAzul(testPortal(t)).Run(ctx, page, model.LookupRequest{Provider: model.ProviderAzul, Locator: "ABCDEF", Origin: "VCP"})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !contains(page.Calls(), "navigate:https://azul.example/minhas-viagens?origin=VCP&pnr=ABCDEF") {
			t.Errorf("unexpected navigation: %v", page.Calls())
		}
		if rec.Origin != "VCP" || rec.Destination != "SSA" || rec.FlightNumber != "AD4050" {
			t.Errorf("unexpected summary: %+v", rec)
		}
		if len(rec.Passengers) != 1 || rec.Passengers[0].Seat != "14C" || !rec.Passengers[0].Baggage.Checked {
			t.Errorf("unexpected passengers: %+v", rec.Passengers)
		}
	})

	t.Run("navigation failure is a connection error", func(t *testing.T) {
		page := &fakePage{NavigateErr: errors.New("net::ERR_PROXY_CONNECTION_FAILED")}
		_, err := NewAzul(testPortal(t)).Run(ctx, page, model.LookupRequest{Locator: "ABCDEF", Origin: "VCP"})
		if !errors.Is(err, domain.ErrConnection) {
			t.Fatalf("expected ErrConnection, got %v", err)
		}
	})

	t.Run("no journeys payload times out", func(t *testing.T) {
		page := &fakePage{}
		_, err := NewAzul(testPortal(t)).Run(ctx, page, model.LookupRequest{Locator: "ABCDEF", Origin: "VCP"})
		if !errors.Is(err, domain.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	})
}

func golPage(body []byte) *fakePage {
	return &fakePage{
		VisibleFunc: func(loc adapter.Locator) bool { return loc != golLoading },
		HasTextFunc: func(text string) bool { return text == "Código da reserva" },
		ValueFunc:   func(adapter.Locator) string { return "São Paulo - Guarulhos (GRU)" },
		OnClick: func(p *fakePage, loc adapter.Locator) {
			if loc == golSubmit && body != nil {
				p.emitJSON("https://gol.example/api/pnr/retrieve", []byte(`{"status":"pending"}`))
				p.emitJSON("https://gol.example/api/pnr/retrieve", body)
			}
		},
	}
}

func TestGol_Run(t *testing.T) {
	ctx := context.Background()
	req := model.LookupRequest{Provider: model.ProviderGol, Locator: "XYZ123", LastName: "SOUZA", Origin: "GRU"}

	t.Run("autocomplete suggestion then settled results", func(t *testing.T) {
		page := golPage(fixture(t, "gol_retrieve.json"))

		rec, err := NewGol(testPortal(t)).Run(ctx, page, req)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		calls := page.Calls()
		if !contains(calls, "type:"+golOrigin.CSS+"=GRU") || !contains(calls, "click:"+golSuggestions) {
			t.Errorf("origin not typed and picked from suggestions: %v", calls)
		}
		if contains(calls, "press:ArrowDown") {
			t.Error("keyboard fallback used although a suggestion was clickable")
		}
		if rec.FlightNumber != "G31234" || rec.Origin != "GRU" || rec.Destination != "SSA" {
			t.Errorf("unexpected summary: %+v", rec)
		}
		if rec.DepartureDateTime != "2025-04-10T11:15:00Z" {
			t.Errorf("departure not normalized to UTC: %s", rec.DepartureDateTime)
		}
	})

	t.Run("keyboard fallback when no overlay appears", func(t *testing.T) {
		page := golPage(fixture(t, "gol_retrieve.json"))
		page.VisibleFunc = func(loc adapter.Locator) bool { return loc != golLoading && loc != golOverlay }

		if _, err := NewGol(testPortal(t)).Run(ctx, page, req); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !contains(page.Calls(), "press:ArrowDown") || !contains(page.Calls(), "press:Enter") {
			t.Errorf("expected ArrowDown+Enter, got %v", page.Calls())
		}
	})

	t.Run("wrong airport selected", func(t *testing.T) {
		page := golPage(fixture(t, "gol_retrieve.json"))
		page.ValueFunc = func(adapter.Locator) string { return "São Paulo - Congonhas (CGH)" }

		_, err := NewGol(testPortal(t)).Run(ctx, page, req)
		if !errors.Is(err, domain.ErrAutocomplete) {
			t.Fatalf("expected ErrAutocomplete, got %v", err)
		}
		if contains(page.Calls(), "click:"+golSubmit.CSS) {
			t.Error("form submitted with the wrong origin")
		}
	})

	t.Run("portal reports no reservation", func(t *testing.T) {
		page := golPage(nil)
		page.HasTextFunc = func(text string) bool { return text == "não foi encontrada" }

		if _, err := NewGol(testPortal(t)).Run(ctx, page, req); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("settled page without payload", func(t *testing.T) {
		page := golPage(nil)

		if _, err := NewGol(testPortal(t)).Run(ctx, page, req); !errors.Is(err, domain.ErrParse) {
			t.Fatalf("expected ErrParse, got %v", err)
		}
	})

	t.Run("loading indicator never clears", func(t *testing.T) {
		page := golPage(fixture(t, "gol_retrieve.json"))
		page.VisibleFunc = func(adapter.Locator) bool { return true }

		if _, err := NewGol(testPortal(t)).Run(ctx, page, req); !errors.Is(err, domain.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	})
}

func TestLatam_Run(t *testing.T) {
	ctx := context.Background()
	body := fixture(t, "latam_trip.json")

	popup := &fakePage{
		OnReload: func(p *fakePage) {
			p.emitJSON("https://latam.example/static/app.js", []byte(`{}`))
			p.emitJSON("https://latam.example/api/boarding-pass/v1/trip", body)
		},
	}
	page := &fakePage{
		VisibleFunc: func(loc adapter.Locator) bool { return loc != latamLocator },
		Popup:       popup,
	}

	rec, err := NewLatam(testPortal(t)).Run(ctx, page, model.LookupRequest{Provider: model.ProviderLatam, Locator: "ABCDEF", LastName: "SILVA"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := page.Calls()
	if !contains(calls, "type:#confirmationCode=ABCDEF") || !contains(calls, "type:input=SILVA") {
		t.Errorf("form not filled as expected: %v", calls)
	}
	if !contains(popup.Calls(), "close") {
		t.Error("popup tab was not closed")
	}
	if n := count(popup.Calls(), "reload"); n != 1 {
		t.Errorf("expected one reload after the missed payload, got %d", n)
	}

	if len(rec.Itinerary) != 2 {
		t.Fatalf("expected outbound and return trips, got %d", len(rec.Itinerary))
	}
	if rec.Origin != "GRU" || rec.Destination != "GRU" || rec.FlightNumber != "LA3040" {
		t.Errorf("unexpected summary: %+v", rec)
	}
	if rec.Itinerary[1].Direction != model.DirectionReturn {
		t.Errorf("second trip should be the return: %+v", rec.Itinerary[1])
	}
	if rec.Passengers[0].Name != "MARIA SILVA" || rec.Passengers[0].Seat != "12A" || rec.Passengers[1].Seat != "" {
		t.Errorf("unexpected passengers: %+v", rec.Passengers)
	}
}

func TestLatam_Run_PayloadOnFirstLoad(t *testing.T) {
	body := fixture(t, "latam_trip.json")
	popup := &fakePage{
		OnSubscribe: func(p *fakePage) {
			p.emitJSON("https://latam.example/api/boarding-pass/v1/trip", body)
		},
	}
	page := &fakePage{
		VisibleFunc: func(loc adapter.Locator) bool { return loc != latamLocator },
		Popup:       popup,
	}

	rec, err := NewLatam(testPortal(t)).Run(context.Background(), page, model.LookupRequest{Provider: model.ProviderLatam, Locator: "ABCDEF", LastName: "SILVA"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.FlightNumber != "LA3040" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if contains(popup.Calls(), "reload") {
		t.Error("popup reloaded although its first load delivered the payload")
	}
}

func TestLatam_Run_LastNameFieldNeverRenders(t *testing.T) {
	page := &fakePage{
		VisibleFunc: func(loc adapter.Locator) bool { return loc != latamLocator && loc != latamLastName },
	}

	_, err := NewLatam(testPortal(t)).Run(context.Background(), page, model.LookupRequest{Provider: model.ProviderLatam, Locator: "ABCDEF", LastName: "SILVA"})
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if contains(page.Calls(), "type:input=SILVA") {
		t.Error("last name typed into a field that never became visible")
	}
}

func TestParseLatam(t *testing.T) {
	loc, _ := time.LoadLocation("America/Sao_Paulo")

	t.Run("durations", func(t *testing.T) {
		rec, err := parseLatam(fixture(t, "latam_trip.json"), loc)
		if err != nil {
			t.Fatalf("parseLatam: %v", err)
		}
		got := []string{
			rec.Itinerary[0].Segments[0].Duration,
			rec.Itinerary[0].Segments[1].Duration,
			rec.Itinerary[1].Segments[0].Duration,
		}
		want := []string{"1h 45m", "2h 30m", "3h 30m"}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("durations = %v, want %v", got, want)
		}
		if rec.Itinerary[0].Segments[1].Destination != "REC" {
			t.Errorf("unexpected segment: %+v", rec.Itinerary[0].Segments[1])
		}
	})

	t.Run("missing itinerary is a parse error", func(t *testing.T) {
		_, err := parseLatam([]byte(`{"passengers":[{"firstName":"A","lastName":"B"}]}`), loc)
		if !errors.Is(err, domain.ErrParse) {
			t.Fatalf("expected ErrParse, got %v", err)
		}
	})
}

func TestParseAzul_SeatList(t *testing.T) {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	body := []byte(`{"journeys":[{"segments":[{"identifier":{"carrierCode":"AD","flightNumber":"2","departureStation":"VCP","arrivalStation":"POA","std":"2025-06-01T06:00:00","sta":"2025-06-01T07:35:00"},
		"passengerSegment":[{"passengerKey":"P1","seat":{"designator":"3A"}}]}]}],
		"passengers":[{"passengerKey":"P1","name":{"first":"Rita","last":"Alves"},"bagCount":0}]}`)

	rec, err := parseAzul(body, loc)
	if err != nil {
		t.Fatalf("parseAzul: %v", err)
	}
	if rec.Passengers[0].Seat != "3A" || rec.Passengers[0].Baggage.Checked {
		t.Errorf("unexpected passenger: %+v", rec.Passengers[0])
	}
	if rec.Itinerary[0].Segments[0].Duration != "1h 35m" {
		t.Errorf("unexpected duration: %s", rec.Itinerary[0].Segments[0].Duration)
	}
	if _, err := parseAzul([]byte(`{"data":{"journeys":[]}}`), loc); !errors.Is(err, domain.ErrParse) {
		t.Errorf("expected ErrParse for empty journeys, got %v", err)
	}
}
