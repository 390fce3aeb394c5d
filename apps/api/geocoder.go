package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultNominatimBaseURL = "https://nominatim.openstreetmap.org"

var geocoderProviders = []string{"offline", "nominatim"}

// GeocodeResult is a human readable label for a reported coordinate.
type GeocodeResult struct {
	Address  string
	Locality string
	State    string
}

func (r GeocodeResult) Label() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{r.Address, r.Locality, r.State} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}

// Geocoder turns coordinates into a location label. A nil result with a nil
// error means nothing was found.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*GeocodeResult, error)
}

// MunicipalityGeocoder labels a point with the nearest municipality. It
// never leaves the process.
type MunicipalityGeocoder struct{}

func (MunicipalityGeocoder) ReverseGeocode(_ context.Context, lat, lng float64) (*GeocodeResult, error) {
	m, _ := findNearestMunicipality(lat, lng)
	if m.ID == "" {
		return nil, nil
	}
	locality := m.Name
	if len(m.Districts) > 0 {
		locality = m.Districts[0]
	}
	return &GeocodeResult{Locality: locality, State: m.State}, nil
}

// NominatimGeocoder uses OSM Nominatim.
// CAUTION: Requires User-Agent and has strict rate limits (1 req/sec)
type NominatimGeocoder struct {
	BaseURL   string
	UserAgent string
	Language  string
	Client    *http.Client

	mu       sync.Mutex
	lastCall time.Time
}

func (g *NominatimGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (*GeocodeResult, error) {
	g.mu.Lock()
	elapsed := time.Since(g.lastCall)
	if !g.lastCall.IsZero() && elapsed < time.Second {
		select {
		case <-time.After(time.Second - elapsed):
		case <-ctx.Done():
			g.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	g.lastCall = time.Now()
	g.mu.Unlock()

	base := g.BaseURL
	if base == "" {
		base = defaultNominatimBaseURL
	}
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", fmt.Sprintf("%f", lat))
	query.Set("lon", fmt.Sprintf("%f", lng))
	query.Set("addressdetails", "1")
	u := strings.TrimRight(base, "/") + "/reverse?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.UserAgent)
	if g.Language != "" {
		req.Header.Set("Accept-Language", g.Language)
	}

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim error: %d", resp.StatusCode)
	}

	var data struct {
		Address struct {
			Road          string `json:"road"`
			Neighbourhood string `json:"neighbourhood"`
			Suburb        string `json:"suburb"`
			City          string `json:"city"`
			Town          string `json:"town"`
			Village       string `json:"village"`
			State         string `json:"state"`
		} `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	locality := data.Address.City
	if locality == "" {
		locality = data.Address.Town
	}
	if locality == "" {
		locality = data.Address.Village
	}

	addr := data.Address.Road
	if area := firstNonEmpty(data.Address.Neighbourhood, data.Address.Suburb); area != "" {
		if addr == "" {
			addr = area
		} else {
			addr = addr + ", " + area
		}
	}

	if addr == "" && locality == "" {
		return nil, nil
	}
	return &GeocodeResult{Address: addr, Locality: locality, State: data.Address.State}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// FallbackGeocoder prioritizes first, falls back to second
type FallbackGeocoder struct {
	Primary   Geocoder
	Secondary Geocoder
}

func (g *FallbackGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (*GeocodeResult, error) {
	res, err := g.Primary.ReverseGeocode(ctx, lat, lng)
	if err != nil || res == nil {
		return g.Secondary.ReverseGeocode(ctx, lat, lng)
	}
	return res, nil
}

func newGeocoder(cfg *Config) Geocoder {
	if cfg != nil && cfg.GeocoderProvider == "nominatim" {
		return &FallbackGeocoder{
			Primary: &NominatimGeocoder{
				UserAgent: cfg.NominatimUserAgent,
				Language:  cfg.DefaultLanguage,
				Client:    &http.Client{Timeout: 10 * time.Second},
			},
			Secondary: MunicipalityGeocoder{},
		}
	}
	return MunicipalityGeocoder{}
}

// fillReportLocation labels a report submitted without location text. A
// label typed by the citizen in the meantime wins.
func (a *App) fillReportLocation(ctx context.Context, id string, lat, lng float64) error {
	result, err := a.geocoder.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return fmt.Errorf("reverse geocode: %w", err)
	}
	if result == nil || result.Label() == "" {
		return nil
	}
	label := result.Label()

	_, err = a.mutateReports(ctx, func(reports []Report) ([]Report, error) {
		idx := findReportIndex(reports, id)
		if idx < 0 || reports[idx].Location != "" {
			return nil, errReportsUnchanged
		}
		reports[idx].Location = label
		return reports, nil
	})
	return err
}
