// README: Address search backed by the Google Geocoding API. Turns free-form
// queries and CEPs into structured candidates shippers pick from when
// creating an order.
package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"levo/internal/types"
)

// ErrAddressNotFound means the query geocoded to nothing usable.
var ErrAddressNotFound = errors.New("address not found")

const maxCandidates = 5

// Candidate is one structured geocoding result.
type Candidate struct {
	Label      string      `json:"label"`
	Street     string      `json:"street"`
	Number     string      `json:"number"`
	District   string      `json:"district"`
	City       string      `json:"city"`
	State      string      `json:"state"`
	PostalCode string      `json:"postal_code"`
	Position   types.Point `json:"position"`
}

// GeocodeService handles interactions with the Google Geocoding API.
type GeocodeService struct {
	client *maps.Client
}

// NewGeocodeService creates a GeocodeService with the given API key.
func NewGeocodeService(apiKey string) (*GeocodeService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GeocodeService{client: client}, nil
}

// SearchAddress geocodes a free-form query and returns up to five candidates.
// Results are biased to Brazil, matching where orders run.
func (s *GeocodeService) SearchAddress(ctx context.Context, query string) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrAddressNotFound
	}

	r := &maps.GeocodingRequest{
		Address:  query,
		Region:   "BR",
		Language: "pt-BR",
	}
	resp, err := s.client.Geocode(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("geocoding api error: %w", err)
	}

	var results []Candidate
	for _, result := range resp {
		c := fromGeocodingResult(result)
		// Results without a city or coordinates cannot anchor an order.
		if c.City == "" {
			continue
		}
		results = append(results, c)
		if len(results) >= maxCandidates {
			break
		}
	}
	if len(results) == 0 {
		return nil, ErrAddressNotFound
	}
	return results, nil
}

// FromPostalCode geocodes a CEP and returns the single best candidate.
func (s *GeocodeService) FromPostalCode(ctx context.Context, cep string) (Candidate, error) {
	cep = strings.TrimSpace(cep)
	if cep == "" {
		return Candidate{}, ErrAddressNotFound
	}
	results, err := s.SearchAddress(ctx, cep)
	if err != nil {
		return Candidate{}, err
	}
	return results[0], nil
}

func fromGeocodingResult(r maps.GeocodingResult) Candidate {
	c := Candidate{
		Label: r.FormattedAddress,
		Position: types.Point{
			Lat: r.Geometry.Location.Lat,
			Lng: r.Geometry.Location.Lng,
		},
	}
	for _, comp := range r.AddressComponents {
		for _, t := range comp.Types {
			switch t {
			case "route":
				c.Street = comp.LongName
			case "street_number":
				c.Number = comp.LongName
			case "sublocality", "sublocality_level_1":
				c.District = comp.LongName
			case "administrative_area_level_2", "locality":
				c.City = comp.LongName
			case "administrative_area_level_1":
				c.State = comp.ShortName
			case "postal_code":
				c.PostalCode = comp.LongName
			}
		}
	}
	return c
}
