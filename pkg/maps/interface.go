package maps

import "context"

// Geocoder resolves address-only intake locations to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*GeocodeResponse, error)
	ReverseGeocode(ctx context.Context, lat, lng float64) (*GeocodeResponse, error)
}

type GeocodeResponse struct {
	Results []GeocodeResult `json:"results"`
}

type GeocodeResult struct {
	PlaceID     string   `json:"place_id"`
	Address     string   `json:"formatted_address"`
	Coordinates Location `json:"geometry"`
	Types       []string `json:"types"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Best returns the first result, which the provider ranks highest.
func (r *GeocodeResponse) Best() (GeocodeResult, bool) {
	if r == nil || len(r.Results) == 0 {
		return GeocodeResult{}, false
	}
	return r.Results[0], true
}
