package safety

import (
	"encoding/json"

	"github.com/mattermost/mattermost-plugin-safewalk/server/geo"
)

// Rating is the severity label the service attaches to an incident location.
type Rating string

const (
	RatingLow      Rating = "Low"
	RatingModerate Rating = "Moderate"
	RatingHigh     Rating = "High"
)

// ProximityStatus is the verdict of a proximity check.
type ProximityStatus string

const (
	StatusSafe   ProximityStatus = "safe"
	StatusDanger ProximityStatus = "danger"
)

// Incident is a reported high-crime location near the user.
// Wire format: {"id", "NearestIntersectionLocation", "rating", "crime_rate", "distance", "Latitude", "Longitude"}.
type Incident struct {
	ID             string         `json:"id"`
	Location       string         `json:"NearestIntersectionLocation"`
	Rating         Rating         `json:"rating"`
	CrimeRate      float64        `json:"crime_rate"`
	DistanceMeters float64        `json:"distance"`
	Coordinate     geo.Coordinate `json:"-"`
}

// UnmarshalJSON flattens the wire coordinate and falls back to the Mongo-style "_id"
// when "id" is absent.
func (i *Incident) UnmarshalJSON(data []byte) error {
	// Alias drops the methods so json.Unmarshal does not recurse into this one.
	type Alias Incident
	aux := &struct {
		LegacyID  string  `json:"_id"`
		Latitude  float64 `json:"Latitude"`
		Longitude float64 `json:"Longitude"`
		*Alias
	}{
		Alias: (*Alias)(i),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if i.ID == "" {
		i.ID = aux.LegacyID
	}
	i.Coordinate = geo.Coordinate{Latitude: aux.Latitude, Longitude: aux.Longitude}
	return nil
}

// MarshalJSON writes the incident in its wire format.
func (i Incident) MarshalJSON() ([]byte, error) {
	type Alias Incident
	return json.Marshal(&struct {
		Latitude  float64 `json:"Latitude"`
		Longitude float64 `json:"Longitude"`
		Alias
	}{
		Latitude:  i.Coordinate.Latitude,
		Longitude: i.Coordinate.Longitude,
		Alias:     Alias(i),
	})
}

// Route is a walking route returned by the routing endpoint.
type Route struct {
	// Polyline is the encoded overview geometry.
	Polyline string `json:"overview_polyline"`

	// Destination is the resolved destination coordinate.
	Destination geo.Coordinate `json:"-"`

	// NearbyIncidents are incidents along the route, for display only.
	NearbyIncidents []Incident `json:"nearby_crimes,omitempty"`
}

type directionsRoute struct {
	OverviewPolyline struct {
		Points string `json:"points"`
	} `json:"overview_polyline"`
	Legs []struct {
		EndLocation struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"end_location"`
	} `json:"legs"`
}

// UnmarshalJSON accepts the flat form
// {"overview_polyline": "...", "destination_lat", "destination_lng", "nearby_crimes"}
// and a proxied Google Directions document
// {"routes": [{"overview_polyline": {"points": "..."}, "legs": [{"end_location": {...}}]}]}.
func (r *Route) UnmarshalJSON(data []byte) error {
	aux := struct {
		OverviewPolyline json.RawMessage   `json:"overview_polyline"`
		DestinationLat   float64           `json:"destination_lat"`
		DestinationLng   float64           `json:"destination_lng"`
		NearbyCrimes     []Incident        `json:"nearby_crimes"`
		Routes           []directionsRoute `json:"routes"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*r = Route{
		Destination:     geo.Coordinate{Latitude: aux.DestinationLat, Longitude: aux.DestinationLng},
		NearbyIncidents: aux.NearbyCrimes,
	}

	if len(aux.OverviewPolyline) > 0 && string(aux.OverviewPolyline) != "null" {
		if err := json.Unmarshal(aux.OverviewPolyline, &r.Polyline); err != nil {
			return err
		}
		return nil
	}

	if len(aux.Routes) > 0 {
		first := aux.Routes[0]
		r.Polyline = first.OverviewPolyline.Points
		if n := len(first.Legs); n > 0 {
			end := first.Legs[n-1].EndLocation
			r.Destination = geo.Coordinate{Latitude: end.Lat, Longitude: end.Lng}
		}
	}

	return nil
}

// MarshalJSON writes the route in its flat wire format.
func (r Route) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Polyline        string     `json:"overview_polyline"`
		DestinationLat  float64    `json:"destination_lat"`
		DestinationLng  float64    `json:"destination_lng"`
		NearbyIncidents []Incident `json:"nearby_crimes,omitempty"`
	}{
		Polyline:        r.Polyline,
		DestinationLat:  r.Destination.Latitude,
		DestinationLng:  r.Destination.Longitude,
		NearbyIncidents: r.NearbyIncidents,
	})
}

// ProximityResult is the verdict for a single position.
type ProximityResult struct {
	Status    ProximityStatus `json:"status"`
	Incidents []Incident      `json:"nearby_crimes,omitempty"`
}

// IsDanger reports whether the result carries incidents to warn about.
func (p *ProximityResult) IsDanger() bool {
	return p != nil && p.Status == StatusDanger && len(p.Incidents) > 0
}

type routeRequest struct {
	OriginLat   float64 `json:"origin_lat"`
	OriginLng   float64 `json:"origin_lng"`
	Destination string  `json:"destination"`
}

type positionRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// errorResponse is the body the service returns with 4xx/5xx statuses.
// Format: {"error": "Invalid input"}
type errorResponse struct {
	Error string `json:"error"`
}
