// Package opensky queries the OpenSky Network /states/all endpoint for aircraft
// inside a bounding box. Access is anonymous.
package opensky

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rewired-gh/strikewatch/internal/fetch"
)

// stateFields is the minimum length of a usable state vector.
const stateFields = 17

// BoundingBox is a named latitude/longitude rectangle
type BoundingBox struct {
	Name  string  `mapstructure:"name"`
	LaMin float64 `mapstructure:"lamin"`
	LaMax float64 `mapstructure:"lamax"`
	LoMin float64 `mapstructure:"lomin"`
	LoMax float64 `mapstructure:"lomax"`
}

// Validate checks that the box is well formed
func (b BoundingBox) Validate() error {
	if b.LaMin >= b.LaMax {
		return fmt.Errorf("lamin (%g) must be less than lamax (%g)", b.LaMin, b.LaMax)
	}
	if b.LoMin >= b.LoMax {
		return fmt.Errorf("lomin (%g) must be less than lomax (%g)", b.LoMin, b.LoMax)
	}
	if b.LaMin < -90 || b.LaMax > 90 || b.LoMin < -180 || b.LoMax > 180 {
		return fmt.Errorf("bounding box %q out of range", b.Name)
	}
	return nil
}

// State is one aircraft state vector
type State struct {
	ICAO24        string   `json:"icao24"`
	Callsign      string   `json:"callsign"`
	OriginCountry string   `json:"origin_country"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Altitude      *float64 `json:"altitude"`
	OnGround      bool     `json:"on_ground"`
	Velocity      *float64 `json:"velocity"`
}

// Response is the decoded /states/all payload
type Response struct {
	Time   int64
	States []State
}

// Fetcher is the subset of fetch.Client the OpenSky client needs
type Fetcher interface {
	GetJSON(ctx context.Context, rawURL string, query url.Values, header http.Header, out any) error
}

// Client provides access to the OpenSky REST API
type Client struct {
	apiBaseURL string
	fetcher    Fetcher
}

// NewClient creates a new OpenSky client
func NewClient(apiBaseURL string, fetcher Fetcher) *Client {
	return &Client{
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		fetcher:    fetcher,
	}
}

// States returns the aircraft reported inside box.
// A null states array is a valid empty result. A payload without "time" is malformed.
func (c *Client) States(ctx context.Context, box BoundingBox) (*Response, error) {
	query := url.Values{}
	query.Set("lamin", formatCoord(box.LaMin))
	query.Set("lamax", formatCoord(box.LaMax))
	query.Set("lomin", formatCoord(box.LoMin))
	query.Set("lomax", formatCoord(box.LoMax))

	var raw struct {
		Time   *int64              `json:"time"`
		States [][]json.RawMessage `json:"states"`
	}
	if err := c.fetcher.GetJSON(ctx, c.apiBaseURL+"/states/all", query, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch states for %s: %w", box.Name, err)
	}
	if raw.Time == nil {
		return nil, fmt.Errorf("states for %s: %w: time", box.Name, fetch.ErrMissingField)
	}

	resp := &Response{Time: *raw.Time, States: make([]State, 0, len(raw.States))}
	for _, row := range raw.States {
		state, ok := parseState(row)
		if !ok {
			continue
		}
		resp.States = append(resp.States, state)
	}
	if len(raw.States) > 0 && len(resp.States) == 0 {
		return nil, fmt.Errorf("states for %s: %w: none of %d rows usable", box.Name, fetch.ErrMissingField, len(raw.States))
	}
	return resp, nil
}

// Airborne returns the states that are not on the ground
func (r *Response) Airborne() []State {
	out := make([]State, 0, len(r.States))
	for _, s := range r.States {
		if !s.OnGround {
			out = append(out, s)
		}
	}
	return out
}

// parseState decodes one positional state vector.
// Indices: 0 icao24, 1 callsign, 2 origin_country, 5 longitude, 6 latitude,
// 7 baro_altitude, 8 on_ground, 9 velocity, 13 geo_altitude.
func parseState(row []json.RawMessage) (State, bool) {
	if len(row) < stateFields {
		return State{}, false
	}

	var s State
	if json.Unmarshal(row[0], &s.ICAO24) != nil || s.ICAO24 == "" {
		return State{}, false
	}
	var callsign *string
	_ = json.Unmarshal(row[1], &callsign)
	if callsign != nil {
		s.Callsign = strings.TrimSpace(*callsign)
	}
	_ = json.Unmarshal(row[2], &s.OriginCountry)
	s.Longitude = number(row[5])
	s.Latitude = number(row[6])
	s.Altitude = number(row[7])
	if s.Altitude == nil || *s.Altitude == 0 {
		if geo := number(row[13]); geo != nil {
			s.Altitude = geo
		}
	}
	_ = json.Unmarshal(row[8], &s.OnGround)
	s.Velocity = number(row[9])

	return s, true
}

func number(raw json.RawMessage) *float64 {
	var v *float64
	if json.Unmarshal(raw, &v) != nil {
		return nil
	}
	return v
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
