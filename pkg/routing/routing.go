// Package routing asks an OSRM compatible service for the driving route
// between two points.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kitchenbot/pkg/models"
)

type Route struct {
	Geometry []models.Coordinates `json:"geometry"`
	Duration time.Duration        `json:"duration"`
	Distance float64              `json:"distance"` // meters
}

type Router interface {
	Route(ctx context.Context, from, to models.Coordinates) (*Route, error)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

func (c *Client) Route(ctx context.Context, from, to models.Coordinates) (*Route, error) {
	// OSRM takes lng,lat pairs.
	path := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f", c.baseURL, from.Lng, from.Lat, to.Lng, to.Lat)
	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", "geojson")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("routing request: %w", err)
	}
	defer resp.Body.Close()

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("routing response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || body.Code != "Ok" {
		return nil, fmt.Errorf("routing failed: status %d, code %q: %s", resp.StatusCode, body.Code, body.Message)
	}
	if len(body.Routes) == 0 {
		return nil, fmt.Errorf("routing failed: no route")
	}

	r := body.Routes[0]
	route := &Route{
		Duration: time.Duration(r.Duration * float64(time.Second)),
		Distance: r.Distance,
		Geometry: make([]models.Coordinates, 0, len(r.Geometry.Coordinates)),
	}
	for _, p := range r.Geometry.Coordinates {
		route.Geometry = append(route.Geometry, models.Coordinates{Lat: p[1], Lng: p[0]})
	}
	return route, nil
}
