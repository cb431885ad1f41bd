package routing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenbot/pkg/models"
)

func TestClientRoute(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"code": "Ok",
			"routes": [{
				"duration": 90.5,
				"distance": 1200.0,
				"geometry": {"coordinates": [[69.24, 41.31], [69.25, 41.30]]}
			}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	route, err := c.Route(context.Background(),
		models.Coordinates{Lat: 41.31, Lng: 69.24},
		models.Coordinates{Lat: 41.30, Lng: 69.25},
	)
	require.NoError(t, err)

	assert.Equal(t, "/route/v1/driving/69.240000,41.310000;69.250000,41.300000", gotPath)
	assert.Contains(t, gotQuery, "geometries=geojson")
	assert.Equal(t, 90500*time.Millisecond, route.Duration)
	assert.Equal(t, 1200.0, route.Distance)
	assert.Equal(t, []models.Coordinates{{Lat: 41.31, Lng: 69.24}, {Lat: 41.30, Lng: 69.25}}, route.Geometry)
}

func TestClientRouteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"no route", http.StatusOK, `{"code":"NoRoute","message":"Impossible route","routes":[]}`},
		{"empty routes", http.StatusOK, `{"code":"Ok","routes":[]}`},
		{"server error", http.StatusBadGateway, `{"code":"Error"}`},
		{"garbage", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).Route(context.Background(), models.Coordinates{}, models.Coordinates{Lat: 1, Lng: 1})
			assert.Error(t, err)
		})
	}
}

func TestClientRouteTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	_, err := NewClient(srv.URL, 20*time.Millisecond).Route(context.Background(), models.Coordinates{}, models.Coordinates{Lat: 1, Lng: 1})
	assert.Error(t, err)
}
