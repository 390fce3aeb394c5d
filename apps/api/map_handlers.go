package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang/geo/s2"
	geojson "github.com/paulmach/go.geojson"
)

var markerColors = map[Status]string{
	StatusResolved:   "#10b981",
	StatusInProgress: "#f59e0b",
	StatusSubmitted:  "#ef4444",
}

const defaultMarkerColor = "#6b7280"

func markerColor(status Status) string {
	if color, ok := markerColors[status]; ok {
		return color
	}
	return defaultMarkerColor
}

// parseViewport reads minLat, minLng, maxLat and maxLng. All four or none
// must be given; none means the whole map.
func parseViewport(c *gin.Context) (*s2.Rect, error) {
	keys := []string{"minLat", "minLng", "maxLat", "maxLng"}
	values := make([]float64, len(keys))
	given := 0
	for i, key := range keys {
		raw := strings.TrimSpace(c.Query(key))
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &apiError{Status: http.StatusBadRequest, Code: "invalid_viewport", Message: key + " must be a number"}
		}
		values[i] = value
		given++
	}
	if given == 0 {
		return nil, nil
	}
	if given != len(keys) {
		return nil, &apiError{Status: http.StatusBadRequest, Code: "invalid_viewport", Message: "minLat, minLng, maxLat and maxLng are required together"}
	}
	if values[0] > values[2] || values[1] > values[3] || values[0] < -90 || values[2] > 90 || values[1] < -180 || values[3] > 180 {
		return nil, &apiError{Status: http.StatusBadRequest, Code: "invalid_viewport", Message: "Invalid viewport bounds"}
	}

	rect := s2.RectFromLatLng(s2.LatLngFromDegrees(values[0], values[1]))
	rect = rect.AddPoint(s2.LatLngFromDegrees(values[2], values[3]))
	return &rect, nil
}

// mapMarkersHandler returns one coloured point per report, optionally
// limited to a viewport and the usual list filters.
func (a *App) mapMarkersHandler(c *gin.Context) {
	viewport, err := parseViewport(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	query, err := parseReportQuery(c.Request.URL.Query(), false)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	reports, err := a.store.Load(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}

	lang := a.requestLanguage(c)
	collection := geojson.NewFeatureCollection()
	for _, r := range filterReports(reports, query) {
		if viewport != nil && !viewport.ContainsLatLng(s2.LatLngFromDegrees(r.Latitude, r.Longitude)) {
			continue
		}
		feature := reportFeature(r, lang)
		feature.SetProperty("color", markerColor(r.Status))
		collection.AddFeature(feature)
	}

	c.JSON(http.StatusOK, collection)
}
