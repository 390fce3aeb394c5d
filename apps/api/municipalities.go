package main

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang/geo/s2"
)

const earthRadiusKm = 6371.0088

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Municipality struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	State       string      `json:"state"`
	Districts   []string    `json:"districts"`
	Coordinates Coordinates `json:"coordinates"`
	AdminEmail  string      `json:"adminEmail"`
	Phone       string      `json:"phone"`
	Website     string      `json:"website"`
}

// indianMunicipalities is the fixed reference table. Order matters: on equal
// distance the earlier entry wins the nearest lookup.
var indianMunicipalities = []Municipality{
	{
		ID: "mumbai", Name: "Mumbai Municipal Corporation", State: "Maharashtra",
		Districts:   []string{"Mumbai City", "Mumbai Suburban", "Thane"},
		Coordinates: Coordinates{Lat: 19.0760, Lng: 72.8777},
		AdminEmail:  "admin@mumbai.gov.in", Phone: "+91-22-22621817", Website: "https://portal.mcgm.gov.in",
	},
	{
		ID: "delhi", Name: "Municipal Corporation of Delhi", State: "Delhi",
		Districts:   []string{"New Delhi", "Central Delhi", "South Delhi", "North Delhi", "East Delhi", "West Delhi"},
		Coordinates: Coordinates{Lat: 28.7041, Lng: 77.1025},
		AdminEmail:  "admin@mcd.gov.in", Phone: "+91-11-23414200", Website: "https://mcdonline.gov.in",
	},
	{
		ID: "bangalore", Name: "Bruhat Bengaluru Mahanagara Palike", State: "Karnataka",
		Districts:   []string{"Bangalore Urban", "Bangalore Rural"},
		Coordinates: Coordinates{Lat: 12.9716, Lng: 77.5946},
		AdminEmail:  "admin@bbmp.gov.in", Phone: "+91-80-22660000", Website: "https://bbmp.gov.in",
	},
	{
		ID: "chennai", Name: "Greater Chennai Corporation", State: "Tamil Nadu",
		Districts:   []string{"Chennai"},
		Coordinates: Coordinates{Lat: 13.0827, Lng: 80.2707},
		AdminEmail:  "admin@chennaicorporation.gov.in", Phone: "+91-44-25384520", Website: "https://chennaicorporation.gov.in",
	},
	{
		ID: "kolkata", Name: "Kolkata Municipal Corporation", State: "West Bengal",
		Districts:   []string{"Kolkata"},
		Coordinates: Coordinates{Lat: 22.5726, Lng: 88.3639},
		AdminEmail:  "admin@kmcgov.in", Phone: "+91-33-22435110", Website: "https://www.kmcgov.in",
	},
	{
		ID: "hyderabad", Name: "Greater Hyderabad Municipal Corporation", State: "Telangana",
		Districts:   []string{"Hyderabad", "Rangareddy"},
		Coordinates: Coordinates{Lat: 17.3850, Lng: 78.4867},
		AdminEmail:  "admin@ghmc.gov.in", Phone: "+91-40-23225333", Website: "https://www.ghmc.gov.in",
	},
	{
		ID: "pune", Name: "Pune Municipal Corporation", State: "Maharashtra",
		Districts:   []string{"Pune"},
		Coordinates: Coordinates{Lat: 18.5204, Lng: 73.8567},
		AdminEmail:  "admin@punecorporation.org", Phone: "+91-20-25501111", Website: "https://www.punecorporation.org",
	},
	{
		ID: "ahmedabad", Name: "Ahmedabad Municipal Corporation", State: "Gujarat",
		Districts:   []string{"Ahmedabad"},
		Coordinates: Coordinates{Lat: 23.0225, Lng: 72.5714},
		AdminEmail:  "admin@ahmedabadcity.gov.in", Phone: "+91-79-25391800", Website: "https://ahmedabadcity.gov.in",
	},
	{
		ID: "jaipur", Name: "Jaipur Municipal Corporation", State: "Rajasthan",
		Districts:   []string{"Jaipur"},
		Coordinates: Coordinates{Lat: 26.9124, Lng: 75.7873},
		AdminEmail:  "admin@jaipurmc.org", Phone: "+91-141-2700744", Website: "https://jaipurmc.org",
	},
	{
		ID: "lucknow", Name: "Lucknow Municipal Corporation", State: "Uttar Pradesh",
		Districts:   []string{"Lucknow"},
		Coordinates: Coordinates{Lat: 26.8467, Lng: 80.9462},
		AdminEmail:  "admin@lmc.up.gov.in", Phone: "+91-522-2611111", Website: "https://lmc.up.gov.in",
	},
}

// municipalityByID looks up case-insensitively.
func municipalityByID(id string) (Municipality, bool) {
	needle := strings.ToLower(strings.TrimSpace(id))
	for _, m := range indianMunicipalities {
		if m.ID == needle {
			return m, true
		}
	}
	return Municipality{}, false
}

func isValidMunicipality(id string) bool {
	_, ok := municipalityByID(id)
	return ok
}

// findNearestMunicipality compares planar distance on raw degrees. This is
// not geodesic; it is only good enough to pick between cities far apart.
func findNearestMunicipality(lat, lng float64) (Municipality, float64) {
	var closest Municipality
	minDistance := math.Inf(1)
	for _, m := range indianMunicipalities {
		distance := math.Sqrt(math.Pow(lat-m.Coordinates.Lat, 2) + math.Pow(lng-m.Coordinates.Lng, 2))
		if distance < minDistance {
			minDistance = distance
			closest = m
		}
	}
	return closest, minDistance
}

// geodesicDistanceKm is reported alongside the planar match for reference.
func geodesicDistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	angle := s2.LatLngFromDegrees(lat1, lng1).Distance(s2.LatLngFromDegrees(lat2, lng2))
	return angle.Radians() * earthRadiusKm
}

func (a *App) municipalitiesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, indianMunicipalities)
}

func (a *App) municipalityHandler(c *gin.Context) {
	m, ok := municipalityByID(c.Param("id"))
	if !ok {
		writeAPIError(c, &apiError{Status: http.StatusNotFound, Code: "municipality_not_found", Message: "Municipality not found"})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (a *App) nearestMunicipalityHandler(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	if latErr != nil || lngErr != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_location", Message: "lat and lng must be valid coordinates"})
		return
	}

	m, degrees := findNearestMunicipality(lat, lng)
	c.JSON(http.StatusOK, gin.H{
		"municipality":    m,
		"distanceDegrees": degrees,
		"distanceKm":      math.Round(geodesicDistanceKm(lat, lng, m.Coordinates.Lat, m.Coordinates.Lng)*10) / 10,
	})
}
