package main

import "time"

func mustParseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func timePtr(value time.Time) *time.Time {
	return &value
}

// sampleReports is the first-run data set for an empty store.
func sampleReports() []Report {
	return []Report{
		{
			ID:          "1",
			Title:       "Large Pothole on Connaught Place Road",
			Category:    CategoryPothole,
			Description: "There is a significant pothole on the main road near Connaught Place. It's causing traffic issues and potential damage to vehicles.",
			Latitude:    28.6139,
			Longitude:   77.2090,
			Timestamp:   mustParseTime("2024-01-15T10:30:00Z"),
			Status:      StatusSubmitted,
		},
		{
			ID:          "2",
			Title:       "Broken Traffic Light at India Gate",
			Category:    CategoryTrafficLight,
			Description: "Traffic light at the intersection near India Gate is not working properly. The red light stays on too long and causes traffic jams.",
			Latitude:    28.6129,
			Longitude:   77.2295,
			Timestamp:   mustParseTime("2024-01-14T18:45:00Z"),
			Status:      StatusInProgress,
		},
		{
			ID:          "3",
			Title:       "Streetlight Out of Order in Lajpat Nagar",
			Category:    CategoryStreetlight,
			Description: "Streetlight on the main market road in Lajpat Nagar is completely dark. It's been like this for the past week and poses a safety concern for pedestrians at night.",
			Latitude:    28.5679,
			Longitude:   77.2437,
			Timestamp:   mustParseTime("2024-01-13T14:20:00Z"),
			Status:      StatusResolved,
			ResolvedAt:  timePtr(mustParseTime("2024-01-16T09:00:00Z")),
		},
		{
			ID:          "4",
			Title:       "Broken Sidewalk in Chandni Chowk",
			Category:    CategorySidewalk,
			Description: "Large crack in the sidewalk on the main street in Chandni Chowk. It's a tripping hazard for pedestrians, especially elderly residents and children.",
			Latitude:    28.6562,
			Longitude:   77.2410,
			Timestamp:   mustParseTime("2024-01-12T09:15:00Z"),
			Status:      StatusSubmitted,
		},
		{
			ID:          "5",
			Title:       "Missing Stop Sign in South Extension",
			Category:    CategoryStopSign,
			Description: "Stop sign at the corner of South Extension market has been knocked down. This is a critical safety issue for drivers and pedestrians.",
			Latitude:    28.5679,
			Longitude:   77.2437,
			Timestamp:   mustParseTime("2024-01-11T16:30:00Z"),
			Status:      StatusInProgress,
		},
		{
			ID:          "6",
			Title:       "Garbage Can Overflow in Lodhi Garden",
			Category:    CategoryGarbage,
			Description: "Public trash bin at Lodhi Garden is overflowing and garbage is scattered around the area. Needs immediate attention.",
			Latitude:    28.5891,
			Longitude:   77.2273,
			Timestamp:   mustParseTime("2024-01-10T12:45:00Z"),
			Status:      StatusSubmitted,
		},
		{
			ID:          "7",
			Title:       "Broken Bench in Central Park",
			Category:    CategoryBench,
			Description: "Park bench in Central Park is broken and unsafe to sit on. The wooden slats are loose and could cause injury.",
			Latitude:    28.5679,
			Longitude:   77.2437,
			Timestamp:   mustParseTime("2024-01-09T15:20:00Z"),
			Status:      StatusResolved,
			ResolvedAt:  timePtr(mustParseTime("2024-01-13T10:00:00Z")),
		},
		{
			ID:          "8",
			Title:       "Drainage Problem in Dwarka",
			Category:    CategoryDrainage,
			Description: "Water is pooling on the street after rain due to a blocked drain in Dwarka Sector 12. This creates a hazard for drivers and could damage the road.",
			Latitude:    28.5929,
			Longitude:   77.0593,
			Timestamp:   mustParseTime("2024-01-08T11:30:00Z"),
			Status:      StatusInProgress,
		},
	}
}

// seededSampleReports fills in municipality from coordinates.
func seededSampleReports() []Report {
	reports := sampleReports()
	backfillMunicipalities(reports)
	return reports
}

// backfillMunicipalities sets the nearest municipality where none is set and
// returns how many reports changed.
func backfillMunicipalities(reports []Report) int {
	changed := 0
	for i := range reports {
		if reports[i].Municipality != "" {
			continue
		}
		nearest, _ := findNearestMunicipality(reports[i].Latitude, reports[i].Longitude)
		reports[i].Municipality = nearest.ID
		changed++
	}
	return changed
}
