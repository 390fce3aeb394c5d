package main

import (
	"encoding/json"
	"strings"
	"time"
)

type Status string

const (
	StatusSubmitted  Status = "Submitted"
	StatusInProgress Status = "In Progress"
	StatusResolved   Status = "Resolved"
	StatusRejected   Status = "Rejected"
)

var reportStatuses = []Status{StatusSubmitted, StatusInProgress, StatusResolved, StatusRejected}

// parseStatus accepts the canonical labels plus the loose spellings the map
// legend used (pending, in-progress, completed). Unknown input maps to
// Submitted with ok=false.
func parseStatus(raw string) (Status, bool) {
	normalized := strings.NewReplacer("-", " ", "_", " ").Replace(strings.ToLower(raw))
	switch strings.Join(strings.Fields(normalized), " ") {
	case "submitted", "pending":
		return StatusSubmitted, true
	case "in progress", "inprogress":
		return StatusInProgress, true
	case "resolved", "completed":
		return StatusResolved, true
	case "rejected":
		return StatusRejected, true
	default:
		return StatusSubmitted, false
	}
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s, _ = parseStatus(raw)
	return nil
}

// translationKey is the localization key for the status label.
func (s Status) translationKey() string {
	switch s {
	case StatusInProgress:
		return "inProgress"
	case StatusResolved:
		return "resolved"
	case StatusRejected:
		return "rejected"
	default:
		return "submitted"
	}
}

type Category string

const (
	CategoryPothole         Category = "pothole"
	CategoryTrafficLight    Category = "traffic_light"
	CategoryStreetlight     Category = "streetlight"
	CategorySidewalk        Category = "sidewalk"
	CategoryStopSign        Category = "stop_sign"
	CategoryGarbage         Category = "garbage"
	CategoryDrainage        Category = "drainage"
	CategoryBench           Category = "bench"
	CategoryGraffiti        Category = "graffiti"
	CategoryWaterSupply     Category = "water_supply"
	CategoryElectricity     Category = "electricity"
	CategoryRoads           Category = "roads"
	CategoryTraffic         Category = "traffic"
	CategorySanitation      Category = "sanitation"
	CategoryParks           Category = "parks"
	CategoryPublicTransport Category = "public_transport"
	CategoryNoisePollution  Category = "noise_pollution"
	CategoryAirPollution    Category = "air_pollution"
	CategoryWaterPollution  Category = "water_pollution"
	CategoryEncroachment    Category = "encroachment"
	CategoryStreetVendors   Category = "street_vendors"
	CategoryParking         Category = "parking"
	CategoryPublicToilets   Category = "public_toilets"
	CategoryOther           Category = "other"
)

type categoryInfo struct {
	Code           Category
	Name           string
	TranslationKey string
}

// categoryCatalog is the closed category set in display order.
var categoryCatalog = []categoryInfo{
	{Code: CategoryPothole, Name: "Pothole", TranslationKey: "pothole"},
	{Code: CategoryTrafficLight, Name: "Traffic Light", TranslationKey: "trafficLight"},
	{Code: CategoryStreetlight, Name: "Streetlight", TranslationKey: "streetlight"},
	{Code: CategorySidewalk, Name: "Sidewalk", TranslationKey: "sidewalk"},
	{Code: CategoryStopSign, Name: "Stop Sign", TranslationKey: "stopSign"},
	{Code: CategoryGarbage, Name: "Garbage", TranslationKey: "garbage"},
	{Code: CategoryDrainage, Name: "Drainage", TranslationKey: "drainage"},
	{Code: CategoryBench, Name: "Park Bench", TranslationKey: "bench"},
	{Code: CategoryGraffiti, Name: "Graffiti", TranslationKey: "graffiti"},
	{Code: CategoryWaterSupply, Name: "Water Supply", TranslationKey: "waterSupply"},
	{Code: CategoryElectricity, Name: "Electricity", TranslationKey: "electricity"},
	{Code: CategoryRoads, Name: "Roads", TranslationKey: "roads"},
	{Code: CategoryTraffic, Name: "Traffic", TranslationKey: "traffic"},
	{Code: CategorySanitation, Name: "Sanitation", TranslationKey: "sanitation"},
	{Code: CategoryParks, Name: "Parks", TranslationKey: "parks"},
	{Code: CategoryPublicTransport, Name: "Public Transport", TranslationKey: "publicTransport"},
	{Code: CategoryNoisePollution, Name: "Noise Pollution", TranslationKey: "noisePollution"},
	{Code: CategoryAirPollution, Name: "Air Pollution", TranslationKey: "airPollution"},
	{Code: CategoryWaterPollution, Name: "Water Pollution", TranslationKey: "waterPollution"},
	{Code: CategoryEncroachment, Name: "Encroachment", TranslationKey: "encroachment"},
	{Code: CategoryStreetVendors, Name: "Street Vendors", TranslationKey: "streetVendors"},
	{Code: CategoryParking, Name: "Parking", TranslationKey: "parking"},
	{Code: CategoryPublicToilets, Name: "Public Toilets", TranslationKey: "publicToilets"},
	{Code: CategoryOther, Name: "Other", TranslationKey: "other"},
}

var categoryByCode = func() map[Category]categoryInfo {
	out := make(map[Category]categoryInfo, len(categoryCatalog))
	for _, info := range categoryCatalog {
		out[info.Code] = info
	}
	return out
}()

// parseCategory maps unknown codes to CategoryOther with ok=false.
func parseCategory(raw string) (Category, bool) {
	code := Category(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := categoryByCode[code]; ok {
		return code, true
	}
	return CategoryOther, false
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c, _ = parseCategory(raw)
	return nil
}

func (c Category) info() categoryInfo {
	if info, ok := categoryByCode[c]; ok {
		return info
	}
	return categoryByCode[CategoryOther]
}

// DisplayName is the English label used by analytics text.
func (c Category) DisplayName() string {
	return c.info().Name
}

type TimelineEntry struct {
	Status    Status    `json:"status"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
	Comment   string    `json:"comment,omitempty"`
}

type Comment struct {
	Text      string    `json:"text"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}

type Report struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Category     Category        `json:"category"`
	Description  string          `json:"description"`
	Latitude     float64         `json:"latitude"`
	Longitude    float64         `json:"longitude"`
	Location     string          `json:"location,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Status       Status          `json:"status"`
	Priority     string          `json:"priority,omitempty"`
	Municipality string          `json:"municipality,omitempty"`
	CitizenName  string          `json:"citizenName,omitempty"`
	CitizenPhone string          `json:"citizenPhone,omitempty"`
	CitizenEmail string          `json:"citizenEmail,omitempty"`
	Images       []string        `json:"images,omitempty"`
	Timeline     []TimelineEntry `json:"timeline,omitempty"`
	Comments     []Comment       `json:"comments,omitempty"`
	AdminComment string          `json:"adminComment,omitempty"`
	UpdatedAt    *time.Time      `json:"updatedAt,omitempty"`
	ResolvedAt   *time.Time      `json:"resolvedAt,omitempty"`
	AIAnalysis   *Classification `json:"aiAnalysis,omitempty"`
}

func findReportIndex(reports []Report, id string) int {
	for i := range reports {
		if reports[i].ID == id {
			return i
		}
	}
	return -1
}
