package main

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

var errUnsupportedImage = errors.New("image must be an image/* file")

type ImageInput struct {
	Filename string
	MimeType string
	Data     []byte
}

// Classifier guesses the issue category shown in a photo. The only
// implementation is mockClassifier; a real model plugs in here.
type Classifier interface {
	Classify(ctx context.Context, img ImageInput) (Classification, error)
}

type Prediction struct {
	Category    Category `json:"category"`
	Confidence  float64  `json:"confidence"`
	Description string   `json:"description"`
}

type RiskAssessment struct {
	Level       string `json:"level"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

type CostAnalysis struct {
	EstimatedCost string   `json:"estimatedCost"`
	BudgetImpact  string   `json:"budgetImpact"`
	CostFactors   []string `json:"costFactors"`
}

type ResponseTimeline struct {
	Immediate  string   `json:"immediate"`
	ShortTerm  string   `json:"shortTerm"`
	LongTerm   string   `json:"longTerm"`
	Milestones []string `json:"milestones"`
}

type Classification struct {
	Category        Category         `json:"category"`
	Confidence      float64          `json:"confidence"`
	Description     string           `json:"description"`
	Severity        Level            `json:"severity"`
	Priority        string           `json:"priority"`
	EstimatedCost   string           `json:"estimatedCost"`
	ResponseTime    string           `json:"responseTime"`
	Features        []string         `json:"features"`
	SecondaryIssues []Prediction     `json:"secondaryIssues"`
	Recommendations []string         `json:"recommendations"`
	RiskAssessment  RiskAssessment   `json:"riskAssessment"`
	CostAnalysis    CostAnalysis     `json:"costAnalysis"`
	Timeline        ResponseTimeline `json:"timeline"`
	PhotoLocation   *Coordinates     `json:"photoLocation,omitempty"`
	Simulated       bool             `json:"simulated"`
	Timestamp       time.Time        `json:"timestamp"`
}

type issueProfile struct {
	Category        Category
	Description     string
	Severity        Level
	Priority        string
	EstimatedCost   string
	ResponseTime    string
	Features        []string
	Recommendations []string
}

var issueProfiles = []issueProfile{
	{
		Category: CategoryPothole, Description: "Road surface damage requiring immediate repair",
		Severity: LevelHigh, Priority: "urgent", EstimatedCost: "$500-2000", ResponseTime: "24-48 hours",
		Features:        []string{"road damage", "surface irregularity", "safety hazard"},
		Recommendations: []string{"Immediate temporary repair with cold patch", "Schedule permanent asphalt repair", "Install warning signs if needed"},
	},
	{
		Category: CategoryTrafficLight, Description: "Traffic signal malfunction or damage",
		Severity: LevelHigh, Priority: "urgent", EstimatedCost: "$1000-5000", ResponseTime: "2-4 hours",
		Features:        []string{"signal malfunction", "electrical issue", "traffic safety"},
		Recommendations: []string{"Dispatch traffic control immediately", "Coordinate with traffic management", "Implement temporary traffic signals"},
	},
	{
		Category: CategoryStreetlight, Description: "Street lighting issue or damage",
		Severity: LevelMedium, Priority: "high", EstimatedCost: "$200-800", ResponseTime: "24-72 hours",
		Features:        []string{"lighting failure", "electrical problem", "night visibility"},
		Recommendations: []string{"Check electrical connections", "Replace faulty components", "Update lighting schedule if needed"},
	},
	{
		Category: CategorySidewalk, Description: "Sidewalk damage or obstruction",
		Severity: LevelMedium, Priority: "medium", EstimatedCost: "$300-1200", ResponseTime: "48-96 hours",
		Features:        []string{"walkway damage", "accessibility issue", "pedestrian safety"},
		Recommendations: []string{"Assess accessibility impact", "Plan repair with minimal disruption", "Consider temporary walkway"},
	},
	{
		Category: CategoryGarbage, Description: "Waste management or litter issue",
		Severity: LevelLow, Priority: "medium", EstimatedCost: "$50-200", ResponseTime: "24-48 hours",
		Features:        []string{"waste accumulation", "environmental concern", "public health"},
		Recommendations: []string{"Schedule immediate cleanup", "Investigate source of accumulation", "Implement preventive measures"},
	},
	{
		Category: CategoryDrainage, Description: "Drainage system problem",
		Severity: LevelHigh, Priority: "high", EstimatedCost: "$500-3000", ResponseTime: "24-72 hours",
		Features:        []string{"water flow issue", "flooding risk", "infrastructure problem"},
		Recommendations: []string{"Assess flood risk immediately", "Clear blockages if safe", "Plan long-term drainage improvement"},
	},
	{
		Category: CategoryGraffiti, Description: "Vandalism or graffiti",
		Severity: LevelLow, Priority: "low", EstimatedCost: "$100-500", ResponseTime: "72-168 hours",
		Features:        []string{"vandalism", "property damage", "aesthetic concern"},
		Recommendations: []string{"Document for police report", "Schedule removal within 72 hours", "Consider anti-graffiti measures"},
	},
	{
		Category: CategoryOther, Description: "Other civic infrastructure issue",
		Severity: LevelMedium, Priority: "medium", EstimatedCost: "$200-1000", ResponseTime: "48-96 hours",
		Features:        []string{"infrastructure issue", "public safety", "maintenance needed"},
		Recommendations: []string{"Assess safety implications", "Determine appropriate response level", "Coordinate with relevant departments"},
	},
}

var riskLevels = map[Level]RiskAssessment{
	LevelHigh:   {Level: "High Risk", Color: "red", Description: "Immediate attention required"},
	LevelMedium: {Level: "Medium Risk", Color: "yellow", Description: "Address within 24-48 hours"},
	LevelLow:    {Level: "Low Risk", Color: "green", Description: "Address within 1 week"},
}

var (
	costFactors        = []string{"Materials and supplies", "Labor and equipment", "Traffic control if needed", "Follow-up maintenance"}
	responseMilestones = []string{"Initial assessment", "Resource allocation", "Work execution", "Quality verification", "Documentation"}
)

// mockClassifier is a simulation stub: every profile gets a confidence drawn
// uniformly from [0.6, 1.0) and the highest one wins. It does not look at
// pixels. EXIF GPS tags are read when present.
type mockClassifier struct {
	mu   sync.Mutex
	rand *rand.Rand
	now  func() time.Time
}

func newMockClassifier(source rand.Source) *mockClassifier {
	return &mockClassifier{rand: rand.New(source), now: time.Now}
}

func (m *mockClassifier) Classify(ctx context.Context, img ImageInput) (Classification, error) {
	if err := ctx.Err(); err != nil {
		return Classification{}, err
	}
	if !strings.HasPrefix(strings.ToLower(img.MimeType), "image/") {
		return Classification{}, errUnsupportedImage
	}

	predictions := m.predict()
	top := predictions[0]
	profile := profileFor(top.Category)

	result := Classification{
		Category:        top.Category,
		Confidence:      top.Confidence,
		Description:     profile.Description,
		Severity:        profile.Severity,
		Priority:        profile.Priority,
		EstimatedCost:   profile.EstimatedCost,
		ResponseTime:    profile.ResponseTime,
		Features:        append([]string(nil), profile.Features...),
		SecondaryIssues: append([]Prediction(nil), predictions[1:3]...),
		Recommendations: append([]string(nil), profile.Recommendations...),
		RiskAssessment:  riskLevels[profile.Severity],
		CostAnalysis: CostAnalysis{
			EstimatedCost: profile.EstimatedCost,
			BudgetImpact:  "Medium",
			CostFactors:   append([]string(nil), costFactors...),
		},
		Timeline: ResponseTimeline{
			Immediate:  "Within 24 hours",
			ShortTerm:  profile.ResponseTime,
			LongTerm:   "Follow-up assessment in 1 week",
			Milestones: append([]string(nil), responseMilestones...),
		},
		PhotoLocation: photoLocationFromEXIF(img.Data),
		Simulated:     true,
		Timestamp:     m.now().UTC(),
	}
	return result, nil
}

func (m *mockClassifier) predict() []Prediction {
	m.mu.Lock()
	predictions := make([]Prediction, 0, len(issueProfiles))
	for _, profile := range issueProfiles {
		predictions = append(predictions, Prediction{
			Category:    profile.Category,
			Confidence:  0.6 + 0.4*m.rand.Float64(),
			Description: profile.Description,
		})
	}
	m.mu.Unlock()

	sort.SliceStable(predictions, func(i, j int) bool {
		return predictions[i].Confidence > predictions[j].Confidence
	})
	return predictions
}

func profileFor(category Category) issueProfile {
	for _, profile := range issueProfiles {
		if profile.Category == category {
			return profile
		}
	}
	return issueProfiles[len(issueProfiles)-1]
}

// photoLocationFromEXIF returns nil for anything without usable GPS tags.
func photoLocationFromEXIF(data []byte) *Coordinates {
	if len(data) == 0 {
		return nil
	}
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	lat, lng, err := x.LatLong()
	if err != nil {
		return nil
	}
	return &Coordinates{Lat: lat, Lng: lng}
}
