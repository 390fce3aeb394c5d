package main

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultAnalyticsWindow    = "30d"
	slowResponseDays          = 7.0
	fastResponseDays          = 3.0
	lowResolutionRate         = 60.0
	highResolutionRate        = 85.0
	processReviewRate         = 70.0
	monthlyGrowthFactor       = 1.5
	potholeShareThreshold     = 0.3
	garbageShareThreshold     = 0.2
	nextWeekGrowthFactor      = 1.1
	unresolvedPerCrew         = 5
	unresolvedPerWorkOrder    = 3
	materialsBudgetPerIssue   = 500
	defaultCostPerIssue       = 1000
	performanceResponseBudget = 40.0
)

var (
	analyticsWindows = map[string]int{"7d": 7, "30d": 30, "90d": 90}

	// complexCategories need crews and equipment rather than a quick fix.
	complexCategories = []Category{CategoryPothole, CategoryTrafficLight, CategoryDrainage}

	costPerIssue = map[Category]int64{
		CategoryPothole:      1500,
		CategoryTrafficLight: 3000,
		CategoryStreetlight:  800,
		CategorySidewalk:     1200,
		CategoryGarbage:      200,
		CategoryDrainage:     2500,
		CategoryGraffiti:     500,
		CategoryOther:        1000,
	}
)

type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

type Insight struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type Recommendation struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    Level  `json:"priority"`
	Impact      Level  `json:"impact"`
}

type CategoryCount struct {
	Category Category `json:"category"`
	Name     string   `json:"name"`
	Count    int      `json:"count"`
}

type Analytics struct {
	Window            string           `json:"window"`
	Category          string           `json:"category"`
	Total             int              `json:"total"`
	Submitted         int              `json:"submitted"`
	InProgress        int              `json:"inProgress"`
	Resolved          int              `json:"resolved"`
	Rejected          int              `json:"rejected"`
	ResolutionRate    float64          `json:"resolutionRate"`
	CategoryStats     []CategoryCount  `json:"categoryStats"`
	AvgResolutionDays float64          `json:"avgResolutionDays"`
	Insights          []Insight        `json:"insights"`
	Recommendations   []Recommendation `json:"recommendations"`
}

type AnalyticsOptions struct {
	Window   string
	Category string
	Now      time.Time
}

// parseAnalyticsWindow falls back to 30 days for anything unrecognised.
func parseAnalyticsWindow(raw string) (string, int) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if days, ok := analyticsWindows[key]; ok {
		return key, days
	}
	return defaultAnalyticsWindow, analyticsWindows[defaultAnalyticsWindow]
}

// parseCategoryFilter returns "" for all categories.
func parseCategoryFilter(raw string) (Category, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "all") {
		return "", true
	}
	return parseCategory(trimmed)
}

func filterAnalyticsReports(reports []Report, days int, category Category, now time.Time) []Report {
	cutoff := now.AddDate(0, 0, -days)
	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		if category != "" && r.Category != category {
			continue
		}
		out = append(out, r)
	}
	return out
}

func computeAnalytics(reports []Report, opts AnalyticsOptions) Analytics {
	window, days := parseAnalyticsWindow(opts.Window)
	category, _ := parseCategoryFilter(opts.Category)
	filtered := filterAnalyticsReports(reports, days, category, opts.Now)

	result := summarizeReports(filtered, opts.Now)
	result.Window = window
	result.Category = "all"
	if category != "" {
		result.Category = string(category)
	}
	return result
}

// summarizeReports derives every metric from an already filtered set.
func summarizeReports(reports []Report, now time.Time) Analytics {
	result := Analytics{
		CategoryStats:   []CategoryCount{},
		Insights:        []Insight{},
		Recommendations: []Recommendation{},
	}
	result.Total = len(reports)
	if result.Total == 0 {
		return result
	}

	for _, r := range reports {
		switch r.Status {
		case StatusSubmitted:
			result.Submitted++
		case StatusInProgress:
			result.InProgress++
		case StatusResolved:
			result.Resolved++
		case StatusRejected:
			result.Rejected++
		}
	}
	result.ResolutionRate = resolutionRate(result.Resolved, result.Total)
	result.CategoryStats = groupByCategory(reports)

	latencies := resolutionLatencies(reports)
	result.AvgResolutionDays = mean(latencies)

	result.Insights = buildInsights(reports, result, len(latencies), now)
	result.Recommendations = buildRecommendations(result)
	return result
}

func resolutionRate(resolved, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(resolved) / float64(total) * 100
}

// groupByCategory orders by count descending, ties by first appearance.
func groupByCategory(reports []Report) []CategoryCount {
	index := make(map[Category]int)
	out := make([]CategoryCount, 0)
	for _, r := range reports {
		if i, ok := index[r.Category]; ok {
			out[i].Count++
			continue
		}
		index[r.Category] = len(out)
		out = append(out, CategoryCount{Category: r.Category, Name: r.Category.DisplayName(), Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func categoryCount(stats []CategoryCount, category Category) int {
	for _, s := range stats {
		if s.Category == category {
			return s.Count
		}
	}
	return 0
}

// resolutionLatencies returns whole elapsed days, rounded down, for resolved
// reports that carry a resolution time.
func resolutionLatencies(reports []Report) []float64 {
	out := make([]float64, 0)
	for _, r := range reports {
		if r.Status != StatusResolved || r.ResolvedAt == nil {
			continue
		}
		out = append(out, math.Floor(r.ResolvedAt.Sub(r.Timestamp).Hours()/24))
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	avg := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += math.Pow(v-avg, 2)
	}
	return math.Sqrt(sum / float64(len(values)))
}

func buildInsights(reports []Report, stats Analytics, latencySamples int, now time.Time) []Insight {
	insights := []Insight{}

	top := stats.CategoryStats
	if len(top) > 3 {
		top = top[:3]
	}
	if len(top) > 0 {
		parts := make([]string, 0, len(top))
		for _, entry := range top {
			parts = append(parts, fmt.Sprintf("%s (%d)", entry.Name, entry.Count))
		}
		insights = append(insights, Insight{
			Type:        "trend",
			Title:       "Most Common Issues",
			Description: "Top reported issues: " + strings.Join(parts, ", "),
			Confidence:  0.9,
		})
	}

	avg := stats.AvgResolutionDays
	if avg > slowResponseDays {
		insights = append(insights, Insight{
			Type:        "warning",
			Title:       "Slow Response Times",
			Description: fmt.Sprintf("Average resolution time is %.1f days. Consider increasing resources.", avg),
			Confidence:  0.85,
		})
	} else if latencySamples > 0 && avg < fastResponseDays {
		insights = append(insights, Insight{
			Type:        "success",
			Title:       "Excellent Response Times",
			Description: fmt.Sprintf("Average resolution time is %.1f days. Great performance!", avg),
			Confidence:  0.9,
		})
	}

	if stats.ResolutionRate < lowResolutionRate {
		insights = append(insights, Insight{
			Type:        "warning",
			Title:       "Low Resolution Rate",
			Description: fmt.Sprintf("Only %.1f%% of issues are resolved. Consider process improvements.", stats.ResolutionRate),
			Confidence:  0.8,
		})
	} else if stats.ResolutionRate > highResolutionRate {
		insights = append(insights, Insight{
			Type:        "success",
			Title:       "High Resolution Rate",
			Description: fmt.Sprintf("%.1f%% resolution rate shows excellent service delivery.", stats.ResolutionRate),
			Confidence:  0.9,
		})
	}

	// No baseline without reports in the previous month.
	thisMonth, lastMonth := monthlyVolumes(reports, now)
	if lastMonth > 0 && float64(thisMonth) > float64(lastMonth)*monthlyGrowthFactor {
		insights = append(insights, Insight{
			Type:        "trend",
			Title:       "Increasing Reports",
			Description: "Report volume has increased significantly this month. Monitor for patterns.",
			Confidence:  0.75,
		})
	}

	if categoryShareExceeds(stats, CategoryPothole, potholeShareThreshold) {
		insights = append(insights, Insight{
			Type:        "warning",
			Title:       "High Pothole Reports",
			Description: "Potholes represent over 30% of reports. Consider road maintenance program.",
			Confidence:  0.8,
		})
	}
	if categoryShareExceeds(stats, CategoryGarbage, garbageShareThreshold) {
		insights = append(insights, Insight{
			Type:        "info",
			Title:       "Waste Management Focus",
			Description: "Garbage issues are frequent. Review waste collection schedules.",
			Confidence:  0.7,
		})
	}

	return insights
}

func categoryShareExceeds(stats Analytics, category Category, share float64) bool {
	return float64(categoryCount(stats.CategoryStats, category)) > float64(stats.Total)*share
}

// monthlyVolumes counts reports in the calendar month of now and the one before.
func monthlyVolumes(reports []Report, now time.Time) (int, int) {
	currentStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	previousStart := currentStart.AddDate(0, -1, 0)
	nextStart := currentStart.AddDate(0, 1, 0)

	current, previous := 0, 0
	for _, r := range reports {
		ts := r.Timestamp.In(now.Location())
		switch {
		case !ts.Before(currentStart) && ts.Before(nextStart):
			current++
		case !ts.Before(previousStart) && ts.Before(currentStart):
			previous++
		}
	}
	return current, previous
}

func buildRecommendations(stats Analytics) []Recommendation {
	recommendations := []Recommendation{}
	if stats.Total == 0 {
		return recommendations
	}

	if stats.AvgResolutionDays > slowResponseDays {
		recommendations = append(recommendations, Recommendation{
			Type:        "process",
			Title:       "Improve Response Times",
			Description: "Consider implementing automated workflows and increasing staff allocation.",
			Priority:    LevelHigh,
			Impact:      LevelHigh,
		})
	}
	if categoryShareExceeds(stats, CategoryPothole, potholeShareThreshold) {
		recommendations = append(recommendations, Recommendation{
			Type:        "maintenance",
			Title:       "Road Maintenance Program",
			Description: "Implement proactive road maintenance to reduce pothole reports.",
			Priority:    LevelHigh,
			Impact:      LevelMedium,
		})
	}
	if categoryShareExceeds(stats, CategoryGarbage, garbageShareThreshold) {
		recommendations = append(recommendations, Recommendation{
			Type:        "service",
			Title:       "Waste Management Review",
			Description: "Review waste collection schedules and bin placement.",
			Priority:    LevelMedium,
			Impact:      LevelMedium,
		})
	}
	if stats.ResolutionRate < processReviewRate {
		recommendations = append(recommendations, Recommendation{
			Type:        "process",
			Title:       "Process Optimization",
			Description: "Review and optimize issue resolution workflows.",
			Priority:    LevelHigh,
			Impact:      LevelHigh,
		})
	}
	return recommendations
}

type CategoryCost struct {
	Category Category        `json:"category"`
	Count    int             `json:"count"`
	Cost     decimal.Decimal `json:"cost"`
}

type PredictiveAnalytics struct {
	NextWeekVolume int             `json:"nextWeekVolume"`
	PriorityIssues []Category      `json:"priorityIssues"`
	ResourceNeeds  []string        `json:"resourceNeeds"`
	CostEstimate   decimal.Decimal `json:"costEstimate"`
	CostBreakdown  []CategoryCost  `json:"costBreakdown"`
}

func countRecent(reports []Report, now time.Time, days int) int {
	cutoff := now.AddDate(0, 0, -days)
	count := 0
	for _, r := range reports {
		if r.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

func computePredictiveAnalytics(reports []Report, now time.Time) PredictiveAnalytics {
	result := PredictiveAnalytics{
		PriorityIssues: []Category{},
		ResourceNeeds:  []string{},
		CostEstimate:   decimal.Zero,
		CostBreakdown:  []CategoryCost{},
	}
	if len(reports) == 0 {
		return result
	}

	result.NextWeekVolume = int(math.Round(float64(countRecent(reports, now, 7)) * nextWeekGrowthFactor))

	stats := groupByCategory(reports)
	for _, category := range complexCategories {
		if categoryCount(stats, category) > 0 {
			result.PriorityIssues = append(result.PriorityIssues, category)
		}
	}

	unresolved := 0
	for _, r := range reports {
		if r.Status != StatusResolved {
			unresolved++
		}
	}
	budget := decimal.NewFromInt(int64(unresolved)).Mul(decimal.NewFromInt(materialsBudgetPerIssue))
	result.ResourceNeeds = []string{
		fmt.Sprintf("Crew allocation for %d teams", ceilDiv(unresolved, unresolvedPerCrew)),
		fmt.Sprintf("Equipment for %d work orders", ceilDiv(unresolved, unresolvedPerWorkOrder)),
		"Materials budget: $" + budget.String(),
	}

	total := decimal.Zero
	for _, entry := range stats {
		unit, ok := costPerIssue[entry.Category]
		if !ok {
			unit = defaultCostPerIssue
		}
		cost := decimal.NewFromInt(unit).Mul(decimal.NewFromInt(int64(entry.Count)))
		result.CostBreakdown = append(result.CostBreakdown, CategoryCost{Category: entry.Category, Count: entry.Count, Cost: cost})
		total = total.Add(cost)
	}
	result.CostEstimate = total
	return result
}

func ceilDiv(value, divisor int) int {
	return (value + divisor - 1) / divisor
}

type PerformanceMetrics struct {
	Efficiency   int `json:"efficiency"`
	Satisfaction int `json:"satisfaction"`
	Productivity int `json:"productivity"`
	Quality      int `json:"quality"`
}

func computePerformanceMetrics(reports []Report, now time.Time) PerformanceMetrics {
	if len(reports) == 0 {
		return PerformanceMetrics{}
	}

	resolved := 0
	complexTotal, complexResolved := 0, 0
	for _, r := range reports {
		isComplex := false
		for _, c := range complexCategories {
			if r.Category == c {
				isComplex = true
				break
			}
		}
		if r.Status == StatusResolved {
			resolved++
		}
		if isComplex {
			complexTotal++
			if r.Status == StatusResolved {
				complexResolved++
			}
		}
	}
	rate := float64(resolved) / float64(len(reports))

	complexRate := 1.0
	if complexTotal > 0 {
		complexRate = float64(complexResolved) / float64(complexTotal)
	}

	latencies := resolutionLatencies(reports)
	avg := mean(latencies)
	recent := countRecent(reports, now, 7)

	return PerformanceMetrics{
		Efficiency:   int(math.Round(rate*60 + math.Max(0, performanceResponseBudget-avg))),
		Satisfaction: int(math.Round(rate*70 + complexRate*30)),
		Productivity: int(math.Round(math.Min(100, float64(recent)*10+rate*50))),
		Quality:      int(math.Round(rate*60 + math.Max(0, performanceResponseBudget-stddev(latencies)))),
	}
}

type TrendBucket struct {
	Label     string `json:"label"`
	Total     int    `json:"total"`
	Submitted int    `json:"submitted"`
	Resolved  int    `json:"resolved"`
}

type TrendAnalysis struct {
	Daily  []TrendBucket `json:"daily"`
	Weekly []TrendBucket `json:"weekly"`
}

func fillTrendBucket(label string, reports []Report, start, end time.Time) TrendBucket {
	bucket := TrendBucket{Label: label}
	for _, r := range reports {
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		bucket.Total++
		switch r.Status {
		case StatusSubmitted:
			bucket.Submitted++
		case StatusResolved:
			bucket.Resolved++
		}
	}
	return bucket
}

// computeTrendAnalysis returns daily buckets for the last days and weekly
// buckets labelled "Week N", both oldest first. Each weekly bucket covers the
// seven days ending on its last day.
func computeTrendAnalysis(reports []Report, days int, now time.Time) TrendAnalysis {
	if days <= 0 {
		days = analyticsWindows[defaultAnalyticsWindow]
	}
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	daily := make([]TrendBucket, days)
	for i := 0; i < days; i++ {
		start := today.AddDate(0, 0, -i)
		end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
		daily[days-1-i] = fillTrendBucket(start.Format("2006-01-02"), reports, start, end)
	}

	weeks := ceilDiv(days, 7)
	weekly := make([]TrendBucket, weeks)
	for i := 0; i < weeks; i++ {
		end := today.AddDate(0, 0, 1-i*7).Add(-time.Millisecond)
		start := today.AddDate(0, 0, -i*7-6)
		weekly[weeks-1-i] = fillTrendBucket(fmt.Sprintf("Week %d", weeks-i), reports, start, end)
	}

	return TrendAnalysis{Daily: daily, Weekly: weekly}
}

type MunicipalityStats struct {
	Municipality string `json:"municipality"`
	Total        int    `json:"total"`
	Resolved     int    `json:"resolved"`
	InProgress   int    `json:"inProgress"`
	Pending      int    `json:"pending"`
}

// computeMunicipalityStats treats "" and "all" as every municipality.
func computeMunicipalityStats(reports []Report, municipality string) MunicipalityStats {
	key := strings.ToLower(strings.TrimSpace(municipality))
	if key == "" {
		key = "all"
	}
	stats := MunicipalityStats{Municipality: key}
	for _, r := range reports {
		if key != "all" && !strings.EqualFold(r.Municipality, key) {
			continue
		}
		stats.Total++
		switch r.Status {
		case StatusResolved:
			stats.Resolved++
		case StatusInProgress:
			stats.InProgress++
		case StatusSubmitted:
			stats.Pending++
		}
	}
	return stats
}
