package main

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

type sortKey struct {
	Field string
	Desc  bool
}

var (
	sortableFields = map[string]struct{}{"timestamp": {}, "title": {}, "status": {}, "category": {}}
	defaultSort    = []sortKey{{Field: "timestamp", Desc: true}}
)

// ReportQuery is the parsed form of the list/export query string. Zero
// values mean "no filter".
type ReportQuery struct {
	Status        Status
	Category      Category
	Municipality  string
	From          *time.Time
	To            *time.Time
	Search        string
	SearchCitizen bool
	Sort          []sortKey
	Page          int
	PerPage       int
}

func invalidFilter(message string) error {
	return &apiError{Status: http.StatusBadRequest, Code: "invalid_filter", Message: message}
}

// parseReportQuery reads status, category, municipality, from, to, q, sort,
// page and per_page. "all" is accepted for the enum filters.
func parseReportQuery(values url.Values, includeCitizen bool) (ReportQuery, error) {
	q := ReportQuery{SearchCitizen: includeCitizen}

	if raw := strings.TrimSpace(values.Get("status")); raw != "" && !strings.EqualFold(raw, "all") {
		status, ok := parseStatus(raw)
		if !ok {
			return q, invalidFilter("Unknown status filter")
		}
		q.Status = status
	}

	category, ok := parseCategoryFilter(values.Get("category"))
	if !ok {
		return q, invalidFilter("Unknown category filter")
	}
	q.Category = category

	if raw := strings.TrimSpace(values.Get("municipality")); raw != "" && !strings.EqualFold(raw, "all") {
		m, ok := municipalityByID(raw)
		if !ok {
			return q, invalidFilter("Unknown municipality filter")
		}
		q.Municipality = m.ID
	}

	if raw := strings.TrimSpace(values.Get("from")); raw != "" {
		from, err := parseFilterTime(raw, false)
		if err != nil {
			return q, invalidFilter("from must be an RFC3339 timestamp or YYYY-MM-DD")
		}
		q.From = &from
	}
	if raw := strings.TrimSpace(values.Get("to")); raw != "" {
		to, err := parseFilterTime(raw, true)
		if err != nil {
			return q, invalidFilter("to must be an RFC3339 timestamp or YYYY-MM-DD")
		}
		q.To = &to
	}

	q.Search = strings.ToLower(strings.TrimSpace(values.Get("q")))

	keys, err := parseSortKeys(values.Get("sort"))
	if err != nil {
		return q, err
	}
	q.Sort = keys

	q.Page = parsePage(values.Get("page"))
	q.PerPage = parsePerPage(values.Get("per_page"))
	return q, nil
}

// parseFilterTime treats a bare date as the start of that day, or its last
// instant when endOfDay is set.
func parseFilterTime(raw string, endOfDay bool) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}

// parseSortKeys reads "status,-timestamp"; a leading '-' sorts descending.
func parseSortKeys(raw string) ([]sortKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultSort, nil
	}
	keys := make([]sortKey, 0, 2)
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		key := sortKey{Field: part}
		if strings.HasPrefix(part, "-") {
			key = sortKey{Field: part[1:], Desc: true}
		}
		if _, ok := sortableFields[key.Field]; !ok {
			return nil, invalidFilter("Unknown sort field " + key.Field)
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return defaultSort, nil
	}
	return keys, nil
}

func (q ReportQuery) matches(r Report) bool {
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.Category != "" && r.Category != q.Category {
		return false
	}
	if q.Municipality != "" && !strings.EqualFold(r.Municipality, q.Municipality) {
		return false
	}
	if q.From != nil && r.Timestamp.Before(*q.From) {
		return false
	}
	if q.To != nil && r.Timestamp.After(*q.To) {
		return false
	}
	if q.Search != "" {
		haystacks := []string{r.Title, r.Description}
		if q.SearchCitizen {
			haystacks = append(haystacks, r.CitizenName)
		}
		found := false
		for _, text := range haystacks {
			if strings.Contains(strings.ToLower(text), q.Search) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func filterReports(reports []Report, q ReportQuery) []Report {
	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		if q.matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func compareReports(a, b Report, field string) int {
	switch field {
	case "title":
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case "status":
		return strings.Compare(strings.ToLower(string(a.Status)), strings.ToLower(string(b.Status)))
	case "category":
		return strings.Compare(string(a.Category), string(b.Category))
	default:
		return a.Timestamp.Compare(b.Timestamp)
	}
}

// sortReports sorts in place and is stable, so equal keys keep store order.
func sortReports(reports []Report, keys []sortKey) {
	if len(keys) == 0 {
		keys = defaultSort
	}
	sort.SliceStable(reports, func(i, j int) bool {
		for _, key := range keys {
			cmp := compareReports(reports[i], reports[j], key.Field)
			if cmp == 0 {
				continue
			}
			if key.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// queryReports filters and sorts a copy; the input slice is left alone.
func queryReports(reports []Report, q ReportQuery) []Report {
	out := filterReports(reports, q)
	sortReports(out, q.Sort)
	return out
}

func pageOf(reports []Report, page Pagination) []Report {
	if page.Page < 1 || page.PerPage < 1 {
		return []Report{}
	}
	// Compare page counts so huge page numbers cannot overflow the offset.
	if page.Page-1 >= (len(reports)+page.PerPage-1)/page.PerPage {
		return []Report{}
	}
	start := (page.Page - 1) * page.PerPage
	end := start + page.PerPage
	if end > len(reports) {
		end = len(reports)
	}
	return reports[start:end]
}
