package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const fallbackLanguage = "en"

type Language struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"nativeName"`
}

var supportedLanguages = []Language{
	{Code: "en", Name: "English", NativeName: "English"},
	{Code: "hi", Name: "Hindi", NativeName: "हिंदी"},
	{Code: "ta", Name: "Tamil", NativeName: "தமிழ்"},
	{Code: "te", Name: "Telugu", NativeName: "తెలుగు"},
	{Code: "bn", Name: "Bengali", NativeName: "বাংলা"},
	{Code: "mr", Name: "Marathi", NativeName: "मराठी"},
	{Code: "gu", Name: "Gujarati", NativeName: "ગુજરાતી"},
	{Code: "kn", Name: "Kannada", NativeName: "ಕನ್ನಡ"},
	{Code: "ml", Name: "Malayalam", NativeName: "മലയാളം"},
	{Code: "pa", Name: "Punjabi", NativeName: "ਪੰਜਾਬੀ"},
}

// translations only carries en and hi; every other supported language
// resolves through the English table.
var translations = map[string]map[string]string{
	"en": {
		"appTitle":    "Indian Civic Issue Reporter",
		"citizenMode": "Citizen",
		"adminMode":   "Admin",

		"issues":    "Issues",
		"mapView":   "Map View",
		"dashboard": "Dashboard",

		"reportIssue":        "Report Civic Issue",
		"issueType":          "Issue Type",
		"selectIssueType":    "Select Issue Type",
		"title":              "Title",
		"description":        "Description",
		"location":           "Location",
		"municipality":       "Municipality",
		"selectMunicipality": "Select Municipality",
		"priority":           "Priority",
		"selectPriority":     "Select Priority",
		"citizenInfo":        "Citizen Information",
		"name":               "Name",
		"enterFullName":      "Enter your full name",
		"phoneNumber":        "Phone Number",
		"email":              "Email (Optional)",
		"useCurrentLocation": "Use Current Location",
		"photoOptional":      "Photo (Optional)",
		"submit":             "Submit Report",
		"cancel":             "Cancel",

		"pothole":         "🕳️ Pothole",
		"trafficLight":    "🚦 Traffic Light",
		"sidewalk":        "🚶 Sidewalk",
		"stopSign":        "🛑 Stop Sign",
		"bench":           "🪑 Park Bench",
		"graffiti":        "🎨 Graffiti",
		"waterSupply":     "🚰 Water Supply",
		"electricity":     "⚡ Electricity",
		"roads":           "🛣️ Roads",
		"drainage":        "💧 Drainage",
		"garbage":         "🗑️ Garbage",
		"streetlight":     "💡 Streetlight",
		"traffic":         "🚦 Traffic",
		"sanitation":      "🚽 Sanitation",
		"parks":           "🌳 Parks",
		"publicTransport": "🚌 Public Transport",
		"noisePollution":  "🔊 Noise Pollution",
		"airPollution":    "🌫️ Air Pollution",
		"waterPollution":  "🌊 Water Pollution",
		"encroachment":    "🏗️ Encroachment",
		"streetVendors":   "🛒 Street Vendors",
		"parking":         "🅿️ Parking",
		"publicToilets":   "🚻 Public Toilets",
		"other":           "📋 Other",

		"submitted":  "Submitted",
		"inProgress": "In Progress",
		"resolved":   "Resolved",
		"rejected":   "Rejected",

		"titleRequired":        "Title is required",
		"categoryRequired":     "Please select an issue type",
		"descriptionRequired":  "Description is required",
		"locationRequired":     "Location is required",
		"municipalityRequired": "Please select municipality",
		"nameRequired":         "Name is required",
		"phoneRequired":        "Phone number is required",
		"latitudeInvalid":      "Latitude must be between -90 and 90",
		"longitudeInvalid":     "Longitude must be between -180 and 180",
		"emailInvalid":         "Email is invalid",
		"priorityInvalid":      "Priority must be low, medium, high or urgent",
		"imageInvalid":         "Image must be an image file under 5MB",
		"tooManyImages":        "At most 3 images are allowed",
		"statusInvalid":        "Please select a valid status",
		"commentRequired":      "Comment is required",
		"textTooLong":          "Text is too long",

		"filter":            "Filter",
		"allStatus":         "All Status",
		"allMunicipalities": "All Municipalities",
		"legend":            "Legend",
		"search":            "Search...",

		"adminDashboard": "Municipality Administration",
		"manageIssues":   "Manage and resolve issues",
		"total":          "Total",
		"pending":        "Pending",
		"updateStatus":   "Update Status",
		"newStatus":      "New Status",
		"comment":        "Comment (Optional)",
		"addComment":     "Add a comment about the update...",
		"update":         "Update",
		"noReports":      "No reports found",
		"status":         "Status",
	},
	"hi": {
		"appTitle":    "भारतीय नागरिक समस्या रिपोर्टर",
		"citizenMode": "नागरिक",
		"adminMode":   "प्रशासक",

		"issues":    "समस्याएं",
		"mapView":   "मानचित्र दृश्य",
		"dashboard": "डैशबोर्ड",

		"reportIssue":        "नागरिक समस्या रिपोर्ट करें",
		"issueType":          "समस्या का प्रकार",
		"selectIssueType":    "समस्या का प्रकार चुनें",
		"title":              "शीर्षक",
		"description":        "विवरण",
		"location":           "स्थान",
		"municipality":       "नगर पालिका",
		"selectMunicipality": "नगर पालिका चुनें",
		"priority":           "प्राथमिकता",
		"selectPriority":     "प्राथमिकता चुनें",
		"citizenInfo":        "नागरिक की जानकारी",
		"name":               "नाम",
		"enterFullName":      "अपना पूरा नाम दर्ज करें",
		"phoneNumber":        "फोन नंबर",
		"email":              "ईमेल (वैकल्पिक)",
		"useCurrentLocation": "वर्तमान स्थान का उपयोग करें",
		"photoOptional":      "फोटो (वैकल्पिक)",
		"submit":             "रिपोर्ट जमा करें",
		"cancel":             "रद्द करें",

		"waterSupply":     "🚰 पानी की आपूर्ति",
		"electricity":     "⚡ बिजली",
		"roads":           "🛣️ सड़कें",
		"drainage":        "💧 नाली",
		"garbage":         "🗑️ कचरा",
		"streetlight":     "💡 स्ट्रीट लाइट",
		"traffic":         "🚦 यातायात",
		"sanitation":      "🚽 स्वच्छता",
		"parks":           "🌳 पार्क",
		"publicTransport": "🚌 सार्वजनिक परिवहन",
		"noisePollution":  "🔊 ध्वनि प्रदूषण",
		"airPollution":    "🌫️ वायु प्रदूषण",
		"waterPollution":  "🌊 जल प्रदूषण",
		"encroachment":    "🏗️ अतिक्रमण",
		"streetVendors":   "🛒 फुटपाथ विक्रेता",
		"parking":         "🅿️ पार्किंग",
		"publicToilets":   "🚻 सार्वजनिक शौचालय",
		"other":           "📋 अन्य",

		"submitted":  "जमा किया गया",
		"inProgress": "कार्य जारी",
		"resolved":   "समाधान",
		"rejected":   "अस्वीकृत",

		"titleRequired":        "शीर्षक आवश्यक है",
		"categoryRequired":     "कृपया समस्या का प्रकार चुनें",
		"descriptionRequired":  "विवरण आवश्यक है",
		"locationRequired":     "स्थान आवश्यक है",
		"municipalityRequired": "कृपया नगर पालिका चुनें",
		"nameRequired":         "नाम आवश्यक है",
		"phoneRequired":        "फोन नंबर आवश्यक है",

		"filter":            "फिल्टर",
		"allStatus":         "सभी स्थिति",
		"allMunicipalities": "सभी नगर पालिकाएं",
		"legend":            "सूची",
		"search":            "खोजें...",

		"adminDashboard": "नगर पालिका प्रशासन",
		"manageIssues":   "समस्याओं का प्रबंधन और समाधान",
		"total":          "कुल",
		"pending":        "लंबित",
		"updateStatus":   "स्थिति अपडेट करें",
		"newStatus":      "नई स्थिति",
		"comment":        "टिप्पणी (वैकल्पिक)",
		"addComment":     "अपडेट के बारे में टिप्पणी दें...",
		"update":         "अपडेट करें",
		"noReports":      "कोई रिपोर्ट नहीं मिली",
		"status":         "स्थिति",
	},
}

func isSupportedLanguage(code string) bool {
	for _, lang := range supportedLanguages {
		if lang.Code == code {
			return true
		}
	}
	return false
}

// normalizeLanguage reduces tags like "hi-IN" to their primary subtag and
// returns fallback when the result is not supported.
func normalizeLanguage(raw, fallback string) string {
	code := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		code = code[:idx]
	}
	if isSupportedLanguage(code) {
		return code
	}
	return fallback
}

func lookupTranslation(lang, key string) (string, bool) {
	if value, ok := translations[lang][key]; ok && value != "" {
		return value, true
	}
	if value, ok := translations[fallbackLanguage][key]; ok {
		return value, true
	}
	return "", false
}

// translate resolves lang, then English, then the key itself.
func translate(lang, key string) string {
	if value, ok := lookupTranslation(lang, key); ok {
		return value
	}
	return key
}

func categoryLabel(lang string, category Category) string {
	info := category.info()
	if value, ok := lookupTranslation(lang, info.TranslationKey); ok {
		return value
	}
	return info.Name
}

func statusLabel(lang string, status Status) string {
	return translate(lang, status.translationKey())
}

// translationTable merges lang over the English table.
func translationTable(lang string) map[string]string {
	out := make(map[string]string, len(translations[fallbackLanguage]))
	for key, value := range translations[fallbackLanguage] {
		out[key] = value
	}
	for key, value := range translations[lang] {
		out[key] = value
	}
	return out
}

type CategoryOption struct {
	Value    Category `json:"value"`
	Label    string   `json:"label"`
	Name     string   `json:"name"`
	Severity Level    `json:"severity,omitempty"`
}

func localizedCategories(lang string) []CategoryOption {
	out := make([]CategoryOption, 0, len(categoryCatalog))
	for _, info := range categoryCatalog {
		option := CategoryOption{Value: info.Code, Label: categoryLabel(lang, info.Code), Name: info.Name}
		for _, profile := range issueProfiles {
			if profile.Category == info.Code {
				option.Severity = profile.Severity
				break
			}
		}
		out = append(out, option)
	}
	return out
}

type LocalizedReport struct {
	Report
	CategoryDisplay string `json:"categoryDisplay"`
	StatusDisplay   string `json:"statusDisplay"`
}

func translateReport(report Report, lang string) LocalizedReport {
	return LocalizedReport{
		Report:          report,
		CategoryDisplay: categoryLabel(lang, report.Category),
		StatusDisplay:   statusLabel(lang, report.Status),
	}
}

func translateReports(reports []Report, lang string) []LocalizedReport {
	out := make([]LocalizedReport, 0, len(reports))
	for _, r := range reports {
		out = append(out, translateReport(r, lang))
	}
	return out
}

// requestLanguage prefers ?lang= over Accept-Language.
func (a *App) requestLanguage(c *gin.Context) string {
	fallback := fallbackLanguage
	if a.cfg != nil && a.cfg.DefaultLanguage != "" {
		fallback = a.cfg.DefaultLanguage
	}
	if lang := strings.TrimSpace(c.Query("lang")); lang != "" {
		return normalizeLanguage(lang, fallback)
	}
	if header := c.GetHeader("Accept-Language"); header != "" {
		first := strings.SplitN(strings.SplitN(header, ",", 2)[0], ";", 2)[0]
		return normalizeLanguage(first, fallback)
	}
	return fallback
}

func (a *App) languagesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, supportedLanguages)
}

func (a *App) translationsHandler(c *gin.Context) {
	code := strings.ToLower(strings.TrimSpace(c.Param("lang")))
	if !isSupportedLanguage(code) {
		writeAPIError(c, &apiError{Status: http.StatusNotFound, Code: "language_not_supported", Message: "Language is not supported"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"language": code, "translations": translationTable(code)})
}

func (a *App) categoriesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, localizedCategories(a.requestLanguage(c)))
}
