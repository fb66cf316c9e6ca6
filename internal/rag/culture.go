package rag

import "strings"

// GeneralCulture is the fallback audience label when no specific mapping
// applies. Book sections tagged with it are the culturally neutral set.
const GeneralCulture = "General"

// MapCulture resolves a user's country and race into the closed set of
// culture labels the book section collection is tagged with. Unknown
// combinations map to GeneralCulture rather than passing raw user input
// through as a filter value. Absent inputs return the empty string, which
// leaves the book section search unscoped.
func MapCulture(country, race string) string {
	if strings.TrimSpace(country) == "" && strings.TrimSpace(race) == "" {
		return ""
	}
	switch strings.ToLower(strings.TrimSpace(country)) {
	case "malaysia":
		switch strings.ToLower(strings.TrimSpace(race)) {
		case "malay":
			return "Malay"
		case "chinese", "malaysian chinese":
			return "Malaysian Chinese"
		case "indian", "malaysian indian":
			return "Malaysian Indian"
		default:
			return GeneralCulture
		}
	case "sweden":
		return "Swedish"
	default:
		return GeneralCulture
	}
}
