package knowledge

import (
	"regexp"
	"strings"
)

// categoryRule maps a filename/title pattern to a category and default tags.
// Rules are evaluated in order, first match wins.
type categoryRule struct {
	pattern  *regexp.Regexp
	category string
	tags     []string
}

var categoryRules = []categoryRule{
	{regexp.MustCompile(`(?i)\b(aadhaar|aadhar|passport|voter|pan\s*card|ration)\b`), CategoryIDProof, []string{"identity"}},
	{regexp.MustCompile(`(?i)\b(electricity|water\s*bill|gas\s*bill|invoice|receipt)\b`), CategoryBill, []string{"utility"}},
	{regexp.MustCompile(`(?i)\b(scheme|yojana|subsidy|pmksy|atal\s*bhujal|jal\s*jeevan)\b`), CategoryScheme, []string{"government", "scheme"}},
	{regexp.MustCompile(`(?i)\b(prescription|medical|health|hospital|vaccination)\b`), CategoryHealth, []string{"medical"}},
	{regexp.MustCompile(`(?i)\b(marksheet|certificate|degree|diploma|admission)\b`), CategoryEducation, []string{"academic"}},
	{regexp.MustCompile(`(?i)\b(agreement|deed|affidavit|court|legal|patta)\b`), CategoryLegal, []string{"legal"}},
	{regexp.MustCompile(`(?i)\b(loan|bank|statement|insurance|kisan\s*credit)\b`), CategoryFinancial, []string{"finance"}},
}

// SuggestCategory classifies an upload from its filename and title.
// It is a pure function so the rule table can be unit tested on its own.
func SuggestCategory(filename, title string) (string, []string) {
	subject := strings.TrimSpace(filename + " " + title)
	if subject == "" {
		return CategoryOther, nil
	}
	for _, rule := range categoryRules {
		if rule.pattern.MatchString(subject) {
			tags := make([]string, len(rule.tags))
			copy(tags, rule.tags)
			return rule.category, tags
		}
	}
	return CategoryOther, nil
}

// ValidCategory reports whether the value is one of the known categories.
func ValidCategory(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case CategoryIDProof, CategoryBill, CategoryScheme, CategoryHealth,
		CategoryEducation, CategoryLegal, CategoryFinancial, CategoryOther:
		return true
	default:
		return false
	}
}
