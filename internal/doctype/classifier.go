// Package doctype assigns a coarse category to a medical document to aid
// filtering and presentation. Classification is heuristic keyword matching,
// not a diagnosis of the document's contents.
package doctype

import "strings"

// Type is a coarse document category.
type Type string

const (
	DEXA    Type = "DEXA"
	VO2     Type = "VO2"
	HRV     Type = "HRV"
	LAB     Type = "LAB"
	General Type = "GENERAL"
)

// category pairs a type with the keywords that signal it. Order is the fixed
// precedence: DEXA before VO2 before HRV before LAB; first match wins.
type category struct {
	docType          Type
	filenameKeywords []string
	contentKeywords  []string
}

var categories = []category{
	{
		docType:          DEXA,
		filenameKeywords: []string{"dexa", "dxa"},
		contentKeywords:  []string{"bone density", "body composition", "lean mass"},
	},
	{
		docType:          VO2,
		filenameKeywords: []string{"vo2", "cardio"},
		contentKeywords:  []string{"vo2 max", "cardio", "fitness test"},
	},
	{
		docType:          HRV,
		filenameKeywords: []string{"hrv", "heart rate"},
		contentKeywords:  []string{"heart rate variability", "hrv", "autonomic"},
	},
	{
		docType:          LAB,
		filenameKeywords: []string{"blood", "lab"},
		contentKeywords:  []string{"blood test", "laboratory", "biomarker"},
	},
}

// Classify labels a document by scanning filename and content for domain
// keywords, case-insensitively. Filename signals are considered more reliable
// and are checked across all categories before any content is inspected.
// Documents matching nothing are General.
func Classify(text, filename string) Type {
	lowerName := strings.ToLower(filename)
	for _, c := range categories {
		for _, kw := range c.filenameKeywords {
			if strings.Contains(lowerName, kw) {
				return c.docType
			}
		}
	}

	lowerText := strings.ToLower(text)
	for _, c := range categories {
		for _, kw := range c.contentKeywords {
			if strings.Contains(lowerText, kw) {
				return c.docType
			}
		}
	}

	return General
}
