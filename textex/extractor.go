// Package textex heuristically pulls a medicine brand name and an expiry
// date out of one block of OCR-recognized text.  It is a pure text stage,
// the OCR call itself is an external capability.
package textex

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// RecognitionResult is the outcome of one OCR pass over a frame.  It is
// published as an immutable snapshot, the fusion stage reads it but never
// mutates it.
type RecognitionResult struct {
	// Success is false when the OCR capability itself failed
	Success bool
	// Text is the full recognized text with line breaks preserved
	Text string
	// BrandName is the heuristically extracted brand name, empty when no
	// line qualified
	BrandName string
	// ExpiryDate is the extracted expiry date as matched in the text,
	// empty when none was found
	ExpiryDate string
	// ErrMessage describes the OCR failure when Success is false
	ErrMessage string
}

// Failure returns a RecognitionResult for a failed OCR pass
func Failure(msg string) RecognitionResult {
	return RecognitionResult{
		ErrMessage: msg,
	}
}

// brand lines containing a dosage or form token are product descriptions,
// not names
var dosageTokens = []string{"MG", "TABLET", "CAPSULE"}

const (
	maxBrandWords  = 3
	maxBrandLength = 25
)

var (
	// numeric date, eg: 12/08/2025 or 1.8.25
	reNumericDate = regexp.MustCompile(`\b\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}\b`)
	// month name followed by a year, eg: AUG 2025 or December 2027
	reMonthYear = regexp.MustCompile(`(?i)\b(?:JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)[A-Z]*\.?\s+\d{2,4}\b`)
	// numeric month/year, eg: 12/2025 or 08-26
	reNumericMonthYear = regexp.MustCompile(`\b(?:0?[1-9]|1[0-2])[/.\-](?:\d{4}|\d{2})\b`)
	// expiry labels recognized on packaging
	reExpiryLabel = regexp.MustCompile(`(?i)\b(?:EXP(?:IRY|IRATION)?|USE\s+BY|BEST\s+BEFORE)\b`)
	// label directly followed by digits, eg: EXP 12/2025 or EXPIRY: 0826
	reLabelDigits = regexp.MustCompile(`(?i)\b(?:EXP(?:IRY|IRES)?)\b[:.\s]*(\d[\d/.\-]*\d|\d)`)
	// combined label and date anywhere in the text
	reLabelDate = regexp.MustCompile(`(?i)\b(?:EXP(?:IRY|IRATION)?|USE\s+BY|BEST\s+BEFORE)\b[^\d]{0,5}(\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}|\d{1,2}[/.\-]\d{2,4})`)
	// year component of a full numeric date
	reDateYear = regexp.MustCompile(`[/.\-](\d{2,4})$`)
)

// labelWindow is how far after an expiry label a date may appear for the two
// to be considered attached
const labelWindow = 20

// Extract runs both heuristics over one block of OCR text and returns the
// combined snapshot
func Extract(text string) RecognitionResult {
	return RecognitionResult{
		Success:    true,
		Text:       text,
		BrandName:  ExtractBrandName(text),
		ExpiryDate: ExtractExpiryDate(text),
	}
}

// ExtractBrandName scans lines top to bottom and returns the first line that
// looks like a printed brand name: at least 3 characters, not an expiry
// line, fully upper-case or title-cased on every word, free of dosage/form
// tokens, at most 3 words and 25 characters.  Returns the empty string when
// no line qualifies.
func ExtractBrandName(text string) string {

	for _, line := range strings.Split(text, "\n") {

		line = strings.TrimSpace(line)

		if len(line) < 3 || looksLikeExpiry(line) {
			continue
		}

		if !isAllUpper(line) && !isTitleCased(line) {
			continue
		}

		if containsDosageToken(line) {
			continue
		}

		if len(strings.Fields(line)) > maxBrandWords || len(line) > maxBrandLength {
			continue
		}

		return line
	}

	return ""
}

// ExtractExpiryDate runs the expiry cascade over the text, first match wins:
// a label followed by a nearby date, a label directly followed by digits, a
// combined label+date match over the whole text, then unlabeled per-line
// date patterns.  Returns the empty string when nothing matches.
func ExtractExpiryDate(text string) string {

	if date := labeledDateNearby(text); date != "" {
		return date
	}

	if match := reLabelDigits.FindStringSubmatch(text); match != nil {
		return match[1]
	}

	if match := reLabelDate.FindStringSubmatch(text); match != nil {
		return match[1]
	}

	return unlabeledDate(text)
}

// labeledDateNearby finds an expiry label with a numeric or month-name date
// within the label window
func labeledDateNearby(text string) string {

	for _, loc := range reExpiryLabel.FindAllStringIndex(text, -1) {

		windowEnd := loc[1] + labelWindow

		if windowEnd > len(text) {
			windowEnd = len(text)
		}

		window := text[loc[1]:windowEnd]

		if m := reNumericDate.FindString(window); m != "" {
			return m
		}

		if m := reMonthYear.FindString(window); m != "" {
			return m
		}
	}

	return ""
}

// unlabeledDate tries the bare per-line date patterns in priority order:
// month-name+year, numeric month/year, then full numeric dates.  A full
// numeric date is preferred when its year parses to the current year or
// later, two-digit years are read as 20xx.  When no candidate's year
// validates the first raw match is still returned.
func unlabeledDate(text string) string {

	for _, line := range strings.Split(text, "\n") {

		if m := reMonthYear.FindString(line); m != "" {
			return m
		}

		// a full numeric date also matches the month/year pattern on
		// its leading segments, leave those lines to the full-date pass
		if reNumericDate.MatchString(line) {
			continue
		}

		if m := reNumericMonthYear.FindString(line); m != "" {
			return m
		}
	}

	var fallback string

	for _, line := range strings.Split(text, "\n") {
		for _, m := range reNumericDate.FindAllString(line, -1) {

			if fallback == "" {
				fallback = m
			}

			if year, ok := parseDateYear(m); ok && year >= time.Now().Year() {
				return m
			}
		}
	}

	return fallback
}

// parseDateYear pulls the year out of a full numeric date match.  Two-digit
// years are assumed to mean 20xx.
func parseDateYear(date string) (int, bool) {

	match := reDateYear.FindStringSubmatch(date)

	if match == nil {
		return 0, false
	}

	year, err := strconv.Atoi(match[1])

	if err != nil {
		return 0, false
	}

	if year < 100 {
		year += 2000
	}

	return year, true
}

// looksLikeExpiry reports whether a line is expiry information rather than a
// brand candidate
func looksLikeExpiry(line string) bool {
	return reExpiryLabel.MatchString(line) ||
		reNumericDate.MatchString(line) ||
		reNumericMonthYear.MatchString(line)
}

// containsDosageToken reports whether the line carries a dosage or form
// token such as 500MG or TABLET
func containsDosageToken(line string) bool {

	upper := strings.ToUpper(line)

	for _, token := range dosageTokens {
		if strings.Contains(upper, token) {
			return true
		}
	}

	return false
}

// isAllUpper reports whether every letter in the line is upper-case.  Lines
// without any letters do not qualify.
func isAllUpper(line string) bool {

	hasLetter := false

	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}

	return hasLetter
}

// isTitleCased reports whether every space-separated word starts with an
// upper-case letter
func isTitleCased(line string) bool {

	words := strings.Fields(line)

	if len(words) == 0 {
		return false
	}

	for _, word := range words {
		first := []rune(word)[0]

		if !unicode.IsUpper(first) {
			return false
		}
	}

	return true
}
