// Package normalize canonicalizes the identifiers and numeric values that
// arrive from bibliographic records and journal-metrics tables, so that
// values from different sources compare equal.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nonISSNChars = regexp.MustCompile(`[^0-9X]`)
	nonDigitRun  = regexp.MustCompile(`[^0-9]+`)
	digitRun     = regexp.MustCompile(`[0-9]+`)
	yearRun      = regexp.MustCompile(`[0-9]{4}`)
	numberToken  = regexp.MustCompile(`[-+]?[0-9]*\.?[0-9]+`)
)

// JournalID normalizes a print or electronic journal identifier (ISSN-like
// code) by uppercasing and stripping everything except digits and the
// literal check character "X". Idempotent.
func JournalID(s string) string {
	return nonISSNChars.ReplaceAllString(strings.ToUpper(s), "")
}

// SubjectCodes parses subject-classification codes out of free text.
// The text is split on runs of non-digit characters; tokens longer than four
// digits keep their last four, shorter tokens are discarded. The result is a
// set of exactly-4-character codes.
func SubjectCodes(raw string) map[string]struct{} {
	return SubjectCodeList(nonDigitRun.Split(raw, -1))
}

// SubjectCodeList is SubjectCodes for input that is already tokenized.
func SubjectCodeList(tokens []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range tokens {
		if tok == "" || !allDigits(tok) {
			continue
		}
		if len(tok) > 4 {
			tok = tok[len(tok)-4:]
		}
		if len(tok) == 4 {
			out[tok] = struct{}{}
		}
	}
	return out
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Percentage coerces a percentile cell to a float. It strips "%" and
// whitespace, accepts a comma decimal separator, and extracts the first
// numeric substring. Returns false when no number is present.
func Percentage(raw string) (float64, bool) {
	return Float(strings.ReplaceAll(raw, "%", ""))
}

// Float coerces a numeric cell to a float with the same leniency as
// Percentage, minus the "%" handling.
func Float(raw string) (float64, bool) {
	txt := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	txt = strings.ReplaceAll(txt, ",", ".")
	if txt == "" {
		return 0, false
	}
	m := numberToken.FindString(txt)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Year extracts the first 4-digit run from a date-ish string.
func Year(raw string) (int, bool) {
	m := yearRun.FindString(raw)
	if m == "" {
		return 0, false
	}
	y := 0
	for _, r := range m {
		y = y*10 + int(r-'0')
	}
	return y, true
}

// Digits extracts the first digit run from a string. Used to pull a numeric
// registry id out of cells like "scopus:21100855841".
func Digits(s string) string {
	return digitRun.FindString(s)
}

// QuartileFromPercentile maps a percentile to its coarse quality bucket.
// The top decile gets the distinguished "QT" label above Q1. A nil
// percentile yields the empty label. Out-of-range values are bucketed as
// given; this encodes institutional policy, not validation.
func QuartileFromPercentile(p *float64) string {
	if p == nil {
		return ""
	}
	switch {
	case *p >= 90:
		return "QT"
	case *p >= 75:
		return "Q1"
	case *p >= 50:
		return "Q2"
	case *p >= 25:
		return "Q3"
	default:
		return "Q4"
	}
}
