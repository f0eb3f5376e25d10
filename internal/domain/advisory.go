package domain

import "time"

// Advisory is a weather alert active over the closed interval [Onset, Ends].
// A zero Ends means the issuer gave no end time; the advisory stays active
// from Onset onward.
type Advisory struct {
	ID       string    `json:"id,omitempty"`
	Headline string    `json:"headline"`
	Event    string    `json:"event,omitempty"`
	Severity string    `json:"severity,omitempty"`
	Onset    time.Time `json:"onset"`
	Ends     time.Time `json:"ends"`
}

// ActiveAt reports whether t falls in [Onset, Ends], both ends inclusive.
func (a Advisory) ActiveAt(t time.Time) bool {
	if t.Before(a.Onset) {
		return false
	}
	return a.Ends.IsZero() || !t.After(a.Ends)
}

// MatchingAdvisories returns the headlines of every advisory active at
// instant, in input order. No match is an empty, non-nil slice.
func MatchingAdvisories(advisories []Advisory, instant time.Time) []string {
	headlines := []string{}
	for _, a := range advisories {
		if a.ActiveAt(instant) {
			headlines = append(headlines, a.Headline)
		}
	}
	return headlines
}
