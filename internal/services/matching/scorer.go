package matching

import (
	"strings"
	"unicode"

	"github.com/ternarybob/tcsync/internal/models"
)

// enoughMatches stops scoring once this many identity fields agree
const enoughMatches = 2

// Score counts how many of phone, email and birth date agree between the unit and a profile.
// Fields missing on either side are not compared.
func Score(unit *models.UploadUnit, profile *models.ProfileFields) int {
	matches := 0

	if phone := digits(unit.PhoneNumber.String()); phone != "" && profile.Phone != "" {
		if phone == digits(profile.Phone) {
			matches++
		}
	}

	if email := strings.ToLower(strings.TrimSpace(unit.Email)); email != "" && profile.Email != "" {
		if email == strings.ToLower(strings.TrimSpace(profile.Email)) {
			matches++
		}
	}
	if matches >= enoughMatches {
		return matches
	}

	if unit.BirthDate() != "" && profile.BirthDate != "" {
		ours, err1 := models.ParseBirthDate(unit.BirthDate())
		theirs, err2 := models.ParseBirthDate(profile.BirthDate)
		if err1 == nil && err2 == nil && ours.Format("2006-01-02") == theirs.Format("2006-01-02") {
			matches++
		}
	}

	return matches
}

// Accept applies the asymmetric threshold: two agreeing fields always match,
// one is enough only when the search returned a single candidate.
func Accept(matches, candidates int) bool {
	return matches >= enoughMatches || (matches >= 1 && candidates == 1)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
