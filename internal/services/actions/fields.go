package actions

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Address is a portal address line split into its parts
type Address struct {
	Street  string
	City    string
	State   string
	Zipcode string
}

// "123 Main St, Springfield NY 10001": the city is the shortest non-numeric run before a two-letter state.
var addressPattern = regexp.MustCompile(
	`^(?P<address>.*),\s*(?P<city>[^\d,]+?)\s+(?P<state>[A-Za-z]{2})\s*(?P<zipcode>\d{5}(?:-\d{4})?)$`)

var heightPattern = regexp.MustCompile(`^(\d+)\s*'\s*(\d+)\s*(?:"|'')?$`)

// ParseAddress splits an address line; ok is false when the line does not have the expected shape
func ParseAddress(line string) (Address, bool) {
	m := addressPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Address{}, false
	}
	return Address{
		Street:  strings.TrimSpace(m[addressPattern.SubexpIndex("address")]),
		City:    strings.TrimSpace(m[addressPattern.SubexpIndex("city")]),
		State:   strings.ToUpper(m[addressPattern.SubexpIndex("state")]),
		Zipcode: m[addressPattern.SubexpIndex("zipcode")],
	}, true
}

// ParseHeightInches reads either a feet/inches value like 5' 10" or a plain number of inches
func ParseHeightInches(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty height")
	}
	if inches, err := strconv.Atoi(value); err == nil {
		return inches, nil
	}
	m := heightPattern.FindStringSubmatch(value)
	if m == nil {
		return 0, fmt.Errorf("unrecognized height %q", value)
	}
	feet, _ := strconv.Atoi(m[1])
	inches, _ := strconv.Atoi(m[2])
	return feet*12 + inches, nil
}

// FormatHeight renders inches the way the portal's height options are labelled
func FormatHeight(inches int) string {
	return fmt.Sprintf(`%d' %d"`, inches/12, inches%12)
}

// parsePortalDate reads the portal's MM/DD/YYYY dates, tolerating dashes
func parsePortalDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"01/02/2006", "01-02-2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}
