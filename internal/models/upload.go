package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UploadType is the producer's declaration of what a unit asks the worker to do
type UploadType string

const (
	UploadStudent     UploadType = "student"
	UploadUser        UploadType = "upload_user"
	UploadUpdateUser  UploadType = "update_user"
	UploadCertificate UploadType = "certificate"
)

// Text is a JSON scalar that producers send either as a string or as a number
// (phone numbers, zip codes and certificate numbers come straight from spreadsheets).
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*t = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*t = Text(n.String())
	return nil
}

func (t Text) String() string {
	return string(t)
}

// UploadInfo carries batch bookkeeping attached to every unit
type UploadInfo struct {
	Uploader   string     `json:"uploader"`
	UploadType UploadType `json:"upload_type"`
	Position   int        `json:"position"`
	Max        int        `json:"max"`
	OnlyLMS    bool       `json:"only_lms,omitempty"`
	Save       bool       `json:"save,omitempty"`
	FileName   string     `json:"file_name,omitempty"`
}

// UploadUnit is one record of a batch: a person, optionally with a certificate payload
type UploadUnit struct {
	UserID      Text   `json:"user_id,omitempty"`
	FirstName   string `json:"first_name"`
	MiddleName  string `json:"middle_name,omitempty"`
	LastName    string `json:"last_name"`
	Suffix      string `json:"suffix,omitempty"`
	PhoneNumber Text   `json:"phone_number,omitempty"`
	Email       string `json:"email,omitempty"`
	DOB         string `json:"dob,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	HouseNumber Text   `json:"house_number,omitempty"`
	StreetName  string `json:"street_name,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Zipcode     Text   `json:"zipcode,omitempty"`
	Height      Text   `json:"height,omitempty"`
	EyeColor    string `json:"eye_color,omitempty"`
	Gender      string `json:"gender,omitempty"`
	HeadShot    string `json:"head_shot,omitempty"`

	CardID     Text `json:"sstid,omitempty"`
	OshaID     Text `json:"osha_id,omitempty"`
	OurStudent bool `json:"our_student,omitempty"`

	CourseName    string `json:"course_name,omitempty"`
	Instructor    string `json:"instructor,omitempty"`
	IssueDate     string `json:"issue_date,omitempty"`
	ExpiryDate    string `json:"expiry_date,omitempty"`
	CertificateID Text   `json:"certificate_id,omitempty"`

	UploadInfo UploadInfo `json:"upload_info"`
}

// FullName joins first and last name the way the portal search expects
func (u *UploadUnit) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// BirthDate returns whichever birth date field the producer filled
func (u *UploadUnit) BirthDate() string {
	if u.DOB != "" {
		return u.DOB
	}
	return u.DateOfBirth
}

// IsLast reports whether this unit closes its batch
func (u *UploadUnit) IsLast() bool {
	return u.UploadInfo.Position == u.UploadInfo.Max
}

// HasPortalIdentifier reports whether the unit carries a card id or OSHA id
func (u *UploadUnit) HasPortalIdentifier() bool {
	return u.CardID != "" || u.OshaID != ""
}

var ErrEmptyBatch = errors.New("batch contains no units")

// DecodeBatch parses a queue payload into its units, preserving order
func DecodeBatch(payload string) ([]UploadUnit, error) {
	var units []UploadUnit
	if err := json.Unmarshal([]byte(payload), &units); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	if len(units) == 0 {
		return nil, ErrEmptyBatch
	}
	return units, nil
}

// EncodeBatch serializes units into a queue payload
func EncodeBatch(units []UploadUnit) (string, error) {
	if len(units) == 0 {
		return "", ErrEmptyBatch
	}
	data, err := json.Marshal(units)
	if err != nil {
		return "", fmt.Errorf("failed to encode batch: %w", err)
	}
	return string(data), nil
}

// BirthDateLayouts are the date formats producers and the portal use for birth dates
var BirthDateLayouts = []string{
	"2006-01-02 15:04:05",
	"01/02/2006",
	"2006-01-02",
}

// ParseBirthDate parses a birth date in any of BirthDateLayouts
func ParseBirthDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range BirthDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}
