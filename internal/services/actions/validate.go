package actions

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ternarybob/tcsync/internal/models"
)

// studentRequirements are the fields the portal's create form cannot do without
type studentRequirements struct {
	PhoneNumber string `label:"phone number" validate:"required"`
	Height      string `label:"height" validate:"required"`
	EyeColor    string `label:"eye color" validate:"required"`
	Gender      string `label:"gender" validate:"required"`
	HouseNumber string `label:"house number" validate:"required"`
	StreetName  string `label:"street name" validate:"required"`
	City        string `label:"city" validate:"required"`
	State       string `label:"state" validate:"required"`
	Zipcode     string `label:"zip code" validate:"required"`
}

// certificatePayload is a certificate unit after trimming and normalization
type certificatePayload struct {
	FirstName     string `label:"first_name" validate:"required"`
	LastName      string `label:"last_name" validate:"required"`
	IssueDate     string `label:"issue_date" validate:"required,datetime=2006-01-02"`
	ExpiryDate    string `label:"expiry_date" validate:"required,datetime=2006-01-02"`
	CourseName    string `label:"course_name" validate:"required"`
	Instructor    string `label:"instructor" validate:"required"`
	CertificateID string `label:"certificate_id" validate:"required"`
	PhoneNumber   string `label:"phone_number" validate:"required,numeric"`
	Email         string `label:"email" validate:"required,portal_email"`
}

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,7}$`)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if label := field.Tag.Get("label"); label != "" {
			return label
		}
		return field.Name
	})
	_ = v.RegisterValidation("portal_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	return v
}

// checkStudent reports the first missing create-form field
func (e *Executor) checkStudent(unit *models.UploadUnit) *models.WorkerError {
	req := studentRequirements{
		PhoneNumber: unit.PhoneNumber.String(),
		Height:      unit.Height.String(),
		EyeColor:    strings.TrimSpace(unit.EyeColor),
		Gender:      strings.TrimSpace(unit.Gender),
		HouseNumber: unit.HouseNumber.String(),
		StreetName:  strings.TrimSpace(unit.StreetName),
		City:        strings.TrimSpace(unit.City),
		State:       strings.TrimSpace(unit.State),
		Zipcode:     unit.Zipcode.String(),
	}

	err := e.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return missingField(fieldErrs[0].Field())
	}
	return models.System("student validation failed", err)
}

// normalizeCertificate trims and cleans the certificate fields of unit and validates them
func (e *Executor) normalizeCertificate(unit *models.UploadUnit) (*certificatePayload, *models.WorkerError) {
	payload := &certificatePayload{
		FirstName:     strings.TrimSpace(unit.FirstName),
		LastName:      strings.TrimSpace(unit.LastName),
		IssueDate:     dateOnly(unit.IssueDate),
		ExpiryDate:    dateOnly(unit.ExpiryDate),
		CourseName:    strings.TrimSpace(strings.NewReplacer("&amp;", "", "&nbsp;", "").Replace(unit.CourseName)),
		Instructor:    strings.TrimSpace(unit.Instructor),
		CertificateID: strings.ReplaceAll(unit.CertificateID.String(), " ", ""),
		PhoneNumber:   normalizePhone(unit.PhoneNumber.String()),
		Email:         strings.TrimSpace(unit.Email),
	}

	err := e.validate.Struct(payload)
	if err == nil {
		return payload, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return nil, models.System("certificate validation failed", err)
	}

	fe := fieldErrs[0]
	switch {
	case fe.Tag() == "required":
		return nil, models.DataQuality(
			fmt.Sprintf("User is missing %s", fe.Field()),
			fmt.Sprintf("Please provide the %s for this user.", fe.Field()))
	case fe.Field() == "issue_date":
		return nil, models.DataQuality("Invalid issue date",
			"The issue date provided is invalid. The correct format should be YYYY-MM-DD.")
	case fe.Field() == "expiry_date":
		return nil, models.DataQuality("Invalid expiry date",
			"The expiry date provided is invalid. The correct format should be YYYY-MM-DD.")
	case fe.Field() == "phone_number":
		return nil, models.DataQuality("Invalid phone number", "The phone number provided is invalid.")
	default:
		return nil, models.DataQuality("Invalid email", "The email provided is invalid.")
	}
}

// dateOnly drops a trailing time component ("2024-01-31 00:00:00")
func dateOnly(value string) string {
	value = strings.TrimSpace(value)
	if i := strings.IndexByte(value, ' '); i > 0 {
		return value[:i]
	}
	return value
}

// normalizePhone keeps the digits without leading zeros
func normalizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}
