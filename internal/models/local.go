package models

import "time"

// LocalUser is the LMS user row as far as this worker cares
type LocalUser struct {
	ID          string     `json:"id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email"`
	PhoneNumber string     `json:"phone_number"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

// CertificateRecord is the LMS certificate row written before the portal is touched
type CertificateRecord struct {
	CertificateNumber string
	CourseName        string
	Instructor        string
	IssueDate         time.Time
	ExpiryDate        time.Time
	FirstName         string
	LastName          string
	Email             string
	PhoneNumber       string
	UploadedBy        string
}

// SaveResult describes what a certificate save did to the user table
type SaveResult struct {
	User        LocalUser
	UserCreated bool
}

// LocalUserUpdate carries portal values copied onto the local user; empty fields are left untouched
type LocalUserUpdate struct {
	HeadShot    string
	PhotoID     string
	EyeColor    string
	Height      int
	Gender      string
	PhoneNumber string
	Email       string
	DateOfBirth *time.Time
	Address     string
	City        string
	State       string
	Zipcode     string
}

// ConflictError reports a write the LMS refused because conflicting data already exists.
// Detail is safe to show to the uploader.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string {
	return e.Detail
}
