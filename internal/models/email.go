package models

// Attachment represents an email attachment
type Attachment struct {
	Filename    string
	ContentType string // MIME type, defaults to application/octet-stream
	Content     []byte
}

// Email is a rendered message ready for delivery
type Email struct {
	To          []string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

// CertificateImage is a certificate rendered for a unit that later failed
type CertificateImage struct {
	Unit UploadUnit
	PNG  []byte
}
