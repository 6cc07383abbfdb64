package models

// ProfileFields are the values scraped from a portal student profile page
type ProfileFields struct {
	URL              string `json:"url"`
	PhotoURL         string `json:"photo_url,omitempty"`
	PhotoID          string `json:"photo_id,omitempty"`
	EyeColor         string `json:"eye_color,omitempty"`
	Height           string `json:"height,omitempty"`
	Gender           string `json:"gender,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Email            string `json:"email,omitempty"`
	BirthDate        string `json:"birth_date,omitempty"`
	Address          string `json:"address,omitempty"`
	AddToProviderURL string `json:"add_to_provider_url,omitempty"`
}

// SearchKind selects which portal search a lookup strategy runs
type SearchKind string

const (
	SearchCardID SearchKind = "CardId"
	SearchOshaID SearchKind = "OshaId"
	SearchName   SearchKind = "StudentName"
	SearchRoster SearchKind = "Roster"
)

// StudentForm is the data entered on the portal's create-student form
type StudentForm struct {
	FirstName   string
	MiddleName  string
	LastName    string
	Suffix      string
	DateOfBirth string // YYYY-MM-DD, the date input's value format
	PhotoPath   string
	HouseNumber string
	StreetName  string
	City        string
	State       string
	Zipcode     string
	Email       string
	Phone       string
	Height      string
	Gender      string
	EyeColor    string
}

// CertificateForm is the data entered on the portal's create-certificate form
type CertificateForm struct {
	CourseName        string
	CertificateNumber string
	IssueDate         string // YYYY-MM-DD
	ExpirationDate    string // YYYY-MM-DD
	TrainerName       string
	ImagePath         string
}
