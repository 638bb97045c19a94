package core

import (
	"time"
)

// Provider identifies the upstream document provider behind a RecordsProvider
type Provider string

const (
	ProviderDigilocker Provider = "digilocker"
)

// RecordType is the education level a record belongs to
type RecordType string

const (
	RecordSecondary       RecordType = "Secondary"
	RecordHigherSecondary RecordType = "HigherSecondary"
	RecordUndergraduate   RecordType = "Undergraduate"
	RecordPostgraduate    RecordType = "Postgraduate"
	RecordOther           RecordType = "Other"
)

type RecordStatus string

const (
	StatusCompleted RecordStatus = "Completed"
	StatusOngoing   RecordStatus = "Ongoing"
)

// TokenSet is the result of a successful code exchange. Every field is required.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// AuthorizationRequest is what the caller needs to redirect the user agent
// and later complete the exchange. CodeVerifier must be stored server side.
type AuthorizationRequest struct {
	RedirectURL  string
	CodeVerifier string
	State        string
}

// PendingAuthorization is kept in the session store between the login
// redirect and the callback
type PendingAuthorization struct {
	CodeVerifier string    `json:"code_verifier"`
	State        string    `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
}

type EducationRecord struct {
	ID                string       `json:"id"`
	Type              RecordType   `json:"type"`
	Institution       string       `json:"institution"`
	Board             string       `json:"board"`
	YearOfPassing     int          `json:"yearOfPassing"`
	Percentage        float64      `json:"percentage"`
	RollNumber        string       `json:"rollNumber"`
	CertificateNumber string       `json:"certificateNumber"`
	Subjects          []string     `json:"subjects"`
	Status            RecordStatus `json:"status"`
}

// Profile is the subset of user info the provider returns
type Profile struct {
	Name        string `json:"name"`
	DateOfBirth string `json:"dateOfBirth"`
}

// PersonProfile is the payload served to the frontend
type PersonProfile struct {
	Name             string            `json:"name"`
	DateOfBirth      string            `json:"dateOfBirth"`
	EducationRecords []EducationRecord `json:"educationRecords"`
}
