package providers

import (
	"context"
	"net/url"
	"sync/atomic"

	"eduauthd/core"
)

const (
	ProviderMock core.Provider = "mock"
)

// Predefined authorization codes
const (
	ValidCode     = "mock_auth_code_1"
	NoRecordsCode = "mock_auth_code_2"
)

var (
	Tokens1 = &core.TokenSet{
		AccessToken:  "mock_access_token_1",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		RefreshToken: "mock_refresh_token_1",
	}

	Tokens2 = &core.TokenSet{
		AccessToken:  "mock_access_token_2",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		RefreshToken: "mock_refresh_token_2",
	}
)

// DemoPerson is served for ValidCode
var DemoPerson = &core.PersonProfile{
	Name:        "John Doe",
	DateOfBirth: "1998-05-15",
	EducationRecords: []core.EducationRecord{
		{
			ID:                "1",
			Type:              core.RecordSecondary,
			Institution:       "Delhi Public School",
			Board:             "CBSE",
			YearOfPassing:     2014,
			Percentage:        92.5,
			RollNumber:        "A123456",
			CertificateNumber: "CBSE/2014/123456",
			Subjects:          []string{"English", "Mathematics", "Science", "Social Studies", "Hindi"},
			Status:            core.StatusCompleted,
		},
		{
			ID:                "2",
			Type:              core.RecordHigherSecondary,
			Institution:       "Delhi Public School",
			Board:             "CBSE",
			YearOfPassing:     2016,
			Percentage:        89.8,
			RollNumber:        "B123456",
			CertificateNumber: "CBSE/2016/123456",
			Subjects:          []string{"English", "Physics", "Chemistry", "Mathematics", "Computer Science"},
			Status:            core.StatusCompleted,
		},
		{
			ID:                "3",
			Type:              core.RecordUndergraduate,
			Institution:       "Indian Institute of Technology, Delhi",
			Board:             "IIT Delhi",
			YearOfPassing:     2020,
			Percentage:        85.6,
			RollNumber:        "2016CS10123",
			CertificateNumber: "IITD/2020/BTech/123",
			Subjects:          []string{"Computer Science", "Data Structures", "Algorithms", "Machine Learning"},
			Status:            core.StatusCompleted,
		},
		{
			ID:                "4",
			Type:              core.RecordPostgraduate,
			Institution:       "Indian Institute of Science, Bangalore",
			Board:             "IISc",
			YearOfPassing:     2024,
			Percentage:        91.2,
			RollNumber:        "M2022CS123",
			CertificateNumber: "IISC/2024/MTech/456",
			Subjects:          []string{"Advanced Computing", "AI", "Cloud Computing"},
			Status:            core.StatusOngoing,
		},
	},
}

// NoRecordsPerson has a profile but no issued documents
var NoRecordsPerson = &core.PersonProfile{
	Name:        "Jane Roe",
	DateOfBirth: "2001-11-02",
}

// MockProvider serves fixed demo data. Its authorization URL points straight
// back at the callback with ValidCode, so the whole flow runs without
// DigiLocker.
type MockProvider struct {
	redirectURI    string
	codeToTokens   map[string]*core.TokenSet
	accessToPerson map[string]*core.PersonProfile

	// track method calls for verification
	ExchangeCodeCalls          atomic.Int64
	FetchProfileCalls          atomic.Int64
	FetchEducationRecordsCalls atomic.Int64
}

func NewMockProvider(redirectURI string) *MockProvider {
	return &MockProvider{
		redirectURI: redirectURI,
		codeToTokens: map[string]*core.TokenSet{
			ValidCode:     Tokens1,
			NoRecordsCode: Tokens2,
		},
		accessToPerson: map[string]*core.PersonProfile{
			Tokens1.AccessToken: DemoPerson,
			Tokens2.AccessToken: NoRecordsPerson,
		},
	}
}

func (m *MockProvider) AuthorizationURL() (*core.AuthorizationRequest, error) {
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("code", ValidCode)
	query.Set("state", state)

	return &core.AuthorizationRequest{
		RedirectURL:  m.redirectURI + "?" + query.Encode(),
		CodeVerifier: GenerateVerifier(),
		State:        state,
	}, nil
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*core.TokenSet, error) {
	m.ExchangeCodeCalls.Add(1)

	if codeVerifier == "" {
		return nil, core.ErrMissingVerifier
	}

	tokens, ok := m.codeToTokens[code]
	if !ok {
		return nil, &core.TokenExchangeError{StatusCode: 400, Body: `{"error":"invalid_grant"}`}
	}

	copied := *tokens
	return &copied, nil
}

func (m *MockProvider) FetchProfile(ctx context.Context, token *core.TokenSet) (*core.Profile, error) {
	m.FetchProfileCalls.Add(1)

	person, err := m.person(token)
	if err != nil {
		return nil, err
	}

	return &core.Profile{Name: person.Name, DateOfBirth: person.DateOfBirth}, nil
}

func (m *MockProvider) FetchEducationRecords(ctx context.Context, token *core.TokenSet) ([]core.EducationRecord, error) {
	m.FetchEducationRecordsCalls.Add(1)

	person, err := m.person(token)
	if err != nil {
		return nil, err
	}

	results := make([]core.DocumentResult, 0, len(person.EducationRecords))
	for i := range person.EducationRecords {
		record := person.EducationRecords[i]
		results = append(results, core.DocumentResult{
			Spec:   core.DocumentSpec{Identifier: record.ID, Type: record.Type, Board: record.Board},
			Record: &record,
		})
	}

	return core.CollectRecords(results)
}

func (m *MockProvider) Provider() core.Provider {
	return ProviderMock
}

func (m *MockProvider) person(token *core.TokenSet) (*core.PersonProfile, error) {
	if !hasAccessToken(token) {
		return nil, core.ErrNotAuthenticated
	}

	person, ok := m.accessToPerson[token.AccessToken]
	if !ok {
		return nil, core.ErrProfileFetchFailed
	}
	return person, nil
}
