package integration_test

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

type mockDocument struct {
	URI     string
	Doctype string
	Detail  string // served as-is; empty means the detail endpoint fails
}

type mockPerson struct {
	Profile   string
	Documents []mockDocument
}

// Detail payloads use different key spellings on purpose
var mockPeople = map[string]mockPerson{
	"student": {
		Profile: `{"name":"Asha Verma","dob":"2002-03-14"}`,
		Documents: []mockDocument{
			{
				URI:     "in.gov.cbse-SSCER-2018-4471",
				Doctype: "CBSE/MARKS10",
				Detail: `{"docId":"SSC-2018-4471","school":"Kendriya Vidyalaya","yearOfPassing":2018,"percentage":"91.4",` +
					`"rollNumber":"4471","certificateNumber":"CBSE/2018/4471","subjects":[{"name":"English"},{"name":"Science"}]}`,
			},
			{
				URI:     "in.gov.cbse-HSCER-2020-9902",
				Doctype: "CBSE/MARKS12",
				Detail: `{"id":"HSC-2020-9902","institution":"Kendriya Vidyalaya","year":"2020","marks":"88.2%",` +
					`"roll":"9902","certificate":"CBSE/2020/9902","subjects":["Physics","Chemistry"],"status":"completed"}`,
			},
		},
	},
	"partial": {
		Profile: `{"full_name":"Ravi Kumar","birth_date":"2003-07-01"}`,
		Documents: []mockDocument{
			{URI: "in.gov.cbse-SSCER-2019-1200", Doctype: "CBSE/MARKS10", Detail: `{"id":"SSC-2019-1200","year":2019,"percentage":77}`},
			{URI: "in.gov.cbse-HSCER-2021-1200", Doctype: "CBSE/MARKS12"},
		},
	},
	"fresher": {
		Profile: `{"name":"Meera Iyer","dob":"2009-01-20"}`,
	},
}

type mockGrant struct {
	person    string
	challenge string
	redirect  string
}

// MockDigilocker is an in-process stand-in for DigiLocker's consent page,
// token endpoint and document API. Codes are single use and bound to the
// PKCE challenge they were issued for.
type MockDigilocker struct {
	server *httptest.Server

	mu       sync.Mutex
	person   string
	deny     bool
	grants   map[string]mockGrant
	tokens   map[string]string
	sequence int

	tokenRequests int
}

func NewMockDigilocker() *MockDigilocker {
	m := &MockDigilocker{
		person: "student",
		grants: make(map[string]mockGrant),
		tokens: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/public/oauth2/1/authorize", m.handleAuthorize)
	mux.HandleFunc("/public/oauth2/1/token", m.handleToken)
	mux.HandleFunc("/public/oauth2/1/user", m.handleUser)
	mux.HandleFunc("/public/oauth2/1/file/issued", m.handleIssued)
	mux.HandleFunc("/public/oauth2/1/xml/", m.handleDetail)

	m.server = httptest.NewServer(mux)
	return m
}

func (m *MockDigilocker) URL() string {
	return m.server.URL
}

func (m *MockDigilocker) Close() {
	m.server.Close()
}

// SignInAs picks the person who consents on the next authorization
func (m *MockDigilocker) SignInAs(person string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.person = person
}

func (m *MockDigilocker) Deny(deny bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deny = deny
}

func (m *MockDigilocker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.person = "student"
	m.deny = false
	m.grants = make(map[string]mockGrant)
	m.tokens = make(map[string]string)
	m.tokenRequests = 0
}

func (m *MockDigilocker) TokenRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenRequests
}

func (m *MockDigilocker) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	redirectURI := query.Get("redirect_uri")
	if query.Get("response_type") != "code" || query.Get("code_challenge_method") != "S256" || redirectURI == "" {
		http.Error(w, "bad authorization request", http.StatusBadRequest)
		return
	}

	back := url.Values{}
	back.Set("state", query.Get("state"))

	m.mu.Lock()
	if m.deny {
		m.mu.Unlock()
		back.Set("error", "access_denied")
		back.Set("error_description", "User denied consent")
		http.Redirect(w, r, redirectURI+"?"+back.Encode(), http.StatusFound)
		return
	}
	m.sequence++
	code := fmt.Sprintf("code-%d", m.sequence)
	m.grants[code] = mockGrant{
		person:    m.person,
		challenge: query.Get("code_challenge"),
		redirect:  redirectURI,
	}
	m.mu.Unlock()

	back.Set("code", code)
	http.Redirect(w, r, redirectURI+"?"+back.Encode(), http.StatusFound)
}

func (m *MockDigilocker) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, `{"error":"invalid_request"}`)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenRequests++

	code := r.PostForm.Get("code")
	grant, ok := m.grants[code]
	delete(m.grants, code)

	switch {
	case r.PostForm.Get("grant_type") != "authorization_code",
		r.PostForm.Get("client_id") == "",
		r.PostForm.Get("client_secret") == "":
		writeJSON(w, http.StatusBadRequest, `{"error":"invalid_request"}`)
		return
	case !ok, r.PostForm.Get("redirect_uri") != grant.redirect:
		writeJSON(w, http.StatusBadRequest, `{"error":"invalid_grant"}`)
		return
	case s256(r.PostForm.Get("code_verifier")) != grant.challenge:
		writeJSON(w, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"code_verifier mismatch"}`)
		return
	}

	access := "access-" + code
	m.tokens[access] = grant.person
	writeJSON(w, http.StatusOK, fmt.Sprintf(
		`{"access_token":%q,"token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-%s"}`, access, code))
}

func (m *MockDigilocker) handleUser(w http.ResponseWriter, r *http.Request) {
	person, ok := m.authorize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, person.Profile)
}

func (m *MockDigilocker) handleIssued(w http.ResponseWriter, r *http.Request) {
	person, ok := m.authorize(w, r)
	if !ok {
		return
	}

	type item struct {
		URI     string `json:"uri"`
		Doctype string `json:"doctype"`
	}
	items := make([]item, 0, len(person.Documents))
	for _, doc := range person.Documents {
		items = append(items, item{URI: doc.URI, Doctype: doc.Doctype})
	}

	body, _ := json.Marshal(map[string]any{"items": items})
	writeJSON(w, http.StatusOK, string(body))
}

func (m *MockDigilocker) handleDetail(w http.ResponseWriter, r *http.Request) {
	person, ok := m.authorize(w, r)
	if !ok {
		return
	}

	uri := strings.TrimPrefix(r.URL.Path, "/public/oauth2/1/xml/")
	for _, doc := range person.Documents {
		if doc.URI != uri {
			continue
		}
		if doc.Detail == "" {
			writeJSON(w, http.StatusInternalServerError, `{"error":"upstream_failure"}`)
			return
		}
		writeJSON(w, http.StatusOK, doc.Detail)
		return
	}
	writeJSON(w, http.StatusNotFound, `{"error":"not_found"}`)
}

func (m *MockDigilocker) authorize(w http.ResponseWriter, r *http.Request) (mockPerson, bool) {
	access := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	m.mu.Lock()
	name, ok := m.tokens[access]
	m.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, `{"error":"invalid_token"}`)
		return mockPerson{}, false
	}
	return mockPeople[name], true
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
