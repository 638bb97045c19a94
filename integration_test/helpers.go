package integration_test

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"eduauthd/core"

	_ "modernc.org/sqlite"
)

const testSessionSecret = "test-secret-key-for-integration-tests"

type EducationResponse struct {
	Name             string `json:"name"`
	DateOfBirth      string `json:"dateOfBirth"`
	EducationRecords []struct {
		ID                string   `json:"id"`
		Type              string   `json:"type"`
		Institution       string   `json:"institution"`
		Board             string   `json:"board"`
		YearOfPassing     int      `json:"yearOfPassing"`
		Percentage        float64  `json:"percentage"`
		RollNumber        string   `json:"rollNumber"`
		CertificateNumber string   `json:"certificateNumber"`
		Subjects          []string `json:"subjects"`
		Status            string   `json:"status"`
	} `json:"educationRecords"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Status        string `json:"status"`
}

// newBrowser returns a client that keeps cookies and stops at every
// redirect, so each hop can be inspected.
func newBrowser() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Jar:     jar,
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// follow issues a GET and returns the redirect target
func follow(client *http.Client, target string) (int, string, error) {
	resp, err := client.Get(target)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	return resp.StatusCode, resp.Header.Get("Location"), nil
}

func getJSON(client *http.Client, target string, v any) (int, error) {
	resp, err := client.Get(target)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(v)
}

func postJSON(client *http.Client, target string, v any) (int, error) {
	resp, err := client.Post(target, "application/json", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(v)
}

func countSessions(dbPath string) (int, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count)
	return count, err
}

func countSessionsWithPrefix(dbPath, prefix string) (int, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sessions WHERE key LIKE ?", prefix+"%").Scan(&count)
	return count, err
}

func cleanDatabase(dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec("DELETE FROM sessions")
	return err
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return string(body)
}

func mustSigningKey(t *testing.T) []byte {
	t.Helper()
	crypto, err := core.NewCryptoService(testSessionSecret)
	if err != nil {
		t.Fatalf("Failed to derive signing key: %v", err)
	}
	return crypto.SigningKey()
}
