package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMissingVerifier        = errors.New("code verifier not found")
	ErrMissingCode            = errors.New("authorization code is required")
	ErrTokenExchangeFailed    = errors.New("provider token exchange failed")
	ErrMalformedTokenResponse = errors.New("malformed token response")
	ErrNotAuthenticated       = errors.New("not authenticated")
	ErrProfileFetchFailed     = errors.New("provider profile request failed")
	ErrDocumentNotFound       = errors.New("document not issued")
	ErrDocumentFetchFailed    = errors.New("provider document request failed")
	ErrInvalidDocument        = errors.New("invalid document payload")
	ErrNoRecordsFound         = errors.New("no education records found")
	ErrTransport              = errors.New("provider unreachable")
	ErrAuthorizationDenied    = errors.New("authorization denied by provider")
	ErrStateMismatch          = errors.New("state mismatch")
)

// TokenExchangeError carries the provider's raw answer to a rejected exchange.
type TokenExchangeError struct {
	StatusCode int
	Body       string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", ErrTokenExchangeFailed, e.StatusCode, e.Body)
}

func (e *TokenExchangeError) Unwrap() error {
	return ErrTokenExchangeFailed
}

// DocumentSpec names one document the provider is asked for and the record
// type it normalizes into.
type DocumentSpec struct {
	Identifier string
	Type       RecordType
	Board      string
}

// EducationDocuments are fetched on every education request, in this order.
var EducationDocuments = []DocumentSpec{
	{Identifier: "CBSE/MARKS10", Type: RecordSecondary, Board: "CBSE"},
	{Identifier: "CBSE/MARKS12", Type: RecordHigherSecondary, Board: "CBSE"},
}

// DocumentResult is the outcome of fetching a single document. Exactly one of
// Record and Err is set.
type DocumentResult struct {
	Spec   DocumentSpec
	Record *EducationRecord
	Err    error
}

// CollectRecords reduces per-document results into the records that
// succeeded, unique by id and in document order. It fails with
// ErrNoRecordsFound when no document produced a record.
func CollectRecords(results []DocumentResult) ([]EducationRecord, error) {
	var records []EducationRecord
	var failures []error
	seen := make(map[string]struct{}, len(results))

	for _, res := range results {
		if res.Err != nil || res.Record == nil {
			if res.Err != nil {
				failures = append(failures, fmt.Errorf("%s: %w", res.Spec.Identifier, res.Err))
			}
			continue
		}
		if _, dup := seen[res.Record.ID]; dup {
			continue
		}
		seen[res.Record.ID] = struct{}{}
		records = append(records, *res.Record)
	}

	if len(records) == 0 {
		if len(failures) == 0 {
			return nil, ErrNoRecordsFound
		}
		return nil, fmt.Errorf("%w: %w", ErrNoRecordsFound, errors.Join(failures...))
	}

	return records, nil
}

// RecordsProvider is an upstream that authorizes the user and serves their
// education documents. Implementations hold no per-user state; the TokenSet
// is passed into every call.
type RecordsProvider interface {
	AuthorizationURL() (*AuthorizationRequest, error)

	ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error)

	FetchProfile(ctx context.Context, token *TokenSet) (*Profile, error)

	FetchEducationRecords(ctx context.Context, token *TokenSet) ([]EducationRecord, error)

	Provider() Provider
}
