package providers

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"eduauthd/core"

	"github.com/tidwall/gjson"
)

// AliasTable maps a canonical field to the upstream keys that may carry it,
// in priority order. A key wins when it is present, not null and not an
// empty string.
type AliasTable map[string][]string

var ProfileAliases = AliasTable{
	"name":        {"name", "full_name"},
	"dateOfBirth": {"dob", "birth_date"},
}

// RecordAliases is shared by every education document type.
var RecordAliases = AliasTable{
	"id":                {"docId", "id"},
	"institution":       {"school", "institution"},
	"board":             {"board"},
	"yearOfPassing":     {"yearOfPassing", "year"},
	"percentage":        {"percentage", "marks"},
	"rollNumber":        {"rollNumber", "roll"},
	"certificateNumber": {"certificateNumber", "certificate"},
	"subjects":          {"subjects"},
	"status":            {"status"},
}

// SubjectNameAliases apply to each element of an object-shaped subjects list.
var SubjectNameAliases = []string{"name"}

// Resolve returns the first usable value for field in an already parsed
// document, or an empty result.
func (t AliasTable) Resolve(doc gjson.Result, field string) gjson.Result {
	return firstPresent(doc, t[field])
}

func firstPresent(doc gjson.Result, keys []string) gjson.Result {
	for _, key := range keys {
		res := doc.Get(gjson.Escape(key))
		if !res.Exists() || res.Type == gjson.Null {
			continue
		}
		if res.Type == gjson.String && strings.TrimSpace(res.Str) == "" {
			continue
		}
		return res
	}
	return gjson.Result{}
}

func NormalizeProfile(doc []byte) (*core.Profile, error) {
	parsed := gjson.ParseBytes(doc)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: profile is not a JSON object", core.ErrProfileFetchFailed)
	}

	return &core.Profile{
		Name:        ProfileAliases.Resolve(parsed, "name").String(),
		DateOfBirth: ProfileAliases.Resolve(parsed, "dateOfBirth").String(),
	}, nil
}

// NormalizeRecord builds an education record of spec.Type from a document
// detail payload. fallbackID is used when the payload carries no id.
func NormalizeRecord(doc []byte, spec core.DocumentSpec, fallbackID string) (*core.EducationRecord, error) {
	parsed := gjson.ParseBytes(doc)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: %s: payload is not a JSON object", core.ErrInvalidDocument, spec.Identifier)
	}

	id := RecordAliases.Resolve(parsed, "id").String()
	if id == "" {
		id = fallbackID
	}
	if id == "" {
		return nil, fmt.Errorf("%w: %s: missing id", core.ErrInvalidDocument, spec.Identifier)
	}

	year, err := parseInt(RecordAliases.Resolve(parsed, "yearOfPassing"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: yearOfPassing: %v", core.ErrInvalidDocument, spec.Identifier, err)
	}

	percentage, err := parseFloat(RecordAliases.Resolve(parsed, "percentage"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: percentage: %v", core.ErrInvalidDocument, spec.Identifier, err)
	}
	if percentage < 0 || percentage > 100 {
		return nil, fmt.Errorf("%w: %s: percentage %v out of range", core.ErrInvalidDocument, spec.Identifier, percentage)
	}

	board := RecordAliases.Resolve(parsed, "board").String()
	if board == "" {
		board = spec.Board
	}

	return &core.EducationRecord{
		ID:                id,
		Type:              spec.Type,
		Institution:       RecordAliases.Resolve(parsed, "institution").String(),
		Board:             board,
		YearOfPassing:     year,
		Percentage:        percentage,
		RollNumber:        RecordAliases.Resolve(parsed, "rollNumber").String(),
		CertificateNumber: RecordAliases.Resolve(parsed, "certificateNumber").String(),
		Subjects:          normalizeSubjects(RecordAliases.Resolve(parsed, "subjects")),
		Status:            normalizeStatus(RecordAliases.Resolve(parsed, "status").String()),
	}, nil
}

// normalizeSubjects flattens objects to their name and passes strings
// through. Anything else yields an empty list.
func normalizeSubjects(res gjson.Result) []string {
	subjects := []string{}
	if !res.IsArray() {
		return subjects
	}

	res.ForEach(func(_, item gjson.Result) bool {
		switch {
		case item.Type == gjson.String:
			if name := strings.TrimSpace(item.Str); name != "" {
				subjects = append(subjects, name)
			}
		case item.IsObject():
			if name := firstPresent(item, SubjectNameAliases); name.Exists() {
				subjects = append(subjects, name.String())
			}
		}
		return true
	})
	return subjects
}

func normalizeStatus(status string) core.RecordStatus {
	if strings.EqualFold(strings.TrimSpace(status), string(core.StatusOngoing)) {
		return core.StatusOngoing
	}
	return core.StatusCompleted
}

func parseInt(res gjson.Result) (int, error) {
	switch res.Type {
	case gjson.Number:
		if res.Num != math.Trunc(res.Num) {
			return 0, fmt.Errorf("%v is not an integer", res.Num)
		}
		if res.Num < math.MinInt || res.Num >= math.MaxInt {
			return 0, fmt.Errorf("%v is out of range", res.Num)
		}
		return int(res.Num), nil
	case gjson.String:
		return strconv.Atoi(strings.TrimSpace(res.Str))
	case gjson.Null:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("unexpected %s value", res.Type)
	}
}

func parseFloat(res gjson.Result) (float64, error) {
	switch res.Type {
	case gjson.Number:
		return res.Num, nil
	case gjson.String:
		s := strings.TrimSuffix(strings.TrimSpace(res.Str), "%")
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%q is not a number", res.Str)
		}
		return f, nil
	case gjson.Null:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("unexpected %s value", res.Type)
	}
}
