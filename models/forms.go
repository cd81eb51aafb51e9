package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinFormType = 1
	MaxFormType = 9
)

// FormType identifies one of the nine compliance form categories.
type FormType int

func (f FormType) Valid() bool {
	return f >= MinFormType && f <= MaxFormType
}

// UnmarshalJSON accepts both 3 and "3", as clients send either.
func (f *FormType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("form type must be an integer")
	}
	*f = FormType(n)
	return nil
}

// ParseFormType parses a path parameter and checks its range.
func ParseFormType(s string) (FormType, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("form type must be an integer")
	}
	ft := FormType(n)
	if !ft.Valid() {
		return 0, fmt.Errorf("form type must be between %d and %d", MinFormType, MaxFormType)
	}
	return ft, nil
}

// Answer is a yes/no questionnaire answer.
type Answer string

const (
	AnswerYes Answer = "yes"
	AnswerNo  Answer = "no"
)

func (a Answer) Valid() bool {
	return a == AnswerYes || a == AnswerNo
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("answer must be a string: %w", err)
	}
	ans := Answer(s)
	if !ans.Valid() {
		return fmt.Errorf("answer must be yes or no, got %q", s)
	}
	*a = ans
	return nil
}

// Status is the review state of a form response.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Decision reports whether s is a status a reviewer may set.
func (s Status) Decision() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("status must be a string: %w", err)
	}
	st := Status(v)
	if !st.Valid() {
		return fmt.Errorf("unknown status %q", v)
	}
	*s = st
	return nil
}

// Scan implements sql.Scanner.
func (s *Status) Scan(src interface{}) error {
	var v string
	switch t := src.(type) {
	case string:
		v = t
	case []byte:
		v = string(t)
	default:
		return fmt.Errorf("cannot scan %T into Status", src)
	}
	st := Status(v)
	if !st.Valid() {
		return fmt.Errorf("unknown status %q in store", v)
	}
	*s = st
	return nil
}

func (s Status) Value() (driver.Value, error) {
	return string(s), nil
}

// Entry is one answered question.
type Entry struct {
	Question string `json:"question"`
	Answer   Answer `json:"answer"`
}

// Entries is stored as a JSONB column. Value returns a string because the
// driver sends []byte parameters as bytea.
type Entries []Entry

func (e Entries) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (e *Entries) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*e = Entries{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Entries", src)
	}
	return json.Unmarshal(data, e)
}

// Validate checks that every answer is yes or no. An empty list and blank
// question text are accepted.
func (e Entries) Validate() error {
	for i, entry := range e {
		if !entry.Answer.Valid() {
			return fmt.Errorf("responses[%d]: answer must be yes or no", i)
		}
	}
	return nil
}

// FormResponse is a submitted questionnaire.
type FormResponse struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	FormType  FormType  `json:"formType"`
	Responses Entries   `json:"responses"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Set only when a reviewer decides a pending response. Self-certified
	// submissions are approved at creation and leave both nil.
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
	DecidedBy *uuid.UUID `json:"decidedBy,omitempty"`
}

// ResponseWithSubmitter is the reviewer read model: a response joined with
// the submitter's public profile.
type ResponseWithSubmitter struct {
	FormResponse
	User PublicUser `json:"user"`
}

// SubmitRequest is the body of POST /forms/submit.
type SubmitRequest struct {
	FormType  FormType `json:"formType"`
	Responses Entries  `json:"responses"`
}

// StatusUpdateRequest is the body of PATCH /grouphead/responses/{responseId}.
type StatusUpdateRequest struct {
	Status Status `json:"status"`
}

// ResponseScope restricts which responses a reviewer may touch. AllFormTypes
// is set for admins; otherwise only FormType is in scope.
type ResponseScope struct {
	AllFormTypes bool
	FormType     FormType
}
