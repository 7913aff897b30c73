package api

import (
	"encoding/json"
	"time"
)

// Credentials is the JSON body for POST /token/.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair is returned from POST /token/.
type TokenPair struct {
	Access   string `json:"access"`
	Refresh  string `json:"refresh,omitempty"`
	Realname string `json:"realname,omitempty"`
	Email    string `json:"email,omitempty"`
}

// SimpleUser is the abbreviated user shape embedded in departments and
// returned by GET /managers/.
type SimpleUser struct {
	UID      string `json:"uid"`
	Realname string `json:"realname"`
}

// Department is returned from the /departments/ endpoints.
type Department struct {
	ID      int64       `json:"id"`
	Name    string      `json:"name"`
	Intro   string      `json:"intro"`
	Leader  string      `json:"leader"`
	Manager *SimpleUser `json:"manager"`
}

// DepartmentInput is the JSON body for creating or replacing a department.
// Manager is the uid of the managing user.
type DepartmentInput struct {
	Name    string  `json:"name"`
	Intro   string  `json:"intro"`
	Leader  string  `json:"leader"`
	Manager *string `json:"manager,omitempty"`
}

// User is returned from GET /user/info/ and the /users/ endpoints.
type User struct {
	UID        string      `json:"uid"`
	Realname   string      `json:"realname"`
	Email      string      `json:"email,omitempty"`
	Telephone  string      `json:"telephone,omitempty"`
	Department *Department `json:"department,omitempty"`
	IsStaff    bool        `json:"is_staff"`
	Status     int         `json:"status,omitempty"`
	IsActive   bool        `json:"is_active"`
	DateJoined time.Time   `json:"date_joined,omitzero"`
}

// UserInput is the body for POST /users/ and PATCH /users/{uid}/. Nil fields
// are omitted, which makes it suitable for partial updates. Set
// ClearDepartment to send an explicit null department.
type UserInput struct {
	Realname        *string
	Email           *string
	Password        *string
	Telephone       *string
	DepartmentID    *int64
	ClearDepartment bool
	IsStaff         *bool
	IsActive        *bool
	Status          *int
}

// MarshalJSON emits only the fields that were set.
func (in UserInput) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)
	if in.Realname != nil {
		m["realname"] = *in.Realname
	}
	if in.Email != nil {
		m["email"] = *in.Email
	}
	if in.Password != nil {
		m["password"] = *in.Password
	}
	if in.Telephone != nil {
		m["telephone"] = *in.Telephone
	}
	switch {
	case in.ClearDepartment:
		m["department_id"] = nil
	case in.DepartmentID != nil:
		m["department_id"] = *in.DepartmentID
	}
	if in.IsStaff != nil {
		m["is_staff"] = *in.IsStaff
	}
	if in.IsActive != nil {
		m["is_active"] = *in.IsActive
	}
	if in.Status != nil {
		m["status"] = *in.Status
	}
	return json.Marshal(m)
}

// DashboardData is the opaque statistics object from GET /dashboard/data/.
type DashboardData map[string]any
