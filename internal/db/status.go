package db

import (
	"database/sql/driver"
	"fmt"
)

// Status is the lifecycle state of a rental.
//
//	Pending|Confirmed -> Active -> Returned
//	Pending|Confirmed|Active -> Cancelled
//
// Returned and Cancelled are terminal.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusPending
	StatusConfirmed
	StatusActive
	StatusReturned
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusPending:   "Pending",
	StatusConfirmed: "Confirmed",
	StatusActive:    "Active",
	StatusReturned:  "Returned",
	StatusCancelled: "Cancelled",
}

// OpenStatuses lists every non-terminal status. A rental in one of these holds one copy of its book.
var OpenStatuses = []Status{StatusPending, StatusConfirmed, StatusActive}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Valid reports whether s is one of the five known statuses.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsTerminal reports whether s can no longer transition.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusReturned, StatusCancelled:
		return true
	case StatusPending, StatusConfirmed, StatusActive:
		return false
	}
	return false
}

// IsOpen reports whether s is a known non-terminal status.
func (s Status) IsOpen() bool {
	return s.Valid() && !s.IsTerminal()
}

// ParseStatus converts a status name (as stored and as exposed over the API) to a Status.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown rental status %q", name)
}

// Value implements driver.Valuer; statuses are stored by name.
func (s Status) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid rental status %d", uint8(s))
	}
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *Status) Scan(src interface{}) error {
	var name string
	switch v := src.(type) {
	case string:
		name = v
	case []byte:
		name = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Status", src)
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalText lets statuses travel as names in JSON.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid rental status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Role is a member's role in the directory.
type Role string

const (
	RoleStudent Role = "Student"
	RoleAdmin   Role = "Admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}
