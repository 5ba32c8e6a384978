// Package access holds the caller roles and the allow-list policy that gates
// every entity model read and write.
package access

import (
	"fmt"
	"slices"
	"strings"
)

// Role is an access-level label attached to a request.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDefault Role = "default"
)

// Roles is the closed set of recognised roles.
var Roles = []Role{RoleAdmin, RoleDefault}

// ParseRole validates s against the closed set of roles.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Roles, r) {
		return Role(s), fmt.Errorf("role %q is not recognized", s)
	}
	return r, nil
}

// Caller is the authorization context passed alongside each model call.
// A Caller built from an unknown role is kept so that every operation it
// attempts is denied.
type Caller struct {
	role  Role
	valid bool
}

// NewCaller validates role once. The returned Caller is usable even when
// the role is invalid; the error only reports why it will be denied.
func NewCaller(role string) (Caller, error) {
	r, err := ParseRole(role)
	return Caller{role: r, valid: err == nil}, err
}

// Admin returns an admin caller, used by bootstrap and batch jobs.
func Admin() Caller {
	return Caller{role: RoleAdmin, valid: true}
}

// Role returns the caller's role label.
func (c Caller) Role() Role {
	return c.role
}

// Valid reports whether the role belongs to the closed set.
func (c Caller) Valid() bool {
	return c.valid
}

func (c Caller) String() string {
	return string(c.role)
}
