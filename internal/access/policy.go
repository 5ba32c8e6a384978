package access

import (
	"fmt"
	"slices"
)

// Operation is the kind of access being requested.
type Operation int

const (
	Read Operation = iota
	Write
)

func (o Operation) String() string {
	if o == Write {
		return "write"
	}
	return "read"
}

// Scope tells the policy how a resource is identified.
type Scope int

const (
	// ScopeDevice resources are identified by a device id and may be allow-listed.
	ScopeDevice Scope = iota
	// ScopeAccount resources (users) are only open to unrestricted grants.
	ScopeAccount
)

// Resource is the target of an operation.
type Resource struct {
	ID    string
	Scope Scope
}

// Device returns the resource for a device identifier.
func Device(id string) Resource {
	return Resource{ID: id, Scope: ScopeDevice}
}

// Account returns the resource for a user account.
func Account(username string) Resource {
	return Resource{ID: username, Scope: ScopeAccount}
}

// Grant is either unrestricted or limited to an allow-list of device ids.
type Grant struct {
	IDs []string
	All bool
}

// AllowAll grants every resource.
func AllowAll() Grant {
	return Grant{All: true}
}

// AllowOnly grants the listed device ids. With no ids it grants nothing.
func AllowOnly(ids ...string) Grant {
	return Grant{IDs: slices.Clone(ids)}
}

// Permits reports whether the grant covers res.
func (g Grant) Permits(res Resource) bool {
	if g.All {
		return true
	}
	if res.Scope != ScopeDevice {
		return false
	}
	return slices.Contains(g.IDs, res.ID)
}

// Rule is what a role may read and write.
type Rule struct {
	Read  Grant
	Write Grant
}

// Policy maps each role to its rule. Roles without a rule are denied.
type Policy struct {
	rules map[Role]Rule
}

// NewPolicy builds a policy from a role table.
func NewPolicy(rules map[Role]Rule) *Policy {
	p := &Policy{rules: make(map[Role]Rule, len(rules))}
	for role, rule := range rules {
		p.rules[role] = rule
	}
	return p
}

// Sample allow-lists for the default role.
var (
	DefaultReadDevices  = []string{"DT001", "DT002"}
	DefaultWriteDevices = []string{"DT001"}
)

// DefaultPolicy gives admin unrestricted access and lets the default role
// read DT001 and DT002 and write DT001.
func DefaultPolicy() *Policy {
	return NewPolicy(map[Role]Rule{
		RoleAdmin:   {Read: AllowAll(), Write: AllowAll()},
		RoleDefault: {Read: AllowOnly(DefaultReadDevices...), Write: AllowOnly(DefaultWriteDevices...)},
	})
}

// Rule returns the rule for role and whether one exists.
func (p *Policy) Rule(role Role) (Rule, bool) {
	r, ok := p.rules[role]
	return r, ok
}

// Authorize returns nil when caller may perform op on res, a *DeniedError otherwise.
func (p *Policy) Authorize(caller Caller, op Operation, res Resource) error {
	deny := func(reason string) error {
		return &DeniedError{Role: caller.Role(), Operation: op, Resource: res.ID, Reason: reason}
	}

	if !caller.Valid() {
		return deny(fmt.Sprintf("role %q is not recognized", caller.Role()))
	}

	rule, ok := p.rules[caller.Role()]
	if !ok {
		return deny(fmt.Sprintf("role %q has no access rule", caller.Role()))
	}

	grant := rule.Read
	if op == Write {
		grant = rule.Write
	}
	if grant.Permits(res) {
		return nil
	}

	if res.Scope == ScopeAccount {
		if op == Write {
			return deny("Insert failed, admin access required")
		}
		return deny("Query failed, admin access required")
	}
	if op == Write {
		return deny(fmt.Sprintf("Insert access not allowed to %s", res.ID))
	}
	return deny(fmt.Sprintf("Read access not allowed to %s", res.ID))
}
