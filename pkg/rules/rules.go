// Package rules implements the declarative access policy the document store
// enforces independently of the API layer. The policy mirrors the intent of
// the authorization predicates but is deliberately a separate, wider
// authority: several collections allow authenticated reads that the admin
// predicates would never grant writes for, because the mobile client shares
// the same store for its own auth flow.
package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stagepass/stagepass/pkg/authz"
)

// Op is the operation a rule gates.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// Access is the minimum tier a collection rule requires.
type Access string

const (
	// AccessNone denies everyone.
	AccessNone Access = "none"
	// AccessSelf admits only the document's owner.
	AccessSelf Access = "self"
	// AccessAuthenticated admits any verified principal.
	AccessAuthenticated Access = "authenticated"
	// AccessEventAdmin admits eventAdmin and above.
	AccessEventAdmin Access = "eventAdmin"
	// AccessClientAdmin admits clientAdmin and above.
	AccessClientAdmin Access = "clientAdmin"
	// AccessSuperAdmin admits superadmin only.
	AccessSuperAdmin Access = "superadmin"
)

func (a Access) valid() bool {
	switch a {
	case AccessNone, AccessSelf, AccessAuthenticated, AccessEventAdmin, AccessClientAdmin, AccessSuperAdmin:
		return true
	}
	return false
}

// tier orders role claims for minimum-tier rules. Higher is more
// privileged.
func tier(claims authz.TokenClaims) int {
	switch {
	case claims.IsSuperAdmin():
		return 3
	case claims.Role == authz.RoleClientAdmin:
		return 2
	case claims.Role == authz.RoleEventAdmin:
		return 1
	}
	return 0
}

func requiredTier(a Access) int {
	switch a {
	case AccessEventAdmin:
		return 1
	case AccessClientAdmin:
		return 2
	case AccessSuperAdmin:
		return 3
	}
	return 0
}

// CollectionRule gates one collection.
type CollectionRule struct {
	Read  Access `yaml:"read"`
	Write Access `yaml:"write"`
}

// RuleSet is a complete store policy.
type RuleSet struct {
	Version     int                       `yaml:"version"`
	Collections map[string]CollectionRule `yaml:"collections"`
}

// Request carries the caller identity a rule is evaluated against.
type Request struct {
	// Authenticated is false for anonymous store access.
	Authenticated bool
	Claims        authz.TokenClaims
	// OwnerID is the target document's owner, consulted by self rules.
	OwnerID string
}

// Allows evaluates the policy for one operation on one collection.
// Collections without a rule deny everything; deny is always the default
// on ambiguity.
func (rs *RuleSet) Allows(collection string, op Op, req Request) bool {
	rule, ok := rs.Collections[collection]
	if !ok {
		return false
	}

	access := rule.Read
	if op == OpWrite {
		access = rule.Write
	}

	switch access {
	case AccessNone:
		return false
	case AccessSelf:
		return req.Authenticated && req.OwnerID != "" && req.Claims.Subject == req.OwnerID
	case AccessAuthenticated:
		return req.Authenticated
	case AccessEventAdmin, AccessClientAdmin, AccessSuperAdmin:
		return req.Authenticated && tier(req.Claims) >= requiredTier(access)
	}
	return false
}

// Validate checks every rule names a known access level.
func (rs *RuleSet) Validate() error {
	if rs.Version != 1 {
		return fmt.Errorf("unsupported rules version %d", rs.Version)
	}
	for name, rule := range rs.Collections {
		if !rule.Read.valid() {
			return fmt.Errorf("collection %q: unknown read access %q", name, rule.Read)
		}
		if !rule.Write.valid() {
			return fmt.Errorf("collection %q: unknown write access %q", name, rule.Write)
		}
	}
	return nil
}

// Parse decodes and validates a YAML policy.
func Parse(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Load reads and parses a policy file.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(data)
}

// DefaultRuleSet is the shipped policy. Events, whitelist entries, and
// brands are readable by any authenticated principal because the mobile
// client resolves its own access from them; registration documents belong
// to the signed-in user alone; permission records require an admin role
// claim to read and are writable by nobody outside the API layer.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Version: 1,
		Collections: map[string]CollectionRule{
			"clients":       {Read: AccessEventAdmin, Write: AccessSuperAdmin},
			"events":        {Read: AccessAuthenticated, Write: AccessClientAdmin},
			"whitelist":     {Read: AccessAuthenticated, Write: AccessEventAdmin},
			"brands":        {Read: AccessAuthenticated, Write: AccessClientAdmin},
			"registrations": {Read: AccessSelf, Write: AccessSelf},
			"permissions":   {Read: AccessEventAdmin, Write: AccessNone},
		},
	}
}
