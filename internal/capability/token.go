// Package capability implements the capability-based security runtime: a
// hierarchical context tree, capability tokens with constraints, and
// glob-style resource pattern matching.
package capability

import (
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"vaultlang/internal/verrors"
)

// Type identifies a class of capability (e.g. "net", "fs", "env").
type Type string

// Constraints bound what a token's holder may actually do.
type Constraints struct {
	ResourcePatterns  []string  // glob patterns; left-anchored, "*" within-segment, "**" cross-segment
	AllowedOperations []string  // e.g. "read", "write", "connect"
	MaxUsageCount     int       // 0 means unlimited
	ExpiresAt         time.Time // zero value means no expiry
}

// matchesResource reports whether resource satisfies any configured
// pattern. An empty pattern list matches nothing (capabilities must name
// what they grant).
func (c Constraints) matchesResource(resource string) bool {
	for _, pat := range c.ResourcePatterns {
		ok, err := doublestar.Match(pat, resource)
		if err == nil && ok {
			return true
		}
	}
	return false
}

func (c Constraints) allowsOperation(op string) bool {
	if len(c.AllowedOperations) == 0 {
		return true
	}
	for _, allowed := range c.AllowedOperations {
		if allowed == op {
			return true
		}
	}
	return false
}

func (c Constraints) expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Token is a single capability grant: a type plus its constraints and
// mutable usage counter. Tokens are never copied once issued; all mutation
// goes through Context methods so usage_count updates are serialized.
type Token struct {
	ID          string
	Type        Type
	Constraints Constraints
	usageCount  int
}

// NewToken mints a token with a fresh identifier.
func NewToken(t Type, c Constraints) *Token {
	return &Token{ID: uuid.NewString(), Type: t, Constraints: c}
}

// UsageCount reports how many times this token has been successfully used.
func (t *Token) UsageCount() int { return t.usageCount }

// check validates a proposed use against the token's constraints without
// mutating usage_count; UseCapability calls it and increments the counter
// itself. Expired-token introspection goes through
// Context.GetCapabilityTokenUnchecked, which never calls check.
func (t *Token) check(resource, op string, now time.Time) error {
	if t.Constraints.expired(now) {
		return &verrors.CapabilityError{Kind: verrors.CapabilityExpired, Type: string(t.Type), Resource: resource, Op: op}
	}
	if t.Constraints.MaxUsageCount > 0 && t.usageCount >= t.Constraints.MaxUsageCount {
		return &verrors.CapabilityError{Kind: verrors.CapabilityUsageExceeded, Type: string(t.Type), Resource: resource, Op: op}
	}
	if resource != "" && !t.Constraints.matchesResource(resource) {
		return &verrors.CapabilityError{Kind: verrors.CapabilityPatternMismatch, Type: string(t.Type), Resource: resource, Op: op}
	}
	if op != "" && !t.Constraints.allowsOperation(op) {
		return &verrors.CapabilityError{Kind: verrors.CapabilityOperationNotAllowed, Type: string(t.Type), Resource: resource, Op: op}
	}
	return nil
}
