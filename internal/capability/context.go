package capability

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"vaultlang/internal/verrors"
)

// Context is one node of the capability tree. A child context inherits
// every ancestor's grants for the purposes of has_capability/use_capability
// lookups, which walk ancestors, but can only mint new tokens into its own
// node - a child can never widen what its parent granted.
type Context struct {
	ID     string
	parent *Context

	mu     sync.RWMutex
	tokens map[Type][]*Token
}

// NewRoot creates a context with no parent - the top of a capability tree,
// normally one per Sandbox execution.
func NewRoot() *Context {
	return &Context{ID: uuid.NewString(), tokens: make(map[Type][]*Token)}
}

// Child creates a new context whose ancestor chain includes ctx.
func (ctx *Context) Child() *Context {
	return &Context{ID: uuid.NewString(), parent: ctx, tokens: make(map[Type][]*Token)}
}

// AddCapability grants a new token directly on this context (not an
// ancestor). Returns the minted token so callers can introspect it later.
func (ctx *Context) AddCapability(t Type, c Constraints) *Token {
	tok := NewToken(t, c)
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.tokens[t] = append(ctx.tokens[t], tok)
	return tok
}

// HasCapability reports whether ctx or any ancestor holds at least one
// non-expired token of the given type, without regard to resource/op/usage
// constraints - a coarse presence check.
func (ctx *Context) HasCapability(t Type) bool {
	now := time.Now()
	for c := ctx; c != nil; c = c.parent {
		c.mu.RLock()
		toks := c.tokens[t]
		for _, tok := range toks {
			if !tok.Constraints.expired(now) {
				c.mu.RUnlock()
				return true
			}
		}
		c.mu.RUnlock()
	}
	return false
}

// UseCapability finds the first non-expired token of type t (searching
// this context then ancestors) whose constraints permit (resource, op),
// increments its usage counter, and returns it. Returns a CapabilityError
// if no token satisfies the request.
func (ctx *Context) UseCapability(t Type, resource, op string) (*Token, error) {
	now := time.Now()
	var lastErr error
	for c := ctx; c != nil; c = c.parent {
		c.mu.Lock()
		for _, tok := range c.tokens[t] {
			if err := tok.check(resource, op, now); err != nil {
				lastErr = err
				continue
			}
			tok.usageCount++
			c.mu.Unlock()
			return tok, nil
		}
		c.mu.Unlock()
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &verrors.CapabilityError{Kind: verrors.CapabilityMissing, Type: string(t), Resource: resource, Op: op}
}

// GetAllCapabilities returns a snapshot of every still-valid token visible
// from ctx (this context plus ancestors), for diagnostics and the audit
// trail. Expired tokens are never returned; any encountered while building
// the snapshot are queued and removed from their owning context once the
// read pass over that context completes, so the live map is never mutated
// while it is being iterated.
func (ctx *Context) GetAllCapabilities() []*Token {
	var out []*Token
	now := time.Now()
	for c := ctx; c != nil; c = c.parent {
		expired := make(map[Type][]*Token)
		c.mu.RLock()
		for t, toks := range c.tokens {
			for _, tok := range toks {
				if tok.Constraints.expired(now) {
					expired[t] = append(expired[t], tok)
					continue
				}
				out = append(out, tok)
			}
		}
		c.mu.RUnlock()
		if len(expired) > 0 {
			c.removeTokens(expired)
		}
	}
	return out
}

// removeTokens drops the given expired tokens (matched by identity) from
// ctx's own map, under the write lock. Called only after the read pass
// that discovered them has released its read lock.
func (ctx *Context) removeTokens(expired map[Type][]*Token) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	for t, dead := range expired {
		live := ctx.tokens[t][:0]
		for _, tok := range ctx.tokens[t] {
			if !containsToken(dead, tok) {
				live = append(live, tok)
			}
		}
		if len(live) == 0 {
			delete(ctx.tokens, t)
		} else {
			ctx.tokens[t] = live
		}
	}
}

func containsToken(haystack []*Token, needle *Token) bool {
	for _, t := range haystack {
		if t == needle {
			return true
		}
	}
	return false
}

// GetCapabilityTokenUnchecked returns the first token of type t visible
// from ctx without validating constraints or incrementing usage - intended
// for introspection/audit surfaces only, never for authorizing an
// operation. Introspection is kept physically separate from enforcement so
// a caller cannot accidentally "check" a capability via the unchecked path.
func (ctx *Context) GetCapabilityTokenUnchecked(t Type) (*Token, bool) {
	for c := ctx; c != nil; c = c.parent {
		c.mu.RLock()
		toks := c.tokens[t]
		if len(toks) > 0 {
			tok := toks[0]
			c.mu.RUnlock()
			return tok, true
		}
		c.mu.RUnlock()
	}
	return nil, false
}
