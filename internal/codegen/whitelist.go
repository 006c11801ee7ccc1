package codegen

import "strings"

// HostWhitelist is the codegen-time allow-list of host facilities that
// generated code may reference, distinct from (and stricter than) the
// module resolver's stdlib registry - a module can be *resolvable* for
// import purposes while still having individual symbols withheld from
// direct codegen emission: a whitelist-only view of host facilities.
type HostWhitelist struct {
	allowed map[string]bool
	modules map[string]bool
}

// DefaultWhitelist returns the baseline set of host facilities codegen
// may reference directly.
func DefaultWhitelist() *HostWhitelist {
	w := &HostWhitelist{allowed: make(map[string]bool), modules: make(map[string]bool)}
	for _, name := range []string{
		"net.fetch", "net.connect",
		"fs.read", "fs.write",
		"process.spawn",
		"json.parse", "json.stringify",
		"regex.compile", "regex.test",
	} {
		w.Allow(name)
	}
	return w
}

// Allow adds name to the whitelist, and records its module qualifier (the
// part before the last '.') so IsModuleQualified can recognize sibling
// symbols under the same module even if individually unlisted.
func (w *HostWhitelist) Allow(name string) {
	w.allowed[name] = true
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		w.modules[name[:idx]] = true
	}
}

// Allows reports whether name is explicitly whitelisted.
func (w *HostWhitelist) Allows(name string) bool { return w.allowed[name] }

// IsModuleQualified reports whether name looks like `module.symbol` for a
// module this whitelist knows about, i.e. whether the check in Allows is
// meaningful for name rather than a call to a plain user-defined function.
func (w *HostWhitelist) IsModuleQualified(name string) bool {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return false
	}
	return w.modules[name[:idx]]
}
