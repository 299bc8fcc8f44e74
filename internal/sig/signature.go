package sig

import (
	"strings"

	"kiln/internal/types"
)

// Signature describes the call contract of one runtime helper: the ordered
// argument types ("domain") and ordered result types ("range"), expressed in
// the compiler's value-type algebra rather than in host-language types.
//
// Signatures are immutable after construction and shared read-only across
// every compiler thread. The instruction-selection phase emits call arguments
// in exactly the domain order; the trampoline marshaller consumes the same
// order. Callers must not modify the returned slices.
type Signature struct {
	name    string
	domain  []types.TypeID
	results []types.TypeID
}

func newSignature(name string, domain, results []types.TypeID) *Signature {
	return &Signature{name: name, domain: domain, results: results}
}

// Name returns the helper's symbolic name.
func (s *Signature) Name() string { return s.name }

// NumArgs returns the number of domain entries.
func (s *Signature) NumArgs() int { return len(s.domain) }

// Arg returns the i-th domain entry.
func (s *Signature) Arg(i int) types.TypeID { return s.domain[i] }

// NumResults returns the number of range entries.
func (s *Signature) NumResults() int { return len(s.results) }

// Result returns the i-th range entry.
func (s *Signature) Result(i int) types.TypeID { return s.results[i] }

// Domain returns the ordered argument types. Read-only.
func (s *Signature) Domain() []types.TypeID { return s.domain }

// Results returns the ordered result types. Read-only.
func (s *Signature) Results() []types.TypeID { return s.results }

// Describe renders the signature as "name(int,klass)->oop" using the
// supplied interner. Diagnostics only.
func (s *Signature) Describe(in *types.Interner) string {
	var b strings.Builder
	b.WriteString(s.name)
	b.WriteByte('(')
	for i, id := range s.domain {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(in.MustLookup(id).Kind.String())
	}
	b.WriteByte(')')
	b.WriteString("->")
	if len(s.results) == 0 {
		b.WriteString("void")
		return b.String()
	}
	for i, id := range s.results {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(in.MustLookup(id).Kind.String())
	}
	return b.String()
}
