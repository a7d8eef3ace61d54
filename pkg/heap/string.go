package heap

import "github.com/septvm/septvm/pkg/value"

// String is a heap-allocated, immutable September string. Distinct from the
// identifiers interned by pkg/strpool (which exist purely so property-key
// comparisons can use pointer equality): String values are ordinary runtime
// data, returned from string literals, concatenation, and `asString`
// conversions.
type String struct {
	Header
	Text string
}

func NewString(mgr *Manager, text string) *String {
	s := &String{Header: NewHeader(value.HeapString), Text: text}
	mgr.Register(s)
	return s
}

func (s *String) References() []value.Value { return nil }

func (s *String) Len() int { return len(s.Text) }
