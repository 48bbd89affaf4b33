// Package message implements the unified in-process message model that
// every source decoder normalises its output into, per the data model
// described for the logger core: owned length-prefixed byte strings,
// dense string arrays, and the tagged-union Message value itself.
package message

// String is an owned, length-prefixed byte string. The zero value is the
// empty string (Length 0, Data nil); it is always safe to use without
// further initialisation.
type String struct {
	Length int
	Data   []byte
}

// NewString copies data into a freshly owned String.
func NewString(data []byte) String {
	if len(data) == 0 {
		return String{}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return String{Length: len(buf), Data: buf}
}

// NewStringFromText is a convenience constructor for string literals.
func NewStringFromText(s string) String {
	return NewString([]byte(s))
}

// Duplicate returns an independent copy of s, with its own backing array.
func (s String) Duplicate() String {
	return NewString(s.Data)
}

// Update replaces the contents of s with a copy of data, discarding
// whatever s held previously.
func (s *String) Update(data []byte) {
	*s = NewString(data)
}

// Clear empties s in place, leaving a valid empty String.
func (s *String) Clear() {
	s.Length = 0
	s.Data = nil
}

// IsEmpty reports whether s carries no data.
func (s String) IsEmpty() bool {
	return s.Length == 0
}

// String renders the text form of s for diagnostics. It is not a wire
// format.
func (s String) String() string {
	return string(s.Data)
}
