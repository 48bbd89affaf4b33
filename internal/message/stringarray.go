package message

import "fmt"

// StringArray is a fixed-at-creation count of Strings, addressed by
// zero-based index. It backs the ChannelMap message: index == channel id,
// value == channel name (empty at unused indices).
type StringArray struct {
	Entries []String
}

// NewStringArray creates a StringArray with n empty entries.
func NewStringArray(n int) *StringArray {
	return &StringArray{Entries: make([]String, n)}
}

// Count returns the fixed entry count.
func (sa *StringArray) Count() int {
	if sa == nil {
		return 0
	}
	return len(sa.Entries)
}

func (sa *StringArray) checkIndex(i int) error {
	if sa == nil {
		return fmt.Errorf("message: nil string array")
	}
	if i < 0 || i >= len(sa.Entries) {
		return fmt.Errorf("message: index %d out of range [0,%d)", i, len(sa.Entries))
	}
	return nil
}

// Set copies s into entry i.
func (sa *StringArray) Set(i int, s String) error {
	if err := sa.checkIndex(i); err != nil {
		return err
	}
	sa.Entries[i] = s.Duplicate()
	return nil
}

// CreateEntry copies up to length bytes of data into a freshly owned
// String at index i.
func (sa *StringArray) CreateEntry(i int, length int, data []byte) error {
	if err := sa.checkIndex(i); err != nil {
		return err
	}
	if length > len(data) {
		length = len(data)
	}
	sa.Entries[i] = NewString(data[:length])
	return nil
}

// ClearEntry empties entry i in place, leaving a valid empty String.
func (sa *StringArray) ClearEntry(i int) error {
	if err := sa.checkIndex(i); err != nil {
		return err
	}
	sa.Entries[i].Clear()
	return nil
}

// Get returns a copy of the String held at index i.
func (sa *StringArray) Get(i int) (String, error) {
	if err := sa.checkIndex(i); err != nil {
		return String{}, err
	}
	return sa.Entries[i], nil
}

// Copy duplicates src into a brand new StringArray (deep copy).
func Copy(src *StringArray) *StringArray {
	if src == nil {
		return nil
	}
	dst := NewStringArray(len(src.Entries))
	for i, e := range src.Entries {
		dst.Entries[i] = e.Duplicate()
	}
	return dst
}

// Move transfers ownership of src's entries to a new StringArray and
// empties src, matching the move(src->dst) contract.
func Move(src *StringArray) *StringArray {
	if src == nil {
		return nil
	}
	dst := &StringArray{Entries: src.Entries}
	src.Entries = make([]String, len(src.Entries))
	return dst
}

// Reserved channel ids that every source's ChannelMap must treat
// consistently; see ValidateChannelMap.
const (
	ChanName       = 0x00
	ChanChannelMap = 0x01
	ChanTimestamp  = 0x02
	ChanRaw        = 0x03
	ChanLogInfo    = 0x7D
	ChanLogWarn    = 0x7E
	ChanLogError   = 0x7F
)

var reservedChannelNames = map[int]string{
	ChanName:       "Name",
	ChanChannelMap: "ChannelMap",
	ChanTimestamp:  "Timestamp",
	ChanRaw:        "Raw",
	ChanLogInfo:    "LogInfo",
	ChanLogWarn:    "LogWarn",
	ChanLogError:   "LogError",
}

// ValidateChannelMap checks that no reserved channel slot has been
// repurposed by a source for something other than its reserved meaning,
// per "no channel id MAY reuse a reserved slot". A reserved slot is
// acceptable either empty (unused by this source) or carrying exactly the
// reserved name.
func ValidateChannelMap(sa *StringArray) error {
	if sa == nil {
		return fmt.Errorf("message: nil channel map")
	}
	for idx, want := range reservedChannelNames {
		if idx >= len(sa.Entries) {
			continue
		}
		got := sa.Entries[idx]
		if got.IsEmpty() {
			continue
		}
		if got.String() != want {
			return fmt.Errorf("message: channel %#x is reserved for %q, got %q", idx, want, got.String())
		}
	}
	return nil
}
