package zcl

// Flags describes attribute access and validation behavior.
type Flags uint8

const (
	FlagReadOnly Flags = 1 << iota
	FlagReportable
	FlagBounded
)

// Key addresses an attribute's value inside device-owned storage. Values
// are never held by the attribute itself; the key stays valid for the life
// of the process so callbacks can never observe a dangling reference.
type Key string

// ValueStore is the accessor contract for device-owned attribute values.
// Implementations must make each access individually safe under concurrent
// mutation by device logic outside the frame-processing path.
type ValueStore interface {
	Load(k Key) (any, bool)
	Store(k Key, v any)
}

// Attribute is one cluster attribute. The zero Ext field makes it a base
// attribute, read via direct storage access; a non-nil Ext adds bounds and
// read/write hooks (the extended variant). Both variants share this common
// shape, so any attribute can be handled uniformly.
type Attribute struct {
	ID    uint16
	Type  uint8
	Flags Flags
	Key   Key
	Ext   *Extension
}

// Extension carries the extended-variant fields.
type Extension struct {
	// Min and Max bound the value when FlagBounded is set. Only
	// meaningful for orderable types.
	Min, Max int64

	// OnRead refreshes the stored value before every read.
	OnRead func(st ValueStore, a *Attribute)

	// OnWrite runs after a decoded value has passed validation and been
	// committed. A non-success return overrides the reported status.
	OnWrite func(st ValueStore, a *Attribute, v any) Status
}

func (a *Attribute) ReadOnly() bool   { return a.Flags&FlagReadOnly != 0 }
func (a *Attribute) Reportable() bool { return a.Flags&FlagReportable != 0 }
func (a *Attribute) Bounded() bool    { return a.Flags&FlagBounded != 0 }

// ReadValue refreshes the attribute (extended variant only) and encodes its
// current value. The refresh hook runs exactly once per read, before
// encoding.
func ReadValue(a *Attribute, st ValueStore) ([]byte, Status) {
	if st == nil {
		return nil, StatusFailure
	}
	if a.Ext != nil && a.Ext.OnRead != nil {
		a.Ext.OnRead(st, a)
	}
	v, ok := st.Load(a.Key)
	if !ok {
		return nil, StatusFailure
	}
	enc, err := EncodeValue(a.Type, v)
	if err != nil {
		return nil, StatusInvalidDataType
	}
	return enc, StatusSuccess
}

// CheckValue decodes raw against the attribute's declared type and runs the
// base validation (writability, type, bounds) without committing anything.
// It returns the decoded value on success.
func CheckValue(a *Attribute, wireType uint8, raw []byte) (any, Status) {
	if a.ReadOnly() {
		return nil, StatusReadOnly
	}
	if wireType != a.Type {
		return nil, StatusInvalidDataType
	}
	v, _, err := DecodeValue(a.Type, raw)
	if err != nil {
		return nil, StatusInvalidDataType
	}
	if a.Bounded() {
		n, ok := toInt64(v)
		if !ok || n < a.Ext.Min || n > a.Ext.Max {
			return nil, StatusInvalidValue
		}
	}
	return v, StatusSuccess
}

// WriteValue validates raw, commits it to storage, and runs the OnWrite
// hook, whose status (if not success) overrides the result. A rejected
// value never mutates storage.
func WriteValue(a *Attribute, st ValueStore, wireType uint8, raw []byte) Status {
	if st == nil {
		return StatusFailure
	}
	v, status := CheckValue(a, wireType, raw)
	if status != StatusSuccess {
		return status
	}
	st.Store(a.Key, v)
	if a.Ext != nil && a.Ext.OnWrite != nil {
		if s := a.Ext.OnWrite(st, a, v); s != StatusSuccess {
			return s
		}
	}
	return StatusSuccess
}

func findAttribute(attrs []Attribute, id uint16) *Attribute {
	for i := range attrs {
		if attrs[i].ID == id {
			return &attrs[i]
		}
	}
	return nil
}
