package instance

import (
	"fmt"
	"strings"
)

// Meta is an ordered list of semantic tags such as mod=ct.
type Meta []MetaEntry

type MetaEntry struct {
	Key   string
	Value string
}

// Get returns the value stored for key and whether it was present.
func (m Meta) Get(key string) (string, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// DataType describes the storage format and semantic tags of an artifact.
// Its text form is "ftype[:key=value[:key=value...]]", e.g. "dicom:mod=ct".
type DataType struct {
	FType FileType
	Meta  Meta
}

// TargetSelector is a DataType used as a matcher over instance artifacts.
type TargetSelector = DataType

// ParseDataType parses the text form of a DataType.
func ParseDataType(s string) (DataType, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	ftype := FileType(strings.ToLower(strings.TrimSpace(parts[0])))
	switch ftype {
	case FileDICOM, FileNRRD, FileNIFTI, FileLog:
	case "":
		return DataType{}, fmt.Errorf("%w: empty file type in %q", ErrInvalidDataType, s)
	default:
		return DataType{}, fmt.Errorf("%w: unknown file type %q", ErrInvalidDataType, ftype)
	}
	dt := DataType{FType: ftype}
	for _, raw := range parts[1:] {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return DataType{}, fmt.Errorf("%w: bad meta entry %q in %q", ErrInvalidDataType, raw, s)
		}
		dt.Meta = append(dt.Meta, MetaEntry{Key: key, Value: strings.TrimSpace(value)})
	}
	return dt, nil
}

// MustParseDataType is ParseDataType for literals known to be valid.
func MustParseDataType(s string) DataType {
	dt, err := ParseDataType(s)
	if err != nil {
		panic(err)
	}
	return dt
}

// ParseSelectors parses an ordered list of target selectors.
func ParseSelectors(in []string) ([]TargetSelector, error) {
	out := make([]TargetSelector, 0, len(in))
	for _, s := range in {
		dt, err := ParseDataType(s)
		if err != nil {
			return nil, err
		}
		out = append(out, dt)
	}
	return out, nil
}

func (d DataType) String() string {
	var b strings.Builder
	b.WriteString(string(d.FType))
	for _, e := range d.Meta {
		b.WriteString(":")
		b.WriteString(e.Key)
		b.WriteString("=")
		b.WriteString(e.Value)
	}
	return b.String()
}

// Matches reports whether the artifact type satisfies the selector: equal file
// types and every selector tag present with an equal (case-insensitive) value.
func (d DataType) Matches(other DataType) bool {
	if d.FType != other.FType {
		return false
	}
	for _, want := range d.Meta {
		got, ok := other.Meta.Get(want.Key)
		if !ok || !strings.EqualFold(got, want.Value) {
			return false
		}
	}
	return true
}

// WithFType returns a copy carrying the same meta under another file type.
func (d DataType) WithFType(ftype FileType) DataType {
	meta := make(Meta, len(d.Meta))
	copy(meta, d.Meta)
	return DataType{FType: ftype, Meta: meta}
}

func (d DataType) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *DataType) UnmarshalText(text []byte) error {
	parsed, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
