package packagetypes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// maxSecondsTimestamp is 9999-12-31T23:59:59Z. Larger values are milliseconds.
const maxSecondsTimestamp = 253_402_300_799

// Timestamp is a unix timestamp that may be stored in either seconds or milliseconds.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON decodes an integer timestamp, detecting millisecond precision.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var value int64
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if value > maxSecondsTimestamp {
		t.Time = time.UnixMilli(value).UTC()
	} else {
		t.Time = time.Unix(value, 0).UTC()
	}
	return nil
}

// MarshalJSON encodes the timestamp in seconds when that loses no precision and
// in milliseconds otherwise.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	millis := t.UnixMilli()
	if millis%1000 == 0 {
		return json.Marshal(millis / 1000)
	}
	return json.Marshal(millis)
}

// MarshalYAML encodes the timestamp as RFC 3339.
func (t Timestamp) MarshalYAML() (interface{}, error) {
	return t.UTC().Format(time.RFC3339Nano), nil
}

// LossyURL is a URL field that never fails decoding. Values that do not parse as
// an absolute URL keep their raw form and leave URL nil.
type LossyURL struct {
	Raw string
	URL *url.URL
	Err error
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *LossyURL) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = LossyURL{}
	if raw == nil {
		return nil
	}
	u.Raw = *raw
	parsed, err := url.Parse(*raw)
	switch {
	case err != nil:
		u.Err = err
	case !parsed.IsAbs():
		u.Err = fmt.Errorf("parse %q: missing scheme", *raw)
	default:
		u.URL = parsed
	}
	return nil
}

// MarshalJSON encodes the URL in its original form.
func (u LossyURL) MarshalJSON() ([]byte, error) {
	if u.URL != nil {
		return json.Marshal(u.URL.String())
	}
	return json.Marshal(u.Raw)
}

// MarshalYAML encodes the URL in its original form.
func (u LossyURL) MarshalYAML() (interface{}, error) {
	if u.URL != nil {
		return u.URL.String(), nil
	}
	return u.Raw, nil
}

// Valid reports whether the raw value parsed as a URL.
func (u *LossyURL) Valid() bool {
	return u != nil && u.URL != nil
}

// MultiLineString is a string that may be stored as a single string or as a
// list of lines.
type MultiLineString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *MultiLineString) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = MultiLineString(single)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return errors.New("expected a string or a list of strings")
	}
	*s = MultiLineString(strings.Join(lines, "\n"))
	return nil
}

// FeatureList is a list of features stored either as a list or as a single
// string of comma or space separated names.
type FeatureList []string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FeatureList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = strings.FieldsFunc(single, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.New("expected a string or a list of strings")
	}
	*f = list
	return nil
}

// StringList is a list of strings in which null elements are dropped. Some
// indexing tools write null into depends and constrains.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw []*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*l = nil
		return nil
	}
	list := make(StringList, 0, len(raw))
	for _, s := range raw {
		if s != nil {
			list = append(list, *s)
		}
	}
	*l = list
	return nil
}

// NoArchType is the noarch kind of a package. Old packages store a boolean.
type NoArchType string

const (
	NoArchNone    NoArchType = ""
	NoArchGeneric NoArchType = "generic"
	NoArchPython  NoArchType = "python"
)

// UnmarshalJSON implements json.Unmarshaler.
func (n *NoArchType) UnmarshalJSON(data []byte) error {
	var flag bool
	if err := json.Unmarshal(data, &flag); err == nil {
		if flag {
			*n = NoArchGeneric
		} else {
			*n = NoArchNone
		}
		return nil
	}
	var kind *string
	if err := json.Unmarshal(data, &kind); err != nil {
		return errors.New("noarch: expected a boolean or a string")
	}
	if kind == nil {
		*n = NoArchNone
		return nil
	}
	switch NoArchType(*kind) {
	case NoArchGeneric, NoArchPython:
		*n = NoArchType(*kind)
		return nil
	}
	return fmt.Errorf("noarch: unknown kind %q", *kind)
}
