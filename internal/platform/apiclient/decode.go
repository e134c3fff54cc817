package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoList is returned by DecodeList when an object carries no list under
// any of the accepted keys.
var ErrNoList = errors.New("no list in response")

// envelopeKeys are the wrapper keys the backend has used for listings.
var envelopeKeys = []string{"data", "items", "results"}

// DecodeList decodes a listing that may arrive as a bare array or wrapped in
// an object under one of keys or the common envelope keys. A blank or null
// body decodes to an empty list. A single level of nesting under "data" is
// followed, so {"data": {"patients": [...]}} is accepted too.
func DecodeList[T any](raw json.RawMessage, keys ...string) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if isBlank(trimmed) {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var out []T
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return out, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("decode list envelope: %w", err)
		}
		candidates := append(append([]string{}, keys...), envelopeKeys...)
		for _, k := range candidates {
			v, ok := obj[k]
			if !ok {
				continue
			}
			v = bytes.TrimSpace(v)
			if isBlank(v) {
				return nil, nil
			}
			if v[0] == '[' {
				return DecodeList[T](v, keys...)
			}
		}
		if data, ok := obj["data"]; ok {
			data = bytes.TrimSpace(data)
			if len(data) > 0 && data[0] == '{' {
				return decodeNested[T](data, keys)
			}
		}
		return nil, fmt.Errorf("decode list (%s): %w", strings.Join(candidates, ", "), ErrNoList)
	default:
		return nil, fmt.Errorf("decode list: unexpected JSON %q", string(trimmed[:1]))
	}
}

func decodeNested[T any](data json.RawMessage, keys []string) ([]T, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode list envelope: %w", err)
	}
	for _, k := range append(append([]string{}, keys...), "items", "results") {
		if v, ok := obj[k]; ok {
			return DecodeList[T](v)
		}
	}
	return nil, fmt.Errorf("decode list (data): %w", ErrNoList)
}

// Float accepts a JSON number, a numeric string, or null.
type Float float64

func (f *Float) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if isBlank(b) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("number %q: %w", s, err)
		}
		*f = Float(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

func (f Float) Float64() float64 { return float64(f) }

func (f Float) Int() int { return int(f) }

// String accepts a JSON string or number. Backend ids arrive as either.
type String string

func (s *String) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if isBlank(b) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = String(v)
		return nil
	}
	if b[0] == '{' || b[0] == '[' {
		return fmt.Errorf("string: unexpected JSON %q", string(b[:1]))
	}
	*s = String(string(b))
	return nil
}

func (s String) String() string { return string(s) }

// Strings accepts a list of strings, a single string, or null.
type Strings []string

func (s *Strings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if isBlank(b) {
		*s = nil
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		if v == "" {
			*s = nil
			return nil
		}
		*s = Strings{v}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	out := make(Strings, 0, len(items))
	for _, it := range items {
		var v String
		if err := v.UnmarshalJSON(it); err == nil && v != "" {
			out = append(out, string(v))
			continue
		}
		// Objects such as {"text": "..."} keep their text or description.
		var obj struct {
			Text        string `json:"text"`
			Description string `json:"description"`
			Message     string `json:"message"`
		}
		if err := json.Unmarshal(it, &obj); err == nil {
			switch {
			case obj.Text != "":
				out = append(out, obj.Text)
			case obj.Description != "":
				out = append(out, obj.Description)
			case obj.Message != "":
				out = append(out, obj.Message)
			}
		}
	}
	*s = out
	return nil
}
