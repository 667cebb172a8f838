package validate

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"rememberme/api/internal/apperr"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// object is a JSON object whose key set has been checked.
type object map[string]json.RawMessage

func decodeObject(raw []byte, keys ...string) (object, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, apperr.Invalid("payload is not an object")
	}
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, apperr.Invalid("payload: %v", err)
	}
	if len(obj) != len(keys) {
		return nil, apperr.Invalid("payload has %d keys, want %d", len(obj), len(keys))
	}
	for _, key := range keys {
		if _, ok := obj[key]; !ok {
			return nil, apperr.Invalid("payload is missing %q", key)
		}
	}
	return obj, nil
}

func (o object) object(key string, keys ...string) (object, error) {
	return decodeObject(o[key], keys...)
}

func (o object) str(key string) (string, error) {
	raw := bytes.TrimSpace(o[key])
	if len(raw) == 0 || raw[0] != '"' {
		return "", apperr.Invalid("%s is not a string", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", apperr.Invalid("%s: %v", key, err)
	}
	return s, nil
}

// text returns a trimmed, NFC normalized string whose length in runes is in
// [min, max].
func (o object) text(key string, min, max int) (string, error) {
	s, err := o.str(key)
	if err != nil {
		return "", err
	}
	return normalizeText(key, s, min, max)
}

func (o object) id(key string) (string, error) {
	s, err := o.str(key)
	if err != nil {
		return "", err
	}
	if !idPattern.MatchString(s) {
		return "", apperr.Invalid("%s is not a valid id", key)
	}
	return s, nil
}

func (o object) integer(key string) (int, error) {
	raw := bytes.TrimSpace(o[key])
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return 0, apperr.Invalid("%s is not a number", key)
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.Trunc(f) != f || math.Abs(f) > math.MaxInt32 {
		return 0, apperr.Invalid("%s is not an integer", key)
	}
	return int(f), nil
}

func (o object) boolean(key string) (bool, error) {
	switch string(bytes.TrimSpace(o[key])) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, apperr.Invalid("%s is not a boolean", key)
}

// textSet decodes an array of unique texts.
func (o object) textSet(key string, minLen, maxLen, minItem, maxItem int) ([]string, error) {
	raw := bytes.TrimSpace(o[key])
	if len(raw) == 0 || raw[0] != '[' {
		return nil, apperr.Invalid("%s is not an array", key)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apperr.Invalid("%s: %v", key, err)
	}
	if len(items) < minLen || len(items) > maxLen {
		return nil, apperr.Invalid("%s has %d items", key, len(items))
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, err := object{"item": item}.text("item", minItem, maxItem)
		if err != nil {
			return nil, apperr.Invalid("%s[%d]: %v", key, i, err)
		}
		if slices.Contains(out, s) {
			return nil, apperr.Invalid("%s has duplicate %q", key, s)
		}
		out = append(out, s)
	}
	return out, nil
}

func normalizeText(key, s string, min, max int) (string, error) {
	if !utf8.ValidString(s) {
		return "", apperr.Invalid("%s is not valid UTF-8", key)
	}
	s = strings.TrimSpace(norm.NFC.String(s))
	n := utf8.RuneCountInString(s)
	if n < min || n > max {
		return "", apperr.Invalid("%s length %d not in [%d, %d]", key, n, min, max)
	}
	return s, nil
}
