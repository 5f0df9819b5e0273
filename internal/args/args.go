// Package args parses key=value argument strings into option structs.
package args

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/mitchellh/mapstructure"
)

// ErrSyntax is returned when an argument is not a key=value pair.
var ErrSyntax = errors.New("syntax error")

// Split splits a free-form argument string like `path=/etc/hosts line="a b"`
// into words, honoring shell quoting.
func Split(s string) ([]string, error) {
	words, err := shellquote.Split(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	return words, nil
}

// Map builds a map from key=value words. The value runs from the first
// separator to the end of the word. A repeated key overrides earlier ones.
func Map(words []string) (map[string]any, error) {
	m := make(map[string]any, len(words))
	for _, w := range words {
		key, value, ok := strings.Cut(w, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: expected key=value, got %q", ErrSyntax, w)
		}
		m[key] = value
	}
	return m, nil
}

var boolWords = map[string]bool{
	"yes": true, "on": true, "y": true,
	"no": false, "off": false, "n": false,
}

// boolHook accepts the yes/no spellings of booleans in addition to the
// ones strconv.ParseBool knows.
func boolHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Bool {
		return data, nil
	}
	s, ok := data.(string)
	if !ok {
		return data, nil
	}
	if b, ok := boolWords[strings.ToLower(s)]; ok {
		return b, nil
	}
	return data, nil
}

// Decode decodes a map into out using the mapstructure tags of out.
// Strings are converted to the field types and comma separated strings to
// slices. Keys that do not match a field are an error.
func Decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			boolHook,
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

// Parse splits and decodes the words into out.
func Parse(words []string, out any) error {
	m, err := Map(words)
	if err != nil {
		return err
	}
	return Decode(m, out)
}

// ParseString splits a free-form argument string and decodes it into out.
func ParseString(s string, out any) error {
	words, err := Split(s)
	if err != nil {
		return err
	}
	return Parse(words, out)
}
