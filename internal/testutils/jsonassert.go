package testutils

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// PresencePlaceholder in an expected document matches any actual value.
const PresencePlaceholder = "<<PRESENCE>>"

// MustJSON marshals v or panics
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

type JSONAssertOptions struct {
	IgnoreExtraKeys  bool     `default:"true"`
	IgnoredFields    []string `default:""`
	IgnoreArrayOrder bool     `default:"false"`
}

// Option is a functional option for configuring JSONAsserter
type Option func(*JSONAssertOptions)

// JSONAsserter compares JSON documents structurally and reports a readable diff.
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

// NewJSONAsserter creates a new JSONAsserter with default options
func NewJSONAsserter(t TestingT) *JSONAsserter {
	opts := JSONAssertOptions{}
	defaults.SetDefaults(&opts)
	return &JSONAsserter{t: t, options: opts}
}

// WithOptions applies functional options to the JSONAsserter
func (ja *JSONAsserter) WithOptions(opts ...Option) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.options)
	}
	return ja
}

// Assert compares actualJSON against expectedJSON
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) bool {
	if diff := ja.diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
		return false
	}
	return true
}

func (ja *JSONAsserter) diff(actualJSON, expectedJSON string) string {
	var expected, actual interface{}
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff only compares objects at the root
	expected = map[string]interface{}{"root": expected}
	actual = map[string]interface{}{"root": actual}

	fillPresence(expected, actual)
	for _, f := range ja.options.IgnoredFields {
		removeField(expected, f)
		removeField(actual, f)
	}
	// Ignored fields must be gone before sorting; they would skew the sort keys.
	if ja.options.IgnoreArrayOrder {
		sortArrays(expected)
		sortArrays(actual)
	}
	if ja.options.IgnoreExtraKeys {
		pruneExtraKeys(actual, expected)
	}

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)

	d, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !d.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, _ := f.Format(d)
	return out
}

// fillPresence copies actual values over PresencePlaceholder entries
func fillPresence(expected, actual interface{}) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		for k, v := range exp {
			av, present := act[k]
			if !present {
				continue
			}
			if v == PresencePlaceholder {
				exp[k] = av
				continue
			}
			fillPresence(v, av)
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i := range exp {
			if i >= len(act) {
				return
			}
			if exp[i] == PresencePlaceholder {
				exp[i] = act[i]
				continue
			}
			fillPresence(exp[i], act[i])
		}
	}
}

func removeField(v interface{}, field string) {
	switch t := v.(type) {
	case map[string]interface{}:
		delete(t, field)
		for _, child := range t {
			removeField(child, field)
		}
	case []interface{}:
		for _, child := range t {
			removeField(child, field)
		}
	}
}

// pruneExtraKeys drops keys from actual objects that expected does not mention
func pruneExtraKeys(actual, expected interface{}) {
	switch act := actual.(type) {
	case map[string]interface{}:
		exp, ok := expected.(map[string]interface{})
		if !ok {
			return
		}
		for k, v := range act {
			ev, keep := exp[k]
			if !keep {
				delete(act, k)
				continue
			}
			pruneExtraKeys(v, ev)
		}
	case []interface{}:
		exp, ok := expected.([]interface{})
		if !ok {
			return
		}
		for i := range act {
			if i < len(exp) {
				pruneExtraKeys(act[i], exp[i])
			}
		}
	}
}

// sortArrays orders every array by the JSON form of its elements
func sortArrays(v interface{}) {
	switch t := v.(type) {
	case map[string]interface{}:
		for _, child := range t {
			sortArrays(child)
		}
	case []interface{}:
		for _, child := range t {
			sortArrays(child)
		}
		sort.SliceStable(t, func(i, j int) bool {
			return MustJSON(t[i]) < MustJSON(t[j])
		})
	}
}

// WithIgnoreExtraKeys ignores keys present only in the actual document
func WithIgnoreExtraKeys(ignore bool) Option {
	return func(opts *JSONAssertOptions) {
		opts.IgnoreExtraKeys = ignore
	}
}

// WithIgnoredFields removes the named keys at every depth before comparing
func WithIgnoredFields(fields ...string) Option {
	return func(opts *JSONAssertOptions) {
		opts.IgnoredFields = append(opts.IgnoredFields, fields...)
	}
}

// WithIgnoreArrayOrder compares arrays as multisets
func WithIgnoreArrayOrder(ignore bool) Option {
	return func(opts *JSONAssertOptions) {
		opts.IgnoreArrayOrder = ignore
	}
}
