package contact

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/kalambet/podio/internal/podio"
)

// ProfileField describes one addressable profile attribute. R is the type
// the service sends and accepts on the wire; T is the type callers work
// with. Parse converts wire values on read and Format converts them back on
// update. Whether the field holds one value or many is fixed per field.
type ProfileField[T, R any] struct {
	name   string
	single bool
	parse  func(R) (T, error)
	format func(T) R
}

// NewField declares a field with explicit conversions between the wire and
// application representations.
func NewField[T, R any](name string, single bool, parse func(R) (T, error), format func(T) R) ProfileField[T, R] {
	return ProfileField[T, R]{name: name, single: single, parse: parse, format: format}
}

// plainField declares a field whose wire and application types are the same.
func plainField[T any](name string, single bool) ProfileField[T, T] {
	return NewField(name, single,
		func(v T) (T, error) { return v, nil },
		func(v T) T { return v },
	)
}

// Name is the field key used in resource paths and profile documents.
func (f ProfileField[T, R]) Name() string { return f.name }

// IsSingle reports whether the field holds exactly one value.
func (f ProfileField[T, R]) IsSingle() bool { return f.single }

func (f ProfileField[T, R]) Parse(raw R) (T, error) {
	v, err := f.parse(raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("parsing %s: %w", f.name, err)
	}
	return v, nil
}

func (f ProfileField[T, R]) Format(v T) R { return f.format(v) }

// Field is the type-erased view of a ProfileField, used where the field is
// only known by name at runtime.
type Field interface {
	Name() string
	IsSingle() bool
}

// LookupField returns the catalogue field with the given name.
func LookupField(name string) (Field, bool) {
	f, ok := catalogue[name]
	return f, ok
}

// Fields returns every catalogue field ordered by name.
func Fields() []Field {
	out := make([]Field, 0, len(catalogue))
	for _, f := range catalogue {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// RawField adapts f to a field that passes JSON values through untouched.
func RawField(f Field) ProfileField[json.RawMessage, json.RawMessage] {
	return plainField[json.RawMessage](f.Name(), f.IsSingle())
}

// RawValue encodes text typed by a person as the wire value of f. Avatar
// takes an integer file id; every other field is a string.
func RawValue(f Field, text string) (json.RawMessage, error) {
	if f.Name() == Avatar.Name() {
		id, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %s takes an integer: %v", podio.ErrInvalidArgument, f.Name(), err)
		}
		return json.RawMessage(strconv.Itoa(id)), nil
	}
	return json.Marshal(text)
}

// ProfileFieldValues is a sparse set of profile values keyed by field name.
// Only the fields present are changed when it is sent as an update.
type ProfileFieldValues map[string]any

// SetValue stores value for f in its wire form. A multi-valued field
// receives a one-element list.
func SetValue[T, R any](v ProfileFieldValues, f ProfileField[T, R], value T) {
	if f.IsSingle() {
		v[f.Name()] = f.Format(value)
		return
	}
	v[f.Name()] = []R{f.Format(value)}
}

// SetValues stores all values for a multi-valued field.
func SetValues[T, R any](v ProfileFieldValues, f ProfileField[T, R], values ...T) error {
	if f.IsSingle() {
		return fmt.Errorf("%w: field %s holds a single value", podio.ErrInvalidArgument, f.Name())
	}
	raw := make([]R, len(values))
	for i, value := range values {
		raw[i] = f.Format(value)
	}
	v[f.Name()] = raw
	return nil
}
