package domain

import "encoding/json"

// Opt holds a value that may be absent. The zero Opt is absent, which is
// distinct from a present zero value: Some(0) reports true from IsPresent.
type Opt[T any] struct {
	value T
	ok    bool
}

// Some returns a present Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{value: v, ok: true}
}

// None returns an absent Opt.
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// Get returns the value and whether it is present.
func (o Opt[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsPresent reports whether the value was provided.
func (o Opt[T]) IsPresent() bool {
	return o.ok
}

// OrElse returns the value if present, otherwise fallback.
func (o Opt[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

// MarshalJSON encodes an absent value as null.
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}
