package types

import "fmt"

// Option is a two-variant value: Present(v) or Absent.
// An Absent option is distinct from a present zero value, which lets edges
// signal "no match" without conflating it with an empty payload.
type Option[T any] struct {
	value   T
	present bool
}

// Present wraps v.
func Present[T any](v T) Option[T] {
	return Option[T]{value: v, present: true}
}

// Absent returns the empty option.
func Absent[T any]() Option[T] {
	return Option[T]{}
}

// IsPresent reports whether the option carries a value.
func (o Option[T]) IsPresent() bool {
	return o.present
}

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.present
}

// MustGet returns the value or panics when the option is absent.
func (o Option[T]) MustGet() T {
	if !o.present {
		panic("types: MustGet on absent option")
	}
	return o.value
}

// OrElse returns the value or fallback when absent.
func (o Option[T]) OrElse(fallback T) T {
	if !o.present {
		return fallback
	}
	return o.value
}

// Filter turns Present(v) into Absent when pred(v) is false. No-op on Absent.
func (o Option[T]) Filter(pred func(T) bool) Option[T] {
	if !o.present || pred(o.value) {
		return o
	}
	return Absent[T]()
}

func (o Option[T]) String() string {
	if !o.present {
		return "Absent"
	}
	return fmt.Sprintf("Present(%v)", o.value)
}

// MapOption applies f to a present value. Absent passes through unchanged.
func MapOption[T, U any](o Option[T], f func(T) U) Option[U] {
	if !o.present {
		return Absent[U]()
	}
	return Present(f(o.value))
}

// FlatMapOption applies f to a present value and returns its option directly.
func FlatMapOption[T, U any](o Option[T], f func(T) Option[U]) Option[U] {
	if !o.present {
		return Absent[U]()
	}
	return f(o.value)
}
