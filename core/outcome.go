package core

// Outcome is a tagged result: exactly one of a value or a Failure. The zero
// Outcome is neither and reports ErrEmptyOutcome.
type Outcome[T any] struct {
	value   T
	failure *Failure
	ok      bool
}

func Succeeded[T any](value T) Outcome[T] {
	return Outcome[T]{value: value, ok: true}
}

func Failed[T any](failure *Failure) Outcome[T] {
	if failure == nil {
		failure = NewFailure(FailurePersistenceFailed, StepUnknown, ErrEmptyOutcome)
	}
	return Outcome[T]{failure: failure}
}

func (o Outcome[T]) OK() bool {
	return o.ok
}

func (o Outcome[T]) Value() (T, bool) {
	if !o.ok {
		var zero T
		return zero, false
	}
	return o.value, true
}

func (o Outcome[T]) Failure() (*Failure, bool) {
	if o.ok || o.failure == nil {
		return nil, false
	}
	return o.failure, true
}

// Err returns nil on success and never a typed nil.
func (o Outcome[T]) Err() error {
	if o.ok {
		return nil
	}
	if o.failure == nil {
		return ErrEmptyOutcome
	}
	return o.failure
}

func (o Outcome[T]) Unwrap() (T, error) {
	value, _ := o.Value()
	return value, o.Err()
}
