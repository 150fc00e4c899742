package errors

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Builder chains context onto an error. Mark must be the last call.
type Builder struct {
	err error
}

func NewError(msg string) *Builder {
	return &Builder{err: errors.New(msg)}
}

func WithError(err error) *Builder {
	return &Builder{err: err}
}

func (b *Builder) WithMessage(msg string) *Builder {
	b.err = errors.WithMessage(b.err, msg)
	return b
}

func (b *Builder) WithHint(hint string) *Builder {
	b.err = errors.WithHint(b.err, hint)
	return b
}

func (b *Builder) WithHintf(format string, args ...any) *Builder {
	b.err = errors.WithHintf(b.err, format, args...)
	return b
}

// WithDetails adds structured, log-safe details such as entity ids and the operation name.
func (b *Builder) WithDetails(details map[string]any) *Builder {
	marshaled, err := json.Marshal(details)
	if err != nil {
		return b
	}
	b.err = errors.WithSafeDetails(b.err, "__json__:%s", errors.Safe(string(marshaled)))
	return b
}

func (b *Builder) Mark(reference error) error {
	b.err = errors.Mark(b.err, reference)
	return b.err
}
