package cerr

import (
	"fmt"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
)

type F = map[string]any

// Context accumulates structured fields and an optional cause before an
// error is committed with Error.
type Context struct {
	fields  F
	wrapped error
}

func Field(key string, value any) Context {
	return Context{}.Field(key, value)
}

func Fields(fields F) Context {
	return Context{}.Fields(fields)
}

func Wrap(err error) Context {
	return Context{}.Wrap(err)
}

func Error(msg string) error {
	return Context{}.Error(msg)
}

func (c Context) Field(key string, value any) Context {
	return c.Fields(F{key: value})
}

func (c Context) Fields(fields F) Context {
	merged := F{}
	for k, v := range c.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return Context{
		fields:  merged,
		wrapped: c.wrapped,
	}
}

func (c Context) Wrap(err error) Context {
	return Context{
		fields:  c.fields,
		wrapped: err,
	}
}

func (c Context) Error(msg string) error {
	var err error
	if c.wrapped != nil {
		err = errors.WrapWithDepth(1, c.wrapped, msg)
	} else {
		err = errors.NewWithDepth(1, msg)
	}

	if len(c.fields) == 0 {
		return err
	}

	return &fieldError{
		cause:  err,
		fields: c.fields,
	}
}

type fieldError struct {
	cause  error
	fields F
}

func (f *fieldError) Error() string {
	return f.cause.Error()
}

func (f *fieldError) Unwrap() error {
	return f.cause
}

func (f *fieldError) Format(s fmt.State, verb rune) {
	errors.FormatError(f, s, verb)
}

func (f *fieldError) FormatError(p errors.Printer) error {
	return f.cause
}

// GetFields collects every field attached anywhere along the error chain.
// Outer fields win over inner ones with the same key.
func GetFields(err error) F {
	chain := []*fieldError{}
	for c := err; c != nil; c = errors.UnwrapOnce(c) {
		if fe, ok := c.(*fieldError); ok {
			chain = append(chain, fe)
		}
	}

	fields := F{}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].fields {
			fields[k] = v
		}
	}

	return fields
}

func Log(err error) {
	if err == nil {
		return
	}

	logFields := log.Fields{}
	for k, v := range GetFields(err) {
		logFields[k] = v
	}

	log.WithFields(logFields).
		WithError(err).
		Error(err.Error())
}
