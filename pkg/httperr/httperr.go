// Package httperr attaches an HTTP status code to an arbitrary error so
// that pkg/api/errors can recover it without every caller constructing a
// full *errors.Error.
package httperr

// coded wraps an error with an explicit HTTP status.
type coded struct {
	err  error
	code int
}

// WithCode annotates err with an HTTP status code.
func WithCode(err error, code int) error {
	return &coded{err: err, code: code}
}

func (c *coded) Error() string {
	return c.err.Error()
}

func (c *coded) Unwrap() error {
	return c.err
}

// HTTPStatus implements the Coder interface consumed by pkg/errors.Code.
func (c *coded) HTTPStatus() int {
	return c.code
}
