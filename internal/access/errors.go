package access

import "errors"

// DeniedError is returned when the policy rejects an operation.
type DeniedError struct {
	Role      Role
	Resource  string
	Reason    string
	Operation Operation
}

func (e *DeniedError) Error() string {
	return e.Reason
}

// IsDenied reports whether err is, or wraps, a *DeniedError.
func IsDenied(err error) bool {
	var d *DeniedError
	return errors.As(err, &d)
}
