package defs

import "strconv"

/// Err_t is a kernel errno value. The zero value means success.
type Err_t int

const (
	EPERM     Err_t = 1
	EIO       Err_t = 5
	ENOMEM    Err_t = 12
	EBUSY     Err_t = 16
	ENODEV    Err_t = 19
	EINVAL    Err_t = 22
	ENOSPC    Err_t = 28
	EROFS     Err_t = 30
	ERANGE    Err_t = 34
	ETIMEDOUT Err_t = 110
)

var errnames = map[Err_t]string{
	EPERM:     "operation not permitted",
	EIO:       "input/output error",
	ENOMEM:    "out of memory",
	EBUSY:     "device or resource busy",
	ENODEV:    "no such device",
	EINVAL:    "invalid argument",
	ENOSPC:    "no space left on device",
	EROFS:     "read-only file system",
	ERANGE:    "result out of range",
	ETIMEDOUT: "timed out",
}

/// Error implements the error interface. Negated errnos, as returned by
/// syscall paths, print the same as their positive form.
func (e Err_t) Error() string {
	if e < 0 {
		e = -e
	}
	if s, ok := errnames[e]; ok {
		return s
	}
	return "errno " + strconv.Itoa(int(e))
}
