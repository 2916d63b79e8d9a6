package hdfsftpd

import (
	golog "github.com/fclairamb/go-log"
)

// Logger is the logging facade every engine component accepts. It is an
// alias for the external go-log interface so callers can pass any
// implementation of it (gokit adapter, a no-op, or their own) without this
// package redeclaring the contract.
type Logger = golog.Logger

// defaultLogger is used when a Server is constructed without an explicit
// Logger, matching the teacher's "silent unless configured" default.
func defaultLogger() Logger {
	return golog.NewNopLogger()
}
