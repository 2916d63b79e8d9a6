// Package hdfsftpd implements the FTP protocol engine: control-channel state
// machine, data-channel lifecycle, per-user virtual filesystem sandbox and
// the three transfer workers, fronting a remote (HDFS) filesystem.
package hdfsftpd

import (
	"errors"
	"fmt"
)

// ErrNotListening is returned when an action requires the server to be listening.
var ErrNotListening = errors.New("server is not listening")

// ErrAlreadyListening is returned when StartListening is called twice without an intervening Stop.
var ErrAlreadyListening = errors.New("server is already listening")

// ErrPathEscape is returned by the path resolver when a path would escape its sandbox.
var ErrPathEscape = errors.New("path escapes sandbox")

// ErrNoAvailableDataPort is returned when PASV can't find a free port in the configured range.
var ErrNoAvailableDataPort = errors.New("no available data port")

// ConfigError wraps configuration problems reported at the admin-API boundary (spec §7).
type ConfigError struct {
	str string
	err error
}

func newConfigError(str string, err error) *ConfigError { return &ConfigError{str: str, err: err} }

func (e *ConfigError) Error() string { return fmt.Sprintf("config error: %s: %v", e.str, e.err) }
func (e *ConfigError) Unwrap() error { return e.err }

// NetworkError wraps socket-level accept/read/write failures. The affected
// session is closed; other sessions continue (spec §7, TransientNetworkError).
type NetworkError struct {
	str string
	err error
}

func newNetworkError(str string, err error) *NetworkError { return &NetworkError{str: str, err: err} }

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %s: %v", e.str, e.err) }
func (e *NetworkError) Unwrap() error { return e.err }

// ProtocolError covers syntactic/semantic/parameter command errors (spec §7).
type ProtocolError struct {
	code int
	str  string
}

func newProtocolError(code int, str string) *ProtocolError { return &ProtocolError{code: code, str: str} }

func (e *ProtocolError) Error() string { return e.str }
func (e *ProtocolError) Code() int     { return e.code }

// AuthError covers bad credentials, too many tries, or too many clients for a user.
type AuthError struct {
	code int
	str  string
}

func newAuthError(code int, str string) *AuthError { return &AuthError{code: code, str: str} }
func (e *AuthError) Error() string { return e.str }
func (e *AuthError) Code() int     { return e.code }

// FilesystemError wraps a RemoteFS failure with the FTP status it maps to.
type FilesystemError struct {
	code int
	str  string
	err  error
}

func newFilesystemError(code int, str string, err error) *FilesystemError {
	return &FilesystemError{code: code, str: str, err: err}
}

func (e *FilesystemError) Error() string { return fmt.Sprintf("%s: %v", e.str, e.err) }
func (e *FilesystemError) Unwrap() error { return e.err }
func (e *FilesystemError) Code() int     { return e.code }

// ResourceError covers exhaustion: out of PASV ports (425) or out of memory (421).
type ResourceError struct {
	code int
	str  string
}

func newResourceError(code int, str string) *ResourceError { return &ResourceError{code: code, str: str} }
func (e *ResourceError) Error() string                     { return e.str }
func (e *ResourceError) Code() int                         { return e.code }
