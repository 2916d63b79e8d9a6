package hdfsftpd

import "context"

// context0 is used for RemoteFS calls that are not part of a cancelable
// transfer (stat/mkdir/rmdir/rename/delete are quick metadata operations).
func context0() context.Context {
	return context.Background()
}
