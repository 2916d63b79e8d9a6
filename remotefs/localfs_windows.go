package remotefs

import "os"

// sysOwnership has no portable uid/gid equivalent on Windows; LocalFS falls
// back to the numeric-id formatting UsernameForUID/GroupnameForGID already
// provide for unresolved ids.
func sysOwnership(_ os.FileInfo) (uid, gid uint32, ok bool) {
	return 0, 0, false
}
