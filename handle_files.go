package hdfsftpd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

func handleRETR(c *Client, arg string) error {
	if !c.currentUser().can(PrivilegeReadFile) {
		c.writeMessage(StatusFileUnavailable, "permission denied")

		return nil
	}

	_, remote, err := c.resolvePath(arg)
	if err != nil {
		c.writeMessage(StatusFileUnavailable, "invalid path")

		return nil
	}

	offset := c.takeRestartOffset()

	c.retrieveFile(remote, offset)

	return nil
}

func handleSTOR(c *Client, arg string) error {
	return c.doStore(arg, false)
}

func handleAPPE(c *Client, arg string) error {
	return c.doStore(arg, true)
}

func (c *Client) doStore(arg string, appendMode bool) error {
	priv := PrivilegeWriteFile

	if !c.currentUser().can(priv) {
		c.writeMessage(StatusFileUnavailable, "permission denied")

		return nil
	}

	if c.takeRestartOffset() != 0 {
		c.writeMessage(StatusSyntaxErrorParams, "REST is supported for downloads only")

		return nil
	}

	_, remote, err := c.resolvePath(arg)
	if err != nil {
		c.writeMessage(StatusFileUnavailable, "invalid path")

		return nil
	}

	c.storeFile(remote, appendMode, "")

	return nil
}

// handleSTOU stores under a server-generated unique name within the
// session's current directory (spec §4.4), using a UUID so concurrent STOU
// calls can never collide.
func handleSTOU(c *Client, _ string) error {
	if !c.currentUser().can(PrivilegeWriteFile) {
		c.writeMessage(StatusFileUnavailable, "permission denied")

		return nil
	}

	name := "stou." + uuid.NewString()

	_, remote, err := c.resolvePath(name)
	if err != nil {
		c.writeMessage(StatusFileUnavailable, "invalid path")

		return nil
	}

	c.storeFile(remote, false, fmt.Sprintf("transfer complete, unique file name %q", name))

	return nil
}

func handleSIZE(c *Client, arg string) error {
	if !c.currentUser().can(PrivilegeReadFile) {
		c.writeMessage(StatusFileUnavailable, "permission denied")

		return nil
	}

	_, remote, err := c.resolvePath(arg)
	if err != nil {
		c.writeMessage(StatusFileUnavailable, "invalid path")

		return nil
	}

	fi, err := c.server.fs.Stat(context0(), remote)
	if err != nil {
		c.writeFSError(translateFSError(err))

		return nil
	}

	if fi.IsDir {
		c.writeMessage(StatusActionNotTaken, "SIZE not allowed on a directory")

		return nil
	}

	c.writeMessage(StatusFileStatus, strconv.FormatInt(fi.Size, 10))

	return nil
}

func handleMDTM(c *Client, arg string) error {
	if !c.currentUser().can(PrivilegeReadFile) {
		c.writeMessage(StatusFileUnavailable, "permission denied")

		return nil
	}

	_, remote, err := c.resolvePath(arg)
	if err != nil {
		c.writeMessage(StatusFileUnavailable, "invalid path")

		return nil
	}

	fi, err := c.server.fs.Stat(context0(), remote)
	if err != nil {
		c.writeFSError(translateFSError(err))

		return nil
	}

	c.writeMessage(StatusFileStatus, fi.ModTime.UTC().Format("20060102150405"))

	return nil
}

func handleDELE(c *Client, arg string) error {
	if !c.currentUser().can(PrivilegeDeleteFile) {
		c.writeMessage(StatusFileUnavailable, "permission denied")

		return nil
	}

	_, remote, err := c.resolvePath(arg)
	if err != nil {
		c.writeMessage(StatusFileUnavailable, "invalid path")

		return nil
	}

	if err := c.server.fs.Delete(context0(), remote); err != nil {
		c.writeFSError(translateFSError(err))

		return nil
	}

	c.writeMessage(StatusFileActionOK, "file deleted")

	return nil
}

func handleRNFR(c *Client, arg string) error {
	if !c.currentUser().can(PrivilegeWriteFile) {
		c.writeMessage(StatusFileUnavailable, "permission denied")

		return nil
	}

	_, remote, err := c.resolvePath(arg)
	if err != nil {
		c.writeMessage(StatusFileUnavailable, "invalid path")

		return nil
	}

	if ok, _ := c.server.fs.Exists(context0(), remote); !ok {
		c.writeMessage(StatusFileUnavailable, "no such file or directory")

		return nil
	}

	c.mu.Lock()
	c.renameFrom = remote
	c.mu.Unlock()

	c.writeMessage(StatusFileActionPending, "ready for RNTO")

	return nil
}

// handleRNTO completes a pending RNFR. The pending-from is cleared whether
// this succeeds or fails (spec §4.4): a failed RNTO must not leave a stale
// rename target for an unrelated later RNTO to pick up.
func handleRNTO(c *Client, arg string) error {
	c.mu.Lock()
	from := c.renameFrom
	c.renameFrom = ""
	c.mu.Unlock()

	if from == "" {
		c.writeMessage(StatusBadCommandSequence, "RNFR required first")

		return nil
	}

	_, remote, err := c.resolvePath(arg)
	if err != nil {
		c.writeMessage(StatusFileUnavailable, "invalid path")

		return nil
	}

	if err := c.server.fs.Rename(context0(), from, remote); err != nil {
		c.writeFSError(translateFSError(err))

		return nil
	}

	c.writeMessage(StatusFileActionOK, "rename successful")

	return nil
}

// handleREST records a byte offset for the next RETR (spec §4.4: restart is
// supported for downloads only, per the Non-goals). A STOR or APPE that
// follows a nonzero REST is refused with 501 and clears the offset.
func handleREST(c *Client, arg string) error {
	offset, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || offset < 0 {
		c.writeMessage(StatusSyntaxErrorParams, "invalid REST offset")

		return nil
	}

	c.mu.Lock()
	c.restartOffset = offset
	c.mu.Unlock()

	c.writeMessage(StatusFileActionPending, "restart position accepted")

	return nil
}

func (c *Client) takeRestartOffset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	offset := c.restartOffset
	c.restartOffset = 0

	return offset
}
