package hdfsftpd

import (
	"fmt"
	"strings"
)

// resolvePath combines the session's cwd with arg into a simplified virtual
// path and the corresponding sandboxed remote path, rejecting any attempt
// to escape the user's home (spec §4.3).
func (c *Client) resolvePath(arg string) (virtual, remote string, err error) {
	c.mu.RLock()
	cwd := c.cwd
	c.mu.RUnlock()

	virtual, err = buildVirtual(cwd, arg)
	if err != nil {
		return "", "", err
	}

	remote, err = buildRemote(c.currentUser().home(), virtual)
	if err != nil {
		return "", "", err
	}

	return virtual, remote, nil
}

func handleCWD(c *Client, arg string) error {
	virtual, remote, err := c.resolvePath(arg)
	if err != nil {
		c.writeMessage(StatusFileUnavailable, "invalid path")

		return nil
	}

	fi, err := c.server.fs.Stat(context0(), remote)
	if err != nil || !fi.IsDir {
		c.writeMessage(StatusFileUnavailable, "no such directory")

		return nil
	}

	c.mu.Lock()
	c.cwd = virtual
	c.mu.Unlock()

	c.server.sink.Handle(Event{Kind: EventClientChangeDir, Client: c})
	c.writeMessage(StatusFileActionOK, "directory changed to "+virtual)

	return nil
}

func handleCDUP(c *Client, _ string) error {
	return handleCWD(c, "..")
}

func handlePWD(c *Client, _ string) error {
	c.mu.RLock()
	cwd := c.cwd
	c.mu.RUnlock()

	c.writeMessage(StatusPathCreated, fmt.Sprintf("%q is the current directory", cwd))

	return nil
}

func handleMKD(c *Client, arg string) error {
	if !c.currentUser().can(PrivilegeCreateDir) {
		c.writeMessage(StatusFileUnavailable, "permission denied")

		return nil
	}

	virtual, remote, err := c.resolvePath(arg)
	if err != nil {
		c.writeMessage(StatusFileUnavailable, "invalid path")

		return nil
	}

	if err := c.server.fs.Mkdir(context0(), remote); err != nil {
		c.writeMessage(StatusFileUnavailable, "cannot create directory")

		return nil
	}

	c.writeMessage(StatusPathCreated, fmt.Sprintf("%q directory created", virtual))

	return nil
}

func handleRMD(c *Client, arg string) error {
	if !c.currentUser().can(PrivilegeDeleteDir) {
		c.writeMessage(StatusFileUnavailable, "permission denied")

		return nil
	}

	_, remote, err := c.resolvePath(arg)
	if err != nil {
		c.writeMessage(StatusFileUnavailable, "invalid path")

		return nil
	}

	if err := c.server.fs.Rmdir(context0(), remote); err != nil {
		c.writeMessage(StatusFileUnavailable, "cannot remove directory")

		return nil
	}

	c.writeMessage(StatusFileActionOK, "directory removed")

	return nil
}

// checkLISTArgs splits LIST/NLST's optional flag letters ("-a", "-l", "-la",
// "-F", "-d") from the path argument that may follow them (spec §4.4).
func checkLISTArgs(arg string) (listOptions, string) {
	opts := listOptions{long: true}

	fields := strings.Fields(arg)
	pathArg := ""

	for i, f := range fields {
		if strings.HasPrefix(f, "-") {
			for _, ch := range f[1:] {
				switch ch {
				case 'a':
					opts.all = true
				case 'd':
					opts.dir = true
				case 'F':
					opts.class = true
				case 'l':
					opts.long = true
				}
			}

			continue
		}

		pathArg = strings.Join(fields[i:], " ")

		break
	}

	return opts, pathArg
}

func handleLIST(c *Client, arg string) error {
	return c.doListing(arg, false)
}

func handleNLST(c *Client, arg string) error {
	return c.doListing(arg, true)
}

func (c *Client) doListing(arg string, nameOnly bool) error {
	if !c.currentUser().can(PrivilegeList) {
		c.writeMessage(StatusFileUnavailable, "permission denied")

		return nil
	}

	opts, pathArg := checkLISTArgs(arg)

	_, remote, err := c.resolvePath(pathArg)
	if err != nil {
		c.writeMessage(StatusFileUnavailable, "invalid path")

		return nil
	}

	c.listDirectory(remote, opts, nameOnly)

	return nil
}

func (c *Client) writeFSError(err error) {
	type coder interface{ Code() int }

	if ce, ok := err.(coder); ok {
		c.writeMessage(ce.Code(), err.Error())

		return
	}

	c.writeMessage(StatusLocalError, err.Error())
}
