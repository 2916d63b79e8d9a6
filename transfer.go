package hdfsftpd

import (
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/hdfsftpd/hdfsftpd/remotefs"
)

// dataConnMode is the data channel's sub-state (spec §4.2): idle, waiting
// for an incoming PASV connection, or dialing out for PORT.
type dataConnMode int

const (
	dataConnNone dataConnMode = iota
	dataConnPassive
	dataConnActive
)

// dataConnection holds whichever half of PASV/PORT is currently armed. Only
// one of listener/remoteAddr is ever populated, matching the mode.
type dataConnection struct {
	mode       dataConnMode
	listener   net.Listener
	remoteAddr string
}

// armPassive records an open listener as the session's PASV endpoint,
// replacing any previous data-connection state (the mode-reset invariant of
// spec §8: entering a new data mode always clears the old one first).
func (c *Client) armPassive(ln net.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeDataLocked()
	c.data = &dataConnection{mode: dataConnPassive, listener: ln}
}

// armActive records the host:port a subsequent transfer command should
// dial for PORT.
func (c *Client) armActive(remoteAddr string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeDataLocked()
	c.data = &dataConnection{mode: dataConnActive, remoteAddr: remoteAddr}
}

func (c *Client) closeDataLocked() {
	if c.data != nil && c.data.listener != nil {
		_ = c.data.listener.Close()
	}

	c.data = nil
}

// resetDataConnection clears any armed PASV/PORT state without opening a
// new one. Called by ABOR, at session teardown (which QUIT leads to), and
// after every transfer completes (spec §4.2).
func (c *Client) resetDataConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeDataLocked()
}

// dataConnArmed reports whether a PASV/PORT has been set up for the next
// transfer. Checked before a worker commits to its preliminary 150 reply, so
// a transfer command with no data connection armed gets a single 425 instead
// of a 150 immediately followed by one.
func (c *Client) dataConnArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.data != nil && c.data.mode != dataConnNone
}

// handleABOR is a special-action command (spec §4.4): it never waits behind
// a running transfer, so it can interrupt one. If a transfer is in flight,
// cancelling its context fails the worker's blocked Accept/Dial (see
// openDataConnection) or, once the data connection is already open, closes
// it out from under the worker's blocked copy (see closeOnCancel) — either
// way the worker reports that failure (426) itself before ABOR's Wait
// returns, and ABOR then reports its own 226, giving the required
// "426 then 226" ordering. If no transfer is running, ABOR just tears down
// any armed-but-unused PASV/PORT state and replies 226 on its own.
func handleABOR(c *Client, _ string) error {
	c.mu.Lock()
	cancel := c.transferCancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.transferWg.Wait()
	c.resetDataConnection()

	c.writeMessage(StatusClosingDataConn, "ABOR successful, closing transfer connection")

	return nil
}

// openDataConnection completes whichever half of PASV/PORT is armed,
// returning a ready data-channel socket. It is the sole place a transfer
// worker obtains its connection (spec §4.2).
func (c *Client) openDataConnection(ctx context.Context) (net.Conn, error) {
	c.mu.Lock()
	d := c.data
	c.mu.Unlock()

	if d == nil || d.mode == dataConnNone {
		return nil, newResourceError(StatusCannotOpenDataConn, "use PASV or PORT first")
	}

	switch d.mode {
	case dataConnPassive:
		type acceptResult struct {
			conn net.Conn
			err  error
		}

		resCh := make(chan acceptResult, 1)

		go func() {
			conn, err := d.listener.Accept()
			resCh <- acceptResult{conn, err}
		}()

		select {
		case res := <-resCh:
			if res.err != nil {
				return nil, newNetworkError("pasv accept", res.err)
			}

			return res.conn, nil
		case <-ctx.Done():
			_ = d.listener.Close()

			return nil, newProtocolError(StatusConnectionClosed, "transfer aborted")
		}
	case dataConnActive:
		dialer := net.Dialer{Timeout: 10 * time.Second}

		conn, err := dialer.DialContext(ctx, "tcp", d.remoteAddr)
		if err != nil {
			if ctx.Err() != nil {
				return nil, newProtocolError(StatusConnectionClosed, "transfer aborted")
			}

			return nil, newNetworkError("port dial", err)
		}

		return conn, nil
	default:
		return nil, newResourceError(StatusCannotOpenDataConn, "no data connection armed")
	}
}

// withTransferContext registers a cancelable context for the duration of a
// transfer, so Client.close() can abort an in-flight RETR/STOR/LIST.
func (c *Client) withTransferContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.transferCancel = cancel
	c.mu.Unlock()

	return ctx, func() {
		c.mu.Lock()
		c.transferCancel = nil
		c.mu.Unlock()
		cancel()
	}
}

// wrapReader applies MODE Z decompression to a data-channel reader when the
// session negotiated it (spec §4.2's MODE Z / OPTS MODE Z LEVEL n).
func (c *Client) wrapReader(r io.Reader) (io.ReadCloser, error) {
	c.mu.RLock()
	mode := c.transferMode
	c.mu.RUnlock()

	if mode != 'Z' {
		return io.NopCloser(r), nil
	}

	zr, err := zlib.NewReader(r)
	if err != nil {
		c.server.sink.Handle(Event{Kind: EventZlibStreamError, Client: c, Err: err})

		return nil, newProtocolError(StatusLocalError, "zlib stream error")
	}

	return zr, nil
}

// wrapWriter applies MODE Z compression to a data-channel writer.
func (c *Client) wrapWriter(w io.Writer) (io.WriteCloser, error) {
	c.mu.RLock()
	mode := c.transferMode
	level := c.zlibLevel
	c.mu.RUnlock()

	if mode != 'Z' {
		return nopWriteCloser{w}, nil
	}

	if level == 0 {
		level = zlib.DefaultCompression
	}

	zw, err := zlib.NewWriterLevel(w, level)
	if err != nil {
		c.server.sink.Handle(Event{Kind: EventZlibVersionError, Client: c, Err: err})

		return nil, newProtocolError(StatusLocalError, "zlib error")
	}

	return zw, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// closeOnCancel closes conn as soon as ctx is done, so a blocked data-channel
// read or write (which is not itself context-aware) is interrupted by ABOR
// or by the session closing. ctx is always eventually canceled by the
// worker's own deferred cleanup, so this goroutine never outlives the
// transfer.
func closeOnCancel(ctx context.Context, conn net.Conn) {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
}

// retrieveFile streams remote path to the data connection: the RETR worker
// (spec §4.4). offset implements REST for downloads. It always sends
// exactly one final reply itself — callers must not reply again.
func (c *Client) retrieveFile(remotePath string, offset int64) {
	ctx, done := c.withTransferContext()
	defer done()
	defer c.resetDataConnection()

	src, err := c.server.fs.Open(ctx, remotePath)
	if err != nil {
		c.writeFSError(translateFSError(err))

		return
	}
	defer src.Close()

	if offset > 0 {
		if _, err := src.Seek(offset, io.SeekStart); err != nil {
			c.writeFSError(newFilesystemError(StatusLocalError, "seek failed", err))

			return
		}
	}

	if !c.dataConnArmed() {
		c.writeFSError(newResourceError(StatusCannotOpenDataConn, "use PASV or PORT first"))

		return
	}

	c.writeMessage(StatusDataConnOpen, "opening data connection for RETR")

	conn, err := c.openDataConnection(ctx)
	if err != nil {
		c.writeFSError(err)

		return
	}
	defer conn.Close()

	closeOnCancel(ctx, conn)

	dst, err := c.wrapWriter(conn)
	if err != nil {
		c.writeFSError(err)

		return
	}
	defer dst.Close()

	buf := make([]byte, c.server.config.TransferBufferSize)
	if _, err := io.CopyBuffer(dst, src, buf); err != nil {
		c.writeMessage(StatusConnectionClosed, "transfer aborted")

		return
	}

	c.server.sink.Handle(Event{Kind: EventClientDownload, Client: c})
	c.writeMessage(StatusClosingDataConn, "transfer complete")
}

// storeFile streams the data connection into remote path: the STOR/APPE/
// STOU worker (spec §4.4). Like retrieveFile, it always sends its own
// final reply; closeMessage lets STOU report the server-chosen filename in
// that reply instead of the generic "transfer complete".
func (c *Client) storeFile(remotePath string, appendMode bool, closeMessage string) {
	ctx, done := c.withTransferContext()
	defer done()
	defer c.resetDataConnection()

	if !c.dataConnArmed() {
		c.writeFSError(newResourceError(StatusCannotOpenDataConn, "use PASV or PORT first"))

		return
	}

	c.writeMessage(StatusDataConnOpen, "opening data connection for STOR")

	conn, err := c.openDataConnection(ctx)
	if err != nil {
		c.writeFSError(err)

		return
	}
	defer conn.Close()

	closeOnCancel(ctx, conn)

	src, err := c.wrapReader(conn)
	if err != nil {
		c.writeFSError(err)

		return
	}
	defer src.Close()

	var dst remotefs.WriteCloser
	if appendMode {
		dst, err = c.server.fs.Append(ctx, remotePath)
	} else {
		dst, err = c.server.fs.Create(ctx, remotePath)
	}

	if err != nil {
		c.writeFSError(translateFSError(err))

		return
	}
	defer dst.Close()

	buf := make([]byte, c.server.config.TransferBufferSize)
	if _, err := io.CopyBuffer(dst, src, buf); err != nil {
		c.writeMessage(StatusConnectionClosed, "transfer aborted")

		return
	}

	c.server.sink.Handle(Event{Kind: EventClientUpload, Client: c})

	if closeMessage == "" {
		closeMessage = "transfer complete"
	}

	c.writeMessage(StatusClosingDataConn, closeMessage)
}

// listOptions are the flag letters LIST/NLST accept (spec §4.4): -a show
// dotfiles, -d describe the directory itself rather than its contents, -F
// append type indicators. -l is accepted but changes nothing: LIST always
// uses the long format and NLST always sends bare names.
type listOptions struct {
	all    bool
	dir    bool
	class  bool
	long   bool
}

// listDirectory streams a directory listing over the data connection: the
// LIST/NLST worker (spec §4.4). Like retrieveFile/storeFile, it always
// sends its own final reply.
func (c *Client) listDirectory(remotePath string, opts listOptions, nameOnly bool) {
	ctx, done := c.withTransferContext()
	defer done()
	defer c.resetDataConnection()

	var entries []remotefs.FileInfo

	if opts.dir {
		fi, err := c.server.fs.Stat(ctx, remotePath)
		if err != nil {
			c.writeFSError(translateFSError(err))

			return
		}

		entries = []remotefs.FileInfo{fi}
	} else {
		list, err := c.server.fs.List(ctx, remotePath)
		if err != nil {
			c.writeFSError(translateFSError(err))

			return
		}

		entries = list
	}

	if !c.dataConnArmed() {
		c.writeFSError(newResourceError(StatusCannotOpenDataConn, "use PASV or PORT first"))

		return
	}

	c.writeMessage(StatusDataConnOpen, "opening data connection for LIST")

	conn, err := c.openDataConnection(ctx)
	if err != nil {
		c.writeFSError(err)

		return
	}
	defer conn.Close()

	closeOnCancel(ctx, conn)

	dst, err := c.wrapWriter(conn)
	if err != nil {
		c.writeFSError(err)

		return
	}
	defer dst.Close()

	now := time.Now()

	for _, fi := range entries {
		if !opts.all && len(fi.Name) > 0 && fi.Name[0] == '.' {
			continue
		}

		var line string
		if nameOnly {
			line = fi.Name
		} else {
			line = formatLongListLine(fi, now)
		}

		if opts.class {
			line += classIndicator(fi)
		}

		if _, err := io.WriteString(dst, line+"\r\n"); err != nil {
			c.writeMessage(StatusConnectionClosed, "transfer aborted")

			return
		}
	}

	c.server.sink.Handle(Event{Kind: EventClientList, Client: c})
	c.writeMessage(StatusClosingDataConn, "transfer complete")
}

// classIndicator is the trailing character -F appends: "/" for a directory,
// "*" for an executable file, nothing otherwise (spec §4.5).
func classIndicator(fi remotefs.FileInfo) string {
	if fi.IsDir {
		return "/"
	}

	if fi.Mode&0o111 != 0 {
		return "*"
	}

	return ""
}

// formatLongListLine renders one `ls -l`-style line, switching from a
// time-of-day to a year field once a file is more than roughly six months
// old, matching the original engine's listing format.
func formatLongListLine(fi remotefs.FileInfo, now time.Time) string {
	perms := permString(fi)

	owner := fi.Owner
	if owner == "" {
		owner = "owner"
	}

	group := fi.Group
	if group == "" {
		group = "group"
	}

	var dateField string

	sixMonthsAgo := now.AddDate(0, -6, 0)
	if fi.ModTime.Before(sixMonthsAgo) || fi.ModTime.After(now) {
		dateField = fmt.Sprintf("%s %2d %5d", fi.ModTime.Format("Jan"), fi.ModTime.Day(), fi.ModTime.Year())
	} else {
		dateField = fmt.Sprintf("%s %2d %02d:%02d", fi.ModTime.Format("Jan"), fi.ModTime.Day(), fi.ModTime.Hour(), fi.ModTime.Minute())
	}

	return fmt.Sprintf("%s %3d %-8s %-8s %8d %s %s", perms, 1, owner, group, fi.Size, dateField, fi.Name)
}

func permString(fi remotefs.FileInfo) string {
	b := []byte("----------")

	if fi.IsDir {
		b[0] = 'd'
	}

	mode := fi.Mode

	bits := []struct {
		mask os.FileMode
		ch   byte
		pos  int
	}{
		{0o400, 'r', 1}, {0o200, 'w', 2}, {0o100, 'x', 3},
		{0o040, 'r', 4}, {0o020, 'w', 5}, {0o010, 'x', 6},
		{0o004, 'r', 7}, {0o002, 'w', 8}, {0o001, 'x', 9},
	}

	for _, bit := range bits {
		if mode&bit.mask != 0 {
			b[bit.pos] = bit.ch
		}
	}

	return string(b)
}

// translateFSError maps a RemoteFS failure to the FTP status it should
// produce (spec §7): missing file/permission denied both surface as 550.
func translateFSError(err error) error {
	if os.IsNotExist(err) {
		return newFilesystemError(StatusFileUnavailable, "no such file or directory", err)
	}

	if os.IsPermission(err) {
		return newFilesystemError(StatusFileUnavailable, "permission denied", err)
	}

	return newFilesystemError(StatusLocalError, "filesystem error", err)
}
