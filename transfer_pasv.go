package hdfsftpd

import (
	"fmt"
	"net"
	"strings"
)

// handlePASV opens a listening socket within the configured data-port
// range and replies with its address in the bit-exact "227 Entering
// Passive Mode (h1,h2,h3,h4,p1,p2)" format (spec §4.2).
func handlePASV(c *Client, _ string) error {
	ln, err := findListenerWithinPortRange(c.server.config.DataPortRange)
	if err != nil {
		c.writeMessage(StatusCannotOpenDataConn, "cannot find an available data port")

		return nil
	}

	c.armPassive(ln)

	host := currentControlIP(c.conn)
	port := ln.Addr().(*net.TCPAddr).Port

	c.writeMessage(StatusEnteringPASV, fmt.Sprintf(
		"Entering Passive Mode (%s,%d,%d).",
		strings.ReplaceAll(host, ".", ","), port>>8, port&0xFF,
	))

	return nil
}

// findListenerWithinPortRange scans [Start, Start+Len) for a free port,
// grounded on the teacher's transfer_pasv.go port-scan loop.
func findListenerWithinPortRange(r DataPortRange) (net.Listener, error) {
	for port := r.Start; port < r.Start+r.Len; port++ {
		addr := fmt.Sprintf(":%d", port)

		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
	}

	return nil, ErrNoAvailableDataPort
}

// currentControlIP returns the local IP of the control connection, which
// PASV advertises as the data-channel address.
func currentControlIP(conn net.Conn) string {
	if addr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}

	return "127.0.0.1"
}
