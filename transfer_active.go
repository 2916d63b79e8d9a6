package hdfsftpd

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// portArgRe matches PORT's "h1,h2,h3,h4,p1,p2" argument.
var portArgRe = regexp.MustCompile(`^(\d{1,3}),(\d{1,3}),(\d{1,3}),(\d{1,3}),(\d{1,3}),(\d{1,3})$`)

// handlePORT parses a client-supplied address and arms the session for an
// active-mode data connection (spec §4.2). FXP (a PORT naming a host other
// than the control peer) is rejected with 501 unless EnableFXP is set
// (spec's Non-goals: FXP is not implemented).
func handlePORT(c *Client, arg string) error {
	addr, err := parseRemoteAddr(arg)
	if err != nil {
		c.writeMessage(StatusSyntaxErrorParams, "invalid PORT argument")

		return nil
	}

	if !c.server.config.EnableFXP {
		host, _, splitErr := net.SplitHostPort(addr)
		if splitErr != nil {
			c.writeMessage(StatusSyntaxErrorParams, "invalid PORT argument")

			return nil
		}

		peerHost, _, _ := net.SplitHostPort(c.conn.RemoteAddr().String())
		if host != peerHost {
			c.writeMessage(StatusSyntaxErrorParams, "PORT host must match control connection peer")

			return nil
		}
	}

	c.armActive(addr)
	c.writeMessage(StatusFileActionOK, "PORT command successful")

	return nil
}

// parseRemoteAddr converts "h1,h2,h3,h4,p1,p2" into "h1.h2.h3.h4:port"
// (grounded on the teacher's transfer_active.go).
func parseRemoteAddr(s string) (string, error) {
	m := portArgRe.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("malformed PORT argument %q", s)
	}

	octets := make([]string, 4)
	for i := 0; i < 4; i++ {
		n, err := strconv.Atoi(m[i+1])
		if err != nil || n > 255 {
			return "", fmt.Errorf("invalid octet in PORT argument %q", s)
		}

		octets[i] = m[i+1]
	}

	p1, err1 := strconv.Atoi(m[5])
	p2, err2 := strconv.Atoi(m[6])

	if err1 != nil || err2 != nil || p1 > 255 || p2 > 255 {
		return "", fmt.Errorf("invalid port in PORT argument %q", s)
	}

	port := p1<<8 | p2

	return net.JoinHostPort(strings.Join(octets, "."), strconv.Itoa(port)), nil
}
