package hdfsftpd

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/hdfsftpd/hdfsftpd/remotefs"
)

// testSession wraps a raw control-channel connection for sending commands
// and asserting on replies, grounded on the teacher's helpers_test.go
// raw-connection pattern (adapted here to the standard library instead of
// a third-party FTP test client, since these are single-line assertions).
type testSession struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.ListeningIP = "127.0.0.1"
	cfg.ListeningPort = 0
	cfg.NoLoginTimeout = 5 * time.Second
	cfg.NoTransferTimeout = 5 * time.Second
	cfg.MaxPasswordTries = 3
	cfg.Users = []UserConfig{
		{Login: "alice", Password: "wonderland", StartDirectory: "/", Enabled: true, MaxClients: 2, Privileges: PrivilegeAll},
		{Login: "dave", Password: "sandboxed", StartDirectory: "/home/dave", Enabled: true, MaxClients: 2, Privileges: PrivilegeAll},
	}

	memFs := afero.NewMemMapFs()
	if err := memFs.MkdirAll("/home/dave", 0o755); err != nil {
		t.Fatalf("seed home dir: %v", err)
	}

	fs := remotefs.NewLocalFS(memFs)

	s := NewServer(cfg, fs, nil, nil)

	if err := s.StartListening(); err != nil {
		t.Fatalf("StartListening: %v", err)
	}

	if err := s.StartAccepting(); err != nil {
		t.Fatalf("StartAccepting: %v", err)
	}

	return s, func() { _ = s.Stop() }
}

func newTestSession(t *testing.T, addr net.Addr) *testSession {
	t.Helper()

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	sess := &testSession{t: t, conn: conn, r: bufio.NewReader(conn)}
	sess.expect(StatusServiceReady)

	return sess
}

func (s *testSession) send(line string) {
	s.t.Helper()

	if _, err := s.conn.Write([]byte(line + "\r\n")); err != nil {
		s.t.Fatalf("write %q: %v", line, err)
	}
}

// readReply reads one reply, following multi-line "code-" continuations
// through to the final "code " line.
func (s *testSession) readReply() (int, string) {
	s.t.Helper()

	line, err := s.r.ReadString('\n')
	if err != nil {
		s.t.Fatalf("read reply: %v", err)
	}

	line = strings.TrimRight(line, "\r\n")

	code, _ := strconv.Atoi(line[:3])

	if len(line) > 3 && line[3] == '-' {
		for {
			cont, err := s.r.ReadString('\n')
			if err != nil {
				s.t.Fatalf("read continuation: %v", err)
			}

			cont = strings.TrimRight(cont, "\r\n")
			if strings.HasPrefix(cont, strconv.Itoa(code)+" ") {
				break
			}
		}
	}

	return code, line
}

func (s *testSession) expect(code int) string {
	s.t.Helper()

	got, line := s.readReply()
	if got != code {
		s.t.Fatalf("expected status %d, got %q", code, line)
	}

	return line
}

func (s *testSession) login(t *testing.T, login, password string) {
	t.Helper()

	s.send("USER " + login)
	s.expect(StatusUserOK)
	s.send("PASS " + password)
	s.expect(StatusUserLoggedIn)
}

func (s *testSession) close() { _ = s.conn.Close() }

func TestLoginStateMachine(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	sess := newTestSession(t, srv.Addr())
	defer sess.close()

	sess.send("PWD")
	sess.expect(StatusNotLoggedIn)

	sess.send("USER alice")
	sess.expect(StatusUserOK)

	sess.send("PASS wrong")
	sess.expect(StatusNotLoggedIn)

	sess.send("USER alice")
	sess.expect(StatusUserOK)
	sess.send("PASS wonderland")
	sess.expect(StatusUserLoggedIn)

	sess.send("PWD")
	line := sess.expect(StatusPathCreated)
	if !strings.Contains(line, `"/"`) {
		t.Errorf("expected root cwd in PWD reply, got %q", line)
	}
}

func TestBruteForceLockout(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	sess := newTestSession(t, srv.Addr())
	defer sess.close()

	for i := 0; i < 3; i++ {
		sess.send("USER alice")
		sess.expect(StatusUserOK)
		sess.send("PASS wrong")
		sess.expect(StatusNotLoggedIn)
	}

	// The third failure should have closed the connection.
	sess.conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	buf := make([]byte, 1)
	if _, err := sess.conn.Read(buf); err == nil {
		t.Error("expected connection to be closed after too many password tries")
	}
}

func TestMkdCwdRmdRoundTrip(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	sess := newTestSession(t, srv.Addr())
	defer sess.close()

	sess.login(t, "alice", "wonderland")

	sess.send("MKD reports")
	sess.expect(StatusPathCreated)

	sess.send("CWD reports")
	sess.expect(StatusFileActionOK)

	sess.send("CDUP")
	sess.expect(StatusFileActionOK)

	sess.send("RMD reports")
	sess.expect(StatusFileActionOK)

	sess.send("CWD reports")
	sess.expect(StatusFileUnavailable)
}

func TestSandboxEscapeRejected(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	sess := newTestSession(t, srv.Addr())
	defer sess.close()

	sess.login(t, "dave", "sandboxed")

	sess.send("MKD ../../..")
	sess.expect(StatusFileUnavailable)

	sess.send("CWD /../../etc")
	sess.expect(StatusFileUnavailable)
}

func TestStorRetrRoundTrip(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	sess := newTestSession(t, srv.Addr())
	defer sess.close()

	sess.login(t, "alice", "wonderland")

	sess.send("PASV")
	pasvLine := sess.expect(StatusEnteringPASV)

	dataAddr := parsePasvAddr(t, pasvLine)

	dataConn, err := net.Dial("tcp", dataAddr)
	if err != nil {
		t.Fatalf("dial data connection: %v", err)
	}

	sess.send("STOR greeting.txt")
	sess.expect(StatusDataConnOpen)

	payload := []byte("hello from the data channel\n")
	if _, err := dataConn.Write(payload); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	dataConn.Close()

	sess.expect(StatusClosingDataConn)

	sess.send("PASV")
	pasvLine = sess.expect(StatusEnteringPASV)
	dataAddr = parsePasvAddr(t, pasvLine)

	dataConn, err = net.Dial("tcp", dataAddr)
	if err != nil {
		t.Fatalf("dial data connection: %v", err)
	}

	sess.send("RETR greeting.txt")
	sess.expect(StatusDataConnOpen)

	got := make([]byte, len(payload))
	if _, err := readFull(dataConn, got); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	dataConn.Close()

	sess.expect(StatusClosingDataConn)

	if string(got) != string(payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n

		if err != nil {
			return total, err
		}
	}

	return total, nil
}

func TestAborWithoutTransferInFlight(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	sess := newTestSession(t, srv.Addr())
	defer sess.close()

	sess.login(t, "alice", "wonderland")

	sess.send("MKD abor-scratch")
	sess.expect(StatusPathCreated)

	sess.send("PASV")
	sess.expect(StatusEnteringPASV)

	// No transfer is running: ABOR just tears down the armed PASV
	// listener and replies on its own behalf.
	sess.send("ABOR")
	sess.expect(StatusClosingDataConn)

	// The torn-down listener must not be reusable by a later transfer.
	// LIST on a directory that exists isolates this from file-lookup
	// replies, so the 425 can only come from the missing data connection.
	sess.send("LIST abor-scratch")
	sess.expect(StatusCannotOpenDataConn)
}

func TestAborDuringTransferClosesConnection(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	sess := newTestSession(t, srv.Addr())
	defer sess.close()

	sess.login(t, "alice", "wonderland")

	sess.send("PASV")
	pasvLine := sess.expect(StatusEnteringPASV)
	dataAddr := parsePasvAddr(t, pasvLine)

	dataConn, err := net.Dial("tcp", dataAddr)
	if err != nil {
		t.Fatalf("dial data connection: %v", err)
	}
	defer dataConn.Close()

	sess.send("STOR slow.txt")
	sess.expect(StatusDataConnOpen)

	// Leave the data connection open with nothing sent: the STOR worker
	// is now blocked reading it. ABOR must still reach the control loop
	// and interrupt the transfer rather than queuing behind it.
	sess.send("ABOR")

	sess.expect(StatusConnectionClosed)
	sess.expect(StatusClosingDataConn)
}

func TestDataConnectionResetAfterTransfer(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	sess := newTestSession(t, srv.Addr())
	defer sess.close()

	sess.login(t, "alice", "wonderland")

	sess.send("PASV")
	pasvLine := sess.expect(StatusEnteringPASV)
	dataAddr := parsePasvAddr(t, pasvLine)

	dataConn, err := net.Dial("tcp", dataAddr)
	if err != nil {
		t.Fatalf("dial data connection: %v", err)
	}

	sess.send("STOR once.txt")
	sess.expect(StatusDataConnOpen)
	dataConn.Write([]byte("x"))
	dataConn.Close()
	sess.expect(StatusClosingDataConn)

	// No fresh PASV/PORT was armed after the transfer completed: the
	// worker must have reset the data-connection mode to NONE rather
	// than leaving the closed listener armed for reuse (spec §8).
	sess.send("RETR once.txt")
	sess.expect(StatusCannotOpenDataConn)
}

func TestRntoClearsPendingRenameOnFailure(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	sess := newTestSession(t, srv.Addr())
	defer sess.close()

	sess.login(t, "alice", "wonderland")

	sess.send("MKD renamed")
	sess.expect(StatusPathCreated)

	sess.send("RNFR renamed")
	sess.expect(StatusFileActionPending)

	// An invalid destination fails the rename...
	sess.send("RNTO /../../etc/passwd")
	sess.expect(StatusFileUnavailable)

	// ...and must also have cleared the pending RNFR, so a later RNTO
	// with no RNFR of its own is rejected rather than silently acting on
	// the stale "renamed" source.
	sess.send("RNTO somewhere-else")
	sess.expect(StatusBadCommandSequence)
}

func TestUserSlotReleasedOnDisconnect(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	// alice's MaxClients is 2: log in and disconnect three times in a row.
	// If the slot held by a departed session were never released, the
	// third login would be refused even though nothing is still connected.
	for i := 0; i < 3; i++ {
		sess := newTestSession(t, srv.Addr())
		sess.login(t, "alice", "wonderland")
		sess.close()

		deadline := time.Now().Add(2 * time.Second)
		for {
			u, ok := srv.users.SearchByLogin("alice")
			if !ok {
				t.Fatalf("alice unexpectedly reaped")
			}

			if u.tryAcquireSlot() {
				u.releaseSlot()

				break
			}

			if time.Now().After(deadline) {
				t.Fatalf("iteration %d: alice's slot was never released after disconnect", i)
			}

			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestRnfrRequiresWritePrivilege(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	cfg := UserConfig{Login: "reader", Password: "x", StartDirectory: "/", Enabled: true, MaxClients: 1, Privileges: PrivilegeReadFile | PrivilegeList}
	if _, ok := srv.users.Add(cfg); !ok {
		t.Fatalf("expected to register the read-only user")
	}

	sess := newTestSession(t, srv.Addr())
	defer sess.close()

	sess.login(t, "reader", "x")

	sess.send("RNFR greeting.txt")
	sess.expect(StatusFileUnavailable)
}

// parsePasvAddr extracts "ip:port" from a "227 Entering Passive Mode
// (h1,h2,h3,h4,p1,p2)" reply.
func parsePasvAddr(t *testing.T, line string) string {
	t.Helper()

	start := strings.IndexByte(line, '(')
	end := strings.IndexByte(line, ')')

	if start < 0 || end < 0 {
		t.Fatalf("malformed PASV reply: %q", line)
	}

	parts := strings.Split(line[start+1:end], ",")
	if len(parts) != 6 {
		t.Fatalf("malformed PASV reply: %q", line)
	}

	ip := strings.Join(parts[:4], ".")

	p1, _ := strconv.Atoi(parts[4])
	p2, _ := strconv.Atoi(parts[5])
	port := p1<<8 | p2

	return net.JoinHostPort(ip, strconv.Itoa(port))
}
