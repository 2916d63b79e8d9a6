package hdfsftpd

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hdfsftpd/hdfsftpd/remotefs"
)

// Server is the FTP engine's core: it owns the listening socket, the user
// registry and the set of live client sessions. Lock order, when more than
// one is held, is always server_lock -> user_list_lock -> client_list_lock
// -> a given client's own lock (spec §5); no lock is ever held across I/O.
type Server struct {
	config Config
	logger Logger
	sink   EventSink
	fs     remotefs.FS
	users  *UserRegistry

	serverMu  sync.RWMutex // server_lock: guards listener/listening/accepting
	listener  net.Listener
	listening bool
	accepting bool

	clientListMu sync.RWMutex // client_list_lock
	clients      map[uint32]*Client
	nextClientID uint32

	acceptCtx    context.Context
	acceptCancel context.CancelFunc
	acceptWG     sync.WaitGroup
}

// NewServer builds a Server from cfg, backed by fs. If logger is nil a
// no-op logger is used; metricsRegisterer may be nil to skip Prometheus
// registration entirely.
func NewServer(cfg Config, fs remotefs.FS, logger Logger, metricsRegisterer prometheus.Registerer) *Server {
	if logger == nil {
		logger = defaultLogger()
	}

	sinks := []EventSink{&loggingEventSink{logger: logger}}
	if metricsRegisterer != nil {
		sinks = append(sinks, newMetricsEventSink(metricsRegisterer))
	}

	s := &Server{
		config:  cfg,
		logger:  logger,
		sink:    &multiEventSink{sinks: sinks},
		fs:      fs,
		users:   newUserRegistry(),
		clients: make(map[uint32]*Client),
	}

	for _, u := range cfg.Users {
		if _, ok := s.users.Add(u); ok {
			s.sink.Handle(Event{Kind: EventNewUser})
		}
	}

	return s
}

// AddUser registers a new account at runtime, returning false if the login
// already exists.
func (s *Server) AddUser(cfg UserConfig) bool {
	_, ok := s.users.Add(cfg)
	if ok {
		s.sink.Handle(Event{Kind: EventNewUser})
	}

	return ok
}

// DeleteUser marks login for removal (spec §3: existing sessions keep
// running, new logins are refused).
func (s *Server) DeleteUser(login string) bool {
	ok := s.users.Delete(login)
	if ok {
		s.sink.Handle(Event{Kind: EventDeleteUser})
	}

	return ok
}

// IsListening reports whether the listening socket is open.
func (s *Server) IsListening() bool {
	s.serverMu.RLock()
	defer s.serverMu.RUnlock()

	return s.listening
}

// Addr returns the control-channel listening address. It must only be
// called while the server is listening.
func (s *Server) Addr() net.Addr {
	s.serverMu.RLock()
	defer s.serverMu.RUnlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// IsAccepting reports whether the accept loop is running.
func (s *Server) IsAccepting() bool {
	s.serverMu.RLock()
	defer s.serverMu.RUnlock()

	return s.accepting
}

// StartListening opens the control-channel listening socket (spec §4.1).
func (s *Server) StartListening() error {
	s.serverMu.Lock()
	defer s.serverMu.Unlock()

	if s.listening {
		return ErrAlreadyListening
	}

	addr := net.JoinHostPort(s.config.ListeningIP, portString(s.config.ListeningPort))

	lc := net.ListenConfig{Control: Control}

	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		s.sink.Handle(Event{Kind: EventErrorListening, Err: err})

		return newNetworkError("listen", err)
	}

	s.listener = ln
	s.listening = true
	s.sink.Handle(Event{Kind: EventStartListening})

	return nil
}

// StartAccepting launches the accept loop in a background goroutine. It
// must be called after StartListening.
func (s *Server) StartAccepting() error {
	s.serverMu.Lock()
	if !s.listening {
		s.serverMu.Unlock()

		return ErrNotListening
	}

	if s.accepting {
		s.serverMu.Unlock()

		return nil
	}

	s.accepting = true
	ln := s.listener
	s.acceptCtx, s.acceptCancel = context.WithCancel(context.Background())
	s.serverMu.Unlock()

	s.sink.Handle(Event{Kind: EventStartAccepting})

	s.acceptWG.Add(1)

	go s.acceptLoop(ln)

	return nil
}

// acceptLoop accepts incoming control connections, applying an increasing
// backoff on transient accept errors so a momentarily exhausted file
// descriptor table doesn't spin the loop hot (grounded on the teacher's
// server.go accept-error backoff pattern).
func (s *Server) acceptLoop(ln net.Listener) {
	defer s.acceptWG.Done()

	var backoff time.Duration

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.acceptCtx.Done():
				return
			default:
			}

			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else {
					backoff *= 2
				}

				if backoff > time.Second {
					backoff = time.Second
				}

				time.Sleep(backoff)

				continue
			}

			s.sink.Handle(Event{Kind: EventClientSockError, Err: err})

			return
		}

		backoff = 0

		s.clientArrival(conn)
	}
}

func (s *Server) clientArrival(conn net.Conn) {
	s.clientListMu.Lock()
	s.nextClientID++
	id := s.nextClientID
	s.clientListMu.Unlock()

	client := newClient(id, conn, s)

	s.clientListMu.Lock()
	s.clients[id] = client
	s.clientListMu.Unlock()

	s.sink.Handle(Event{Kind: EventNewClient, Client: client})

	s.acceptWG.Add(1)

	go func() {
		defer s.acceptWG.Done()
		client.serve()
		s.clientDeparture(client)
	}()
}

func (s *Server) clientDeparture(c *Client) {
	s.clientListMu.Lock()
	delete(s.clients, c.ID())
	s.clientListMu.Unlock()

	if user := c.currentUser(); user != nil {
		if user.releaseSlot() {
			s.users.reap(user.Login())
		}
	}

	s.sink.Handle(Event{Kind: EventDeleteClient, Client: c})
}

// Stop closes the listener, cancels the accept loop and waits for every
// live client session to finish tearing down (the teardown-completeness
// invariant of spec §8).
func (s *Server) Stop() error {
	s.serverMu.Lock()
	if !s.listening {
		s.serverMu.Unlock()

		return ErrNotListening
	}

	if s.acceptCancel != nil {
		s.acceptCancel()
	}

	ln := s.listener
	s.listening = false
	s.accepting = false
	s.serverMu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}

	s.clientListMu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientListMu.RUnlock()

	for _, c := range clients {
		c.close()
	}

	s.acceptWG.Wait()

	s.sink.Handle(Event{Kind: EventStopAccepting})
	s.sink.Handle(Event{Kind: EventStopListening})

	return err
}

// ClientCount returns the number of currently live client sessions.
func (s *Server) ClientCount() int {
	s.clientListMu.RLock()
	defer s.clientListMu.RUnlock()

	return len(s.clients)
}

func portString(port int) string {
	return strconv.Itoa(port)
}
