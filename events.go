package hdfsftpd

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EventKind enumerates the events this engine emits at protocol-significant
// moments (spec §6). It replaces the original C++ engine's three raw
// function-pointer callbacks (OnServerEventCb/OnUserEventCb/OnClientEventCb)
// with a single tagged-variant stream (spec §9, "Raw callbacks and void*
// event arguments → tagged events").
type EventKind int

const (
	EventStartListening EventKind = iota
	EventStopListening
	EventErrorListening
	EventStartAccepting
	EventStopAccepting
	EventMemError
	EventThreadError
	EventHDFSConnectError
	EventNewUser
	EventDeleteUser
	EventNewClient
	EventDeleteClient
	EventClientDisconnect
	EventClientAuth
	EventClientSoftware
	EventRecvdCmdLine
	EventSendReply
	EventClientUpload
	EventClientDownload
	EventClientList
	EventClientChangeDir
	EventTooManyPassTries
	EventNoLoginTimeout
	EventNoTransferTimeout
	EventClientSockError
	EventZlibVersionError
	EventZlibStreamError
)

//nolint:gochecknoglobals
var eventNames = map[EventKind]string{
	EventStartListening:   "start_listening",
	EventStopListening:    "stop_listening",
	EventErrorListening:   "error_listening",
	EventStartAccepting:   "start_accepting",
	EventStopAccepting:    "stop_accepting",
	EventMemError:         "mem_error",
	EventThreadError:      "thread_error",
	EventHDFSConnectError: "hdfs_connect_error",
	EventNewUser:          "new_user",
	EventDeleteUser:       "delete_user",
	EventNewClient:        "new_client",
	EventDeleteClient:     "delete_client",
	EventClientDisconnect: "client_disconnect",
	EventClientAuth:       "client_auth",
	EventClientSoftware:   "client_software",
	EventRecvdCmdLine:     "recvd_cmd_line",
	EventSendReply:        "send_reply",
	EventClientUpload:     "client_upload",
	EventClientDownload:   "client_download",
	EventClientList:       "client_list",
	EventClientChangeDir:  "client_change_dir",
	EventTooManyPassTries: "too_many_pass_tries",
	EventNoLoginTimeout:   "no_login_timeout",
	EventNoTransferTimeout: "no_transfer_timeout",
	EventClientSockError:  "client_sock_error",
	EventZlibVersionError: "zlib_version_error",
	EventZlibStreamError:  "zlib_stream_error",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}

	return "unknown"
}

// Event is the payload dispatched to an EventSink. User and Client are
// nullable pointers, populated only for events with that kind of subject
// (the typed replacement for the original's void* pArg, spec §9).
type Event struct {
	Kind   EventKind
	User   *User
	Client *Client
	Err    error
}

// EventSink receives every event the engine fires. Subscribers pattern-match
// on Event.Kind; this is the sole observability seam the core exposes
// (logging/metrics are external collaborators, spec §1).
type EventSink interface {
	Handle(Event)
}

// multiEventSink fans an event out to every registered sink.
type multiEventSink struct {
	sinks []EventSink
}

func (m *multiEventSink) Handle(e Event) {
	for _, s := range m.sinks {
		s.Handle(e)
	}
}

// loggingEventSink writes every event through the engine's Logger facade.
// It logs all events unconditionally; the EnableServerLogging/
// EnableClientLogging/EnableUserLogging and LogDirectory config fields are
// not consulted.
type loggingEventSink struct {
	logger Logger
}

func (l *loggingEventSink) Handle(e Event) {
	fields := make([]interface{}, 0, 6)
	if e.User != nil {
		fields = append(fields, "login", e.User.Login())
	}

	if e.Client != nil {
		fields = append(fields, "clientId", e.Client.ID())
	}

	if e.Err != nil {
		fields = append(fields, "err", e.Err)
		l.logger.Warn(e.Kind.String(), fields...)

		return
	}

	l.logger.Debug(e.Kind.String(), fields...)
}

// metricsEventSink increments a Prometheus counter per event kind: the
// "event/metrics wiring" 5% of the implementation budget (spec §2).
type metricsEventSink struct {
	counter *prometheus.CounterVec
}

// newMetricsEventSink creates a counter vector labeled by event name and,
// if registerer is non-nil, registers it there with MustRegister, which
// panics if registerer already holds a collector of the same name.
func newMetricsEventSink(registerer prometheus.Registerer) *metricsEventSink {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hdfsftpd",
		Name:      "events_total",
		Help:      "Total number of engine events by kind.",
	}, []string{"event"})

	if registerer != nil {
		registerer.MustRegister(counter)
	}

	return &metricsEventSink{counter: counter}
}

func (m *metricsEventSink) Handle(e Event) {
	m.counter.WithLabelValues(e.Kind.String()).Inc()
}
