package csat

import (
	"time"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// options holds the configuration for a connection.
type options struct {
	codec      Codec
	dispatcher Dispatcher
	logger     Logger

	// onError is called when the dispatcher fails.
	// Returns Disconnect to close the connection, Continue to reply with an
	// error acknowledgment and keep reading.
	onError func(error) ErrorAction

	maxReadLength int           // maximum size of a single message
	heartbeat     time.Duration // read/write deadline is heartbeat * 2; 0 disables it
}

// Option is a function that configures connection options.
type Option func(*options)

// CustomCodecOption returns an Option that sets the message codec.
// Connections use a FrameCodec when no codec is set.
func CustomCodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// DispatcherOption returns an Option that sets the request dispatcher.
// The dispatcher is required and is invoked for each received message.
func DispatcherOption(d Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// HeartbeatOption returns an Option that sets the heartbeat interval.
// This determines the read/write deadline timeout (heartbeat * 2).
func HeartbeatOption(heartbeat time.Duration) Option {
	return func(o *options) {
		o.heartbeat = heartbeat
	}
}

// MessageMaxSize returns an Option that sets the maximum message size.
// Messages larger than this size cannot be received.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxReadLength = size
	}
}

// OnErrorOption returns an Option that sets the error callback.
// The callback is invoked when the dispatcher returns an error.
// Return Disconnect to close the connection, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// serverOptions holds the configuration shared by the TCP and UDP servers.
type serverOptions struct {
	logger          Logger
	shutdownTimeout time.Duration
	pollInterval    time.Duration
	maxDatagram     int
}

// ServerOption configures a Server or UDPServer.
type ServerOption func(*serverOptions)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = logger
	}
}

// ServerShutdownTimeoutOption sets the graceful shutdown timeout.
// When the context is canceled, the TCP server will wait up to this duration
// before closing the listener. Default is 0 (immediate shutdown).
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.shutdownTimeout = timeout
	}
}

// PollIntervalOption sets how often the UDP server wakes from a blocked
// receive to check whether it should stop. Default is one second.
func PollIntervalOption(interval time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.pollInterval = interval
	}
}

// MaxDatagramOption sets the largest datagram the UDP server accepts. Larger
// datagrams are answered with an error acknowledgment and never dispatched.
// Default is DefaultMaxDatagramSize.
func MaxDatagramOption(size int) ServerOption {
	return func(o *serverOptions) {
		o.maxDatagram = size
	}
}

func newServerOptions(opts []ServerOption) serverOptions {
	o := serverOptions{
		logger:       defaultLogger(),
		pollInterval: defaultPollInterval,
		maxDatagram:  DefaultMaxDatagramSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = defaultLogger()
	}
	if o.pollInterval <= 0 {
		o.pollInterval = defaultPollInterval
	}
	if o.maxDatagram <= 0 {
		o.maxDatagram = DefaultMaxDatagramSize
	}
	return o
}

// clientOptions holds the configuration shared by the TCP and UDP clients.
type clientOptions struct {
	logger      Logger
	timeout     time.Duration
	minMessages int
	maxFrame    uint32
}

// ClientOption configures a Client or UDPClient.
type ClientOption func(*clientOptions)

// ClientLoggerOption sets the logger for the client.
func ClientLoggerOption(logger Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// ClientTimeoutOption sets the dial timeout of the TCP client and the reply
// timeout of the UDP client. Default is five seconds.
func ClientTimeoutOption(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// MinMessagesOption sets how many messages must be sent before End succeeds.
// Default is DefaultMinMessages; 0 disables the rule.
func MinMessagesOption(n int) ClientOption {
	return func(o *clientOptions) {
		o.minMessages = n
	}
}

// ClientMaxFrameOption caps the length of reply frames the TCP client accepts.
func ClientMaxFrameOption(size uint32) ClientOption {
	return func(o *clientOptions) {
		o.maxFrame = size
	}
}

func newClientOptions(opts []ClientOption) clientOptions {
	o := clientOptions{
		logger:      defaultLogger(),
		timeout:     defaultClientTimeout,
		minMessages: DefaultMinMessages,
		maxFrame:    DefaultMaxFrameLength,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = defaultLogger()
	}
	if o.timeout <= 0 {
		o.timeout = defaultClientTimeout
	}
	if o.minMessages < 0 {
		o.minMessages = 0
	}
	return o
}
