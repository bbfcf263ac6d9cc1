package csat

import (
	"testing"
	"time"
)

func TestCustomCodecOption(t *testing.T) {
	codec := FrameCodec{MaxLength: 10}
	opt := CustomCodecOption(codec)

	var opts options
	opt(&opts)

	if opts.codec != codec {
		t.Error("codec not set correctly")
	}
}

func TestDispatcherOption(t *testing.T) {
	d := NewAckDispatcher(NopLogger())

	var opts options
	DispatcherOption(d)(&opts)

	if opts.dispatcher != d {
		t.Error("dispatcher not set correctly")
	}
}

func TestHeartbeatOption(t *testing.T) {
	heartbeat := time.Minute * 5
	opt := HeartbeatOption(heartbeat)

	var opts options
	opt(&opts)

	if opts.heartbeat != heartbeat {
		t.Errorf("heartbeat = %v, want %v", opts.heartbeat, heartbeat)
	}
}

func TestMessageMaxSize(t *testing.T) {
	opt := MessageMaxSize(4096)

	var opts options
	opt(&opts)

	if opts.maxReadLength != 4096 {
		t.Errorf("maxReadLength = %d, want 4096", opts.maxReadLength)
	}
}

func TestOnErrorOption(t *testing.T) {
	called := false
	onError := func(err error) ErrorAction {
		called = true
		return Disconnect
	}
	opt := OnErrorOption(onError)

	var opts options
	opt(&opts)

	if opts.onError == nil {
		t.Fatal("onError is nil")
	}

	opts.onError(nil)
	if !called {
		t.Error("onError callback not called")
	}
}

func TestLoggerOption(t *testing.T) {
	logger := &mockLogger{}
	opt := LoggerOption(logger)

	var opts options
	opt(&opts)

	if opts.logger != logger {
		t.Error("logger not set correctly")
	}
}

func TestErrorAction(t *testing.T) {
	if Disconnect != 0 {
		t.Errorf("Disconnect = %d, want 0", Disconnect)
	}
	if Continue != 1 {
		t.Errorf("Continue = %d, want 1", Continue)
	}
}

func TestServerOptions_Defaults(t *testing.T) {
	o := newServerOptions(nil)

	if o.logger == nil {
		t.Error("logger not defaulted")
	}
	if o.shutdownTimeout != 0 {
		t.Errorf("shutdownTimeout = %v, want 0", o.shutdownTimeout)
	}
	if o.pollInterval != time.Second {
		t.Errorf("pollInterval = %v, want 1s", o.pollInterval)
	}
	if o.maxDatagram != DefaultMaxDatagramSize {
		t.Errorf("maxDatagram = %d, want %d", o.maxDatagram, DefaultMaxDatagramSize)
	}
}

func TestServerOptions_Override(t *testing.T) {
	logger := &mockLogger{}
	o := newServerOptions([]ServerOption{
		ServerLoggerOption(logger),
		ServerShutdownTimeoutOption(3 * time.Second),
		PollIntervalOption(100 * time.Millisecond),
		MaxDatagramOption(4096),
	})

	if o.logger != logger {
		t.Error("logger not set")
	}
	if o.shutdownTimeout != 3*time.Second {
		t.Errorf("shutdownTimeout = %v, want 3s", o.shutdownTimeout)
	}
	if o.pollInterval != 100*time.Millisecond {
		t.Errorf("pollInterval = %v, want 100ms", o.pollInterval)
	}
	if o.maxDatagram != 4096 {
		t.Errorf("maxDatagram = %d, want 4096", o.maxDatagram)
	}
}

func TestServerOptions_InvalidValuesFallBack(t *testing.T) {
	o := newServerOptions([]ServerOption{
		ServerLoggerOption(nil),
		PollIntervalOption(-time.Second),
		MaxDatagramOption(0),
	})

	if o.logger == nil {
		t.Error("nil logger not replaced")
	}
	if o.pollInterval != defaultPollInterval {
		t.Errorf("pollInterval = %v, want %v", o.pollInterval, defaultPollInterval)
	}
	if o.maxDatagram != DefaultMaxDatagramSize {
		t.Errorf("maxDatagram = %d, want %d", o.maxDatagram, DefaultMaxDatagramSize)
	}
}

func TestClientOptions(t *testing.T) {
	o := newClientOptions(nil)
	if o.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", o.timeout)
	}
	if o.minMessages != DefaultMinMessages {
		t.Errorf("minMessages = %d, want %d", o.minMessages, DefaultMinMessages)
	}
	if o.maxFrame != DefaultMaxFrameLength {
		t.Errorf("maxFrame = %d, want %d", o.maxFrame, DefaultMaxFrameLength)
	}

	o = newClientOptions([]ClientOption{
		ClientTimeoutOption(time.Second),
		MinMessagesOption(-3),
		ClientMaxFrameOption(100),
		ClientLoggerOption(nil),
	})
	if o.timeout != time.Second {
		t.Errorf("timeout = %v, want 1s", o.timeout)
	}
	if o.minMessages != 0 {
		t.Errorf("minMessages = %d, want 0", o.minMessages)
	}
	if o.maxFrame != 100 {
		t.Errorf("maxFrame = %d, want 100", o.maxFrame)
	}
	if o.logger == nil {
		t.Error("nil logger not replaced")
	}
}
