package main

import (
	"math"
	"net"
	"strconv"
	"time"

	"github.com/ivnisc/csat"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	modeMessage = "message"
	modeFile    = "file"
)

// Config is the merged flag, environment and file configuration.
type Config struct {
	Host        string        `mapstructure:"host"`
	TCPPort     int           `mapstructure:"tcp_port"`
	UDPPort     int           `mapstructure:"udp_port"`
	Mode        string        `mapstructure:"mode"`
	RecvDir     string        `mapstructure:"recv_dir"`
	MaxFrame    int           `mapstructure:"max_frame"`
	MaxDatagram int           `mapstructure:"max_datagram"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinMessages int           `mapstructure:"min_messages"`
	LogLevel    string        `mapstructure:"log_level"`
	LogFormat   string        `mapstructure:"log_format"`
}

func loadConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Mode {
	case modeMessage, modeFile:
	default:
		return errors.Errorf("mode must be %q or %q, got %q", modeMessage, modeFile, c.Mode)
	}
	for name, port := range map[string]int{"tcp_port": c.TCPPort, "udp_port": c.UDPPort} {
		if port < 0 || port > math.MaxUint16 {
			return errors.Errorf("%s %d out of range", name, port)
		}
	}
	if c.MaxFrame <= 0 || int64(c.MaxFrame) > csat.MaxFrameLength {
		return errors.Errorf("max_frame %d out of range", c.MaxFrame)
	}
	if c.MaxDatagram <= 0 || c.MaxDatagram > csat.MaxUDPPayload {
		return errors.Errorf("max_datagram %d out of range", c.MaxDatagram)
	}
	if c.Mode == modeFile && c.RecvDir == "" {
		return errors.New("recv_dir is required in file mode")
	}
	return nil
}

func (c Config) tcpAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.TCPPort))
}

func (c Config) udpAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.UDPPort))
}

// dispatcher returns the server-side handler for the configured mode.
func (c Config) dispatcher(logger csat.Logger) csat.Dispatcher {
	if c.Mode == modeFile {
		return csat.NewFileDispatcher(c.RecvDir, logger)
	}
	return csat.NewAckDispatcher(logger)
}

func (c Config) clientOptions(logger csat.Logger) []csat.ClientOption {
	return []csat.ClientOption{
		csat.ClientLoggerOption(logger),
		csat.ClientTimeoutOption(c.Timeout),
		csat.MinMessagesOption(c.MinMessages),
		csat.ClientMaxFrameOption(uint32(c.MaxFrame)),
	}
}
