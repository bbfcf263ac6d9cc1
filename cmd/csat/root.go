package main

import (
	"os"
	"time"

	"github.com/ivnisc/csat"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:          "csat",
		Short:        "csat - framed messages and file transfer over TCP and UDP",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return readConfig(v, cfgFile)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (optional)")
	flags.String("host", "localhost", "server host")
	flags.Int("tcp-port", 54321, "TCP port")
	flags.Int("udp-port", 5555, "UDP port")
	flags.String("mode", modeMessage, "server mode: message or file")
	flags.String("recv-dir", "received", "directory for received files")
	flags.Int("max-frame", csat.DefaultMaxFrameLength, "largest accepted TCP payload in bytes")
	flags.Int("max-datagram", csat.DefaultMaxDatagramSize, "UDP server receive buffer in bytes")
	flags.Duration("timeout", 5*time.Second, "connect timeout (TCP) and reply timeout (UDP)")
	flags.Int("min-messages", csat.DefaultMinMessages, "messages required before a session may end")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("log-format", "console", "console or json")

	for key, name := range map[string]string{
		"host":         "host",
		"tcp_port":     "tcp-port",
		"udp_port":     "udp-port",
		"mode":         "mode",
		"recv_dir":     "recv-dir",
		"max_frame":    "max-frame",
		"max_datagram": "max-datagram",
		"timeout":      "timeout",
		"min_messages": "min-messages",
		"log_level":    "log-level",
		"log_format":   "log-format",
	} {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	v.SetEnvPrefix("csat")
	v.AutomaticEnv()

	cmd.AddCommand(newServeCmd(v), newSendCmd(v))
	return cmd
}

func readConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("csat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/csat")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; flags and env cover everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "read config")
		}
	}
	return nil
}

// setup loads the configuration and builds the process logger.
func setup(v *viper.Viper) (Config, *zap.Logger, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return cfg, nil, err
	}
	logger, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}
