package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ivnisc/csat"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	prompt     = "> "
	filePrefix = "file "
	maxLine    = 1 << 20
)

func newSendCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Open an interactive session",
		Long: `Open an interactive session. Every input line is sent as a message;
"file <path>" sends a file and "end" closes the session once enough
messages were sent.`,
	}

	for _, network := range []string{"tcp", "udp"} {
		network := network
		cmd.AddCommand(&cobra.Command{
			Use:   network,
			Short: "Send over " + strings.ToUpper(network),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSend(cmd, v, network)
			},
		})
	}

	return cmd
}

func runSend(cmd *cobra.Command, v *viper.Viper, network string) error {
	cfg, zl, err := setup(v)
	if err != nil {
		return err
	}
	defer zl.Sync()
	logger := zapLogger{zl.Sugar()}

	var s csat.Session
	switch network {
	case "tcp":
		s, err = csat.Dial(cmd.Context(), cfg.tcpAddr(), cfg.clientOptions(logger)...)
	case "udp":
		s, err = csat.DialUDP(cfg.udpAddr(), cfg.clientOptions(logger)...)
	default:
		err = errors.Errorf("unknown network %q", network)
	}
	if err != nil {
		return err
	}
	defer s.Close()

	return interact(s, cmd.InOrStdin(), cmd.OutOrStdout())
}

// interact reads lines from in and drives s until the session ends, the
// input runs out, or the connection breaks.
func interact(s csat.Session, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 4096), maxLine)

	fmt.Fprint(out, prompt)
	for sc.Scan() {
		line := sc.Text()

		var (
			reply string
			err   error
		)
		switch {
		case strings.TrimSpace(line) == "":
			fmt.Fprint(out, prompt)
			continue
		case csat.IsEndToken(line):
			err = s.End()
			if err == nil {
				fmt.Fprintf(out, "session ended after %d messages\n", s.Sent())
				return nil
			}
		case strings.HasPrefix(line, filePrefix):
			reply, err = s.SendFile(strings.TrimSpace(strings.TrimPrefix(line, filePrefix)))
		default:
			reply, err = s.SendMessage(line)
		}

		switch {
		case errors.Is(err, csat.ErrConnectionClosed):
			fmt.Fprintln(out, "connection lost:", err)
			return err
		case err != nil:
			fmt.Fprintln(out, "error:", err)
		default:
			fmt.Fprintln(out, reply)
		}
		fmt.Fprint(out, prompt)
	}

	return errors.Wrap(sc.Err(), "read input")
}
