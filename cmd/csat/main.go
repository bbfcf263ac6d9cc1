// Command csat runs csat servers and interactive clients.
package main

import (
	"context"
	"os"

	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd(viper.New()).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
