// Command rewardledger runs the reward settlement ledger.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rewardledger/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rewardledger:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
