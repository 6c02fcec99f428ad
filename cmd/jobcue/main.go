package main

import (
	"fmt"
	"os"

	"github.com/MODJayden/jobcue/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "jobcue:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
