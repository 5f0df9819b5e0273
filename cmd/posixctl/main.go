// Command posixctl runs commands and idempotent file edits on POSIX hosts.
package main

import (
	"os"

	"github.com/o0-o/posix/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
