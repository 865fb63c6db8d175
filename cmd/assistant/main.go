// The assistant command runs the durable personal assistant. "serve"
// hosts the session runtime and RPC gateway; "chat" is an interactive
// client against a running server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "chat":
		runChat(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: assistant <command> [flags]

Commands:
  serve    run the assistant service
  chat     chat with a running service`)
}
