package main

import "os"

// Exit codes distinguish configuration/startup failures from graceful
// completion. A graceful shutdown, including one triggered by SIGTERM,
// always exits 0; a non-zero exit means an unhandled configuration or I/O
// error prevented the run from doing any work at all, or a second signal
// forced an immediate exit.
const (
	ExitSuccess = 0
	ExitGeneral = 1
)

func exitWithCode(code int) {
	os.Exit(code)
}
