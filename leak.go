package relay

import "go.uber.org/goleak"

// FindGoroutineLeaks finds any goroutine leaks after a program is done running. This
// should be used at the end of a main test run or a top-level process run.
func FindGoroutineLeaks(options ...goleak.Option) error {
	options = append(options,
		// pion keeps a shared mDNS connection alive after peer connections close
		goleak.IgnoreTopFunction("github.com/pion/mdns.(*Conn).start"),

		// net/http.(*Transport).CloseIdleConnections() doesn't interrupt in-progress connection attempts
		goleak.IgnoreTopFunction("net.(*netFD).connect.func2"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
	return goleak.Find(options...)
}
