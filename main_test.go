package relay_test

import (
	"os"
	"testing"

	"github.com/forstalabs/relay"
)

func TestMain(m *testing.M) {
	exitCode := m.Run()
	if exitCode == 0 {
		if err := relay.FindGoroutineLeaks(); err != nil {
			relay.Logger.Errorw("goroutine leak(s) detected", "error", err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}
