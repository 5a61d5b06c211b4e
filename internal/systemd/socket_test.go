package systemd

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestGetListenersWithoutActivation(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	listeners, err := GetListeners()
	if err != nil {
		t.Fatalf("GetListeners failed: %v", err)
	}
	if listeners.Activated {
		t.Error("Expected no socket activation")
	}
	if listeners.API != nil || listeners.Metrics != nil {
		t.Error("Expected no listeners")
	}
}

func TestNotifyOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	if err := NotifyReady(); err != nil {
		t.Errorf("NotifyReady failed: %v", err)
	}
	if err := NotifyStopping(); err != nil {
		t.Errorf("NotifyStopping failed: %v", err)
	}
}

func TestRunWatchdogDisabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")

	done := make(chan struct{})
	go func() {
		RunWatchdog(context.Background(), zerolog.Nop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected RunWatchdog to return when the watchdog is disabled")
	}
}
