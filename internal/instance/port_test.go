package instance

import (
	"net"
	"testing"
	"time"
)

func TestIsPortAvailable_ReflectsAnOpenListener(t *testing.T) {
	port := 19991
	if !IsPortAvailable(port) {
		t.Skipf("port %d not available on this machine, skipping", port)
	}

	listener, err := net.Listen("tcp", ":19991")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()

	if IsPortAvailable(port) {
		t.Error("expected port to be reported unavailable while a listener holds it")
	}
}

func TestFindAvailablePort_ReturnsPortAtOrAboveStart(t *testing.T) {
	start := 20010
	port := FindAvailablePort(start)
	if port == 0 {
		t.Fatal("expected an available port within 20 attempts")
	}
	if port < start {
		t.Errorf("expected port >= %d, got %d", start, port)
	}
}

func TestWaitForPortToBeAvailable_TimesOutWhileHeld(t *testing.T) {
	port := 19992
	listener, err := net.Listen("tcp", ":19992")
	if err != nil {
		t.Skipf("could not bind port %d: %v", port, err)
	}
	defer listener.Close()

	if WaitForPortToBeAvailable(port, 100*time.Millisecond) {
		t.Error("expected WaitForPortToBeAvailable to time out while the port is held")
	}
}
