package printers

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"tampa-backend/internal/platform/db"
)

func listenLoopback(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// hangingDialer は ctx が切れるまで戻らない
type hangingDialer struct{}

func (hangingDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTestConnectionSucceedsOnOpenPort(t *testing.T) {
	host, port := listenLoopback(t)
	res := NewProber().TestConnection(context.Background(), host, port, time.Second)
	if !res.Success || res.Status != StatusConnected {
		t.Fatalf("expected connected, got %+v", res)
	}
	if res.LatencyMS == nil {
		t.Error("latency should be measured")
	}
	if res.Timestamp.IsZero() {
		t.Error("timestamp missing")
	}
}

func TestTestConnectionReportsRefusal(t *testing.T) {
	res := NewProber().TestConnection(context.Background(), "127.0.0.1", closedPort(t), time.Second)
	if res.Success || res.Status != StatusFailed || res.Error == "" {
		t.Fatalf("expected failed result with reason, got %+v", res)
	}
	if res.Timestamp.IsZero() {
		t.Error("failed results carry a timestamp too")
	}
}

func TestTestConnectionTimesOut(t *testing.T) {
	p := NewProberWithDialer(hangingDialer{}, nil)
	res := p.TestConnection(context.Background(), "10.0.0.1", 9100, 30*time.Millisecond)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "Connection timeout after 30ms" {
		t.Errorf("unexpected reason %q", res.Error)
	}
	if !res.timedOut {
		t.Error("timeout should be classified")
	}
}

func TestTestConnectionNeverPanicsOnMalformedInput(t *testing.T) {
	p := NewProber()
	for _, tc := range []struct {
		addr string
		port int
	}{
		{"", 9100},
		{"not an address", 9100},
		{"192.168.1.10", 0},
		{"192.168.1.10", 70000},
	} {
		res := p.TestConnection(context.Background(), tc.addr, tc.port, time.Second)
		if res.Success || res.Status != StatusFailed || res.Error == "" {
			t.Errorf("%q:%d: expected failed result, got %+v", tc.addr, tc.port, res)
		}
	}
}

// scriptedTester は指定アドレスだけ応答する
type scriptedTester struct {
	reachable map[string]bool
	timedOut  map[string]bool
}

func (s scriptedTester) TestConnection(_ context.Context, addr string, port int, timeout time.Duration) ConnectionResult {
	switch {
	case s.reachable[addr]:
		l := int64(3)
		return ConnectionResult{Success: true, Status: StatusConnected, LatencyMS: &l, Timestamp: time.Now()}
	case s.timedOut[addr]:
		return ConnectionResult{Status: StatusFailed, Error: "Connection timeout after 2000ms", Timestamp: time.Now(), timedOut: true}
	}
	return ConnectionResult{Status: StatusFailed, Error: "connection refused", Timestamp: time.Now()}
}

func discoveryConfig() db.DiscoveryConfig {
	return db.DiscoveryConfig{
		Subnets:     []string{"192.168.1", "192.168.0"},
		HostStart:   100,
		HostCount:   10,
		Port:        9100,
		TimeoutMS:   2000,
		Concurrency: 4,
	}
}

func TestDiscoverReportsOnlyReachable(t *testing.T) {
	tester := scriptedTester{
		reachable: map[string]bool{"192.168.0.105": true, "192.168.1.101": true},
		timedOut:  map[string]bool{"192.168.1.102": true},
	}
	d := NewDiscoverer(tester, discoveryConfig())
	if n := len(d.Candidates()); n != 20 {
		t.Fatalf("expected 20 candidates, got %d", n)
	}

	found := d.Discover(context.Background())
	if len(found) != 2 {
		t.Fatalf("expected 2 printers, got %+v", found)
	}
	// 候補順（192.168.1.x が先）
	if found[0].IPAddress != "192.168.1.101" || found[1].IPAddress != "192.168.0.105" {
		t.Errorf("unexpected order: %+v", found)
	}
	for _, p := range found {
		if p.Port != 9100 || p.ConnectionType != ConnectionWiFi {
			t.Errorf("unexpected printer %+v", p)
		}
		if !strings.Contains(p.Name, p.IPAddress) || p.Model == "" {
			t.Errorf("name/model should be synthesized: %+v", p)
		}
	}
}

func TestSweepClassifiesOutcomes(t *testing.T) {
	tester := scriptedTester{
		reachable: map[string]bool{"192.168.1.100": true},
		timedOut:  map[string]bool{"192.168.1.101": true},
	}
	out := NewDiscoverer(tester, discoveryConfig()).Sweep(context.Background())
	if out[0].Kind != Reachable || out[1].Kind != TimedOut || out[2].Kind != Unreachable {
		t.Fatalf("unexpected kinds: %v %v %v", out[0].Kind, out[1].Kind, out[2].Kind)
	}
	if out[2].Reason != "connection refused" {
		t.Errorf("reason lost: %+v", out[2])
	}
}

func TestDiscoverOverLoopback(t *testing.T) {
	_, port := listenLoopback(t)
	cfg := db.DiscoveryConfig{Subnets: []string{"127.0.0"}, HostStart: 1, HostCount: 1, Port: port, TimeoutMS: 500, Concurrency: 2}
	found := NewDiscoverer(NewProber(), cfg).Discover(context.Background())
	if len(found) != 1 || found[0].IPAddress != "127.0.0.1" {
		t.Fatalf("expected loopback printer, got %+v", found)
	}
}

func TestDiscoverBluetoothFailsClosed(t *testing.T) {
	_, err := NewDiscoverer(scriptedTester{}, discoveryConfig()).DiscoverBluetooth(context.Background())
	if err != ErrBluetoothUnsupported {
		t.Fatalf("expected ErrBluetoothUnsupported, got %v", err)
	}
	if !strings.Contains(err.Error(), "native bridge") {
		t.Errorf("error should mention native bridge: %v", err)
	}
}
