package printers

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
)

// ---- Clock & ID ----
type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ---- Connection tester ----

type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ConnectionTester は探索と接続確認で共有する。実装は決してエラーを返さず、結果で失敗を表す。
type ConnectionTester interface {
	TestConnection(ctx context.Context, address string, port int, timeout time.Duration) ConnectionResult
}

type Prober struct {
	dialer Dialer
	clock  Clock
}

func NewProber() *Prober { return &Prober{dialer: &net.Dialer{}, clock: realClock{}} }

// NewProberWithDialer: テストで遅延や拒否を注入する
func NewProberWithDialer(d Dialer, clock Clock) *Prober {
	if clock == nil {
		clock = realClock{}
	}
	return &Prober{dialer: d, clock: clock}
}

// TestConnection は TCP で開けるかだけを見る。開けたら即座に閉じる。
func (p *Prober) TestConnection(ctx context.Context, address string, port int, timeout time.Duration) ConnectionResult {
	if err := validateEndpoint(address, port); err != nil {
		return p.failed(err.Error())
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(dctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		// 親 ctx が生きていて子だけ期限切れ = タイムアウト
		if ctx.Err() == nil && errors.Is(dctx.Err(), context.DeadlineExceeded) {
			res := p.failed(fmt.Sprintf("Connection timeout after %dms", timeout.Milliseconds()))
			res.timedOut = true
			return res
		}
		return p.failed(err.Error())
	}
	latency := time.Since(start).Milliseconds()
	_ = conn.Close()

	return ConnectionResult{
		Success:   true,
		Status:    StatusConnected,
		LatencyMS: &latency,
		Timestamp: p.clock.Now(),
	}
}

func (p *Prober) failed(reason string) ConnectionResult {
	return ConnectionResult{Status: StatusFailed, Error: reason, Timestamp: p.clock.Now()}
}

func validateEndpoint(address string, port int) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return errors.New("address is required")
	}
	if strings.ContainsAny(address, " /?#@") {
		return fmt.Errorf("malformed address %q", address)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port out of range: %d", port)
	}
	return nil
}
