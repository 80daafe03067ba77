package printers

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"
)

// Dispatcher はレンダリング済みのジョブをプリンタへ送る
type Dispatcher interface {
	Send(ctx context.Context, address string, port int, payload []byte) error
}

// TCPDispatcher: 9100 番へ生データをそのまま書き込む
type TCPDispatcher struct {
	Timeout time.Duration
	dialer  Dialer
}

func NewTCPDispatcher(timeout time.Duration) *TCPDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TCPDispatcher{Timeout: timeout, dialer: &net.Dialer{}}
}

func (d *TCPDispatcher) Send(ctx context.Context, address string, port int, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	log.Printf("[INFO] sending %d bytes to %s:%d", len(payload), address, port)
	conn, err := d.dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
	}
	n, err := conn.Write(payload)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(payload))
	}
	return nil
}
