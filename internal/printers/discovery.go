package printers

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"tampa-backend/internal/platform/db"
)

const discoveredModel = "Raw TCP thermal printer"

// Discoverer は LAN 上の候補アドレスを決め打ちで叩く簡易探索。網羅的なスキャンではない。
type Discoverer struct {
	tester ConnectionTester
	cfg    db.DiscoveryConfig
}

func NewDiscoverer(tester ConnectionTester, cfg db.DiscoveryConfig) *Discoverer {
	return &Discoverer{tester: tester, cfg: cfg}
}

// Candidates: サブネットごとに host_start から host_count 個
func (d *Discoverer) Candidates() []string {
	out := make([]string, 0, len(d.cfg.Subnets)*d.cfg.HostCount)
	for _, subnet := range d.cfg.Subnets {
		for i := 0; i < d.cfg.HostCount; i++ {
			host := d.cfg.HostStart + i
			if host < 1 || host > 254 {
				continue
			}
			out = append(out, fmt.Sprintf("%s.%d", subnet, host))
		}
	}
	return out
}

// Sweep は全候補を並列に叩き、候補順の結果を返す。個々の失敗は結果に畳み込む。
func (d *Discoverer) Sweep(ctx context.Context) []ProbeOutcome {
	candidates := d.Candidates()
	outcomes := make([]ProbeOutcome, len(candidates))
	timeout := time.Duration(d.cfg.TimeoutMS) * time.Millisecond

	g, gctx := errgroup.WithContext(ctx)
	if d.cfg.Concurrency > 0 {
		g.SetLimit(d.cfg.Concurrency)
	}
	for i, addr := range candidates {
		i, addr := i, addr
		g.Go(func() error {
			res := d.tester.TestConnection(gctx, addr, d.cfg.Port, timeout)
			outcomes[i] = classify(addr, d.cfg.Port, res)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func classify(addr string, port int, res ConnectionResult) ProbeOutcome {
	o := ProbeOutcome{Address: addr, Port: port, LatencyMS: res.LatencyMS}
	switch {
	case res.Success:
		o.Kind = Reachable
	case res.timedOut:
		o.Kind, o.Reason = TimedOut, res.Error
	default:
		o.Kind, o.Reason = Unreachable, res.Error
	}
	return o
}

// Discover は応答したアドレスだけを返す。失敗は黙って捨て、件数だけログに出す。
func (d *Discoverer) Discover(ctx context.Context) []DiscoveredPrinter {
	found := []DiscoveredPrinter{}
	for _, o := range d.Sweep(ctx) {
		if o.Kind != Reachable {
			continue
		}
		found = append(found, DiscoveredPrinter{
			Name:           fmt.Sprintf("Network Printer (%s)", o.Address),
			IPAddress:      o.Address,
			Port:           o.Port,
			ConnectionType: ConnectionWiFi,
			Model:          discoveredModel,
		})
	}
	log.Printf("[INFO] printer discovery: %d printer(s) found", len(found))
	return found
}

func (d *Discoverer) DiscoverBluetooth(ctx context.Context) ([]DiscoveredPrinter, error) {
	return nil, ErrBluetoothUnsupported
}
