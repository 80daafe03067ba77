package printers

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"tampa-backend/internal/labels"
	"tampa-backend/internal/platform/db"
)

// Deps は Manager の生成に必要な部品。Registry が組織ごとに使い回す。
type Deps struct {
	Store         Store
	Tester        ConnectionTester
	Dispatcher    Dispatcher
	Renderer      labels.Renderer // nil なら ZebraRenderer
	Clock         Clock
	IDs           IDGen
	ProbeTimeout  time.Duration
	FallbackPorts []int
}

// DepsFromConfig: 本番用の組み立て
func DepsFromConfig(conn *sql.DB, cfg db.PrintersConfig) Deps {
	return Deps{
		Store:         NewStore(conn),
		Tester:        NewProber(),
		Dispatcher:    NewTCPDispatcher(time.Duration(cfg.DispatchTimeoutMS) * time.Millisecond),
		Clock:         realClock{},
		IDs:           ulidGen{},
		ProbeTimeout:  time.Duration(cfg.ProbeTimeoutMS) * time.Millisecond,
		FallbackPorts: cfg.FallbackPorts,
	}
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = realClock{}
	}
	if d.IDs == nil {
		d.IDs = ulidGen{}
	}
	if d.Renderer == nil {
		d.Renderer = labels.ZebraRenderer{}
	}
	if d.ProbeTimeout <= 0 {
		d.ProbeTimeout = 5 * time.Second
	}
	return d
}

// connection は疎通が取れたプリンタのハンドル。実ソケットは印刷ごとに張り直す。
type connection struct {
	port   int
	result ConnectionResult
}

// Manager は1組織分のプリンタ設定と接続状態を持つ。
// 変更系は永続化が成功してからメモリ上の map を更新する。
type Manager struct {
	orgID string
	deps  Deps

	mu       sync.RWMutex
	printers map[string]PrinterConfig
	conns    map[string]connection

	// 物理デバイスへの送信は1件ずつ
	printMu sync.Mutex
}

func NewManager(orgID string, deps Deps) *Manager {
	return &Manager{
		orgID:    orgID,
		deps:     deps.withDefaults(),
		printers: map[string]PrinterConfig{},
		conns:    map[string]connection{},
	}
}

func (m *Manager) OrganizationID() string { return m.orgID }

// Load は永続化済みの設定で map を置き換える
func (m *Manager) Load(ctx context.Context) error {
	list, err := m.deps.Store.ListPrinters(ctx, m.orgID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.printers = make(map[string]PrinterConfig, len(list))
	for _, p := range list {
		m.printers[p.ID] = p
	}
	log.Printf("[INFO] loaded %d printer(s) for organization %s", len(list), m.orgID)
	return nil
}

// ---- configuration ----

type NewPrinter struct {
	Name             string
	ConnectionType   ConnectionType
	IPAddress        string
	Port             int
	BluetoothAddress string
	Station          string
	Model            string
	IsDefault        bool
}

func (m *Manager) AddPrinter(ctx context.Context, in NewPrinter) (PrinterConfig, error) {
	now := m.deps.Clock.Now()
	p := PrinterConfig{
		ID:               m.deps.IDs.NewULID(now),
		OrganizationID:   m.orgID,
		Name:             strings.TrimSpace(in.Name),
		ConnectionType:   in.ConnectionType,
		IPAddress:        strings.TrimSpace(in.IPAddress),
		Port:             in.Port,
		BluetoothAddress: strings.TrimSpace(in.BluetoothAddress),
		Station:          strings.TrimSpace(in.Station),
		Model:            strings.TrimSpace(in.Model),
		IsDefault:        in.IsDefault,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.ConnectionType == ConnectionWiFi && p.Port == 0 {
		p.Port = DefaultRawPort
	}
	if err := validatePrinter(p); err != nil {
		return PrinterConfig{}, err
	}

	m.mu.Lock()
	if err := m.deps.Store.InsertPrinter(ctx, p); err != nil {
		m.mu.Unlock()
		return PrinterConfig{}, mysqlConflict(err, "printer already exists")
	}
	if p.IsDefault {
		m.unsetDefaultsLocked(p.ID, p.Station, now)
	}
	m.printers[p.ID] = p
	m.mu.Unlock()
	log.Printf("[INFO] printer added: %s (%s)", p.ID, p.Name)
	return p, nil
}

func (m *Manager) UpdatePrinter(ctx context.Context, id string, patch PrinterPatch) (PrinterConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.printers[id]
	if !ok {
		return PrinterConfig{}, fmt.Errorf("%w: %s", ErrPrinterNotFound, id)
	}
	next := cur.apply(patch)
	next.UpdatedAt = m.deps.Clock.Now()
	if err := validatePrinter(next); err != nil {
		return PrinterConfig{}, err
	}
	if err := m.deps.Store.UpdatePrinter(ctx, next); err != nil {
		return PrinterConfig{}, err
	}
	m.printers[id] = next

	// 接続先が変わったらハンドルは無効
	if next.IPAddress != cur.IPAddress || next.Port != cur.Port || next.ConnectionType != cur.ConnectionType {
		delete(m.conns, id)
	}
	return next, nil
}

func (m *Manager) RemovePrinter(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.printers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrPrinterNotFound, id)
	}
	if err := m.deps.Store.DeletePrinter(ctx, m.orgID, id); err != nil {
		return err
	}
	delete(m.printers, id)
	delete(m.conns, id)
	log.Printf("[INFO] printer removed: %s", id)
	return nil
}

// Printers: 作成順
func (m *Manager) Printers() []PrinterConfig {
	m.mu.RLock()
	out := make([]PrinterConfig, 0, len(m.printers))
	for _, p := range m.printers {
		out = append(out, p)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Manager) Printer(id string) (PrinterConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.printers[id]
	return p, ok
}

// GetDefaultPrinter: station 指定の既定 → 組織全体（station なし）の既定 → なし(nil)
func (m *Manager) GetDefaultPrinter(station string) *PrinterConfig {
	station = strings.TrimSpace(station)
	var orgWide *PrinterConfig
	for _, p := range m.Printers() {
		p := p
		if !p.IsDefault {
			continue
		}
		if station != "" && p.Station == station {
			return &p
		}
		if p.Station == "" && orgWide == nil {
			orgWide = &p
		}
	}
	return orgWide
}

// SetDefaultPrinter は同じ station の既定を外して id を既定にする。
// station が空ならプリンタ自身の station を使う。
func (m *Manager) SetDefaultPrinter(ctx context.Context, id, station string) (PrinterConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.printers[id]
	if !ok {
		return PrinterConfig{}, fmt.Errorf("%w: %s", ErrPrinterNotFound, id)
	}
	if station = strings.TrimSpace(station); station == "" {
		station = p.Station
	}

	now := m.deps.Clock.Now()
	if err := m.deps.Store.ReassignDefault(ctx, m.orgID, id, station, now); err != nil {
		return PrinterConfig{}, err
	}

	m.unsetDefaultsLocked(id, station, now)
	p.IsDefault = true
	p.Station = station
	p.UpdatedAt = now
	m.printers[id] = p
	return p, nil
}

// m.mu を保持して呼ぶこと
func (m *Manager) unsetDefaultsLocked(keep, station string, now time.Time) {
	for oid, other := range m.printers {
		if oid != keep && other.IsDefault && other.Station == station {
			other.IsDefault = false
			other.UpdatedAt = now
			m.printers[oid] = other
			log.Printf("[INFO] default unset: %s (station %q)", oid, station)
		}
	}
}

// ---- connection ----

// Connect: ハンドルがあれば再確認せずに成功を返す。Wi-Fi は設定ポート → 予備ポートの順に試す。
func (m *Manager) Connect(ctx context.Context, id string) (ConnectionResult, error) {
	m.mu.RLock()
	p, ok := m.printers[id]
	c, connected := m.conns[id]
	m.mu.RUnlock()

	if !ok {
		return ConnectionResult{}, fmt.Errorf("%w: %s", ErrPrinterNotFound, id)
	}
	if connected {
		return c.result, nil
	}
	if p.ConnectionType == ConnectionBluetooth {
		return ConnectionResult{Status: StatusFailed, Error: ErrBluetoothUnsupported.Error(), Timestamp: m.deps.Clock.Now()},
			ErrBluetoothUnsupported
	}
	if p.ConnectionType != ConnectionWiFi {
		return ConnectionResult{}, fmt.Errorf("%w: unsupported connection type %q", ErrBluetoothUnsupported, p.ConnectionType)
	}

	var last ConnectionResult
	for _, port := range m.candidatePorts(p) {
		last = m.deps.Tester.TestConnection(ctx, p.IPAddress, port, m.deps.ProbeTimeout)
		if !last.Success {
			log.Printf("[WARN] printer %s unreachable on %s:%d: %s", id, p.IPAddress, port, last.Error)
			continue
		}
		m.mu.Lock()
		// 待っている間に削除された場合はハンドルを残さない
		if _, still := m.printers[id]; still {
			m.conns[id] = connection{port: port, result: last}
		}
		m.mu.Unlock()
		log.Printf("[INFO] printer %s connected on %s:%d", id, p.IPAddress, port)
		return last, nil
	}
	return last, fmt.Errorf("%w: %s", ErrConnectionFailed, last.Error)
}

func (m *Manager) candidatePorts(p PrinterConfig) []int {
	ports := []int{p.Port}
	for _, fp := range m.deps.FallbackPorts {
		dup := false
		for _, x := range ports {
			dup = dup || x == fp
		}
		if !dup && fp > 0 {
			ports = append(ports, fp)
		}
	}
	return ports
}

func (m *Manager) Disconnect(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.printers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrPrinterNotFound, id)
	}
	delete(m.conns, id)
	return nil
}

func (m *Manager) IsConnected(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[id]
	return ok
}

// ---- printing ----

// Print はジョブを実行し、成否にかかわらず結果をログへ追記する。
// 追記の失敗は WARN で握りつぶし、呼び出し元には実行結果のエラーだけを返す。
func (m *Manager) Print(ctx context.Context, req PrintRequest) (PrintJobResult, error) {
	m.mu.RLock()
	p, ok := m.printers[req.PrinterID]
	c, connected := m.conns[req.PrinterID]
	m.mu.RUnlock()
	if !ok {
		return PrintJobResult{}, fmt.Errorf("%w: %s", ErrPrinterNotFound, req.PrinterID)
	}

	now := m.deps.Clock.Now()
	job := PrintJob{
		ID:        m.deps.IDs.NewULID(now),
		PrinterID: p.ID,
		LabelID:   req.Label.LabelID,
		Label:     req.Label,
		Quantity:  max(req.Quantity, 1),
		CreatedBy: req.CreatedBy,
		CreatedAt: now,
		Status:    JobPending,
	}
	port := p.Port
	if connected {
		port = c.port
	}

	m.printMu.Lock()
	start := time.Now()
	execErr := m.execute(ctx, p, port, job)
	latency := time.Since(start).Milliseconds()
	m.printMu.Unlock()

	res := PrintJobResult{
		JobID:       job.ID,
		LabelID:     job.LabelID,
		PrinterID:   p.ID,
		PrinterName: p.Name,
		Status:      JobSuccess,
		PrintedAt:   m.deps.Clock.Now(),
		PrintedBy:   job.CreatedBy,
		LatencyMS:   &latency,
	}
	if execErr != nil {
		msg := execErr.Error()
		res.Status, res.Error = JobFailed, &msg
		m.dropConnection(p.ID)
		log.Printf("[WARN] print job %s on %s failed: %v", job.ID, p.Name, execErr)
	} else {
		log.Printf("[INFO] print job %s on %s: %d label(s) in %dms", job.ID, p.Name, job.Quantity, latency)
	}

	if err := m.deps.Store.InsertJobResult(context.WithoutCancel(ctx), res); err != nil {
		log.Printf("[WARN] failed to record print job %s: %v", job.ID, err)
	}
	return res, execErr
}

func (m *Manager) execute(ctx context.Context, p PrinterConfig, port int, job PrintJob) error {
	switch p.ConnectionType {
	case ConnectionWiFi:
	case ConnectionBluetooth:
		return ErrBluetoothUnsupported
	default:
		return fmt.Errorf("%w: unsupported connection type %q", ErrBluetoothUnsupported, p.ConnectionType)
	}
	payload, err := labels.RenderZPL(ctx, m.deps.Renderer, job.Label, job.Quantity)
	if err != nil {
		return fmt.Errorf("%w: render: %w", ErrPrintFailed, err)
	}
	if err := m.deps.Dispatcher.Send(ctx, p.IPAddress, port, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrPrintFailed, err)
	}
	return nil
}

func (m *Manager) dropConnection(id string) {
	m.mu.Lock()
	delete(m.conns, id)
	m.mu.Unlock()
}

// GetStats: 他組織のプリンタ ID は存在しない扱い
func (m *Manager) GetStats(ctx context.Context, printerID string) (PrinterStats, error) {
	if _, ok := m.Printer(printerID); !ok {
		return PrinterStats{}, fmt.Errorf("%w: %s", ErrPrinterNotFound, printerID)
	}
	results, err := m.deps.Store.ListJobResults(ctx, m.orgID, printerID)
	if err != nil {
		return PrinterStats{}, err
	}
	return computeStats(printerID, results), nil
}

// ---- validation ----

func validatePrinter(p PrinterConfig) error {
	if p.Name == "" {
		return ErrInvalid("name is required")
	}
	switch p.ConnectionType {
	case ConnectionWiFi:
		if p.IPAddress == "" {
			return ErrInvalid("ip_address is required for wifi printers")
		}
		if net.ParseIP(p.IPAddress) == nil && strings.ContainsAny(p.IPAddress, " /?#@") {
			return ErrInvalid("malformed ip_address")
		}
		if p.Port < 1 || p.Port > 65535 {
			return ErrInvalid("port must be between 1 and 65535")
		}
	case ConnectionBluetooth:
		if p.BluetoothAddress == "" {
			return ErrInvalid("bluetooth_address is required for bluetooth printers")
		}
	default:
		return ErrInvalid("connection_type must be wifi or bluetooth")
	}
	return nil
}

// ---- registry ----

// Registry は組織ごとの Manager を初回アクセス時に生成・ロードする。
// ロード中の DB 待ちは同じ組織の呼び出しだけが待つ。
type Registry struct {
	deps Deps

	mu       sync.Mutex
	managers map[string]*registryEntry
}

type registryEntry struct {
	ready chan struct{}
	mgr   *Manager
	err   error
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, managers: map[string]*registryEntry{}}
}

func (r *Registry) ForOrganization(ctx context.Context, orgID string) (*Manager, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, ErrInvalid("organization is required")
	}
	r.mu.Lock()
	e, ok := r.managers[orgID]
	if !ok {
		e = &registryEntry{ready: make(chan struct{})}
		r.managers[orgID] = e
	}
	r.mu.Unlock()

	if ok {
		select {
		case <-e.ready:
			return e.mgr, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m := NewManager(orgID, r.deps)
	if err := m.Load(ctx); err != nil {
		// 失敗は残さず次の呼び出しで再ロード
		r.mu.Lock()
		delete(r.managers, orgID)
		r.mu.Unlock()
		e.err = err
		close(e.ready)
		return nil, err
	}
	e.mgr = m
	close(e.ready)
	return m, nil
}
