package printers

import (
	"time"

	"tampa-backend/internal/labels"
)

type ConnectionType string

const (
	ConnectionWiFi      ConnectionType = "wifi"
	ConnectionBluetooth ConnectionType = "bluetooth"
)

func (t ConnectionType) Valid() bool { return t == ConnectionWiFi || t == ConnectionBluetooth }

// DefaultRawPort は生データ印刷（JetDirect）の標準ポート
const DefaultRawPort = 9100

// PrinterConfig は printers テーブルの1行を表す
type PrinterConfig struct {
	ID               string
	OrganizationID   string
	Name             string
	ConnectionType   ConnectionType
	IPAddress        string
	Port             int
	BluetoothAddress string
	Station          string // 空 = 組織全体
	Model            string
	IsDefault        bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PrinterPatch: nil のフィールドは変更しない。既定フラグは SetDefaultPrinter で扱う。
type PrinterPatch struct {
	Name             *string
	ConnectionType   *ConnectionType
	IPAddress        *string
	Port             *int
	BluetoothAddress *string
	Station          *string
	Model            *string
}

func (p PrinterConfig) apply(patch PrinterPatch) PrinterConfig {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.ConnectionType != nil {
		p.ConnectionType = *patch.ConnectionType
	}
	if patch.IPAddress != nil {
		p.IPAddress = *patch.IPAddress
	}
	if patch.Port != nil {
		p.Port = *patch.Port
	}
	if patch.BluetoothAddress != nil {
		p.BluetoothAddress = *patch.BluetoothAddress
	}
	if patch.Station != nil {
		p.Station = *patch.Station
	}
	if patch.Model != nil {
		p.Model = *patch.Model
	}
	return p
}

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// PrintRequest は Print に渡す入力。Quantity < 1 は 1 枚として扱う。
type PrintRequest struct {
	PrinterID string
	Label     labels.LabelData
	Quantity  int
	CreatedBy string
}

// PrintJob は1回の Print 呼び出しの作業単位。永続化はしない。
type PrintJob struct {
	ID        string
	PrinterID string
	LabelID   string
	Label     labels.LabelData
	Quantity  int
	CreatedBy string
	CreatedAt time.Time
	Status    JobStatus
}

// PrintJobResult は print_job_results に追記する1行
type PrintJobResult struct {
	JobID       string    `json:"job_id"`
	LabelID     string    `json:"label_id,omitempty"`
	PrinterID   string    `json:"printer_id"`
	PrinterName string    `json:"printer_name"`
	Status      JobStatus `json:"status"`
	PrintedAt   time.Time `json:"printed_at"`
	PrintedBy   string    `json:"printed_by"`
	Error       *string   `json:"error,omitempty"`
	LatencyMS   *int64    `json:"latency_ms,omitempty"`
}

type PrinterStats struct {
	PrinterID        string     `json:"printer_id"`
	TotalJobs        int        `json:"total_jobs"`
	SuccessfulJobs   int        `json:"successful_jobs"`
	FailedJobs       int        `json:"failed_jobs"`
	AverageLatencyMS float64    `json:"average_latency_ms"`
	LastJobAt        *time.Time `json:"last_job_at,omitempty"`
	Uptime           float64    `json:"uptime"` // 成功率（%）
}

type ConnectionStatus string

const (
	StatusConnected ConnectionStatus = "connected"
	StatusFailed    ConnectionStatus = "failed"
)

// ConnectionResult は疎通確認の結果。失敗もエラーではなくこの値で表す。
type ConnectionResult struct {
	Success   bool             `json:"success"`
	Status    ConnectionStatus `json:"status"`
	LatencyMS *int64           `json:"latency_ms,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`

	timedOut bool
}

type DiscoveredPrinter struct {
	Name           string         `json:"name"`
	IPAddress      string         `json:"ip_address"`
	Port           int            `json:"port"`
	ConnectionType ConnectionType `json:"connection_type"`
	Model          string         `json:"model"`
}

type ProbeKind int

const (
	Reachable ProbeKind = iota
	Unreachable
	TimedOut
)

func (k ProbeKind) String() string {
	switch k {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	case TimedOut:
		return "timed_out"
	}
	return "unknown"
}

// ProbeOutcome は探索中の1候補ごとの結果。公開 API では Reachable のみに畳み込む。
type ProbeOutcome struct {
	Address   string
	Port      int
	Kind      ProbeKind
	Reason    string
	LatencyMS *int64
}
