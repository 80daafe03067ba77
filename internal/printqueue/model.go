package printqueue

import (
	"time"

	"tampa-backend/internal/labels"
)

const (
	MinQuantity = 1
	MaxQuantity = 100
)

type ItemStatus string

const (
	StatusPending  ItemStatus = "pending"
	StatusPrinting ItemStatus = "printing"
	StatusPrinted  ItemStatus = "printed"
	StatusFailed   ItemStatus = "failed"
)

// Item はキューの1エントリ。Label は追加時点のスナップショット。
type Item struct {
	ID       string
	Label    labels.LabelData
	Quantity int
	AddedAt  time.Time
	Status   ItemStatus
	Printed  int // 直近のバッチで成功した枚数
	Failed   int
}

// Progress はラベル1枚ごとに更新される。
// PrintedLabels は試行数で、完了時は SucceededLabels + FailedLabels == TotalLabels == PrintedLabels。
type Progress struct {
	Running         bool       `json:"running"`
	PrinterID       string     `json:"printer_id,omitempty"`
	PrintedLabels   int        `json:"printed_labels"`
	SucceededLabels int        `json:"succeeded_labels"`
	FailedLabels    int        `json:"failed_labels"`
	TotalLabels     int        `json:"total_labels"`
	CurrentItem     string     `json:"current_item,omitempty"`
	CurrentQuantity int        `json:"current_quantity"`
	Errors          []string   `json:"errors"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

func (p Progress) clone() Progress {
	p.Errors = append([]string{}, p.Errors...)
	return p
}
