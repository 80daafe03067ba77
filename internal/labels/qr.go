package labels

import (
	"encoding/json"
	"fmt"
	"image"

	qrcode "github.com/skip2/go-qrcode"
)

const payloadDateLayout = "2006-01-02"

// QRPayload はスキャナがラベルを特定するための JSON。全レンダラ共通のスキーマ。
type QRPayload struct {
	LabelID    string `json:"label_id,omitempty"`
	Product    string `json:"product"`
	Category   string `json:"category"`
	Condition  string `json:"condition"`
	PrepDate   string `json:"prep_date"`
	ExpiryDate string `json:"expiry_date"`
	Batch      string `json:"batch,omitempty"`
	PreparedBy string `json:"prepared_by"`
}

func NewQRPayload(d LabelData) QRPayload {
	return QRPayload{
		LabelID:    d.LabelID,
		Product:    d.ProductName,
		Category:   d.CategoryName,
		Condition:  string(d.Condition),
		PrepDate:   d.PrepDate.Format(payloadDateLayout),
		ExpiryDate: d.ExpiryDate.Format(payloadDateLayout),
		Batch:      d.BatchNumber,
		PreparedBy: d.PreparedBy,
	}
}

func EncodeQRPayload(d LabelData) ([]byte, error) {
	return json.Marshal(NewQRPayload(d))
}

func DecodeQRPayload(b []byte) (QRPayload, error) {
	var p QRPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return QRPayload{}, fmt.Errorf("decode qr payload: %w", err)
	}
	return p, nil
}

// QREncoder: テストで失敗を注入できるように差し替え可能にしている
type QREncoder interface {
	Encode(payload []byte, size int) (image.Image, error)
}

type QRCodeEncoder struct {
	Level qrcode.RecoveryLevel
}

func (e QRCodeEncoder) Encode(payload []byte, size int) (image.Image, error) {
	q, err := qrcode.New(string(payload), e.Level)
	if err != nil {
		return nil, err
	}
	q.DisableBorder = true
	return q.Image(size), nil
}

var defaultQREncoder QREncoder = QRCodeEncoder{Level: qrcode.Medium}
