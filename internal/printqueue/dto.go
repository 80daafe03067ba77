package printqueue

import (
	"time"

	"tampa-backend/internal/labels"
)

type AddItemRequest struct {
	Label    labels.LabelRequest `json:"label" binding:"required"`
	Quantity int                 `json:"quantity"`
}

type UpdateQuantityRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// PrintRequest: printer_id 省略時は station（なければ組織）の既定プリンタ
type PrintRequest struct {
	PrinterID string `json:"printer_id"`
	Station   string `json:"station"`
}

type ItemResponse struct {
	ID           string    `json:"id"`
	ProductName  string    `json:"product_name"`
	CategoryName string    `json:"category_name"`
	Condition    string    `json:"condition"`
	PrepDate     string    `json:"prep_date"`
	ExpiryDate   string    `json:"expiry_date"`
	Quantity     int       `json:"quantity"`
	Status       string    `json:"status"`
	Printed      int       `json:"printed"`
	Failed       int       `json:"failed"`
	AddedAt      time.Time `json:"added_at"`
}

func toItemResponse(it Item) ItemResponse {
	return ItemResponse{
		ID:           it.ID,
		ProductName:  it.Label.ProductName,
		CategoryName: it.Label.CategoryText(),
		Condition:    string(it.Label.Condition),
		PrepDate:     it.Label.PrepDate.Format("2006-01-02"),
		ExpiryDate:   it.Label.ExpiryDate.Format("2006-01-02"),
		Quantity:     it.Quantity,
		Status:       string(it.Status),
		Printed:      it.Printed,
		Failed:       it.Failed,
		AddedAt:      it.AddedAt,
	}
}

type QueueResponse struct {
	Items       []ItemResponse `json:"items"`
	TotalLabels int            `json:"total_labels"`
	IsPrinting  bool           `json:"is_printing"`
}
