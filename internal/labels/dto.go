package labels

import (
	"fmt"
	"strings"
	"time"
)

// ===== Requests =====

// LabelRequest はラベル1枚分の入力。印刷キュー・プリンタ API でも共通で使う。
type LabelRequest struct {
	LabelID         *string        `json:"label_id,omitempty"`
	ProductName     string         `json:"product_name" binding:"required"`
	CategoryID      *string        `json:"category_id,omitempty"`
	CategoryName    string         `json:"category_name" binding:"required"`
	SubcategoryID   *string        `json:"subcategory_id,omitempty"`
	SubcategoryName *string        `json:"subcategory_name,omitempty"`
	Condition       string         `json:"condition" binding:"required"`
	PreparedBy      string         `json:"prepared_by" binding:"required"`
	PrepDate        string         `json:"prep_date" binding:"required"`   // "2006-01-02" or RFC3339
	ExpiryDate      string         `json:"expiry_date" binding:"required"` // "2006-01-02" or RFC3339
	Quantity        *float64       `json:"quantity,omitempty"`
	Unit            *string        `json:"unit,omitempty"`
	BatchNumber     *string        `json:"batch_number,omitempty"`
	Allergens       []string       `json:"allergens,omitempty"`
	Organization    *FooterRequest `json:"organization,omitempty"`
}

type FooterRequest struct {
	Name            string `json:"name"`
	Phone           string `json:"phone,omitempty"`
	Address         string `json:"address,omitempty"`
	FoodSafetyRegID string `json:"food_safety_registration,omitempty"`
}

// PreviewRequest: POST /labels/preview?target=generic|zebra|pdf
type PreviewRequest struct {
	Label  LabelRequest `json:"label" binding:"required"`
	Width  int          `json:"width,omitempty"`
	Height int          `json:"height,omitempty"`
	Copies int          `json:"copies,omitempty"` // pdf のみ。ページ数
}

func (r LabelRequest) ToLabelData() (LabelData, error) {
	prep, err := parseDate(r.PrepDate)
	if err != nil {
		return LabelData{}, fmt.Errorf("%w: prep_date %v", ErrInvalidLabel, err)
	}
	expiry, err := parseDate(r.ExpiryDate)
	if err != nil {
		return LabelData{}, fmt.Errorf("%w: expiry_date %v", ErrInvalidLabel, err)
	}

	var opts []Option
	if r.LabelID != nil {
		opts = append(opts, WithLabelID(*r.LabelID))
	}
	if r.CategoryID != nil || r.SubcategoryID != nil {
		opts = append(opts, WithCategoryIDs(deref(r.CategoryID), deref(r.SubcategoryID)))
	}
	if r.SubcategoryName != nil {
		opts = append(opts, WithSubcategory(*r.SubcategoryName))
	}
	if r.Quantity != nil {
		opts = append(opts, WithQuantity(*r.Quantity, deref(r.Unit)))
	}
	if r.BatchNumber != nil {
		opts = append(opts, WithBatch(*r.BatchNumber))
	}
	if len(r.Allergens) > 0 {
		opts = append(opts, WithAllergens(r.Allergens...))
	}
	if r.Organization != nil {
		opts = append(opts, WithFooter(Footer{
			OrganizationName: r.Organization.Name,
			Phone:            r.Organization.Phone,
			Address:          r.Organization.Address,
			FoodSafetyRegID:  r.Organization.FoodSafetyRegID,
		}))
	}

	return NewLabelData(Required{
		ProductName:  r.ProductName,
		CategoryName: r.CategoryName,
		Condition:    Condition(strings.ToLower(strings.TrimSpace(r.Condition))),
		PreparedBy:   r.PreparedBy,
		PrepDate:     prep,
		ExpiryDate:   expiry,
	}, opts...)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(payloadDateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
