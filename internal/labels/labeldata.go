package labels

import (
	"fmt"
	"strings"
	"time"
)

type Condition string

const (
	ConditionFresh        Condition = "fresh"
	ConditionCooked       Condition = "cooked"
	ConditionFrozen       Condition = "frozen"
	ConditionRefrigerated Condition = "refrigerated"
	ConditionThawed       Condition = "thawed"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionFresh, ConditionCooked, ConditionFrozen, ConditionRefrigerated, ConditionThawed:
		return true
	}
	return false
}

// Required: ラベル描画に必ず必要な項目
type Required struct {
	ProductName  string
	CategoryName string
	Condition    Condition
	PreparedBy   string
	PrepDate     time.Time
	ExpiryDate   time.Time
}

type Quantity struct {
	Amount float64
	Unit   string
}

// Footer: 組織情報（ラベル下部に小さく印字）
type Footer struct {
	OrganizationName string
	Phone            string
	Address          string
	FoodSafetyRegID  string
}

// LabelData は1回の描画に渡す不変の値。NewLabelData で組み立てる。
type LabelData struct {
	Required

	LabelID         string
	CategoryID      string
	SubcategoryID   string
	SubcategoryName string
	Quantity        *Quantity
	BatchNumber     string
	Allergens       []string
	Footer          *Footer
}

type Option func(*LabelData)

func WithLabelID(id string) Option { return func(d *LabelData) { d.LabelID = id } }

func WithCategoryIDs(categoryID, subcategoryID string) Option {
	return func(d *LabelData) {
		d.CategoryID = categoryID
		d.SubcategoryID = subcategoryID
	}
}

func WithSubcategory(name string) Option { return func(d *LabelData) { d.SubcategoryName = name } }

func WithQuantity(amount float64, unit string) Option {
	return func(d *LabelData) { d.Quantity = &Quantity{Amount: amount, Unit: unit} }
}

func WithBatch(number string) Option { return func(d *LabelData) { d.BatchNumber = number } }

func WithAllergens(names ...string) Option {
	return func(d *LabelData) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				d.Allergens = append(d.Allergens, n)
			}
		}
	}
}

func WithFooter(f Footer) Option { return func(d *LabelData) { d.Footer = &f } }

// NewLabelData は必須項目を検証してから任意項目を適用する
func NewLabelData(req Required, opts ...Option) (LabelData, error) {
	if err := req.validate(); err != nil {
		return LabelData{}, err
	}
	d := LabelData{Required: req}
	for _, opt := range opts {
		opt(&d)
	}
	if d.Quantity != nil && d.Quantity.Amount < 0 {
		return LabelData{}, fmt.Errorf("%w: quantity must be >= 0", ErrInvalidLabel)
	}
	return d, nil
}

func (r Required) validate() error {
	var missing []string
	if strings.TrimSpace(r.ProductName) == "" {
		missing = append(missing, "product_name")
	}
	if strings.TrimSpace(r.CategoryName) == "" {
		missing = append(missing, "category_name")
	}
	if strings.TrimSpace(r.PreparedBy) == "" {
		missing = append(missing, "prepared_by")
	}
	if r.PrepDate.IsZero() {
		missing = append(missing, "prep_date")
	}
	if r.ExpiryDate.IsZero() {
		missing = append(missing, "expiry_date")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidLabel, strings.Join(missing, ", "))
	}
	if !r.Condition.Valid() {
		return fmt.Errorf("%w: unknown condition %q", ErrInvalidLabel, r.Condition)
	}
	if r.ExpiryDate.Before(r.PrepDate) {
		return fmt.Errorf("%w: expiry_date is before prep_date", ErrInvalidLabel)
	}
	return nil
}

func (d LabelData) HasAllergens() bool { return len(d.Allergens) > 0 }

// QuantityText: 数量未指定なら "N/A"
func (d LabelData) QuantityText() string {
	if d.Quantity == nil {
		return "N/A"
	}
	amount := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", d.Quantity.Amount), "0"), ".")
	if d.Quantity.Unit == "" {
		return amount
	}
	return amount + " " + d.Quantity.Unit
}

// CategoryText: "Category / Subcategory"
func (d LabelData) CategoryText() string {
	if d.SubcategoryName == "" {
		return d.CategoryName
	}
	return d.CategoryName + " / " + d.SubcategoryName
}
