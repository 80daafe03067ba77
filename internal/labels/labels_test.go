package labels

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleLabel(t *testing.T, opts ...Option) LabelData {
	t.Helper()
	d, err := NewLabelData(Required{
		ProductName:  "Crème Brûlée",
		CategoryName: "Desserts",
		Condition:    ConditionRefrigerated,
		PreparedBy:   "Ana",
		PrepDate:     date("2026-10-18"),
		ExpiryDate:   date("2026-10-21"),
	}, opts...)
	if err != nil {
		t.Fatalf("NewLabelData: %v", err)
	}
	return d
}

func TestNewLabelDataValidatesRequired(t *testing.T) {
	_, err := NewLabelData(Required{Condition: ConditionFresh})
	if !errors.Is(err, ErrInvalidLabel) {
		t.Fatalf("expected ErrInvalidLabel, got %v", err)
	}
	if !strings.Contains(err.Error(), "product_name") || !strings.Contains(err.Error(), "expiry_date") {
		t.Errorf("error should name missing fields, got %q", err)
	}
}

func TestNewLabelDataRejectsUnknownCondition(t *testing.T) {
	_, err := NewLabelData(Required{
		ProductName: "Soup", CategoryName: "Soups", Condition: "smoked", PreparedBy: "Li",
		PrepDate: date("2026-10-18"), ExpiryDate: date("2026-10-19"),
	})
	if !errors.Is(err, ErrInvalidLabel) {
		t.Fatalf("expected ErrInvalidLabel, got %v", err)
	}
}

func TestNewLabelDataRejectsExpiryBeforePrep(t *testing.T) {
	_, err := NewLabelData(Required{
		ProductName: "Soup", CategoryName: "Soups", Condition: ConditionCooked, PreparedBy: "Li",
		PrepDate: date("2026-10-18"), ExpiryDate: date("2026-10-17"),
	})
	if !errors.Is(err, ErrInvalidLabel) {
		t.Fatalf("expected ErrInvalidLabel, got %v", err)
	}
}

func TestOptionalFieldsText(t *testing.T) {
	d := sampleLabel(t)
	if d.QuantityText() != "N/A" {
		t.Errorf("missing quantity should render N/A, got %q", d.QuantityText())
	}
	d = sampleLabel(t, WithQuantity(2.5, "kg"), WithSubcategory("Custards"), WithAllergens("milk", " ", "egg"))
	if d.QuantityText() != "2.5 kg" {
		t.Errorf("got %q", d.QuantityText())
	}
	if d.CategoryText() != "Desserts / Custards" {
		t.Errorf("got %q", d.CategoryText())
	}
	if len(d.Allergens) != 2 {
		t.Errorf("blank allergen names should be dropped, got %v", d.Allergens)
	}
}

func TestQRPayloadRoundTrip(t *testing.T) {
	d := sampleLabel(t, WithBatch("B-42"))
	raw, err := EncodeQRPayload(d)
	if err != nil {
		t.Fatal(err)
	}
	p, err := DecodeQRPayload(raw)
	if err != nil {
		t.Fatal(err)
	}
	if p.Product != d.ProductName {
		t.Errorf("product %q != %q", p.Product, d.ProductName)
	}
	if p.PrepDate != "2026-10-18" || p.ExpiryDate != "2026-10-21" {
		t.Errorf("dates changed: %s %s", p.PrepDate, p.ExpiryDate)
	}
	if p.Batch != "B-42" || p.PreparedBy != "Ana" {
		t.Errorf("identity fields missing: %+v", p)
	}
	if strings.Contains(string(raw), "label_id") {
		t.Errorf("label_id should be omitted when absent: %s", raw)
	}

	withID := sampleLabel(t, WithLabelID("01HZX"))
	raw, _ = EncodeQRPayload(withID)
	p, _ = DecodeQRPayload(raw)
	if p.LabelID != "01HZX" {
		t.Errorf("label id not carried: %s", raw)
	}
}

func TestFoldText(t *testing.T) {
	if got := FoldText("Crème Brûlée"); got != "Creme Brulee" {
		t.Errorf("got %q", got)
	}
}

func TestFormatDate(t *testing.T) {
	if got := FormatDate(date("2026-03-05")); got != "Mar 05, 2026" {
		t.Errorf("got %q", got)
	}
	if got := FormatDate(time.Time{}); got != "N/A" {
		t.Errorf("got %q", got)
	}
}

type failingEncoder struct{}

func (failingEncoder) Encode([]byte, int) (image.Image, error) {
	return nil, errors.New("encoder exploded")
}

// recordingSurface は描いた文字列と画像の数を記録する
type recordingSurface struct {
	*RasterSurface
	texts []string
	imgs  int
}

func (r *recordingSurface) Text(x, y float64, s string, st TextStyle) {
	r.texts = append(r.texts, s)
	r.RasterSurface.Text(x, y, s, st)
}

func (r *recordingSurface) DrawImage(img image.Image, x, y, w, h float64) error {
	r.imgs++
	return r.RasterSurface.DrawImage(img, x, y, w, h)
}

func (r *recordingSurface) has(sub string) bool {
	for _, t := range r.texts {
		if strings.Contains(t, sub) {
			return true
		}
	}
	return false
}

func TestRenderersFallBackToPlaceholderWhenQRFails(t *testing.T) {
	d := sampleLabel(t)
	for _, r := range []Renderer{
		GenericRenderer{QR: failingEncoder{}},
		ZebraRenderer{QR: failingEncoder{}},
		PDFRenderer{QR: failingEncoder{}},
	} {
		s := &recordingSurface{RasterSurface: NewRasterSurface(600, 400)}
		if err := r.Render(context.Background(), s, d); err != nil {
			t.Fatalf("%T: render should not fail on QR error: %v", r, err)
		}
		if !s.has("QR CODE") {
			t.Errorf("%T: placeholder not drawn", r)
		}
		if s.imgs != 0 {
			t.Errorf("%T: no image expected, got %d", r, s.imgs)
		}
	}
}

func TestRenderersOmitMissingOptionalLines(t *testing.T) {
	d := sampleLabel(t)
	for _, r := range []Renderer{GenericRenderer{}, ZebraRenderer{}, PDFRenderer{}} {
		s := &recordingSurface{RasterSurface: NewRasterSurface(600, 400)}
		if err := r.Render(context.Background(), s, d); err != nil {
			t.Fatalf("%T: %v", r, err)
		}
		if s.has("Batch") || s.has("BATCH") || s.has("llergens") || s.has("LLERGENS") {
			t.Errorf("%T: optional lines drawn for empty fields: %v", r, s.texts)
		}
		if !s.has("N/A") {
			t.Errorf("%T: missing quantity should show N/A: %v", r, s.texts)
		}
		if s.imgs != 1 {
			t.Errorf("%T: expected QR image, got %d", r, s.imgs)
		}
	}

	full := sampleLabel(t, WithBatch("B-1"), WithAllergens("milk"))
	s := &recordingSurface{RasterSurface: NewRasterSurface(600, 400)}
	if err := (GenericRenderer{}).Render(context.Background(), s, full); err != nil {
		t.Fatal(err)
	}
	if !s.has("Batch: B-1") || !s.has("Allergens: milk") {
		t.Errorf("optional lines missing: %v", s.texts)
	}
}

func TestZebraRendererIsMonochrome(t *testing.T) {
	s := NewRasterSurface(ZebraLabelWidth, ZebraLabelHeight)
	if err := (ZebraRenderer{}).Render(context.Background(), s, sampleLabel(t, WithAllergens("nuts"))); err != nil {
		t.Fatal(err)
	}
	img := s.Image()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y += 3 {
		for x := b.Min.X; x < b.Max.X; x += 3 {
			c := img.RGBAAt(x, y)
			if c.R != c.G || c.G != c.B {
				t.Fatalf("non-gray pixel %v at %d,%d", c, x, y)
			}
		}
	}
}

func TestRenderRejectsTinySurface(t *testing.T) {
	err := (GenericRenderer{}).Render(context.Background(), NewRasterSurface(50, 20), sampleLabel(t))
	if !errors.Is(err, ErrSurfaceTooSmall) {
		t.Fatalf("expected ErrSurfaceTooSmall, got %v", err)
	}
}

func TestEncodeZPL(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 2))
	for x := 0; x < 10; x++ {
		img.Set(x, 0, color.White)
		img.Set(x, 1, color.White)
	}
	img.Set(0, 0, color.Black)
	img.Set(9, 1, color.Black)

	out := string(EncodeZPL(img, 3, "Soup ^ of ~ day"))
	if !strings.HasPrefix(out, "^XA") || !strings.HasSuffix(strings.TrimSpace(out), "^XZ") {
		t.Fatalf("not a ZPL job: %q", out)
	}
	// 10px 幅 → 2 bytes/row、2 行 → 4 bytes
	if !strings.Contains(out, "^GFA,4,4,2,80000040^FS") {
		t.Errorf("unexpected graphic field: %q", out)
	}
	if !strings.Contains(out, "^PQ3,0,1,Y") {
		t.Errorf("copies not encoded: %q", out)
	}
	if !strings.Contains(out, "^FX Soup  of  day ^FS") {
		t.Errorf("comment not sanitized: %q", out)
	}
}

func TestRenderZPLUsesZebraSize(t *testing.T) {
	out, err := RenderZPL(context.Background(), nil, sampleLabel(t), 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(out, []byte("^PW812")) || !bytes.Contains(out, []byte("^LL406")) {
		t.Errorf("unexpected dimensions in %q", out[:64])
	}
}

func TestPreviewTargets(t *testing.T) {
	svc := NewService()
	req := PreviewRequest{Label: LabelRequest{
		ProductName: "Tomato Soup", CategoryName: "Soups", Condition: "Cooked",
		PreparedBy: "Li", PrepDate: "2026-10-18", ExpiryDate: "2026-10-20",
	}}

	ct, body, err := svc.Preview(context.Background(), TargetGeneric, req)
	if err != nil || ct != "image/png" || !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Fatalf("generic preview: %s %v", ct, err)
	}

	req.Copies = 2
	ct, body, err = svc.Preview(context.Background(), TargetPDF, req)
	if err != nil || ct != "application/pdf" || !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Fatalf("pdf preview: %s %v", ct, err)
	}

	if _, _, err := svc.Preview(context.Background(), "inkjet", req); toHTTPStatus(err) != 400 {
		t.Errorf("unknown target should be 400, got %v", err)
	}

	req.Label.ExpiryDate = "2026-10-01"
	if _, _, err := svc.Preview(context.Background(), TargetZebra, req); toHTTPStatus(err) != 400 {
		t.Errorf("invalid label should be 400, got %v", err)
	}
}
