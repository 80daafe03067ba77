package labels

import (
	"context"
	"image/color"
	"log"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Target string

const (
	TargetGeneric Target = "generic"
	TargetZebra   Target = "zebra"
	TargetPDF     Target = "pdf"
)

const (
	minSurfaceWidth  = 120
	minSurfaceHeight = 60
)

// Renderer は LabelData を Surface に描く。状態を持たないので並行に呼んでよい。
type Renderer interface {
	Render(ctx context.Context, s Surface, d LabelData) error
}

func RendererFor(t Target) (Renderer, error) {
	switch t {
	case TargetGeneric, "":
		return GenericRenderer{}, nil
	case TargetZebra:
		return ZebraRenderer{}, nil
	case TargetPDF:
		return PDFRenderer{}, nil
	}
	return nil, ErrUnknownTarget
}

var (
	colorBlack     = color.RGBA{0, 0, 0, 255}
	colorWhite     = color.RGBA{255, 255, 255, 255}
	colorInk       = color.RGBA{31, 41, 55, 255}
	colorMuted     = color.RGBA{107, 114, 128, 255}
	colorBorder    = color.RGBA{209, 213, 219, 255}
	colorAllergen  = color.RGBA{185, 28, 28, 255}
	gradientTop    = color.RGBA{239, 246, 255, 255}
	gradientBottom = color.RGBA{255, 255, 255, 255}
)

// 状態ごとのヘッダ色（プレビュー用）
var conditionColors = map[Condition]color.RGBA{
	ConditionFresh:        {22, 163, 74, 255},
	ConditionCooked:       {234, 88, 12, 255},
	ConditionFrozen:       {37, 99, 235, 255},
	ConditionRefrigerated: {8, 145, 178, 255},
	ConditionThawed:       {147, 51, 234, 255},
}

// cases.Caser は goroutine 間で共有できないので都度生成する
func conditionText(c Condition) string { return cases.Title(language.English).String(string(c)) }

func checkSurface(ctx context.Context, s Surface) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	w, h := s.Size()
	if w < minSurfaceWidth || h < minSurfaceHeight {
		return 0, 0, ErrSurfaceTooSmall
	}
	return float64(w), float64(h), nil
}

// drawQR: QR 生成に失敗しても描画全体は失敗させず、枠付きのプレースホルダを描く
func drawQR(ctx context.Context, s Surface, enc QREncoder, d LabelData, x, y, size float64, fg color.Color) {
	if enc == nil {
		enc = defaultQREncoder
	}
	err := ctx.Err()
	if err == nil {
		var payload []byte
		payload, err = EncodeQRPayload(d)
		if err == nil {
			img, encErr := enc.Encode(payload, int(size))
			if encErr == nil {
				err = s.DrawImage(img, x, y, size, size)
			} else {
				err = encErr
			}
		}
	}
	if err == nil {
		return
	}
	log.Printf("[WARN] qr code generation failed for %q: %v", d.ProductName, err)
	drawQRPlaceholder(s, x, y, size, fg)
}

func drawQRPlaceholder(s Surface, x, y, size float64, fg color.Color) {
	s.FillRect(x, y, size, size, colorWhite)
	s.StrokeRect(x, y, size, size, size*0.03, fg)
	s.Text(x+size/2, y+size/2-size*0.06, "QR CODE", TextStyle{Size: size * 0.12, Bold: true, Color: fg, Align: AlignCenter})
}

// fitText: 最大幅を超える場合は末尾を "..." に置き換える
func fitText(s Surface, text string, st TextStyle, maxW float64) string {
	if maxW <= 0 || s.MeasureText(text, st) <= maxW {
		return text
	}
	r := []rune(text)
	for len(r) > 0 {
		r = r[:len(r)-1]
		cand := strings.TrimSpace(string(r)) + "..."
		if s.MeasureText(cand, st) <= maxW {
			return cand
		}
	}
	return ""
}

// column は上から順に行を積む簡易レイアウト
type column struct {
	s    Surface
	x, y float64
	maxW float64
}

func (c *column) line(text string, st TextStyle) {
	c.s.Text(c.x, c.y, fitText(c.s, text, st, c.maxW), st)
	c.y += st.Size * 1.35
}

func footerLines(f *Footer) []string {
	if f == nil {
		return nil
	}
	var lines []string
	head := f.OrganizationName
	if f.Phone != "" {
		if head != "" {
			head += " - "
		}
		head += f.Phone
	}
	if head != "" {
		lines = append(lines, head)
	}
	if f.Address != "" {
		lines = append(lines, f.Address)
	}
	if f.FoodSafetyRegID != "" {
		lines = append(lines, "Reg. "+f.FoodSafetyRegID)
	}
	return lines
}

// ===== Generic preview =====

// GenericRenderer: 画面プレビュー用。淡いグラデーションのカード。
type GenericRenderer struct {
	QR QREncoder
}

func (r GenericRenderer) Render(ctx context.Context, s Surface, d LabelData) error {
	w, h, err := checkSurface(ctx, s)
	if err != nil {
		return err
	}
	s.Clear(colorWhite)

	// 縦グラデーションを帯で近似
	const bands = 24
	for i := 0; i < bands; i++ {
		t := float64(i) / float64(bands-1)
		s.FillRect(0, h*float64(i)/bands, w, h/bands+1, lerp(gradientTop, gradientBottom, t))
	}
	s.StrokeRect(0, 0, w, h, 2, colorBorder)

	pad := w * 0.04
	header := h * 0.2
	s.FillRect(2, 2, w-4, header, conditionColors[d.Condition])

	qrSize := min(w*0.3, h*0.5)
	textW := w - qrSize - pad*3

	title := TextStyle{Size: header * 0.5, Bold: true, Color: colorWhite}
	s.Text(pad, header*0.25, fitText(s, d.ProductName, title, w-pad*2), title)

	body := TextStyle{Size: h * 0.06, Color: colorInk}
	muted := TextStyle{Size: h * 0.05, Color: colorMuted}
	bold := TextStyle{Size: h * 0.065, Bold: true, Color: colorInk}

	col := column{s: s, x: pad, y: header + h*0.04, maxW: textW}
	col.line(d.CategoryText(), muted)
	col.line("Condition: "+conditionText(d.Condition), body)
	col.line("Prepared: "+FormatDate(d.PrepDate), body)
	col.line("Expires: "+FormatDate(d.ExpiryDate), bold)
	col.line("Quantity: "+d.QuantityText(), body)
	col.line("By: "+d.PreparedBy, body)
	if d.BatchNumber != "" {
		col.line("Batch: "+d.BatchNumber, body)
	}
	if d.HasAllergens() {
		col.line("Allergens: "+strings.Join(d.Allergens, ", "), TextStyle{Size: body.Size, Bold: true, Color: colorAllergen})
	}

	drawQR(ctx, s, r.QR, d, w-pad-qrSize, header+h*0.06, qrSize, colorInk)

	lines := footerLines(d.Footer)
	fs := TextStyle{Size: h * 0.04, Color: colorMuted}
	fy := h - pad/2 - float64(len(lines))*fs.Size*1.3
	for _, l := range lines {
		s.Text(pad, fy, fitText(s, l, fs, w-pad*2), fs)
		fy += fs.Size * 1.3
	}
	return nil
}

// ===== Zebra thermal =====

// ZebraRenderer: サーマル用の白黒・高コントラスト。中間色は使わない。
type ZebraRenderer struct {
	QR QREncoder
}

func (r ZebraRenderer) Render(ctx context.Context, s Surface, d LabelData) error {
	w, h, err := checkSurface(ctx, s)
	if err != nil {
		return err
	}
	s.Clear(colorWhite)

	border := max(2, w*0.006)
	s.StrokeRect(0, 0, w, h, border, colorBlack)

	pad := w * 0.03
	header := h * 0.2
	s.FillRect(0, 0, w, header, colorBlack)
	title := TextStyle{Size: header * 0.55, Bold: true, Color: colorWhite}
	s.Text(pad, header*0.22, fitText(s, strings.ToUpper(d.ProductName), title, w-pad*2), title)

	qrSize := min(w*0.3, h*0.55)
	textW := w - qrSize - pad*3
	body := TextStyle{Size: h * 0.065, Color: colorBlack}
	bold := TextStyle{Size: h * 0.085, Bold: true, Color: colorBlack}

	col := column{s: s, x: pad, y: header + h*0.04, maxW: textW}
	col.line(strings.ToUpper(conditionText(d.Condition))+"  "+d.CategoryText(), body)
	col.line("PREP: "+FormatDate(d.PrepDate), body)
	col.line("USE BY: "+FormatDate(d.ExpiryDate), bold)
	col.line("QTY: "+d.QuantityText()+"   BY: "+d.PreparedBy, body)
	if d.BatchNumber != "" {
		col.line("BATCH: "+d.BatchNumber, body)
	}

	drawQR(ctx, s, r.QR, d, w-pad-qrSize, header+h*0.05, qrSize, colorBlack)

	bottom := h - border
	if lines := footerLines(d.Footer); len(lines) > 0 {
		fs := TextStyle{Size: h * 0.045, Color: colorBlack}
		s.Text(pad, bottom-fs.Size*1.4, fitText(s, strings.Join(lines, " | "), fs, w-pad*2), fs)
		bottom -= fs.Size * 1.6
	}

	// アレルゲンは反転帯で強調
	if d.HasAllergens() {
		as := TextStyle{Size: h * 0.06, Bold: true, Color: colorWhite}
		bandH := as.Size * 1.6
		s.FillRect(0, bottom-bandH, w, bandH, colorBlack)
		s.Text(pad, bottom-bandH+as.Size*0.3, fitText(s, "ALLERGENS: "+strings.ToUpper(strings.Join(d.Allergens, ", ")), as, w-pad*2), as)
	}
	return nil
}

// ===== PDF / A4 =====

// PDFRenderer: A4 の印刷用レイアウト。余白付きの表形式。
type PDFRenderer struct {
	QR QREncoder
}

func (r PDFRenderer) Render(ctx context.Context, s Surface, d LabelData) error {
	w, h, err := checkSurface(ctx, s)
	if err != nil {
		return err
	}
	s.Clear(colorWhite)

	margin := w * 0.05
	s.StrokeRect(0, 0, w, h, 1, colorInk)

	title := TextStyle{Size: h * 0.08, Bold: true, Color: colorInk}
	s.Text(margin, margin, fitText(s, d.ProductName, title, w-margin*2), title)
	s.FillRect(margin, margin+title.Size*1.3, w-margin*2, 1, colorBorder)

	qrSize := min(w*0.28, h*0.4)
	top := margin + title.Size*1.6

	label := TextStyle{Size: h * 0.045, Bold: true, Color: colorMuted}
	value := TextStyle{Size: h * 0.05, Color: colorInk}
	labelW := w * 0.22
	valueW := w - margin*3 - qrSize - labelW

	rows := [][2]string{
		{"Category", d.CategoryText()},
		{"Condition", conditionText(d.Condition)},
		{"Prepared", FormatDate(d.PrepDate)},
		{"Expires", FormatDate(d.ExpiryDate)},
		{"Quantity", d.QuantityText()},
		{"Prepared by", d.PreparedBy},
	}
	if d.BatchNumber != "" {
		rows = append(rows, [2]string{"Batch", d.BatchNumber})
	}
	if d.HasAllergens() {
		rows = append(rows, [2]string{"Allergens", strings.Join(d.Allergens, ", ")})
	}

	y := top
	rowH := value.Size * 1.6
	for _, row := range rows {
		s.Text(margin, y, row[0], label)
		vs := value
		if row[0] == "Allergens" {
			vs = TextStyle{Size: value.Size, Bold: true, Color: colorAllergen}
		}
		s.Text(margin+labelW, y, fitText(s, row[1], vs, valueW), vs)
		y += rowH
	}

	drawQR(ctx, s, r.QR, d, w-margin-qrSize, top, qrSize, colorInk)

	lines := footerLines(d.Footer)
	fs := TextStyle{Size: h * 0.035, Color: colorMuted}
	fy := h - margin - float64(len(lines))*fs.Size*1.3
	for _, l := range lines {
		s.Text(w/2, fy, fitText(s, l, fs, w-margin*2), TextStyle{Size: fs.Size, Color: fs.Color, Align: AlignCenter})
		fy += fs.Size * 1.3
	}
	return nil
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t) }
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255}
}
