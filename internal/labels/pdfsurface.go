package labels

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfDefaultMarginMM = 15.0
	mmPerPoint         = 25.4 / 72.0
	// Helvetica のキャップハイトを考慮したベースライン位置（文字高さに対する比率）
	pdfBaselineRatio = 0.8
)

// PDFSurface は A4 縦の1ページにラベル領域を配置する。
// ラベル座標（px）はマージン内の幅にフィットするよう mm に換算する。
type PDFSurface struct {
	pdf     *gofpdf.Fpdf
	width   int
	height  int
	margin  float64
	scale   float64
	tr      func(string) string
	imageNo int
}

func NewPDFSurface(width, height int, marginMM float64) *PDFSurface {
	if marginMM <= 0 {
		marginMM = pdfDefaultMarginMM
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginMM, marginMM, marginMM)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pageW, pageH := pdf.GetPageSize()
	scale := (pageW - 2*marginMM) / float64(width)
	if maxH := pageH - 2*marginMM; float64(height)*scale > maxH {
		scale = maxH / float64(height)
	}

	return &PDFSurface{
		pdf:    pdf,
		width:  width,
		height: height,
		margin: marginMM,
		scale:  scale,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
	}
}

func (s *PDFSurface) Size() (int, int) { return s.width, s.height }

// NextPage: 同じラベル領域を持つ次のページへ
func (s *PDFSurface) NextPage() { s.pdf.AddPage() }

func (s *PDFSurface) PageCount() int { return s.pdf.PageCount() }

func (s *PDFSurface) Output(w io.Writer) error { return s.pdf.Output(w) }

func (s *PDFSurface) mm(v float64) float64 { return v * s.scale }

func (s *PDFSurface) pos(x, y float64) (float64, float64) {
	return s.margin + s.mm(x), s.margin + s.mm(y)
}

func (s *PDFSurface) Clear(bg color.Color) {
	s.FillRect(0, 0, float64(s.width), float64(s.height), bg)
}

func (s *PDFSurface) FillRect(x, y, w, h float64, c color.Color) {
	r, g, b := rgb(c)
	s.pdf.SetFillColor(r, g, b)
	px, py := s.pos(x, y)
	s.pdf.Rect(px, py, s.mm(w), s.mm(h), "F")
}

func (s *PDFSurface) StrokeRect(x, y, w, h, lineWidth float64, c color.Color) {
	r, g, b := rgb(c)
	s.pdf.SetDrawColor(r, g, b)
	s.pdf.SetLineWidth(s.mm(lineWidth))
	px, py := s.pos(x, y)
	s.pdf.Rect(px, py, s.mm(w), s.mm(h), "D")
}

func (s *PDFSurface) setFont(st TextStyle) {
	style := ""
	if st.Bold {
		style = "B"
	}
	s.pdf.SetFont("Helvetica", style, s.mm(st.Size)/mmPerPoint)
}

func (s *PDFSurface) MeasureText(text string, st TextStyle) float64 {
	s.setFont(st)
	return s.pdf.GetStringWidth(s.tr(text)) / s.scale
}

func (s *PDFSurface) Text(x, y float64, text string, st TextStyle) {
	s.setFont(st)
	fg := st.Color
	if fg == nil {
		fg = color.Black
	}
	r, g, b := rgb(fg)
	s.pdf.SetTextColor(r, g, b)

	text = s.tr(text)
	w := s.pdf.GetStringWidth(text) / s.scale
	switch st.Align {
	case AlignCenter:
		x -= w / 2
	case AlignRight:
		x -= w
	}
	px, py := s.pos(x, y+st.Size*pdfBaselineRatio)
	s.pdf.Text(px, py, text)
}

func (s *PDFSurface) DrawImage(img image.Image, x, y, w, h float64) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	s.imageNo++
	name := fmt.Sprintf("img%d", s.imageNo)
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	s.pdf.RegisterImageOptionsReader(name, opts, &buf)
	if err := s.pdf.Error(); err != nil {
		return err
	}
	px, py := s.pos(x, y)
	s.pdf.ImageOptions(name, px, py, s.mm(w), s.mm(h), false, opts, 0, "")
	return s.pdf.Error()
}

func rgb(c color.Color) (int, int, int) {
	r, g, b, _ := c.RGBA()
	return int(r >> 8), int(g >> 8), int(b >> 8)
}

// RenderPDF: copies 枚分を1ページずつ描いた PDF を w に書き出す
func RenderPDF(ctx context.Context, r Renderer, d LabelData, width, height, copies int, w io.Writer) error {
	if r == nil {
		r = PDFRenderer{}
	}
	s := NewPDFSurface(width, height, pdfDefaultMarginMM)
	for i := 0; i < copies; i++ {
		if i > 0 {
			s.NextPage()
		}
		if err := r.Render(ctx, s, d); err != nil {
			return err
		}
	}
	return s.Output(w)
}
