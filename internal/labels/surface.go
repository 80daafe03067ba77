package labels

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// TextStyle.Size は文字の高さ（サーフェス座標）。y はテキスト上端。
type TextStyle struct {
	Size  float64
	Bold  bool
	Color color.Color
	Align Align
}

// Surface はレンダラが描画する 2D 面。座標はピクセル単位で、幅・高さは呼び出し側が決める。
type Surface interface {
	Size() (width, height int)
	Clear(bg color.Color)
	FillRect(x, y, w, h float64, c color.Color)
	StrokeRect(x, y, w, h, lineWidth float64, c color.Color)
	Text(x, y float64, s string, st TextStyle)
	MeasureText(s string, st TextStyle) float64
	DrawImage(img image.Image, x, y, w, h float64) error
}

// RasterSurface: image.RGBA へのビットマップ描画。文字は 7x13 のビットマップフォントを拡大して描く。
type RasterSurface struct {
	img  *image.RGBA
	face font.Face
}

func NewRasterSurface(width, height int) *RasterSurface {
	return &RasterSurface{
		img:  image.NewRGBA(image.Rect(0, 0, width, height)),
		face: basicfont.Face7x13,
	}
}

func (s *RasterSurface) Image() *image.RGBA { return s.img }

func (s *RasterSurface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *RasterSurface) PNG(w io.Writer) error { return png.Encode(w, s.img) }

func (s *RasterSurface) Clear(bg color.Color) {
	draw.Draw(s.img, s.img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
}

func (s *RasterSurface) FillRect(x, y, w, h float64, c color.Color) {
	r := pixelRect(x, y, w, h).Intersect(s.img.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(s.img, r, image.NewUniform(c), image.Point{}, draw.Over)
}

func (s *RasterSurface) StrokeRect(x, y, w, h, lineWidth float64, c color.Color) {
	if lineWidth < 1 {
		lineWidth = 1
	}
	s.FillRect(x, y, w, lineWidth, c)
	s.FillRect(x, y+h-lineWidth, w, lineWidth, c)
	s.FillRect(x, y, lineWidth, h, c)
	s.FillRect(x+w-lineWidth, y, lineWidth, h, c)
}

func (s *RasterSurface) glyphHeight() int {
	m := s.face.Metrics()
	return (m.Ascent + m.Descent).Ceil()
}

func (s *RasterSurface) MeasureText(text string, st TextStyle) float64 {
	adv := font.MeasureString(s.face, FoldText(text)).Ceil()
	if st.Bold && adv > 0 {
		adv++
	}
	return float64(adv) * s.scale(st)
}

func (s *RasterSurface) scale(st TextStyle) float64 {
	if st.Size <= 0 {
		return 1
	}
	return st.Size / float64(s.glyphHeight())
}

func (s *RasterSurface) Text(x, y float64, text string, st TextStyle) {
	text = FoldText(text)
	adv := font.MeasureString(s.face, text).Ceil()
	if adv == 0 {
		return
	}
	gh := s.glyphHeight()
	if st.Bold {
		adv++
	}
	fg := st.Color
	if fg == nil {
		fg = color.Black
	}

	// 原寸で一旦描いてから目的サイズへ拡大する
	tmp := image.NewRGBA(image.Rect(0, 0, adv, gh))
	d := &font.Drawer{
		Dst:  tmp,
		Src:  image.NewUniform(fg),
		Face: s.face,
		Dot:  fixed.P(0, s.face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
	if st.Bold {
		d.Dot = fixed.P(1, s.face.Metrics().Ascent.Ceil())
		d.DrawString(text)
	}

	sc := s.scale(st)
	w := float64(adv) * sc
	switch st.Align {
	case AlignCenter:
		x -= w / 2
	case AlignRight:
		x -= w
	}
	dst := pixelRect(x, y, w, float64(gh)*sc)
	xdraw.NearestNeighbor.Scale(s.img, dst, tmp, tmp.Bounds(), xdraw.Over, nil)
}

func (s *RasterSurface) DrawImage(img image.Image, x, y, w, h float64) error {
	xdraw.NearestNeighbor.Scale(s.img, pixelRect(x, y, w, h), img, img.Bounds(), xdraw.Over, nil)
	return nil
}

func pixelRect(x, y, w, h float64) image.Rectangle {
	return image.Rect(
		int(math.Round(x)), int(math.Round(y)),
		int(math.Round(x+w)), int(math.Round(y+h)),
	)
}
