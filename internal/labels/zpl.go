package labels

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"strings"
)

// 4x2 インチ / 203dpi の Zebra 標準ラベル
const (
	ZebraLabelWidth  = 812
	ZebraLabelHeight = 406
)

// EncodeZPL は画像を ^GFA グラフィックとして埋め込んだ ZPL ジョブを返す。
// 輝度 50% 未満のピクセルを印字ドットとみなす。
func EncodeZPL(img image.Image, copies int, comment string) []byte {
	if copies < 1 {
		copies = 1
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rowBytes := (w + 7) / 8
	raster := make([]byte, rowBytes*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !isDark(img.At(b.Min.X+x, b.Min.Y+y)) {
				continue
			}
			raster[y*rowBytes+x/8] |= 1 << (7 - uint(x%8))
		}
	}

	var buf bytes.Buffer
	buf.WriteString("^XA\n")
	if comment = zplSafe(comment); comment != "" {
		fmt.Fprintf(&buf, "^FX %s ^FS\n", comment)
	}
	fmt.Fprintf(&buf, "^PW%d\n^LL%d\n", w, h)
	fmt.Fprintf(&buf, "^FO0,0^GFA,%d,%d,%d,%s^FS\n", len(raster), len(raster), rowBytes, strings.ToUpper(hex.EncodeToString(raster)))
	fmt.Fprintf(&buf, "^PQ%d,0,1,Y\n", copies)
	buf.WriteString("^XZ\n")
	return buf.Bytes()
}

func isDark(c color.Color) bool {
	r, g, b, a := c.RGBA()
	if a < 0x8000 {
		return false
	}
	lum := (299*r + 587*g + 114*b) / 1000
	return lum < 0x8000
}

// ^ と ~ は ZPL のコマンド接頭辞なので落とす
func zplSafe(s string) string {
	s = FoldText(s)
	return strings.Map(func(r rune) rune {
		if r == '^' || r == '~' || r < 0x20 || r > 0x7e {
			return -1
		}
		return r
	}, s)
}

// RenderZPL: Zebra 用にラスタ描画してから ZPL 化する
func RenderZPL(ctx context.Context, r Renderer, d LabelData, copies int) ([]byte, error) {
	if r == nil {
		r = ZebraRenderer{}
	}
	s := NewRasterSurface(ZebraLabelWidth, ZebraLabelHeight)
	if err := r.Render(ctx, s, d); err != nil {
		return nil, err
	}
	return EncodeZPL(s.Image(), copies, d.ProductName), nil
}
