package labels

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// ===== Error model =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) && api.Code == CodeInvalidArgument {
		return 400
	}
	return 500
}

const (
	maxPreviewSide   = 4000
	maxPreviewCopies = 100
)

// ターゲット別の既定サイズ
var defaultSizes = map[Target][2]int{
	TargetGeneric: {600, 400},
	TargetZebra:   {ZebraLabelWidth, ZebraLabelHeight},
	TargetPDF:     {800, 500},
}

type Service struct{}

func NewService() *Service { return &Service{} }

// Preview はターゲットに応じて PNG か PDF を返す
func (s *Service) Preview(ctx context.Context, target Target, req PreviewRequest) (string, []byte, error) {
	r, err := RendererFor(target)
	if err != nil {
		return "", nil, ErrInvalid("target must be one of generic, zebra, pdf")
	}
	if target == "" {
		target = TargetGeneric
	}
	d, err := req.Label.ToLabelData()
	if err != nil {
		return "", nil, ErrInvalid(err.Error())
	}

	w, h := req.Width, req.Height
	if w <= 0 || h <= 0 {
		w, h = defaultSizes[target][0], defaultSizes[target][1]
	}
	if w > maxPreviewSide || h > maxPreviewSide {
		return "", nil, ErrInvalid(fmt.Sprintf("width/height must be <= %d", maxPreviewSide))
	}

	var buf bytes.Buffer
	if target == TargetPDF {
		copies := req.Copies
		if copies <= 0 {
			copies = 1
		}
		if copies > maxPreviewCopies {
			return "", nil, ErrInvalid(fmt.Sprintf("copies must be <= %d", maxPreviewCopies))
		}
		if err := RenderPDF(ctx, r, d, w, h, copies, &buf); err != nil {
			return "", nil, wrapRenderErr(err)
		}
		return "application/pdf", buf.Bytes(), nil
	}

	surface := NewRasterSurface(w, h)
	if err := r.Render(ctx, surface, d); err != nil {
		return "", nil, wrapRenderErr(err)
	}
	if err := surface.PNG(&buf); err != nil {
		return "", nil, err
	}
	return "image/png", buf.Bytes(), nil
}

func wrapRenderErr(err error) error {
	if errors.Is(err, ErrSurfaceTooSmall) {
		return ErrInvalid(fmt.Sprintf("label must be at least %dx%d", minSurfaceWidth, minSurfaceHeight))
	}
	return err
}
