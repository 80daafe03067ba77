package labels

import "errors"

var (
	ErrInvalidLabel    = errors.New("invalid label data")
	ErrUnknownTarget   = errors.New("unknown render target")
	ErrSurfaceTooSmall = errors.New("surface too small")
)
