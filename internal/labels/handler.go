package labels

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/labels/preview", h.Preview)
}

// POST /labels/preview?target=generic|zebra|pdf
func (h *Handler) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid("invalid json")})
		return
	}

	contentType, body, err := h.svc.Preview(c.Request.Context(), Target(c.DefaultQuery("target", string(TargetGeneric))), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.Data(http.StatusOK, contentType, body)
}

type errDTO struct {
	Error *APIError `json:"error"`
}

func newErrDTO(err error) errDTO {
	if api, ok := err.(*APIError); ok {
		return errDTO{Error: api}
	}
	return errDTO{Error: ErrInternal(err.Error())}
}
