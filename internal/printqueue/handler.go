package printqueue

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"tampa-backend/internal/platform/auth"
	"tampa-backend/internal/platform/realtime"
	"tampa-backend/internal/printers"
)

type Handler struct {
	queues   *Registry
	printers *printers.Registry
	hub      *realtime.Hub
}

func NewHandler(queues *Registry, printerReg *printers.Registry, hub *realtime.Hub) *Handler {
	return &Handler{queues: queues, printers: printerReg, hub: hub}
}

func RegisterRoutes(r gin.IRoutes, h *Handler) {
	r.GET("/print-queue", h.Get)
	r.DELETE("/print-queue", h.Clear)
	r.POST("/print-queue/items", h.AddItem)
	r.PATCH("/print-queue/items/:item_id", h.UpdateQuantity)
	r.DELETE("/print-queue/items/:item_id", h.RemoveItem)
	r.POST("/print-queue/print", h.Print)
	r.GET("/print-queue/progress", h.Progress)
	r.GET("/print-queue/ws", h.Watch)
}

func (h *Handler) queue(c *gin.Context) *Queue {
	return h.queues.Get(auth.OrgID(c), auth.UserID(c))
}

func topic(c *gin.Context) string { return "queue:" + SessionKey(auth.OrgID(c), auth.UserID(c)) }

func snapshot(q *Queue) QueueResponse {
	items := q.Items()
	out := QueueResponse{Items: make([]ItemResponse, 0, len(items)), IsPrinting: q.IsPrinting()}
	for _, it := range items {
		out.Items = append(out.Items, toItemResponse(it))
		out.TotalLabels += it.Quantity
	}
	return out
}

// GET /print-queue
func (h *Handler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, snapshot(h.queue(c)))
}

// POST /print-queue/items
func (h *Handler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid("invalid json or missing required fields")})
		return
	}
	data, err := req.Label.ToLabelData()
	if err != nil {
		c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid(err.Error())})
		return
	}
	it := h.queue(c).Add(data, req.Quantity)
	c.JSON(http.StatusCreated, toItemResponse(it))
}

// PATCH /print-queue/items/:item_id  {"delta": 1 | -1}
func (h *Handler) UpdateQuantity(c *gin.Context) {
	var req UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid("delta is required")})
		return
	}
	q := h.queue(c)
	if q.IsPrinting() {
		c.JSON(http.StatusConflict, errDTO{Error: errPrinting})
		return
	}
	it, err := q.UpdateQuantity(c.Param("item_id"), req.Delta)
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusOK, toItemResponse(it))
}

// DELETE /print-queue/items/:item_id
func (h *Handler) RemoveItem(c *gin.Context) {
	q := h.queue(c)
	if q.IsPrinting() {
		c.JSON(http.StatusConflict, errDTO{Error: errPrinting})
		return
	}
	if err := q.Remove(c.Param("item_id")); err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /print-queue
func (h *Handler) Clear(c *gin.Context) {
	q := h.queue(c)
	if q.IsPrinting() {
		c.JSON(http.StatusConflict, errDTO{Error: errPrinting})
		return
	}
	q.Clear()
	c.Status(http.StatusNoContent)
}

// POST /print-queue/print
// バッチはバックグラウンドで走らせ 202 を返す。進捗は /progress か /ws で取る。
func (h *Handler) Print(c *gin.Context) {
	var req PrintRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid("invalid json")})
			return
		}
	}

	ctx := c.Request.Context()
	m, err := h.printers.ForOrganization(ctx, auth.OrgID(c))
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	printerID := req.PrinterID
	if printerID == "" {
		def := m.GetDefaultPrinter(req.Station)
		if def == nil {
			c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid("no printer_id given and no default printer configured")})
			return
		}
		printerID = def.ID
	}
	if _, ok := m.Printer(printerID); !ok {
		c.JSON(http.StatusNotFound, errDTO{Error: ErrNotFound(fmt.Sprintf("printer %s not found", printerID))})
		return
	}

	q := h.queue(c)
	if len(q.Items()) == 0 {
		c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid("queue is empty")})
		return
	}

	t := topic(c)
	progress, err := q.Start(ctx, m, printerID, auth.UserID(c), func(p Progress) {
		if !p.Running {
			h.hub.PublishFinal(t, "completed", p)
			return
		}
		h.hub.Publish(t, "progress", p)
	})
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusAccepted, progress)
}

// GET /print-queue/progress
func (h *Handler) Progress(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue(c).Progress())
}

// GET /print-queue/ws?access_token=...
func (h *Handler) Watch(c *gin.Context) {
	h.hub.Serve(c, topic(c))
}
