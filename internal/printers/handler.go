package printers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tampa-backend/internal/platform/auth"
)

type Handler struct {
	reg          *Registry
	disc         *Discoverer
	tester       ConnectionTester
	probeTimeout time.Duration
}

func NewHandler(reg *Registry, disc *Discoverer, tester ConnectionTester, probeTimeout time.Duration) *Handler {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Handler{reg: reg, disc: disc, tester: tester, probeTimeout: probeTimeout}
}

// r は認証済みスタッフ、admin は管理者のみ
func RegisterRoutes(r gin.IRoutes, admin gin.IRoutes, h *Handler) {
	r.GET("/printers", h.List)
	r.GET("/printers/default", h.GetDefault)
	r.POST("/printers/test", h.TestConnection)
	r.POST("/printers/discover", h.Discover)
	r.GET("/printers/:printer_id/stats", h.Stats)
	r.POST("/printers/:printer_id/connect", h.Connect)
	r.POST("/printers/:printer_id/disconnect", h.Disconnect)
	r.POST("/printers/:printer_id/print", h.Print)

	admin.POST("/printers", h.Create)
	admin.PATCH("/printers/:printer_id", h.Update)
	admin.DELETE("/printers/:printer_id", h.Delete)
	admin.PUT("/printers/:printer_id/default", h.SetDefault)
}

func (h *Handler) manager(c *gin.Context) (*Manager, bool) {
	m, err := h.reg.ForOrganization(c.Request.Context(), auth.OrgID(c))
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return nil, false
	}
	return m, true
}

// GET /printers
func (h *Handler) List(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	list := m.Printers()
	items := make([]PrinterResponse, 0, len(list))
	for _, p := range list {
		items = append(items, toResponse(p, m.IsConnected(p.ID)))
	}
	c.JSON(http.StatusOK, ListPrintersResponse{Items: items, Total: len(items)})
}

// GET /printers/default?station=kitchen
func (h *Handler) GetDefault(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	var out DefaultPrinterResponse
	if p := m.GetDefaultPrinter(c.Query("station")); p != nil {
		res := toResponse(*p, m.IsConnected(p.ID))
		out.Printer = &res
	}
	c.JSON(http.StatusOK, out)
}

// POST /printers
func (h *Handler) Create(c *gin.Context) {
	var req CreatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid("invalid json or missing required fields")})
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	p, err := m.AddPrinter(c.Request.Context(), req.toNewPrinter())
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.Header("Location", "/printers/"+p.ID)
	c.JSON(http.StatusCreated, toResponse(p, false))
}

// PATCH /printers/:printer_id
func (h *Handler) Update(c *gin.Context) {
	var req UpdatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid("invalid json")})
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	id := c.Param("printer_id")
	p, err := m.UpdatePrinter(c.Request.Context(), id, req.toPatch())
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusOK, toResponse(p, m.IsConnected(id)))
}

// DELETE /printers/:printer_id
func (h *Handler) Delete(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	if err := m.RemovePrinter(c.Request.Context(), c.Param("printer_id")); err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// PUT /printers/:printer_id/default
func (h *Handler) SetDefault(c *gin.Context) {
	var req SetDefaultRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid("invalid json")})
			return
		}
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	id := c.Param("printer_id")
	p, err := m.SetDefaultPrinter(c.Request.Context(), id, req.Station)
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusOK, toResponse(p, m.IsConnected(id)))
}

// POST /printers/:printer_id/connect
func (h *Handler) Connect(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	res, err := m.Connect(c.Request.Context(), c.Param("printer_id"))
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /printers/:printer_id/disconnect
func (h *Handler) Disconnect(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	if err := m.Disconnect(c.Param("printer_id")); err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /printers/:printer_id/print
func (h *Handler) Print(c *gin.Context) {
	var req PrintLabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid("invalid json or missing required fields")})
		return
	}
	if req.Quantity < 0 || req.Quantity > 100 {
		c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid("quantity must be between 1 and 100")})
		return
	}
	data, err := req.Label.ToLabelData()
	if err != nil {
		c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid(err.Error())})
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	res, err := m.Print(c.Request.Context(), PrintRequest{
		PrinterID: c.Param("printer_id"),
		Label:     data,
		Quantity:  req.Quantity,
		CreatedBy: auth.UserID(c),
	})
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /printers/:printer_id/stats
func (h *Handler) Stats(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	st, err := m.GetStats(c.Request.Context(), c.Param("printer_id"))
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusOK, st)
}

// POST /printers/test
// 接続テスト自体の失敗は 200 + success=false で返す
func (h *Handler) TestConnection(c *gin.Context) {
	var req TestConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid("ip_address is required")})
		return
	}
	port := req.Port
	if port == 0 {
		port = DefaultRawPort
	}
	timeout := h.probeTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}
	c.JSON(http.StatusOK, h.tester.TestConnection(c.Request.Context(), req.IPAddress, port, timeout))
}

// POST /printers/discover
func (h *Handler) Discover(c *gin.Context) {
	var req DiscoverRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errDTO{Error: ErrInvalid("invalid json")})
			return
		}
	}
	if ConnectionType(req.ConnectionType) == ConnectionBluetooth {
		_, err := h.disc.DiscoverBluetooth(c.Request.Context())
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	found := h.disc.Discover(c.Request.Context())
	c.JSON(http.StatusOK, DiscoverResponse{Items: found, Total: len(found)})
}
