package printers

import (
	"time"

	"tampa-backend/internal/labels"
)

// ===== Requests =====

type CreatePrinterRequest struct {
	Name             string  `json:"name" binding:"required"`
	ConnectionType   string  `json:"connection_type" binding:"required"`
	IPAddress        *string `json:"ip_address,omitempty"`
	Port             *int    `json:"port,omitempty"`
	BluetoothAddress *string `json:"bluetooth_address,omitempty"`
	Station          *string `json:"station,omitempty"`
	Model            *string `json:"model,omitempty"`
	IsDefault        bool    `json:"is_default"`
}

func (r CreatePrinterRequest) toNewPrinter() NewPrinter {
	np := NewPrinter{
		Name:             r.Name,
		ConnectionType:   ConnectionType(r.ConnectionType),
		IPAddress:        deref(r.IPAddress),
		BluetoothAddress: deref(r.BluetoothAddress),
		Station:          deref(r.Station),
		Model:            deref(r.Model),
		IsDefault:        r.IsDefault,
	}
	if r.Port != nil {
		np.Port = *r.Port
	}
	return np
}

type UpdatePrinterRequest struct {
	Name             *string `json:"name,omitempty"`
	ConnectionType   *string `json:"connection_type,omitempty"`
	IPAddress        *string `json:"ip_address,omitempty"`
	Port             *int    `json:"port,omitempty"`
	BluetoothAddress *string `json:"bluetooth_address,omitempty"`
	Station          *string `json:"station,omitempty"`
	Model            *string `json:"model,omitempty"`
}

func (r UpdatePrinterRequest) toPatch() PrinterPatch {
	p := PrinterPatch{
		Name:             r.Name,
		IPAddress:        r.IPAddress,
		Port:             r.Port,
		BluetoothAddress: r.BluetoothAddress,
		Station:          r.Station,
		Model:            r.Model,
	}
	if r.ConnectionType != nil {
		ct := ConnectionType(*r.ConnectionType)
		p.ConnectionType = &ct
	}
	return p
}

type SetDefaultRequest struct {
	Station string `json:"station"`
}

type TestConnectionRequest struct {
	IPAddress string `json:"ip_address" binding:"required"`
	Port      int    `json:"port"`
	TimeoutMS int    `json:"timeout_ms"`
}

type DiscoverRequest struct {
	ConnectionType string `json:"connection_type"` // 省略時 wifi
}

type PrintLabelRequest struct {
	Label    labels.LabelRequest `json:"label" binding:"required"`
	Quantity int                 `json:"quantity"`
}

// ===== Responses =====

type PrinterResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ConnectionType   string    `json:"connection_type"`
	IPAddress        *string   `json:"ip_address,omitempty"`
	Port             *int      `json:"port,omitempty"`
	BluetoothAddress *string   `json:"bluetooth_address,omitempty"`
	Station          *string   `json:"station,omitempty"`
	Model            *string   `json:"model,omitempty"`
	IsDefault        bool      `json:"is_default"`
	Connected        bool      `json:"connected"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toResponse(p PrinterConfig, connected bool) PrinterResponse {
	out := PrinterResponse{
		ID:               p.ID,
		Name:             p.Name,
		ConnectionType:   string(p.ConnectionType),
		IPAddress:        ptrOrNil(p.IPAddress),
		BluetoothAddress: ptrOrNil(p.BluetoothAddress),
		Station:          ptrOrNil(p.Station),
		Model:            ptrOrNil(p.Model),
		IsDefault:        p.IsDefault,
		Connected:        connected,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if p.Port > 0 {
		port := p.Port
		out.Port = &port
	}
	return out
}

type ListPrintersResponse struct {
	Items []PrinterResponse `json:"items"`
	Total int               `json:"total"`
}

type DefaultPrinterResponse struct {
	Printer *PrinterResponse `json:"printer"`
}

type DiscoverResponse struct {
	Items []DiscoveredPrinter `json:"items"`
	Total int                 `json:"total"`
}

// ---- helpers ----
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
