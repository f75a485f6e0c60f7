// Package handler provides HTTP handlers for API endpoints.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"sale-service/internal/domain/sale"
	"sale-service/internal/middleware"
	"sale-service/internal/transport/httpdto"
	sale_errors "sale-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SaleService is the write and read surface the handler drives.
type SaleService interface {
	CreateSale(ctx context.Context, clientID, createdBy string, items []sale.Item) (*sale.Sale, error)
	UpdateSale(ctx context.Context, s *sale.Sale, updatedBy string) error
	SoftDeleteSale(ctx context.Context, id uuid.UUID, updatedBy string) error
	GetSale(ctx context.Context, id uuid.UUID) (*sale.Sale, error)
	ListSales(ctx context.Context) ([]sale.Sale, error)
}

// SaleHandler handles the /v1/sales endpoints.
type SaleHandler struct {
	service SaleService
}

func NewSaleHandler(service SaleService) *SaleHandler {
	return &SaleHandler{service: service}
}

// Register mounts the sale routes on group.
func (h *SaleHandler) Register(group *gin.RouterGroup) {
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.PUT("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
}

// Create starts a new sale saga.
func (h *SaleHandler) Create(c *gin.Context) {
	var req httpdto.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	created, err := h.service.CreateSale(c.Request.Context(), req.ClientID, middleware.UserID(c.Request.Context()), req.ToItems())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.FromSale(created)))
}

func (h *SaleHandler) List(c *gin.Context) {
	items, err := h.service.ListSales(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromSales(items)))
}

func (h *SaleHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	found, err := h.service.GetSale(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if found == nil {
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("sale not found", "NOT_FOUND"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromSale(found)))
}

// Update replaces the mutable fields of a sale.
func (h *SaleHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req httpdto.UpdateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	status := sale.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid status", "INVALID_REQUEST"))
		return
	}

	var date time.Time
	if req.Date != nil {
		date = req.Date.UTC()
	}
	err := h.service.UpdateSale(c.Request.Context(), &sale.Sale{
		ID:              id,
		Date:            date,
		TotalAmount:     req.TotalAmount,
		ClientID:        req.ClientID,
		Status:          status,
		RejectionReason: req.RejectionReason,
	}, middleware.UserID(c.Request.Context()))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SaleHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.service.SoftDeleteSale(c.Request.Context(), id, middleware.UserID(c.Request.Context())); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid sale id", "INVALID_REQUEST"))
		return uuid.Nil, false
	}
	return id, true
}

// fail maps domain errors to status codes. Unexpected errors go to the error middleware.
func (h *SaleHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sale_errors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_REQUEST"))
	case errors.Is(err, sale_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("sale not found", "NOT_FOUND"))
	case errors.Is(err, sale_errors.ErrInvalidTransition):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "INVALID_TRANSITION"))
	default:
		c.Status(http.StatusInternalServerError)
		_ = c.Error(err)
	}
}
