package handler

import (
	"github.com/bitfantasy/cams/internal/cams/service"
	"github.com/gin-gonic/gin"
)

// ShipmentHandler 物流跟踪处理器
type ShipmentHandler struct {
	svc *service.ShipmentService
}

func NewShipmentHandler(svc *service.ShipmentService) *ShipmentHandler {
	return &ShipmentHandler{svc: svc}
}

// CreateDelivery 创建送修
// POST /api/v1/tickets/:id/delivery
func (h *ShipmentHandler) CreateDelivery(c *gin.Context) {
	var req service.CreateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	record, err := h.svc.CreateDelivery(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, record)
}

// ConfirmDeliveryReceived 维修中心签收
// POST /api/v1/tickets/:id/delivery/receive
func (h *ShipmentHandler) ConfirmDeliveryReceived(c *gin.Context) {
	record, err := h.svc.ConfirmDeliveryReceived(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, record)
}

// CreateReturn 创建返还
// POST /api/v1/tickets/:id/return
func (h *ShipmentHandler) CreateReturn(c *gin.Context) {
	var req service.CreateReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	record, err := h.svc.CreateReturn(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, record)
}

// ConfirmReturnReceived 网点签收返还
// POST /api/v1/tickets/:id/return/receive
func (h *ShipmentHandler) ConfirmReturnReceived(c *gin.Context) {
	record, err := h.svc.ConfirmReturnReceived(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, record)
}

// ConfirmPickup 运维商取件确认
// POST /api/v1/tickets/:id/pickup
func (h *ShipmentHandler) ConfirmPickup(c *gin.Context) {
	var req service.ConfirmPickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	ticket, err := h.svc.ConfirmPickup(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ticket)
}
