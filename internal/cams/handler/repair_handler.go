package handler

import (
	"github.com/bitfantasy/cams/internal/cams/service"
	"github.com/gin-gonic/gin"
)

// RepairHandler 维修工单处理器
type RepairHandler struct {
	svc *service.RepairService
}

func NewRepairHandler(svc *service.RepairService) *RepairHandler {
	return &RepairHandler{svc: svc}
}

// CreateFromTicket 由报修单批量建立维修工单
// POST /api/v1/tickets/:id/work-orders
func (h *RepairHandler) CreateFromTicket(c *gin.Context) {
	orders, err := h.svc.CreateFromTicket(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, gin.H{"items": orders})
}

// List 工单列表
// GET /api/v1/work-orders
func (h *RepairHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"asset_id":    c.Query("asset_id"),
		"ticket_id":   c.Query("ticket_id"),
		"status":      c.Query("status"),
		"type":        c.Query("type"),
		"assignee_id": c.Query("assignee_id"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取工单列表失败: "+err.Error())
		return
	}
	Success(c, listData(items, page, pageSize, total))
}

// Get 工单详情
// GET /api/v1/work-orders/:id
func (h *RepairHandler) Get(c *gin.Context) {
	order, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}

// Claim 认领工单
// POST /api/v1/work-orders/:id/claim
func (h *RepairHandler) Claim(c *gin.Context) {
	order, err := h.svc.Claim(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}

// UpdateStatus 推进工单状态
// PUT /api/v1/work-orders/:id/status
func (h *RepairHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	order, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}

// Complete 维修完工（含质检结论与替换申请）
// POST /api/v1/work-orders/:id/complete
func (h *RepairHandler) Complete(c *gin.Context) {
	var req service.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	order, err := h.svc.Complete(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}
