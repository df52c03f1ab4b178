package handler

import (
	"github.com/bitfantasy/cams/internal/cams/service"
	"github.com/gin-gonic/gin"
)

// TicketHandler 报修单处理器
type TicketHandler struct {
	svc *service.TicketService
}

func NewTicketHandler(svc *service.TicketService) *TicketHandler {
	return &TicketHandler{svc: svc}
}

// Create 创建报修单
// POST /api/v1/tickets
func (h *TicketHandler) Create(c *gin.Context) {
	var req service.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	ticket, err := h.svc.Create(c.Request.Context(), GetUserID(c), GetOrgID(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, ticket)
}

// List 报修单列表
// GET /api/v1/tickets
func (h *TicketHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"bank_id":  c.Query("bank_id"),
		"status":   c.Query("status"),
		"type":     c.Query("type"),
		"priority": c.Query("priority"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取报修单列表失败: "+err.Error())
		return
	}
	Success(c, listData(items, page, pageSize, total))
}

// Get 报修单详情
// GET /api/v1/tickets/:id
func (h *TicketHandler) Get(c *gin.Context) {
	ticket, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ticket)
}

// Approve 现场维修审批通过
// POST /api/v1/tickets/:id/approve
func (h *TicketHandler) Approve(c *gin.Context) {
	ticket, err := h.svc.Approve(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ticket)
}

// Delete 软删除报修单，关联钞箱恢复可用
// DELETE /api/v1/tickets/:id
func (h *TicketHandler) Delete(c *gin.Context) {
	if err := h.svc.SoftDelete(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		HandleError(c, err)
		return
	}
	Success(c, nil)
}

// EvaluateResolution 重算报修单解决状态
// POST /api/v1/tickets/:id/evaluate
func (h *TicketHandler) EvaluateResolution(c *gin.Context) {
	ticket, err := h.svc.EvaluateResolution(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ticket)
}
