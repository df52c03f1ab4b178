package handler

import (
	"github.com/bitfantasy/cams/internal/cams/service"
	"github.com/gin-gonic/gin"
)

// MaintenanceHandler 保养任务处理器
type MaintenanceHandler struct {
	svc    *service.MaintenanceService
	repair *service.RepairService
}

func NewMaintenanceHandler(svc *service.MaintenanceService, repair *service.RepairService) *MaintenanceHandler {
	return &MaintenanceHandler{svc: svc, repair: repair}
}

// Create 创建保养任务
// POST /api/v1/maintenance-tasks
func (h *MaintenanceHandler) Create(c *gin.Context) {
	var req service.CreateMaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	task, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, task)
}

// List 保养任务列表
// GET /api/v1/maintenance-tasks
func (h *MaintenanceHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"bank_id":     c.Query("bank_id"),
		"status":      c.Query("status"),
		"assignee_id": c.Query("assignee_id"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取保养任务列表失败: "+err.Error())
		return
	}
	Success(c, listData(items, page, pageSize, total))
}

// Get 保养任务详情
// GET /api/v1/maintenance-tasks/:id
func (h *MaintenanceHandler) Get(c *gin.Context) {
	task, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, task)
}

// Claim 认领保养任务
// POST /api/v1/maintenance-tasks/:id/claim
func (h *MaintenanceHandler) Claim(c *gin.Context) {
	task, err := h.svc.Claim(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, task)
}

// Start 开始保养
// POST /api/v1/maintenance-tasks/:id/start
func (h *MaintenanceHandler) Start(c *gin.Context) {
	task, err := h.svc.Start(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, task)
}

// Complete 完成保养
// POST /api/v1/maintenance-tasks/:id/complete
func (h *MaintenanceHandler) Complete(c *gin.Context) {
	var req service.CompleteMaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	task, err := h.svc.Complete(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, task)
}

// Cancel 取消保养任务
// POST /api/v1/maintenance-tasks/:id/cancel
func (h *MaintenanceHandler) Cancel(c *gin.Context) {
	task, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, task)
}

// Reschedule 保养任务改期
// POST /api/v1/maintenance-tasks/:id/reschedule
func (h *MaintenanceHandler) Reschedule(c *gin.Context) {
	var req service.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	task, err := h.svc.Reschedule(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, task)
}

// CreateWorkOrders 保养转维修：为任务关联钞箱批量建立例行工单
// POST /api/v1/maintenance-tasks/:id/work-orders
func (h *MaintenanceHandler) CreateWorkOrders(c *gin.Context) {
	orders, err := h.repair.CreateFromMaintenance(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, gin.H{"items": orders})
}
