package handler

import (
	"github.com/bitfantasy/cams/internal/cams/service"
	"github.com/gin-gonic/gin"
)

// ReconcileHandler 对账处理器
type ReconcileHandler struct {
	svc *service.ReconcileService
}

func NewReconcileHandler(svc *service.ReconcileService) *ReconcileHandler {
	return &ReconcileHandler{svc: svc}
}

// Sweep 手动触发一次对账
// POST /api/v1/admin/reconcile
func (h *ReconcileHandler) Sweep(c *gin.Context) {
	result, err := h.svc.Sweep(c.Request.Context())
	if err != nil {
		InternalError(c, "对账执行失败: "+err.Error())
		return
	}
	Success(c, result)
}
