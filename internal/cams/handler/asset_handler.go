package handler

import (
	"time"

	"github.com/bitfantasy/cams/internal/cams/service"
	"github.com/gin-gonic/gin"
)

// AssetHandler 钞箱资产处理器
type AssetHandler struct {
	svc          *service.AssetService
	availability *service.AvailabilityService
}

func NewAssetHandler(svc *service.AssetService, availability *service.AvailabilityService) *AssetHandler {
	return &AssetHandler{svc: svc, availability: availability}
}

// Register 登记钞箱
// POST /api/v1/assets
func (h *AssetHandler) Register(c *gin.Context) {
	var req service.RegisterAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	asset, err := h.svc.Register(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, asset)
}

// List 钞箱列表
// GET /api/v1/assets
func (h *AssetHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"bank_id":     c.Query("bank_id"),
		"operator_id": c.Query("operator_id"),
		"status":      c.Query("status"),
		"search":      c.Query("search"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取钞箱列表失败: "+err.Error())
		return
	}
	Success(c, listData(items, page, pageSize, total))
}

// Get 钞箱详情
// GET /api/v1/assets/:id
func (h *AssetHandler) Get(c *gin.Context) {
	asset, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, asset)
}

// History 钞箱流转记录
// GET /api/v1/assets/:id/history
func (h *AssetHandler) History(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.History(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, listData(items, page, pageSize, total))
}

// CheckAvailability 单个钞箱可用性
// GET /api/v1/assets/:id/availability
func (h *AssetHandler) CheckAvailability(c *gin.Context) {
	avail, err := h.availability.Check(c.Request.Context(), c.Param("id"), time.Now())
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, avail)
}

// BatchAvailabilityRequest 批量可用性请求
type BatchAvailabilityRequest struct {
	AssetIDs []string `json:"asset_ids" binding:"required,min=1"`
}

// CheckAvailabilityBatch 批量钞箱可用性，单项错误不影响其他项
// POST /api/v1/assets/availability
func (h *AssetHandler) CheckAvailabilityBatch(c *gin.Context) {
	var req BatchAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	results := h.availability.CheckBatch(c.Request.Context(), req.AssetIDs, time.Now())
	Success(c, gin.H{"items": results})
}

// Delete 删除已报废钞箱
// DELETE /api/v1/assets/:id
func (h *AssetHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		HandleError(c, err)
		return
	}
	Success(c, nil)
}
