package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"github.com/bitfantasy/cams/internal/cams/service"
	"github.com/gin-gonic/gin"
)

// Handlers 处理器集合
type Handlers struct {
	Asset       *AssetHandler
	Ticket      *TicketHandler
	Repair      *RepairHandler
	Shipment    *ShipmentHandler
	Maintenance *MaintenanceHandler
	Reconcile   *ReconcileHandler
	SSE         *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Asset:       NewAssetHandler(svc.Asset, svc.Availability),
		Ticket:      NewTicketHandler(svc.Ticket),
		Repair:      NewRepairHandler(svc.Repair),
		Shipment:    NewShipmentHandler(svc.Shipment),
		Maintenance: NewMaintenanceHandler(svc.Maintenance, svc.Repair),
		Reconcile:   NewReconcileHandler(svc.Reconcile),
		SSE:         NewSSEHandler(),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// Forbidden 禁止访问响应
func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 状态冲突响应
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// HandleError 按领域错误类别映射HTTP响应
// 冲突类错误把当前状态和冲突记录ID一并带回，前端据此换目标重试
func HandleError(c *gin.Context, err error) {
	var de *entity.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case entity.ErrKindNotFound:
			NotFound(c, de.Message)
		case entity.ErrKindConflict:
			c.JSON(409, Response{
				Code:    40900,
				Message: de.Message,
				Data: gin.H{
					"status":      de.Status,
					"conflict_id": de.ConflictID,
				},
			})
		case entity.ErrKindPreconditionFailed:
			c.JSON(422, Response{
				Code:    42200,
				Message: de.Message,
				Data: gin.H{
					"status":      de.Status,
					"conflict_id": de.ConflictID,
				},
			})
		case entity.ErrKindForbidden:
			Forbidden(c, de.Message)
		case entity.ErrKindValidation:
			BadRequest(c, de.Message)
		default:
			InternalError(c, de.Message)
		}
		return
	}
	InternalError(c, err.Error())
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetOrgID 从上下文获取机构ID（银行或运维商）
func GetOrgID(c *gin.Context) string {
	orgID, _ := c.Get("org_id")
	if id, ok := orgID.(string); ok {
		return id
	}
	return ""
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

func listData(items interface{}, page, pageSize int, total int64) *ListResponse {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return &ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	}
}
