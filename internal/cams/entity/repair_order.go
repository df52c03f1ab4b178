package entity

import (
	"time"

	"gorm.io/gorm"
)

// RepairWorkOrder 维修工单（一个钞箱一次维修周期对应一张工单）
// 不变量：同一钞箱同时最多存在一张未终结工单；
// 上一张工单终结后再建的工单属于新的维修周期，不是重开
type RepairWorkOrder struct {
	ID      string `json:"id" gorm:"primaryKey;size:32"`
	AssetID string `json:"asset_id" gorm:"size:32;not null;index"`

	// 来源（报修单或保养任务，二选一）
	TicketID      *string `json:"ticket_id" gorm:"size:32;index"`
	MaintenanceID *string `json:"maintenance_id" gorm:"size:32;index"`

	Type   string `json:"type" gorm:"size:20;not null"`           // routine/on_demand/emergency
	Status string `json:"status" gorm:"size:20;default:received"` // received/diagnosing/on_progress/completed/scrapped

	// 质检与维修记录
	QCPassed      *bool  `json:"qc_passed"` // 质检结果，未判定为null
	PartsReplaced string `json:"parts_replaced" gorm:"type:text"`
	Diagnosis     string `json:"diagnosis" gorm:"type:text"`

	// 替换申请（完工时由报修明细带入）
	ReplacementRequested bool `json:"replacement_requested" gorm:"default:false"`

	// 认领（条件更新，不允许无条件覆盖）
	AssigneeID *string    `json:"assignee_id" gorm:"size:32"`
	ClaimedAt  *time.Time `json:"claimed_at"`

	// 保修（质检通过时由保修协作方计算）
	WarrantyDays  *int       `json:"warranty_days"`
	WarrantyStart *time.Time `json:"warranty_start"`
	WarrantyEnd   *time.Time `json:"warranty_end"`

	CompletedAt *time.Time     `json:"completed_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
	Notes       string         `json:"notes" gorm:"type:text"`
}

func (RepairWorkOrder) TableName() string {
	return "cams_repair_work_orders"
}

// 工单状态
const (
	OrderStatusReceived   = "received"
	OrderStatusDiagnosing = "diagnosing"
	OrderStatusOnProgress = "on_progress"
	OrderStatusCompleted  = "completed"
	OrderStatusScrapped   = "scrapped"
)

// 工单类型
const (
	OrderTypeRoutine   = "routine"
	OrderTypeOnDemand  = "on_demand"
	OrderTypeEmergency = "emergency"
)

// ValidOrderTransitions 工单状态机
var ValidOrderTransitions = map[string][]string{
	OrderStatusReceived:   {OrderStatusDiagnosing, OrderStatusOnProgress, OrderStatusCompleted, OrderStatusScrapped},
	OrderStatusDiagnosing: {OrderStatusOnProgress, OrderStatusCompleted, OrderStatusScrapped},
	OrderStatusOnProgress: {OrderStatusCompleted, OrderStatusScrapped},
	OrderStatusCompleted:  {},
	OrderStatusScrapped:   {},
}

// CanTransitOrder 判断工单状态迁移是否合法
func CanTransitOrder(from, to string) bool {
	for _, s := range ValidOrderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsOrderTerminal 工单是否已终结（维修周期结束）
// 质检不通过的完工仍记为completed（qc_passed=false），报废走scrapped，
// 两者都满足报修单的解决判定
func IsOrderTerminal(status string) bool {
	return status == OrderStatusCompleted || status == OrderStatusScrapped
}
