package entity

import (
	"time"

	"gorm.io/gorm"
)

// MaintenanceTask 保养任务
// 独立状态机，但与报修单共享资产：同一钞箱存在未结报修单或维修工单时拒绝创建
type MaintenanceTask struct {
	ID       string `json:"id" gorm:"primaryKey;size:32"`
	TaskCode string `json:"task_code" gorm:"size:32;uniqueIndex;not null"` // MT-{日期}-{4位序号}
	Status   string `json:"status" gorm:"size:20;default:scheduled"`       // scheduled/in_progress/completed/cancelled/rescheduled
	Title    string `json:"title" gorm:"size:200"`

	BankID     string `json:"bank_id" gorm:"size:32;index"`
	OperatorID string `json:"operator_id" gorm:"size:32;index"`

	// 周期保养
	IntervalDays int        `json:"interval_days" gorm:"default:0"` // 0表示一次性任务
	ScheduledAt  time.Time  `json:"scheduled_at"`
	NextDueDate  *time.Time `json:"next_due_date"` // 完成时按interval_days推算
	PrevTaskID   *string    `json:"prev_task_id" gorm:"size:32"` // 上一期任务

	// 认领（条件更新）
	AssigneeID *string    `json:"assignee_id" gorm:"size:32"`
	ClaimedAt  *time.Time `json:"claimed_at"`

	CreatedBy   string         `json:"created_by" gorm:"size:32"`
	CompletedAt *time.Time     `json:"completed_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
	Notes       string         `json:"notes" gorm:"type:text"`

	Items []MaintenanceAssetDetail `json:"items,omitempty" gorm:"foreignKey:TaskID"`
}

func (MaintenanceTask) TableName() string {
	return "cams_maintenance_tasks"
}

// 保养任务状态
const (
	MaintStatusScheduled   = "scheduled"
	MaintStatusInProgress  = "in_progress"
	MaintStatusCompleted   = "completed"
	MaintStatusCancelled   = "cancelled"
	MaintStatusRescheduled = "rescheduled"
)

// ValidMaintTransitions 保养任务状态机
var ValidMaintTransitions = map[string][]string{
	MaintStatusScheduled:   {MaintStatusInProgress, MaintStatusCancelled, MaintStatusRescheduled},
	MaintStatusInProgress:  {MaintStatusCompleted, MaintStatusCancelled},
	MaintStatusCompleted:   {},
	MaintStatusCancelled:   {},
	MaintStatusRescheduled: {},
}

// CanTransitMaint 判断保养任务状态迁移是否合法
func CanTransitMaint(from, to string) bool {
	for _, s := range ValidMaintTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsMaintTerminal 保养任务是否已终结
func IsMaintTerminal(status string) bool {
	return status == MaintStatusCompleted || status == MaintStatusCancelled || status == MaintStatusRescheduled
}

// MaintenanceAssetDetail 保养任务钞箱明细（无替换语义）
type MaintenanceAssetDetail struct {
	ID      string `json:"id" gorm:"primaryKey;size:32"`
	TaskID  string `json:"task_id" gorm:"size:32;not null;index"`
	AssetID string `json:"asset_id" gorm:"size:32;not null;index"`

	Result    string         `json:"result" gorm:"size:500"` // 保养结论
	SortOrder int            `json:"sort_order" gorm:"default:0"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Asset *Asset `json:"asset,omitempty" gorm:"foreignKey:AssetID"`
}

func (MaintenanceAssetDetail) TableName() string {
	return "cams_maintenance_asset_details"
}
