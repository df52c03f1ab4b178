package entity

import "time"

// ActivityLog 操作日志（审计协作方落库，记录状态变更前后快照）
type ActivityLog struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	EntityType string `json:"entity_type" gorm:"size:50;not null;index:idx_cams_activity_entity"` // asset/ticket/work_order/delivery/return/maintenance
	EntityID   string `json:"entity_id" gorm:"size:32;not null;index:idx_cams_activity_entity"`
	EntityCode string `json:"entity_code" gorm:"size:64"`

	Action     string `json:"action" gorm:"size:50;not null"` // create/status_change/claim/complete/soft_delete/reconcile等
	FromStatus string `json:"from_status" gorm:"size:30"`
	ToStatus   string `json:"to_status" gorm:"size:30"`

	Content string `json:"content" gorm:"type:text"`

	OperatorID   string    `json:"operator_id" gorm:"size:32"`
	OperatorName string    `json:"operator_name" gorm:"size:100"`
	CreatedAt    time.Time `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "cams_activity_logs"
}
