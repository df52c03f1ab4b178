package entity

import (
	"time"

	"gorm.io/gorm"
)

// 物流方式
const (
	ShipMethodCourier = "courier" // 物流承运
	ShipMethodSelf    = "self"    // 自送/自取
)

// DeliveryRecord 送修物流记录（网点→维修中心），与报修单一对一
// 创建后只允许回填签收时间，其余字段只增不改
type DeliveryRecord struct {
	ID       string `json:"id" gorm:"primaryKey;size:32"`
	TicketID string `json:"ticket_id" gorm:"size:32;uniqueIndex;not null"`

	Method     string `json:"method" gorm:"size:20;not null"` // courier/self
	Courier    string `json:"courier" gorm:"size:100"`        // 承运商
	TrackingNo string `json:"tracking_no" gorm:"size:100"`
	SenderName string `json:"sender_name" gorm:"size:100"`

	ShippedAt        *time.Time `json:"shipped_at"`
	ReceivedAtCenter *time.Time `json:"received_at_center"` // 维修中心签收时间

	CreatedBy string         `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
	Notes     string         `json:"notes" gorm:"type:text"`
}

func (DeliveryRecord) TableName() string {
	return "cams_delivery_records"
}

// ReturnRecord 返还物流记录（维修中心→网点），与报修单一对一
type ReturnRecord struct {
	ID       string `json:"id" gorm:"primaryKey;size:32"`
	TicketID string `json:"ticket_id" gorm:"size:32;uniqueIndex;not null"`

	Method       string `json:"method" gorm:"size:20;not null"` // courier（返还）/self（自取）
	Courier      string `json:"courier" gorm:"size:100"`
	TrackingNo   string `json:"tracking_no" gorm:"size:100"`
	ReceiverName string `json:"receiver_name" gorm:"size:100"`

	ShippedAt       *time.Time `json:"shipped_at"`
	ReceivedInField *time.Time `json:"received_in_field"` // 网点签收时间

	CreatedBy string         `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
	Notes     string         `json:"notes" gorm:"type:text"`
}

func (ReturnRecord) TableName() string {
	return "cams_return_records"
}
