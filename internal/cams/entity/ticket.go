package entity

import (
	"time"

	"gorm.io/gorm"
)

// MaxTicketAssets 单张报修单最多关联的钞箱数量
const MaxTicketAssets = 30

// ServiceTicket 报修单
type ServiceTicket struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	TicketCode string `json:"ticket_code" gorm:"size:32;uniqueIndex;not null"` // TK-{日期}-{4位序号}
	Status     string `json:"status" gorm:"size:30;default:open"`              // open/pending_approval/approved_on_site/in_delivery/received/in_progress/resolved/return_shipped/closed
	Type       string `json:"type" gorm:"size:20;not null"`                    // shipment（送修）/on_site（现场维修）
	Priority   string `json:"priority" gorm:"size:20;default:normal"`          // normal/urgent/emergency

	// 归属
	BankID     string `json:"bank_id" gorm:"size:32;index"`
	OperatorID string `json:"operator_id" gorm:"size:32;index"` // 报修运维商（同时是返还接收方）

	// 管理
	ReportedBy string     `json:"reported_by" gorm:"size:32"`
	ApprovedBy *string    `json:"approved_by" gorm:"size:32"`
	ApprovedAt *time.Time `json:"approved_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
	ClosedAt   *time.Time `json:"closed_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
	Notes     string         `json:"notes" gorm:"type:text"`

	// 关联
	Items    []TicketAssetDetail `json:"items,omitempty" gorm:"foreignKey:TicketID"`
	Delivery *DeliveryRecord     `json:"delivery,omitempty" gorm:"foreignKey:TicketID"`
	Return   *ReturnRecord       `json:"return,omitempty" gorm:"foreignKey:TicketID"`
}

func (ServiceTicket) TableName() string {
	return "cams_service_tickets"
}

// 报修单状态
const (
	TicketStatusOpen            = "open"
	TicketStatusPendingApproval = "pending_approval"
	TicketStatusApprovedOnSite  = "approved_on_site"
	TicketStatusInDelivery      = "in_delivery"
	TicketStatusReceived        = "received"
	TicketStatusInProgress      = "in_progress"
	TicketStatusResolved        = "resolved"
	TicketStatusReturnShipped   = "return_shipped"
	TicketStatusClosed          = "closed"
)

// 报修单类型
const (
	TicketTypeShipment = "shipment"
	TicketTypeOnSite   = "on_site"
)

// ValidTicketTransitions 报修单状态机
var ValidTicketTransitions = map[string][]string{
	TicketStatusOpen:            {TicketStatusPendingApproval, TicketStatusInDelivery},
	TicketStatusPendingApproval: {TicketStatusApprovedOnSite, TicketStatusInDelivery},
	TicketStatusApprovedOnSite:  {TicketStatusInProgress, TicketStatusReceived},
	TicketStatusInDelivery:      {TicketStatusReceived},
	TicketStatusReceived:        {TicketStatusInProgress, TicketStatusResolved},
	TicketStatusInProgress:      {TicketStatusResolved},
	TicketStatusResolved:        {TicketStatusReturnShipped, TicketStatusClosed, TicketStatusInProgress},
	TicketStatusReturnShipped:   {TicketStatusClosed},
	TicketStatusClosed:          {},
}

// CanTransitTicket 判断报修单状态迁移是否合法
func CanTransitTicket(from, to string) bool {
	for _, s := range ValidTicketTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTicketTerminal 报修单是否已终结
func IsTicketTerminal(status string) bool {
	return status == TicketStatusClosed
}

// TicketAssetDetail 报修单钞箱明细
type TicketAssetDetail struct {
	ID       string `json:"id" gorm:"primaryKey;size:32"`
	TicketID string `json:"ticket_id" gorm:"size:32;not null;index"`
	AssetID  string `json:"asset_id" gorm:"size:32;not null;index"`

	// 每个钞箱独立的替换申请
	RequestReplacement bool   `json:"request_replacement" gorm:"default:false"`
	Reason             string `json:"reason" gorm:"size:500"` // 故障描述/替换原因

	SortOrder int            `json:"sort_order" gorm:"default:0"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Asset *Asset `json:"asset,omitempty" gorm:"foreignKey:AssetID"`
}

func (TicketAssetDetail) TableName() string {
	return "cams_ticket_asset_details"
}
