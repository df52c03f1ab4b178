package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories CAMS仓库集合
type Repositories struct {
	Asset       *AssetRepository
	Ticket      *TicketRepository
	Order       *OrderRepository
	Shipment    *ShipmentRepository
	Maintenance *MaintenanceRepository
	ActivityLog *ActivityLogRepository
}

// NewRepositories 创建CAMS仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Asset:       NewAssetRepository(db),
		Ticket:      NewTicketRepository(db),
		Order:       NewOrderRepository(db),
		Shipment:    NewShipmentRepository(db),
		Maintenance: NewMaintenanceRepository(db),
		ActivityLog: NewActivityLogRepository(db),
	}
}
