package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"gorm.io/gorm"
)

// ShipmentRepository 物流记录仓库（送修/返还）
type ShipmentRepository struct {
	db *gorm.DB
}

func NewShipmentRepository(db *gorm.DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

// CreateDelivery 创建送修记录
func (r *ShipmentRepository) CreateDelivery(ctx context.Context, record *entity.DeliveryRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindDeliveryByTicket 查找报修单的送修记录
func (r *ShipmentRepository) FindDeliveryByTicket(ctx context.Context, ticketID string) (*entity.DeliveryRecord, error) {
	var record entity.DeliveryRecord
	err := r.db.WithContext(ctx).Where("ticket_id = ?", ticketID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// UpdateDelivery 更新送修记录（仅签收时间回填）
func (r *ShipmentRepository) UpdateDelivery(ctx context.Context, record *entity.DeliveryRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

// CreateReturn 创建返还记录
func (r *ShipmentRepository) CreateReturn(ctx context.Context, record *entity.ReturnRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindReturnByTicket 查找报修单的返还记录
func (r *ShipmentRepository) FindReturnByTicket(ctx context.Context, ticketID string) (*entity.ReturnRecord, error) {
	var record entity.ReturnRecord
	err := r.db.WithContext(ctx).Where("ticket_id = ?", ticketID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// UpdateReturn 更新返还记录（仅签收时间回填）
func (r *ShipmentRepository) UpdateReturn(ctx context.Context, record *entity.ReturnRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}
