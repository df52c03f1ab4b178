package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"gorm.io/gorm"
)

// OrderRepository 维修工单仓库
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// FindAll 查询工单列表
func (r *OrderRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.RepairWorkOrder, int64, error) {
	var items []entity.RepairWorkOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.RepairWorkOrder{})

	if assetID := filters["asset_id"]; assetID != "" {
		query = query.Where("asset_id = ?", assetID)
	}
	if ticketID := filters["ticket_id"]; ticketID != "" {
		query = query.Where("ticket_id = ?", ticketID)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if orderType := filters["type"]; orderType != "" {
		query = query.Where("type = ?", orderType)
	}
	if assigneeID := filters["assignee_id"]; assigneeID != "" {
		query = query.Where("assignee_id = ?", assigneeID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByID 根据ID查找工单
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.RepairWorkOrder, error) {
	var order entity.RepairWorkOrder
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindActiveByAssetID 查找资产当前未终结的工单
// 不变量：同一资产最多一张，查到多张说明数据已漂移，取最新一张
func (r *OrderRepository) FindActiveByAssetID(ctx context.Context, assetID string) (*entity.RepairWorkOrder, error) {
	var order entity.RepairWorkOrder
	err := r.db.WithContext(ctx).
		Where("asset_id = ?", assetID).
		Where("status NOT IN ?", []string{entity.OrderStatusCompleted, entity.OrderStatusScrapped}).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// FindLatestRelevant 查找资产在since之后（含）创建的最新工单
// 报修单解决判定的核心查询：时间窗为 created_at >= 报修单创建时刻
func (r *OrderRepository) FindLatestRelevant(ctx context.Context, assetID string, since time.Time) (*entity.RepairWorkOrder, error) {
	var order entity.RepairWorkOrder
	err := r.db.WithContext(ctx).
		Where("asset_id = ?", assetID).
		Where("created_at >= ?", since).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// Create 创建工单
func (r *OrderRepository) Create(ctx context.Context, order *entity.RepairWorkOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// Update 更新工单
func (r *OrderRepository) Update(ctx context.Context, order *entity.RepairWorkOrder) error {
	return r.db.WithContext(ctx).Save(order).Error
}

// Claim 认领工单（条件更新：未认领或已被同一人认领才成功）
// 返回false表示已被他人认领
func (r *OrderRepository) Claim(ctx context.Context, id, operatorID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entity.RepairWorkOrder{}).
		Where("id = ?", id).
		Where("assignee_id IS NULL OR assignee_id = ?", operatorID).
		Updates(map[string]interface{}{
			"assignee_id": operatorID,
			"claimed_at":  now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
