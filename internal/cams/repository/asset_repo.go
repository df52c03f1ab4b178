package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"gorm.io/gorm"
)

// AssetRepository 钞箱资产仓库
type AssetRepository struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// FindAll 查询资产列表
func (r *AssetRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Asset, int64, error) {
	var items []entity.Asset
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Asset{})

	if bankID := filters["bank_id"]; bankID != "" {
		query = query.Where("bank_id = ?", bankID)
	}
	if operatorID := filters["operator_id"]; operatorID != "" {
		query = query.Where("operator_id = ?", operatorID)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("serial_number ILIKE ?", "%"+search+"%")
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

// FindByID 根据ID查找资产
func (r *AssetRepository) FindByID(ctx context.Context, id string) (*entity.Asset, error) {
	var asset entity.Asset
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &asset, nil
}

// FindBySerial 根据序列号查找资产
func (r *AssetRepository) FindBySerial(ctx context.Context, serial string) (*entity.Asset, error) {
	var asset entity.Asset
	err := r.db.WithContext(ctx).Where("serial_number = ?", serial).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &asset, nil
}

// FindByIDs 批量查找资产
func (r *AssetRepository) FindByIDs(ctx context.Context, ids []string) ([]entity.Asset, error) {
	var items []entity.Asset
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error
	return items, err
}

// Create 登记资产
func (r *AssetRepository) Create(ctx context.Context, asset *entity.Asset) error {
	return r.db.WithContext(ctx).Create(asset).Error
}

// Update 更新资产
func (r *AssetRepository) Update(ctx context.Context, asset *entity.Asset) error {
	return r.db.WithContext(ctx).Save(asset).Error
}

// Delete 物理删除资产（仅限scrapped且无未结引用，由服务层校验）
func (r *AssetRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.Asset{}).Error
}

// CountOpenTicketRefs 统计资产被未终结报修单引用的次数
func (r *AssetRepository) CountOpenTicketRefs(ctx context.Context, assetID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.TicketAssetDetail{}).
		Joins("JOIN cams_service_tickets t ON t.id = cams_ticket_asset_details.ticket_id").
		Where("cams_ticket_asset_details.asset_id = ?", assetID).
		Where("cams_ticket_asset_details.deleted_at IS NULL").
		Where("t.deleted_at IS NULL").
		Where("t.status <> ?", entity.TicketStatusClosed).
		Count(&count).Error
	return count, err
}
