package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"gorm.io/gorm"
)

// MaintenanceRepository 保养任务仓库
type MaintenanceRepository struct {
	db *gorm.DB
}

func NewMaintenanceRepository(db *gorm.DB) *MaintenanceRepository {
	return &MaintenanceRepository{db: db}
}

// FindAll 查询保养任务列表
func (r *MaintenanceRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.MaintenanceTask, int64, error) {
	var items []entity.MaintenanceTask
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.MaintenanceTask{})

	if bankID := filters["bank_id"]; bankID != "" {
		query = query.Where("bank_id = ?", bankID)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if assigneeID := filters["assignee_id"]; assigneeID != "" {
		query = query.Where("assignee_id = ?", assigneeID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Items").
		Order("scheduled_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByID 根据ID查找保养任务（含明细）
func (r *MaintenanceRepository) FindByID(ctx context.Context, id string) (*entity.MaintenanceTask, error) {
	var task entity.MaintenanceTask
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("id = ?", id).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

// Create 创建保养任务
func (r *MaintenanceRepository) Create(ctx context.Context, task *entity.MaintenanceTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// Update 更新保养任务
func (r *MaintenanceRepository) Update(ctx context.Context, task *entity.MaintenanceTask) error {
	return r.db.WithContext(ctx).Save(task).Error
}

// FindActiveByAssetID 查找引用某资产的未终结保养任务
func (r *MaintenanceRepository) FindActiveByAssetID(ctx context.Context, assetID string) (*entity.MaintenanceTask, error) {
	var task entity.MaintenanceTask
	err := r.db.WithContext(ctx).
		Joins("JOIN cams_maintenance_asset_details d ON d.task_id = cams_maintenance_tasks.id").
		Where("d.asset_id = ?", assetID).
		Where("d.deleted_at IS NULL").
		Where("cams_maintenance_tasks.status IN ?", []string{entity.MaintStatusScheduled, entity.MaintStatusInProgress}).
		Order("cams_maintenance_tasks.created_at DESC").
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

// FindDueRecurring 查询到期（或lookahead内到期）的已完成周期保养任务
func (r *MaintenanceRepository) FindDueRecurring(ctx context.Context, now time.Time, lookahead time.Duration) ([]entity.MaintenanceTask, error) {
	var items []entity.MaintenanceTask
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ?", entity.MaintStatusCompleted).
		Where("interval_days > 0").
		Where("next_due_date IS NOT NULL AND next_due_date <= ?", now.Add(lookahead)).
		Order("next_due_date ASC").
		Find(&items).Error
	return items, err
}

// HasSuccessor 判断任务是否已生成下一期
func (r *MaintenanceRepository) HasSuccessor(ctx context.Context, taskID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.MaintenanceTask{}).
		Where("prev_task_id = ?", taskID).
		Count(&count).Error
	return count > 0, err
}

// Claim 认领保养任务（条件更新，与工单认领同语义）
func (r *MaintenanceRepository) Claim(ctx context.Context, id, operatorID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entity.MaintenanceTask{}).
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

// GenerateCode 生成保养任务编号 MT-{YYYYMMDD}-{4位}
func (r *MaintenanceRepository) GenerateCode(ctx context.Context, now time.Time) (string, error) {
	day := now.Format("20060102")
	prefix := fmt.Sprintf("MT-%s-", day)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.MaintenanceTask{}).
		Unscoped().
		Select("COALESCE(MAX(task_code), '')").
		Where("task_code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "MT-"+day+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("MT-%s-%04d", day, seq), nil
}
