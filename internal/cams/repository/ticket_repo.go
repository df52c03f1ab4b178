package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"gorm.io/gorm"
)

// TicketRepository 报修单仓库
type TicketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// FindAll 查询报修单列表
func (r *TicketRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ServiceTicket, int64, error) {
	var items []entity.ServiceTicket
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ServiceTicket{})

	if bankID := filters["bank_id"]; bankID != "" {
		query = query.Where("bank_id = ?", bankID)
	}
	if operatorID := filters["operator_id"]; operatorID != "" {
		query = query.Where("operator_id = ?", operatorID)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if ticketType := filters["type"]; ticketType != "" {
		query = query.Where("type = ?", ticketType)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("ticket_code ILIKE ?", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Items").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByID 根据ID查找报修单（含明细与物流记录）
func (r *TicketRepository) FindByID(ctx context.Context, id string) (*entity.ServiceTicket, error) {
	var ticket entity.ServiceTicket
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Preload("Items.Asset").
		Preload("Delivery").
		Preload("Return").
		Where("id = ?", id).
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

// Create 创建报修单
func (r *TicketRepository) Create(ctx context.Context, ticket *entity.ServiceTicket) error {
	return r.db.WithContext(ctx).Create(ticket).Error
}

// Update 更新报修单
func (r *TicketRepository) Update(ctx context.Context, ticket *entity.ServiceTicket) error {
	return r.db.WithContext(ctx).Save(ticket).Error
}

// FindActiveByAssetID 查找引用某资产的未终结报修单
func (r *TicketRepository) FindActiveByAssetID(ctx context.Context, assetID string) (*entity.ServiceTicket, error) {
	var ticket entity.ServiceTicket
	err := r.db.WithContext(ctx).
		Joins("JOIN cams_ticket_asset_details d ON d.ticket_id = cams_service_tickets.id").
		Where("d.asset_id = ?", assetID).
		Where("d.deleted_at IS NULL").
		Where("cams_service_tickets.status <> ?", entity.TicketStatusClosed).
		Order("cams_service_tickets.created_at DESC").
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

// FindLatestByAssetID 查找引用某资产的最近一张报修单（含已终结）
func (r *TicketRepository) FindLatestByAssetID(ctx context.Context, assetID string) (*entity.ServiceTicket, error) {
	var ticket entity.ServiceTicket
	err := r.db.WithContext(ctx).
		Preload("Return").
		Joins("JOIN cams_ticket_asset_details d ON d.ticket_id = cams_service_tickets.id").
		Where("d.asset_id = ?", assetID).
		Where("d.deleted_at IS NULL").
		Order("cams_service_tickets.created_at DESC").
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

// FindLive 查询所有未终结的报修单（对账作业用）
func (r *TicketRepository) FindLive(ctx context.Context, statuses []string) ([]entity.ServiceTicket, error) {
	var items []entity.ServiceTicket
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// GenerateCode 生成报修单编号 TK-{YYYYMMDD}-{4位}
func (r *TicketRepository) GenerateCode(ctx context.Context, now time.Time) (string, error) {
	day := now.Format("20060102")
	prefix := fmt.Sprintf("TK-%s-", day)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.ServiceTicket{}).
		Unscoped().
		Select("COALESCE(MAX(ticket_code), '')").
		Where("ticket_code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "TK-"+day+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("TK-%s-%04d", day, seq), nil
}
