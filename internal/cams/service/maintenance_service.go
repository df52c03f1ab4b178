package service

import (
	"context"
	"time"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"github.com/bitfantasy/cams/internal/cams/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaintenanceService 保养任务服务
// 与报修通道共享资产占用检查：钞箱被未结报修单/工单占用时拒绝排保养
type MaintenanceService struct {
	maintRepo    *repository.MaintenanceRepository
	assetRepo    *repository.AssetRepository
	logRepo      *repository.ActivityLogRepository
	availability *AvailabilityService
	db           *gorm.DB
	logger       *zap.Logger
}

func NewMaintenanceService(
	repos *repository.Repositories,
	availability *AvailabilityService,
	db *gorm.DB,
	logger *zap.Logger,
) *MaintenanceService {
	return &MaintenanceService{
		maintRepo:    repos.Maintenance,
		assetRepo:    repos.Asset,
		logRepo:      repos.ActivityLog,
		availability: availability,
		db:           db,
		logger:       logger,
	}
}

// CreateMaintenanceRequest 创建保养任务请求
type CreateMaintenanceRequest struct {
	Title        string    `json:"title" binding:"required"`
	BankID       string    `json:"bank_id" binding:"required"`
	OperatorID   string    `json:"operator_id"`
	AssetIDs     []string  `json:"asset_ids" binding:"required,min=1"`
	ScheduledAt  time.Time `json:"scheduled_at" binding:"required"`
	IntervalDays int       `json:"interval_days"`
	Notes        string    `json:"notes"`
}

// Create 创建保养任务
func (s *MaintenanceService) Create(ctx context.Context, operatorID string, req *CreateMaintenanceRequest) (*entity.MaintenanceTask, error) {
	assetIDs := dedupeIDs(req.AssetIDs)
	if len(assetIDs) == 0 {
		return nil, entity.NewValidation("保养任务至少包含一个钞箱")
	}
	if req.IntervalDays < 0 {
		return nil, entity.NewValidation("保养周期天数不能为负")
	}

	now := time.Now()
	for _, assetID := range assetIDs {
		avail, err := s.availability.Check(ctx, assetID, now)
		if err != nil {
			return nil, err
		}
		if !avail.Available {
			return nil, entity.NewConflict(avail.Status, avail.ConflictID, "钞箱不可用: %s", avail.Reason)
		}
	}

	task := &entity.MaintenanceTask{
		ID:           uuid.New().String()[:32],
		Status:       entity.MaintStatusScheduled,
		Title:        req.Title,
		BankID:       req.BankID,
		OperatorID:   req.OperatorID,
		IntervalDays: req.IntervalDays,
		ScheduledAt:  req.ScheduledAt,
		CreatedBy:    operatorID,
		Notes:        req.Notes,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := s.maintRepo.GenerateCode(ctx, now)
		if err != nil {
			return err
		}
		task.TaskCode = code

		if err := tx.Create(task).Error; err != nil {
			return err
		}
		for i, assetID := range assetIDs {
			detail := &entity.MaintenanceAssetDetail{
				ID:        uuid.New().String()[:32],
				TaskID:    task.ID,
				AssetID:   assetID,
				SortOrder: i,
			}
			if err := tx.Create(detail).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logRepo.LogActivity(ctx, "maintenance", task.ID, task.TaskCode, "create", "", task.Status, "创建保养任务", operatorID)
	return s.maintRepo.FindByID(ctx, task.ID)
}

// Get 查询保养任务详情
func (s *MaintenanceService) Get(ctx context.Context, id string) (*entity.MaintenanceTask, error) {
	task, err := s.maintRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, entity.NewNotFound("保养任务不存在: %s", id)
		}
		return nil, err
	}
	return task, nil
}

// List 查询保养任务列表
func (s *MaintenanceService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.MaintenanceTask, int64, error) {
	return s.maintRepo.FindAll(ctx, page, pageSize, filters)
}

// Claim 认领保养任务
func (s *MaintenanceService) Claim(ctx context.Context, id, operatorID string) (*entity.MaintenanceTask, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity.IsMaintTerminal(task.Status) {
		return nil, entity.NewPrecondition(task.Status, "", "保养任务已终结，不能认领")
	}

	ok, err := s.maintRepo.Claim(ctx, id, operatorID, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.maintRepo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		conflictBy := ""
		if current.AssigneeID != nil {
			conflictBy = *current.AssigneeID
		}
		return nil, entity.NewConflict(current.Status, conflictBy, "保养任务已被他人认领")
	}

	s.logRepo.LogActivity(ctx, "maintenance", id, task.TaskCode, "claim", "", "", "认领保养任务", operatorID)
	return s.maintRepo.FindByID(ctx, id)
}

// Start 开始执行保养
func (s *MaintenanceService) Start(ctx context.Context, id, operatorID string) (*entity.MaintenanceTask, error) {
	return s.transit(ctx, id, entity.MaintStatusInProgress, operatorID, "开始保养")
}

// Cancel 取消保养任务
func (s *MaintenanceService) Cancel(ctx context.Context, id, operatorID string) (*entity.MaintenanceTask, error) {
	return s.transit(ctx, id, entity.MaintStatusCancelled, operatorID, "取消保养任务")
}

// CompleteMaintenanceRequest 完成保养请求
type CompleteMaintenanceRequest struct {
	Results map[string]string `json:"results"` // asset_id -> 保养结论
	Notes   string            `json:"notes"`
}

// Complete 完成保养任务，周期任务推算下一期到期日
func (s *MaintenanceService) Complete(ctx context.Context, id, operatorID string, req *CompleteMaintenanceRequest) (*entity.MaintenanceTask, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entity.CanTransitMaint(task.Status, entity.MaintStatusCompleted) {
		return nil, entity.NewPrecondition(task.Status, "", "保养任务当前状态不允许完成")
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":       entity.MaintStatusCompleted,
			"completed_at": now,
		}
		if req.Notes != "" {
			updates["notes"] = req.Notes
		}
		if task.IntervalDays > 0 {
			updates["next_due_date"] = now.AddDate(0, 0, task.IntervalDays)
		}
		if err := tx.Model(&entity.MaintenanceTask{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		for _, item := range task.Items {
			result, ok := req.Results[item.AssetID]
			if !ok {
				continue
			}
			if err := tx.Model(&entity.MaintenanceAssetDetail{}).
				Where("id = ?", item.ID).
				Update("result", result).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logRepo.LogActivity(ctx, "maintenance", id, task.TaskCode, "status_change", task.Status, entity.MaintStatusCompleted, "完成保养任务", operatorID)
	return s.maintRepo.FindByID(ctx, id)
}

// RescheduleRequest 改期请求
type RescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	Notes       string    `json:"notes"`
}

// Reschedule 改期：原任务置rescheduled并新建一期，prev_task_id串联
func (s *MaintenanceService) Reschedule(ctx context.Context, id, operatorID string, req *RescheduleRequest) (*entity.MaintenanceTask, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entity.CanTransitMaint(task.Status, entity.MaintStatusRescheduled) {
		return nil, entity.NewPrecondition(task.Status, "", "保养任务当前状态不允许改期")
	}

	now := time.Now()
	next := &entity.MaintenanceTask{
		ID:           uuid.New().String()[:32],
		Status:       entity.MaintStatusScheduled,
		Title:        task.Title,
		BankID:       task.BankID,
		OperatorID:   task.OperatorID,
		IntervalDays: task.IntervalDays,
		ScheduledAt:  req.ScheduledAt,
		PrevTaskID:   &task.ID,
		CreatedBy:    operatorID,
		Notes:        req.Notes,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.MaintenanceTask{}).Where("id = ?", id).
			Update("status", entity.MaintStatusRescheduled).Error; err != nil {
			return err
		}
		code, err := s.maintRepo.GenerateCode(ctx, now)
		if err != nil {
			return err
		}
		next.TaskCode = code
		if err := tx.Create(next).Error; err != nil {
			return err
		}
		for _, item := range task.Items {
			detail := &entity.MaintenanceAssetDetail{
				ID:        uuid.New().String()[:32],
				TaskID:    next.ID,
				AssetID:   item.AssetID,
				SortOrder: item.SortOrder,
			}
			if err := tx.Create(detail).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logRepo.LogActivity(ctx, "maintenance", id, task.TaskCode, "reschedule", task.Status, entity.MaintStatusRescheduled, "保养任务改期至"+next.TaskCode, operatorID)
	return s.maintRepo.FindByID(ctx, next.ID)
}

func dedupeIDs(ids []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (s *MaintenanceService) transit(ctx context.Context, id, to, operatorID, message string) (*entity.MaintenanceTask, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entity.CanTransitMaint(task.Status, to) {
		return nil, entity.NewPrecondition(task.Status, "", "保养任务不允许变更为 %s", to)
	}

	if err := s.db.WithContext(ctx).Model(&entity.MaintenanceTask{}).
		Where("id = ?", id).
		Update("status", to).Error; err != nil {
		return nil, err
	}

	s.logRepo.LogActivity(ctx, "maintenance", id, task.TaskCode, "status_change", task.Status, to, message, operatorID)
	return s.maintRepo.FindByID(ctx, id)
}
