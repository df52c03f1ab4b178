package service

import (
	"context"
	"time"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"github.com/bitfantasy/cams/internal/cams/repository"
	"github.com/bitfantasy/cams/internal/cams/sse"
	"github.com/bitfantasy/cams/internal/shared/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RepairService 维修工作流服务
type RepairService struct {
	orderRepo  *repository.OrderRepository
	ticketRepo *repository.TicketRepository
	maintRepo  *repository.MaintenanceRepository
	assetRepo  *repository.AssetRepository
	logRepo    *repository.ActivityLogRepository
	sync       *SyncService
	warranty   WarrantyCalculator
	notifier   notify.Notifier
	db         *gorm.DB
	logger     *zap.Logger
}

func NewRepairService(
	repos *repository.Repositories,
	syncSvc *SyncService,
	warranty WarrantyCalculator,
	notifier notify.Notifier,
	db *gorm.DB,
	logger *zap.Logger,
) *RepairService {
	return &RepairService{
		orderRepo:  repos.Order,
		ticketRepo: repos.Ticket,
		maintRepo:  repos.Maintenance,
		assetRepo:  repos.Asset,
		logRepo:    repos.ActivityLog,
		sync:       syncSvc,
		warranty:   warranty,
		notifier:   notifier,
		db:         db,
		logger:     logger,
	}
}

// 工单创建时可接受的资产状态
var orderIntakeStatuses = map[string]bool{
	entity.AssetStatusInRepair: true, // 物流签收后
	entity.AssetStatusBad:      true, // 现场维修
	entity.AssetStatusOK:       true, // 保养转维修的批量收箱
}

// CreateFromTicket 按报修单批量建立维修工单
// 同一事务内每个资产一张工单；已有本报修单的未终结工单则跳过不报错，
// 挂在其他（或已删除）报修单上的旧工单先软删再重建
func (s *RepairService) CreateFromTicket(ctx context.Context, ticketID, operatorID string) ([]*entity.RepairWorkOrder, error) {
	ticket, err := s.ticketRepo.FindByID(ctx, ticketID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, entity.NewNotFound("报修单不存在: %s", ticketID)
		}
		return nil, err
	}

	orderType := entity.OrderTypeOnDemand
	if ticket.Priority == "emergency" {
		orderType = entity.OrderTypeEmergency
	}

	assetIDs := dedupeAssetIDs(ticket.Items)
	if len(assetIDs) > entity.MaxTicketAssets {
		return nil, entity.NewValidation("资产数量超出上限 %d", entity.MaxTicketAssets)
	}

	return s.createOrders(ctx, assetIDs, orderType, &ticketID, nil, operatorID)
}

// CreateFromMaintenance 按保养任务批量建立维修工单（例行类型）
func (s *RepairService) CreateFromMaintenance(ctx context.Context, maintenanceID, operatorID string) ([]*entity.RepairWorkOrder, error) {
	task, err := s.maintRepo.FindByID(ctx, maintenanceID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, entity.NewNotFound("保养任务不存在: %s", maintenanceID)
		}
		return nil, err
	}

	assetIDs := make([]string, 0, len(task.Items))
	seen := map[string]bool{}
	for _, item := range task.Items {
		if !seen[item.AssetID] {
			seen[item.AssetID] = true
			assetIDs = append(assetIDs, item.AssetID)
		}
	}
	if len(assetIDs) > entity.MaxTicketAssets {
		return nil, entity.NewValidation("资产数量超出上限 %d", entity.MaxTicketAssets)
	}

	return s.createOrders(ctx, assetIDs, entity.OrderTypeRoutine, nil, &maintenanceID, operatorID)
}

func (s *RepairService) createOrders(ctx context.Context, assetIDs []string, orderType string, ticketID, maintenanceID *string, operatorID string) ([]*entity.RepairWorkOrder, error) {
	var created []*entity.RepairWorkOrder

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, assetID := range assetIDs {
			asset, err := s.assetRepo.FindByID(ctx, assetID)
			if err != nil {
				if err == repository.ErrNotFound {
					return entity.NewNotFound("钞箱不存在: %s", assetID)
				}
				return err
			}
			if !orderIntakeStatuses[asset.Status] {
				return entity.NewPrecondition(asset.Status, "", "钞箱 %s 当前状态不允许建立维修工单", asset.SerialNumber)
			}

			active, err := s.orderRepo.FindActiveByAssetID(ctx, assetID)
			if err != nil {
				return err
			}
			if active != nil {
				// 同一报修单的重复创建直接跳过
				if ticketID != nil && active.TicketID != nil && *active.TicketID == *ticketID {
					continue
				}
				if maintenanceID != nil && active.MaintenanceID != nil && *active.MaintenanceID == *maintenanceID {
					continue
				}
				// 挂在别的来源上的旧工单：软删后重建
				if err := tx.Where("id = ?", active.ID).Delete(&entity.RepairWorkOrder{}).Error; err != nil {
					return err
				}
				s.logRepo.LogActivity(ctx, "work_order", active.ID, "", "soft_delete",
					active.Status, "", "旧工单来源失效，重建维修工单", operatorID)
			}

			order := &entity.RepairWorkOrder{
				ID:            uuid.New().String()[:32],
				AssetID:       assetID,
				TicketID:      ticketID,
				MaintenanceID: maintenanceID,
				Type:          orderType,
				Status:        entity.OrderStatusReceived,
			}
			if err := tx.Create(order).Error; err != nil {
				return err
			}
			created = append(created, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, order := range created {
		s.logRepo.LogActivity(ctx, "work_order", order.ID, "", "create", "", order.Status, "建立维修工单", operatorID)
	}
	return created, nil
}

// Get 获取工单详情
func (s *RepairService) Get(ctx context.Context, id string) (*entity.RepairWorkOrder, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, entity.NewNotFound("维修工单不存在: %s", id)
		}
		return nil, err
	}
	return order, nil
}

// List 查询工单列表
func (s *RepairService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.RepairWorkOrder, int64, error) {
	return s.orderRepo.FindAll(ctx, page, pageSize, filters)
}

// Claim 认领工单
// 条件更新：已被他人认领时返回冲突，绝不静默改派
func (s *RepairService) Claim(ctx context.Context, id, operatorID string) (*entity.RepairWorkOrder, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity.IsOrderTerminal(order.Status) {
		return nil, entity.NewConflict(order.Status, order.ID, "工单已终结，不能认领")
	}

	ok, err := s.orderRepo.Claim(ctx, id, operatorID, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		current, _ := s.orderRepo.FindByID(ctx, id)
		assignee := ""
		if current != nil && current.AssigneeID != nil {
			assignee = *current.AssigneeID
		}
		return nil, entity.NewConflict(order.Status, assignee, "工单已被他人认领")
	}

	s.logRepo.LogActivity(ctx, "work_order", id, "", "claim", order.Status, order.Status, "认领工单", operatorID)
	return s.Get(ctx, id)
}

// UpdateStatusRequest 工单状态推进请求
type UpdateStatusRequest struct {
	Status    string `json:"status" binding:"required"` // diagnosing/on_progress
	Diagnosis string `json:"diagnosis"`
}

// UpdateStatus 推进工单状态（received→diagnosing→on_progress）
// 首次进入on_progress时触发RepairStarted同步事件
func (s *RepairService) UpdateStatus(ctx context.Context, id, operatorID string, req *UpdateStatusRequest) (*entity.RepairWorkOrder, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == entity.OrderStatusCompleted || req.Status == entity.OrderStatusScrapped {
		return nil, entity.NewValidation("完工与报废请走完工接口")
	}
	if !entity.CanTransitOrder(order.Status, req.Status) {
		return nil, entity.NewConflict(order.Status, order.ID, "工单不允许 %s → %s", order.Status, req.Status)
	}

	var outcome *Outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"status": req.Status}
		if req.Diagnosis != "" {
			updates["diagnosis"] = req.Diagnosis
		}
		if err := tx.Model(&entity.RepairWorkOrder{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}

		if req.Status == entity.OrderStatusOnProgress {
			var ticket *entity.ServiceTicket
			if order.TicketID != nil {
				ticket, err = s.ticketRepo.FindByID(ctx, *order.TicketID)
				if err != nil && err != repository.ErrNotFound {
					return err
				}
			}
			outcome, err = s.sync.Apply(ctx, tx, Event{
				Kind:       EventRepairStarted,
				Ticket:     ticket,
				AssetIDs:   []string{order.AssetID},
				OperatorID: operatorID,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	outcome.Broadcast()

	s.logRepo.LogActivity(ctx, "work_order", id, "", "status_change", order.Status, req.Status, "", operatorID)
	return s.Get(ctx, id)
}

// CompleteRequest 完工请求
type CompleteRequest struct {
	QCPassed             bool   `json:"qc_passed"`
	PartsReplaced        string `json:"parts_replaced"`
	ReplacementRequested bool   `json:"replacement_requested"`
	ReplacementSerial    string `json:"replacement_serial"` // 申请替换时新钞箱序列号
	Notes                string `json:"notes"`
}

// Complete 维修完工
// 质检通过时调用保修协作方（失败记日志不阻断），随后触发RepairCompleted
// 同步事件，替换分支登记新钞箱，最后重算所属报修单的解决状态
func (s *RepairService) Complete(ctx context.Context, id, operatorID string, req *CompleteRequest) (*entity.RepairWorkOrder, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity.IsOrderTerminal(order.Status) {
		return nil, entity.NewConflict(order.Status, order.ID, "工单已终结，不能重复完工")
	}
	if req.ReplacementRequested && req.ReplacementSerial == "" {
		return nil, entity.NewValidation("申请替换必须提供新钞箱序列号")
	}

	asset, err := s.assetRepo.FindByID(ctx, order.AssetID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	// 保修计算是旁路协作方：失败不回滚完工
	var terms *WarrantyTerms
	if req.QCPassed && !req.ReplacementRequested {
		terms, err = s.warranty.Calculate(ctx, asset.BankID, now)
		if err != nil {
			s.logger.Warn("warranty calculation failed, completing without warranty",
				zap.String("order_id", id),
				zap.Error(err))
			terms = nil
		}
	}

	var outcome *Outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.PartsReplaced != "" || req.Notes != "" {
			updates := map[string]interface{}{}
			if req.PartsReplaced != "" {
				updates["parts_replaced"] = req.PartsReplaced
			}
			if req.Notes != "" {
				updates["notes"] = req.Notes
			}
			if err := tx.Model(&entity.RepairWorkOrder{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return err
			}
		}

		outcome, err = s.sync.Apply(ctx, tx, Event{
			Kind:                 EventRepairCompleted,
			Order:                order,
			QCPassed:             req.QCPassed,
			ReplacementRequested: req.ReplacementRequested,
			OperatorID:           operatorID,
			Now:                  now,
		})
		if err != nil {
			return err
		}

		if terms != nil {
			if err := tx.Model(&entity.RepairWorkOrder{}).Where("id = ?", id).
				Updates(map[string]interface{}{
					"warranty_days":  terms.PeriodDays,
					"warranty_start": terms.StartDate,
					"warranty_end":   terms.EndDate,
				}).Error; err != nil {
				return err
			}
		}

		// 替换分支：登记新钞箱并建立替换链，新箱直接投入服务
		if req.ReplacementRequested {
			replacement := &entity.Asset{
				ID:           uuid.New().String()[:32],
				SerialNumber: req.ReplacementSerial,
				Status:       entity.AssetStatusOK,
				BankID:       asset.BankID,
				OperatorID:   asset.OperatorID,
				Location:     asset.Location,
				ReplacesID:   &asset.ID,
			}
			if err := tx.Create(replacement).Error; err != nil {
				return err
			}
			if err := tx.Model(&entity.Asset{}).Where("id = ?", asset.ID).
				Update("replaced_by_id", replacement.ID).Error; err != nil {
				return err
			}
			s.logRepo.LogActivity(ctx, "asset", replacement.ID, replacement.SerialNumber, "create",
				"", entity.AssetStatusOK, "替换登记新钞箱", operatorID)
		}

		// 完工后立即重算所属报修单的解决状态
		if order.TicketID != nil {
			ticket, err := s.ticketRepo.FindByID(ctx, *order.TicketID)
			if err != nil {
				if err == repository.ErrNotFound {
					return nil
				}
				return err
			}
			if _, err := s.sync.SyncResolution(ctx, tx, ticket, operatorID, now, outcome); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome.Broadcast()
	sse.PublishRepairCompleted(id, order.AssetID, req.QCPassed)
	message := "质检未通过，已报废"
	if req.QCPassed && !req.ReplacementRequested {
		message = "质检通过，待取件"
	}
	s.notifier.Publish(notify.LifecycleEvent{
		Kind:    "repair_completed",
		OrderID: id,
		AssetID: order.AssetID,
		Message: message,
	})

	return s.Get(ctx, id)
}

func dedupeAssetIDs(items []entity.TicketAssetDetail) []string {
	seen := map[string]bool{}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item.AssetID] {
			seen[item.AssetID] = true
			ids = append(ids, item.AssetID)
		}
	}
	return ids
}
