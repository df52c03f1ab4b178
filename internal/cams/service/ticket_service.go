package service

import (
	"context"
	"time"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"github.com/bitfantasy/cams/internal/cams/repository"
	"github.com/bitfantasy/cams/internal/shared/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TicketService 报修单服务
type TicketService struct {
	ticketRepo   *repository.TicketRepository
	assetRepo    *repository.AssetRepository
	shipmentRepo *repository.ShipmentRepository
	logRepo      *repository.ActivityLogRepository
	availability *AvailabilityService
	sync         *SyncService
	notifier     notify.Notifier
	db           *gorm.DB
	logger       *zap.Logger
}

func NewTicketService(
	repos *repository.Repositories,
	availability *AvailabilityService,
	syncSvc *SyncService,
	notifier notify.Notifier,
	db *gorm.DB,
	logger *zap.Logger,
) *TicketService {
	return &TicketService{
		ticketRepo:   repos.Ticket,
		assetRepo:    repos.Asset,
		shipmentRepo: repos.Shipment,
		logRepo:      repos.ActivityLog,
		availability: availability,
		sync:         syncSvc,
		notifier:     notifier,
		db:           db,
		logger:       logger,
	}
}

// CreateTicketItem 报修明细入参
type CreateTicketItem struct {
	AssetID            string `json:"asset_id" binding:"required"`
	RequestReplacement bool   `json:"request_replacement"`
	Reason             string `json:"reason"`
}

// CreateShipmentInfo 创建时附带的物流信息
type CreateShipmentInfo struct {
	Method     string `json:"method" binding:"required"` // courier/self
	Courier    string `json:"courier"`
	TrackingNo string `json:"tracking_no"`
	SenderName string `json:"sender_name"`
}

// CreateTicketRequest 创建报修单请求
type CreateTicketRequest struct {
	Type     string              `json:"type" binding:"required"` // shipment/on_site
	Priority string              `json:"priority"`
	BankID   string              `json:"bank_id" binding:"required"`
	Notes    string              `json:"notes"`
	Items    []CreateTicketItem  `json:"items" binding:"required"`
	Shipment *CreateShipmentInfo `json:"shipment"` // 可选；带物流信息时整单全有或全无
}

// Create 创建报修单
// 带物流信息时报修单+明细+送修记录+状态同步必须同一事务提交
func (s *TicketService) Create(ctx context.Context, operatorID, orgID string, req *CreateTicketRequest) (*entity.ServiceTicket, error) {
	if req.Type != entity.TicketTypeShipment && req.Type != entity.TicketTypeOnSite {
		return nil, entity.NewValidation("未知报修类型: %s", req.Type)
	}
	if len(req.Items) == 0 {
		return nil, entity.NewValidation("报修单至少关联一个钞箱")
	}

	// 去重
	seen := map[string]bool{}
	items := make([]CreateTicketItem, 0, len(req.Items))
	for _, item := range req.Items {
		if seen[item.AssetID] {
			continue
		}
		seen[item.AssetID] = true
		items = append(items, item)
	}
	if len(items) > entity.MaxTicketAssets {
		return nil, entity.NewValidation("报修钞箱数量超出上限 %d", entity.MaxTicketAssets)
	}

	// 可用性校验：任一钞箱被占用则整单拒绝
	now := time.Now()
	for _, item := range items {
		avail, err := s.availability.Check(ctx, item.AssetID, now)
		if err != nil {
			return nil, err
		}
		if !avail.Available {
			return nil, entity.NewPrecondition(avail.Status, avail.ConflictID, "钞箱 %s 不可报修: %s", item.AssetID, avail.Reason)
		}
	}

	priority := req.Priority
	if priority == "" {
		priority = "normal"
	}
	status := entity.TicketStatusOpen
	if req.Type == entity.TicketTypeOnSite {
		status = entity.TicketStatusPendingApproval
	}

	ticket := &entity.ServiceTicket{
		ID:         uuid.New().String()[:32],
		Status:     status,
		Type:       req.Type,
		Priority:   priority,
		BankID:     req.BankID,
		OperatorID: orgID,
		ReportedBy: operatorID,
		Notes:      req.Notes,
	}
	for i, item := range items {
		ticket.Items = append(ticket.Items, entity.TicketAssetDetail{
			ID:                 uuid.New().String()[:32],
			TicketID:           ticket.ID,
			AssetID:            item.AssetID,
			RequestReplacement: item.RequestReplacement,
			Reason:             item.Reason,
			SortOrder:          i + 1,
		})
	}

	var outcome *Outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := s.ticketRepo.GenerateCode(ctx, now)
		if err != nil {
			return err
		}
		ticket.TicketCode = code

		if err := tx.Create(ticket).Error; err != nil {
			return err
		}

		if req.Shipment != nil {
			record := &entity.DeliveryRecord{
				ID:         uuid.New().String()[:32],
				TicketID:   ticket.ID,
				Method:     req.Shipment.Method,
				Courier:    req.Shipment.Courier,
				TrackingNo: req.Shipment.TrackingNo,
				SenderName: req.Shipment.SenderName,
				ShippedAt:  &now,
				CreatedBy:  operatorID,
			}
			if err := tx.Create(record).Error; err != nil {
				return err
			}
		}

		outcome, err = s.sync.Apply(ctx, tx, Event{
			Kind:        EventTicketOpened,
			Ticket:      ticket,
			HasShipment: req.Shipment != nil,
			OperatorID:  operatorID,
			Now:         now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	outcome.Broadcast()

	s.logRepo.LogActivity(ctx, "ticket", ticket.ID, ticket.TicketCode, "create", "", ticket.Status, "创建报修单", operatorID)
	s.notifier.Publish(notify.LifecycleEvent{
		Kind:     "ticket_opened",
		TicketID: ticket.ID,
		Status:   ticket.Status,
		Message:  ticket.TicketCode,
	})

	return s.ticketRepo.FindByID(ctx, ticket.ID)
}

// Get 获取报修单详情
func (s *TicketService) Get(ctx context.Context, id string) (*entity.ServiceTicket, error) {
	ticket, err := s.ticketRepo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, entity.NewNotFound("报修单不存在: %s", id)
		}
		return nil, err
	}
	return ticket, nil
}

// List 查询报修单列表
func (s *TicketService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ServiceTicket, int64, error) {
	return s.ticketRepo.FindAll(ctx, page, pageSize, filters)
}

// Approve 现场维修审批通过
func (s *TicketService) Approve(ctx context.Context, id, operatorID string) (*entity.ServiceTicket, error) {
	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status != entity.TicketStatusPendingApproval {
		return nil, entity.NewConflict(ticket.Status, ticket.ID, "报修单不在待审批状态")
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&entity.ServiceTicket{}).Where("id = ?", ticket.ID).
			Updates(map[string]interface{}{
				"status":      entity.TicketStatusApprovedOnSite,
				"approved_by": operatorID,
				"approved_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	s.logRepo.LogActivity(ctx, "ticket", ticket.ID, ticket.TicketCode, "approve",
		entity.TicketStatusPendingApproval, entity.TicketStatusApprovedOnSite, "现场维修审批通过", operatorID)
	return s.Get(ctx, id)
}

// SoftDelete 软删除报修单
// 补偿事务：报修单、明细、未终结工单一并软删，所有关联资产还原为ok，
// 全有或全无，不做三次独立调用
func (s *TicketService) SoftDelete(ctx context.Context, id, operatorID string) error {
	ticket, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if ticket.Status == entity.TicketStatusClosed {
		return entity.NewConflict(ticket.Status, ticket.ID, "已关闭的报修单不允许删除")
	}

	var outcome *Outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 资产还原 + 未终结工单级联软删（引擎负责状态耦合的部分）
		outcome, err = s.sync.Apply(ctx, tx, Event{
			Kind:       EventTicketDeleted,
			Ticket:     ticket,
			OperatorID: operatorID,
		})
		if err != nil {
			return err
		}

		if err := tx.Where("ticket_id = ?", ticket.ID).Delete(&entity.TicketAssetDetail{}).Error; err != nil {
			return err
		}
		if err := tx.Where("ticket_id = ?", ticket.ID).Delete(&entity.DeliveryRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("ticket_id = ?", ticket.ID).Delete(&entity.ReturnRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", ticket.ID).Delete(&entity.ServiceTicket{}).Error
	})
	if err != nil {
		return err
	}
	outcome.Broadcast()

	s.logRepo.LogActivity(ctx, "ticket", ticket.ID, ticket.TicketCode, "soft_delete", ticket.Status, "", "删除报修单，资产状态还原", operatorID)
	s.logger.Info("ticket soft-deleted",
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_code", ticket.TicketCode))
	return nil
}

// EvaluateResolution 重算报修单解决状态并纠偏
func (s *TicketService) EvaluateResolution(ctx context.Context, id, operatorID string) (*entity.ServiceTicket, error) {
	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.sync.SyncResolution(ctx, tx, ticket, operatorID, time.Now(), outcome)
		return err
	})
	if err != nil {
		return nil, err
	}
	outcome.Broadcast()
	return s.Get(ctx, id)
}
