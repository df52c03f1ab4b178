package service

import (
	"context"
	"time"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"github.com/bitfantasy/cams/internal/cams/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	reconcileLockKey = "cams:reconcile:lock"
	reconcileLockTTL = 5 * time.Minute
)

// recurringLookahead 周期保养提前生成窗口
const recurringLookahead = 24 * time.Hour

// ReconcileService 对账纠偏服务
// 周期性重算活跃报修单的解决状态（双向纠偏），并为到期的周期保养自动生成下一期。
// 多实例部署时通过redis锁保证同一时刻只有一个实例执行；rdb为nil时跳过加锁（单实例/测试）。
type ReconcileService struct {
	ticketRepo   *repository.TicketRepository
	maintRepo    *repository.MaintenanceRepository
	logRepo      *repository.ActivityLogRepository
	sync         *SyncService
	availability *AvailabilityService
	db           *gorm.DB
	rdb          *redis.Client
	logger       *zap.Logger
}

func NewReconcileService(
	repos *repository.Repositories,
	syncSvc *SyncService,
	availability *AvailabilityService,
	db *gorm.DB,
	rdb *redis.Client,
	logger *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		ticketRepo:   repos.Ticket,
		maintRepo:    repos.Maintenance,
		logRepo:      repos.ActivityLog,
		sync:         syncSvc,
		availability: availability,
		db:           db,
		rdb:          rdb,
		logger:       logger,
	}
}

// SweepResult 单次对账结果
type SweepResult struct {
	TicketsChecked   int  `json:"tickets_checked"`
	TicketsPromoted  int  `json:"tickets_promoted"`   // 纠偏为resolved
	TicketsReverted  int  `json:"tickets_reverted"`   // resolved回退
	TasksScheduled   int  `json:"tasks_scheduled"`    // 自动生成的下一期保养
	TasksSkippedBusy int  `json:"tasks_skipped_busy"` // 资产被占用跳过
	Skipped          bool `json:"skipped"`            // 未抢到锁
}

// Sweep 执行一次对账
func (s *ReconcileService) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}

	if s.rdb != nil {
		ok, err := s.rdb.SetNX(ctx, reconcileLockKey, time.Now().Format(time.RFC3339), reconcileLockTTL).Result()
		switch {
		case err != nil:
			// 纠偏本身幂等，锁服务不可用时降级为无锁执行，不能停摆
			s.logger.Warn("对账锁不可用，降级为无锁执行", zap.Error(err))
		case !ok:
			result.Skipped = true
			return result, nil
		default:
			defer s.rdb.Del(context.Background(), reconcileLockKey)
		}
	}

	if err := s.sweepTickets(ctx, result); err != nil {
		return nil, err
	}
	if err := s.scheduleRecurring(ctx, result); err != nil {
		return nil, err
	}

	s.logger.Info("对账完成",
		zap.Int("tickets_checked", result.TicketsChecked),
		zap.Int("tickets_promoted", result.TicketsPromoted),
		zap.Int("tickets_reverted", result.TicketsReverted),
		zap.Int("tasks_scheduled", result.TasksScheduled),
		zap.Int("tasks_skipped_busy", result.TasksSkippedBusy))
	return result, nil
}

// sweepTickets 重算活跃报修单的解决状态，双向纠偏
func (s *ReconcileService) sweepTickets(ctx context.Context, result *SweepResult) error {
	statuses := []string{
		entity.TicketStatusReceived,
		entity.TicketStatusInProgress,
		entity.TicketStatusApprovedOnSite,
		entity.TicketStatusResolved,
	}
	tickets, err := s.ticketRepo.FindLive(ctx, statuses)
	if err != nil {
		return err
	}

	now := time.Now()
	for i := range tickets {
		ticket := &tickets[i]
		result.TicketsChecked++

		var changed string
		outcome := &Outcome{}
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c, err := s.sync.SyncResolution(ctx, tx, ticket, "system", now, outcome)
			changed = c
			return err
		})
		if err != nil {
			// 单个报修单纠偏失败不中断整轮对账
			s.logger.Warn("报修单对账失败",
				zap.String("ticket_id", ticket.ID),
				zap.String("ticket_code", ticket.TicketCode),
				zap.Error(err))
			continue
		}
		outcome.Broadcast()
		switch changed {
		case entity.TicketStatusResolved:
			result.TicketsPromoted++
		case entity.TicketStatusInProgress:
			result.TicketsReverted++
		}
	}
	return nil
}

// scheduleRecurring 为到期的周期保养生成下一期任务
func (s *ReconcileService) scheduleRecurring(ctx context.Context, result *SweepResult) error {
	now := time.Now()
	due, err := s.maintRepo.FindDueRecurring(ctx, now, recurringLookahead)
	if err != nil {
		return err
	}

	for i := range due {
		prev := &due[i]

		has, err := s.maintRepo.HasSuccessor(ctx, prev.ID)
		if err != nil {
			return err
		}
		if has {
			continue
		}

		busy := false
		for _, item := range prev.Items {
			avail, err := s.availability.Check(ctx, item.AssetID, now)
			if err != nil {
				s.logger.Warn("周期保养资产检查失败",
					zap.String("task_id", prev.ID),
					zap.String("asset_id", item.AssetID),
					zap.Error(err))
				busy = true
				break
			}
			if !avail.Available {
				busy = true
				break
			}
		}
		if busy {
			// 资产被占用时本轮跳过，下轮对账重试
			result.TasksSkippedBusy++
			continue
		}

		if err := s.createSuccessor(ctx, prev, now); err != nil {
			s.logger.Warn("生成下一期保养失败",
				zap.String("task_id", prev.ID),
				zap.Error(err))
			continue
		}
		result.TasksScheduled++
	}
	return nil
}

func (s *ReconcileService) createSuccessor(ctx context.Context, prev *entity.MaintenanceTask, now time.Time) error {
	scheduledAt := now
	if prev.NextDueDate != nil {
		scheduledAt = *prev.NextDueDate
	}
	next := &entity.MaintenanceTask{
		ID:           uuid.New().String()[:32],
		Status:       entity.MaintStatusScheduled,
		Title:        prev.Title,
		BankID:       prev.BankID,
		OperatorID:   prev.OperatorID,
		IntervalDays: prev.IntervalDays,
		ScheduledAt:  scheduledAt,
		PrevTaskID:   &prev.ID,
		CreatedBy:    "system",
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := s.maintRepo.GenerateCode(ctx, now)
		if err != nil {
			return err
		}
		next.TaskCode = code
		if err := tx.Create(next).Error; err != nil {
			return err
		}
		for _, item := range prev.Items {
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
		return err
	}

	s.logRepo.LogActivity(ctx, "maintenance", next.ID, next.TaskCode, "auto_schedule", "", entity.MaintStatusScheduled, "周期保养自动生成下一期", "system")
	return nil
}

// Run 按间隔循环对账，直到ctx取消
func (s *ReconcileService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("对账循环退出")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("对账执行失败", zap.Error(err))
			}
		}
	}
}
