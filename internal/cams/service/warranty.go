package service

import (
	"context"
	"time"
)

// WarrantyTerms 保修条款
type WarrantyTerms struct {
	PeriodDays int       `json:"period_days"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
}

// WarrantyCalculator 保修协作方接口
// 仅在质检通过时调用；计算失败不阻断完工流程，记日志后继续
type WarrantyCalculator interface {
	Calculate(ctx context.Context, organizationID string, completedAt time.Time) (*WarrantyTerms, error)
}

// DefaultWarrantyDays 默认保修期
const DefaultWarrantyDays = 90

// FixedWarrantyCalculator 固定期限保修计算器
type FixedWarrantyCalculator struct {
	PeriodDays int
}

func NewFixedWarrantyCalculator(periodDays int) *FixedWarrantyCalculator {
	if periodDays <= 0 {
		periodDays = DefaultWarrantyDays
	}
	return &FixedWarrantyCalculator{PeriodDays: periodDays}
}

// Calculate 自完工日起算固定天数
func (c *FixedWarrantyCalculator) Calculate(ctx context.Context, organizationID string, completedAt time.Time) (*WarrantyTerms, error) {
	return &WarrantyTerms{
		PeriodDays: c.PeriodDays,
		StartDate:  completedAt,
		EndDate:    completedAt.AddDate(0, 0, c.PeriodDays),
	}, nil
}
