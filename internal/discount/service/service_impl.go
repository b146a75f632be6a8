package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront-ledger/internal/clock"
	"github.com/smallbiznis/storefront-ledger/internal/config"
	discountdomain "github.com/smallbiznis/storefront-ledger/internal/discount/domain"
	"github.com/smallbiznis/storefront-ledger/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/storefront-ledger/internal/order/domain"
	"github.com/smallbiznis/storefront-ledger/internal/period"
	"github.com/smallbiznis/storefront-ledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultDecayBatchSize = 200

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Cfg       config.Config
	Ledger    *config.LedgerConfigHolder
	Repo      discountdomain.Repository
	OrderRepo orderdomain.Repository
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	ledger         *config.LedgerConfigHolder
	repo           discountdomain.Repository
	orderRepo      orderdomain.Repository
	decayBatchSize int
	metrics        *metrics.LedgerMetrics
}

func New(p Params) discountdomain.Service {
	batchSize := p.Cfg.Scheduler.BatchSize
	if batchSize <= 0 {
		batchSize = defaultDecayBatchSize
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("discount.service"),
		clock:          p.Clock,
		ledger:         p.Ledger,
		repo:           p.Repo,
		orderRepo:      p.OrderRepo,
		decayBatchSize: batchSize,
		metrics:        metrics.Ledger(),
	}
}

type tier struct {
	level     discountdomain.Level
	threshold decimal.Decimal
	percent   decimal.Decimal
}

func tiersOf(cfg config.LedgerConfig) []tier {
	tiers := make([]tier, 0, len(cfg.Discount.Tiers))
	for _, rule := range cfg.Discount.Tiers {
		tiers = append(tiers, tier{
			level:     discountdomain.Level(strings.ToUpper(rule.Level)),
			threshold: rule.Threshold,
			percent:   rule.Percent,
		})
	}
	return tiers
}

// levelFor returns the highest tier whose threshold total meets.
func levelFor(tiers []tier, total decimal.Decimal) discountdomain.Level {
	for i := len(tiers) - 1; i >= 0; i-- {
		if total.GreaterThanOrEqual(tiers[i].threshold) {
			return tiers[i].level
		}
	}
	return discountdomain.LevelNone
}

func findTier(tiers []tier, level discountdomain.Level) (tier, bool) {
	for _, t := range tiers {
		if t.level == level {
			return t, true
		}
	}
	return tier{level: discountdomain.LevelNone, threshold: decimal.Zero, percent: decimal.Zero}, false
}

func (s *Service) OnOrderPaid(ctx context.Context, userID, orderID uuid.UUID) error {
	order, err := s.orderRepo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return err
	}
	if order == nil || order.UserID != userID || !order.IsPaid() {
		s.log.Debug("order does not qualify for tier update",
			zap.String("user_id", userID.String()),
			zap.String("order_id", orderID.String()),
		)
		return nil
	}

	// A concurrent first purchase may insert the record between our read and write.
	for attempt := 0; ; attempt++ {
		err = s.raiseTier(ctx, userID)
		if err == nil || attempt > 0 || !db.IsDuplicateKeyErr(err) {
			return err
		}
	}
}

func (s *Service) raiseTier(ctx context.Context, userID uuid.UUID) error {
	cfg := s.ledger.Get()
	loc := cfg.Location()
	now := s.clock.Now().UTC()
	month := period.MonthOf(now, loc)
	tiers := tiersOf(cfg)

	var before, after discountdomain.Level
	var decayed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		total, err := s.orderRepo.SumPaidSince(ctx, tx, userID, month.Start)
		if err != nil {
			return err
		}
		computed := levelFor(tiers, total)

		record, err := s.repo.Find(ctx, tx, userID)
		if err != nil {
			return err
		}
		isNew := record == nil
		if isNew {
			record = &discountdomain.Record{
				UserID:       userID,
				CurrentLevel: discountdomain.LevelNone,
				CreatedAt:    now,
			}
		}
		before = record.CurrentLevel

		if !record.CheckedFor(month.Key) && record.CurrentLevel != discountdomain.LevelNone {
			prev := month.Previous(loc)
			active, err := s.orderRepo.HasPaidInRange(ctx, tx, userID, prev.Start, prev.End)
			if err != nil {
				return err
			}
			if !active {
				record.CurrentLevel = record.CurrentLevel.Lower()
				decayed = true
			}
		}

		record.CurrentLevel = discountdomain.MaxLevel(record.CurrentLevel, computed)
		local := now.In(loc)
		today := datatypes.Date(time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC))
		record.LastPurchaseDate = &today
		key := month.Key
		record.DecayCheckedPeriod = &key
		record.UpdatedAt = now
		after = record.CurrentLevel

		if isNew {
			return s.repo.Insert(ctx, tx, record)
		}
		return s.repo.Update(ctx, tx, record)
	})
	if err != nil {
		return err
	}

	if before != after {
		cause := "order_paid"
		if decayed && after.Rank() < before.Rank() {
			cause = "decay"
		}
		s.metrics.IncDiscountChange(string(before), string(after), cause)
		s.log.Info("discount tier changed",
			zap.String("user_id", userID.String()),
			zap.String("from", string(before)),
			zap.String("to", string(after)),
		)
	}
	return nil
}

func (s *Service) currentLevel(ctx context.Context, userID uuid.UUID) (discountdomain.Level, error) {
	record, err := s.repo.Find(ctx, s.db, userID)
	if err != nil {
		return discountdomain.LevelNone, err
	}
	if record == nil {
		return discountdomain.LevelNone, nil
	}
	return record.CurrentLevel, nil
}

func (s *Service) Progress(ctx context.Context, userID uuid.UUID) (*discountdomain.Progress, error) {
	cfg := s.ledger.Get()
	month := period.MonthOf(s.clock.Now(), cfg.Location())
	tiers := tiersOf(cfg)

	total, err := s.orderRepo.SumPaidSince(ctx, s.db, userID, month.Start)
	if err != nil {
		return nil, err
	}
	level, err := s.currentLevel(ctx, userID)
	if err != nil {
		return nil, err
	}
	current, _ := findTier(tiers, level)

	progress := &discountdomain.Progress{
		CurrentTotal:   total,
		CurrentLevel:   level,
		CurrentPercent: current.percent,
		RequiredTotal:  decimal.Zero,
		AmountLeft:     decimal.Zero,
		NextLevel:      level,
		NextPercent:    current.percent,
	}

	nextLevel, ok := level.Next()
	if !ok {
		return progress, nil
	}
	next, _ := findTier(tiers, nextLevel)
	progress.NextLevel = nextLevel
	progress.NextPercent = next.percent
	progress.RequiredTotal = next.threshold
	if left := next.threshold.Sub(total); left.IsPositive() {
		progress.AmountLeft = left.Round(2)
	}
	return progress, nil
}

func (s *Service) CurrentPercent(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	level, err := s.currentLevel(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	t, _ := findTier(tiersOf(s.ledger.Get()), level)
	return t.percent, nil
}

func (s *Service) Multiplier(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	percent, err := s.CurrentPercent(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return hundred.Sub(percent).Div(hundred).Round(4), nil
}

func (s *Service) MonthlyDecay(ctx context.Context) (*discountdomain.DecayReport, error) {
	cfg := s.ledger.Get()
	loc := cfg.Location()
	now := s.clock.Now().UTC()
	month := period.MonthOf(now, loc)
	prev := month.Previous(loc)

	report := &discountdomain.DecayReport{Period: month.Key}
	var after *uuid.UUID
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		batch, err := s.repo.ListDecayCandidates(ctx, s.db, month.Key, after, s.decayBatchSize)
		if err != nil {
			return report, err
		}
		for i := range batch {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			record := batch[i]
			report.Checked++

			changed, err := s.decayUser(ctx, record, prev, month.Key, now)
			if err != nil {
				report.Failed++
				s.metrics.IncDiscountDecayError()
				s.log.Error("discount.decay.failed",
					zap.String("user_id", record.UserID.String()),
					zap.String("period", month.Key),
					zap.Error(err),
				)
				continue
			}
			if changed {
				report.Decayed++
				s.metrics.IncDiscountChange(string(record.CurrentLevel), string(record.CurrentLevel.Lower()), "decay")
			}
		}

		if len(batch) < s.decayBatchSize {
			break
		}
		last := batch[len(batch)-1].UserID
		after = &last
	}

	if report.Checked > 0 {
		s.log.Info("discount decay finished",
			zap.String("period", report.Period),
			zap.Int("checked", report.Checked),
			zap.Int("decayed", report.Decayed),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

// decayUser drops one rank when the user had no paid order in prev and marks
// the record checked for period either way.
func (s *Service) decayUser(ctx context.Context, record discountdomain.Record, prev period.Month, periodKey string, now time.Time) (bool, error) {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.orderRepo.HasPaidInRange(ctx, tx, record.UserID, prev.Start, prev.End)
		if err != nil {
			return err
		}
		target := record.CurrentLevel
		if !active {
			target = record.CurrentLevel.Lower()
		}
		ok, err := s.repo.ApplyDecay(ctx, tx, record.UserID, record.CurrentLevel, target, periodKey, now)
		if err != nil {
			return err
		}
		changed = ok && target != record.CurrentLevel
		return nil
	})
	return changed, err
}
