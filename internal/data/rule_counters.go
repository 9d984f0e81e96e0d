package data

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// RuleCounterRepo implements biz.RuleCounterRepo on Redis. Daily counters
// expire at local midnight so the per-day ceiling resets naturally; per-order
// counters are long-lived. Counter failures are returned to the caller, which
// degrades by allowing the execution.
type RuleCounterRepo struct {
	rdb    *redis.Client
	now    func() time.Time
	logger *log.Helper
}

// NewRuleCounterRepo creates a new rule counter repository.
func NewRuleCounterRepo(data *Data, logger log.Logger) *RuleCounterRepo {
	return &RuleCounterRepo{
		rdb:    data.GetRedisClient(),
		now:    time.Now,
		logger: log.NewHelper(logger),
	}
}

var errCountersUnavailable = errors.New("rule counters: redis unavailable")

func (r *RuleCounterRepo) dailyKey(ruleID int64) string {
	return BuildCacheKey(CacheKeyRuleDaily, r.now().Format("20060102"), strconv.FormatInt(ruleID, 10))
}

func orderKey(ruleID, orderID int64) string {
	return BuildCacheKey(CacheKeyRuleOrder, strconv.FormatInt(ruleID, 10), strconv.FormatInt(orderID, 10))
}

// IncrementDaily bumps today's execution counter for the rule and returns the
// new count. The key expires at the next local midnight.
func (r *RuleCounterRepo) IncrementDaily(ctx context.Context, ruleID int64) (int64, error) {
	if r.rdb == nil {
		return 0, errCountersUnavailable
	}

	key := r.dailyKey(ruleID)
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment daily counter: %w", err)
	}

	if count == 1 {
		now := r.now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
		if err := r.rdb.ExpireAt(ctx, key, midnight).Err(); err != nil {
			r.logger.Warnw("failed to set daily counter expiry", "rule_id", ruleID, "error", err)
		}
	}

	return count, nil
}

// GetDailyCount returns today's execution count for the rule.
func (r *RuleCounterRepo) GetDailyCount(ctx context.Context, ruleID int64) (int64, error) {
	if r.rdb == nil {
		return 0, errCountersUnavailable
	}
	return r.getCount(ctx, r.dailyKey(ruleID))
}

// IncrementOrder bumps the per-order execution counter for the rule.
func (r *RuleCounterRepo) IncrementOrder(ctx context.Context, ruleID, orderID int64) (int64, error) {
	if r.rdb == nil {
		return 0, errCountersUnavailable
	}

	key := orderKey(ruleID, orderID)
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment order counter: %w", err)
	}
	if count == 1 {
		if err := r.rdb.Expire(ctx, key, TTLRuleOrder).Err(); err != nil {
			r.logger.Warnw("failed to set order counter expiry", "rule_id", ruleID, "error", err)
		}
	}
	return count, nil
}

// GetOrderCount returns the per-order execution count for the rule.
func (r *RuleCounterRepo) GetOrderCount(ctx context.Context, ruleID, orderID int64) (int64, error) {
	if r.rdb == nil {
		return 0, errCountersUnavailable
	}
	return r.getCount(ctx, orderKey(ruleID, orderID))
}

func (r *RuleCounterRepo) getCount(ctx context.Context, key string) (int64, error) {
	val, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed counter value %q: %w", val, err)
	}
	return count, nil
}
