package data

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	pkgerrors "ShipRelay/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// IntegrationPlatform represents the database ENUM type for platform.
type IntegrationPlatform string

// Integration platform constants representing supported external systems.
const (
	PlatformShopify     IntegrationPlatform = "shopify"
	PlatformWooCommerce IntegrationPlatform = "woocommerce"
	PlatformBigCommerce IntegrationPlatform = "bigcommerce"
	PlatformEtsy        IntegrationPlatform = "etsy"
	PlatformAmazon      IntegrationPlatform = "amazon"
	PlatformCustom      IntegrationPlatform = "custom"
)

// Integration is the GORM model for the integrations table. Stats and status
// columns are mutated only through RecordCallResult after each resilient
// client call.
type Integration struct {
	ID          int64               `gorm:"primaryKey;column:id"`
	Name        string              `gorm:"column:name;size:100;not null"`
	Description string              `gorm:"column:description;type:text"`
	Platform    IntegrationPlatform `gorm:"column:platform;type:enum('shopify','woocommerce','bigcommerce','etsy','amazon','custom');not null"`
	BaseURL     string              `gorm:"column:base_url;size:255;not null"`
	// CredentialsEncrypted is the AES-encrypted credential JSON. Token
	// acquisition is external; ShipRelay only stores and refreshes.
	CredentialsEncrypted string     `gorm:"column:credentials_encrypted;type:text"`
	TokenURL             string     `gorm:"column:token_url;size:255"`
	TokenExpiresAt       *time.Time `gorm:"column:token_expires_at"`

	RequestsPerMinute int  `gorm:"column:requests_per_minute;default:0;not null"`
	SyncEnabled       bool `gorm:"column:sync_enabled;default:true;not null"`

	// Status block
	Connected         bool       `gorm:"column:connected;default:false;not null"`
	ConsecutiveErrors int        `gorm:"column:consecutive_errors;default:0;not null"`
	LastError         *string    `gorm:"column:last_error;type:text"`
	LastErrorAt       *time.Time `gorm:"column:last_error_at"`

	// Cumulative stats block
	TotalRequests      int64 `gorm:"column:total_requests;default:0;not null"`
	SuccessfulRequests int64 `gorm:"column:successful_requests;default:0;not null"`
	FailedRequests     int64 `gorm:"column:failed_requests;default:0;not null"`
	AutoFixedRequests  int64 `gorm:"column:auto_fixed_requests;default:0;not null"`
	AvgResponseMs      int64 `gorm:"column:avg_response_ms;default:0;not null"`
	DataTransferred    int64 `gorm:"column:data_transferred;default:0;not null"`

	Metadata  *string   `gorm:"column:metadata;type:json"` // JSON string (pointer for NULL support)
	Version   int32     `gorm:"column:version;default:1;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Integration) TableName() string {
	return "integrations"
}

// Scan implements sql.Scanner interface for IntegrationPlatform.
func (p *IntegrationPlatform) Scan(value interface{}) error {
	if value == nil {
		*p = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*p = IntegrationPlatform(v)
	case string:
		*p = IntegrationPlatform(v)
	default:
		return fmt.Errorf("cannot scan type %T into IntegrationPlatform", value)
	}
	return nil
}

// Value implements driver.Valuer interface for IntegrationPlatform.
func (p IntegrationPlatform) Value() (driver.Value, error) {
	return string(p), nil
}

// CallOutcome is what the resilient client reports back after one call,
// success or exhausted failure.
type CallOutcome struct {
	Success   bool
	LatencyMs int64
	Bytes     int64
	AutoFixed bool
	ErrorKind string
	ErrorMsg  string
}

// IntegrationRepo implements biz.IntegrationRepo (interface defined in the
// biz layer, Kratos DDD style).
type IntegrationRepo struct {
	data   *Data
	db     *gorm.DB
	cache  CacheClient
	logger *log.Helper
}

// NewIntegrationRepo creates a new integration repository.
func NewIntegrationRepo(data *Data, db *gorm.DB, logger log.Logger) *IntegrationRepo {
	return &IntegrationRepo{
		data:   data,
		db:     db,
		cache:  data.GetCache(),
		logger: log.NewHelper(logger),
	}
}

// GetIntegration retrieves one integration, trying the cache first.
func (r *IntegrationRepo) GetIntegration(ctx context.Context, id int64) (*Integration, error) {
	cacheKey := fmt.Sprintf("%s:%d", CacheKeyIntegration, id)

	if r.cache != nil {
		var cached Integration
		if err := r.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, ErrCacheNotFound) {
			r.logger.Warnw("integration cache read failed", "integration_id", id, "error", err)
		}
	}

	var integration Integration
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&integration).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("integration not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get integration: %w", pkgerrors.ClassifyDBError(err))
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, cacheKey, &integration, TTLIntegration); err != nil {
			r.logger.Warnw("integration cache write failed", "integration_id", id, "error", err)
		}
	}

	return &integration, nil
}

// ListIntegrations returns all integrations ordered by name.
func (r *IntegrationRepo) ListIntegrations(ctx context.Context) ([]*Integration, error) {
	var integrations []*Integration
	if err := r.db.WithContext(ctx).Order("name asc").Find(&integrations).Error; err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", pkgerrors.ClassifyDBError(err))
	}
	return integrations, nil
}

// RecordCallResult folds one call outcome into the integration's stats and
// status columns using optimistic locking with retry, and returns the
// updated row. On success the status resets (connected, zero consecutive
// errors); on failure consecutive errors grow and the last error is kept.
func (r *IntegrationRepo) RecordCallResult(ctx context.Context, id int64, outcome CallOutcome) (*Integration, error) {
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		var integration Integration
		if err := r.db.WithContext(ctx).Where("id = ?", id).First(&integration).Error; err != nil {
			return nil, fmt.Errorf("failed to get integration: %w", err)
		}

		currentVersion := integration.Version
		updates := buildCallResultUpdates(&integration, outcome, currentVersion)

		result := r.db.WithContext(ctx).
			Model(&Integration{}).
			Where("id = ? AND version = ?", id, currentVersion).
			Updates(updates)

		if result.Error != nil {
			return nil, fmt.Errorf("failed to record call result: %w", pkgerrors.ClassifyDBError(result.Error))
		}

		if result.RowsAffected > 0 {
			r.clearCache(ctx, id)

			var updated Integration
			if err := r.db.WithContext(ctx).Where("id = ?", id).First(&updated).Error; err != nil {
				return nil, fmt.Errorf("failed to reload integration: %w", err)
			}
			return &updated, nil
		}

		// Version conflict, retry with linear backoff
		backoff := time.Duration(i+1) * 10 * time.Millisecond
		r.logger.Debugw("version conflict recording call result",
			"integration_id", id,
			"retry", i+1,
			"backoff", backoff)
		time.Sleep(backoff)
	}

	return nil, fmt.Errorf("call result update failed after %d retries (version conflicts)", maxRetries)
}

// buildCallResultUpdates computes the stats/status column updates for one
// outcome. Average latency is a running average over total requests.
func buildCallResultUpdates(cur *Integration, outcome CallOutcome, version int32) map[string]interface{} {
	total := cur.TotalRequests + 1
	newAvg := (cur.AvgResponseMs*cur.TotalRequests + outcome.LatencyMs) / total

	updates := map[string]interface{}{
		"total_requests":   total,
		"avg_response_ms":  newAvg,
		"data_transferred": cur.DataTransferred + outcome.Bytes,
		"version":          version + 1,
		"updated_at":       time.Now(),
	}

	if outcome.AutoFixed {
		updates["auto_fixed_requests"] = cur.AutoFixedRequests + 1
	}

	if outcome.Success {
		updates["successful_requests"] = cur.SuccessfulRequests + 1
		updates["connected"] = true
		updates["consecutive_errors"] = 0
	} else {
		updates["failed_requests"] = cur.FailedRequests + 1
		updates["connected"] = false
		updates["consecutive_errors"] = cur.ConsecutiveErrors + 1
		errJSON := fmt.Sprintf(`{"kind":%q,"message":%q}`, outcome.ErrorKind, outcome.ErrorMsg)
		updates["last_error"] = errJSON
		updates["last_error_at"] = time.Now()
	}

	return updates
}

// SetSyncEnabled flips autonomous sync on or off.
func (r *IntegrationRepo) SetSyncEnabled(ctx context.Context, id int64, enabled bool) error {
	result := r.db.WithContext(ctx).
		Model(&Integration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_enabled": enabled,
			"updated_at":   time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update sync flag: %w", pkgerrors.ClassifyDBError(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("integration not found: %d", id)
	}

	r.clearCache(ctx, id)
	return nil
}

// UpdateCredentials stores a freshly refreshed credential blob.
func (r *IntegrationRepo) UpdateCredentials(ctx context.Context, id int64, encrypted string, expiresAt *time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&Integration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"credentials_encrypted": encrypted,
			"token_expires_at":      expiresAt,
			"updated_at":            time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update credentials: %w", pkgerrors.ClassifyDBError(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("integration not found: %d", id)
	}

	r.clearCache(ctx, id)
	return nil
}

// ListExpiringCredentials returns integrations whose token expires within
// the given window, for the cron refresh sweep.
func (r *IntegrationRepo) ListExpiringCredentials(ctx context.Context, within time.Duration) ([]*Integration, error) {
	cutoff := time.Now().Add(within)
	var integrations []*Integration
	err := r.db.WithContext(ctx).
		Where("token_url <> '' AND token_expires_at IS NOT NULL AND token_expires_at < ?", cutoff).
		Find(&integrations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring credentials: %w", pkgerrors.ClassifyDBError(err))
	}
	return integrations, nil
}

// clearCache drops the cached integration row.
func (r *IntegrationRepo) clearCache(ctx context.Context, id int64) {
	if r.cache == nil {
		return
	}
	cacheKey := fmt.Sprintf("%s:%d", CacheKeyIntegration, id)
	if err := r.cache.Delete(ctx, cacheKey); err != nil {
		r.logger.Warnw("failed to clear integration cache", "integration_id", id, "error", err)
	}
}
