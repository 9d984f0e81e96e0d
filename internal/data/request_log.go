package data

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// RequestLog is the GORM model for the request_logs table: one row per
// resilient client call, success or exhausted failure, including circuit
// rejections that never reached the wire.
type RequestLog struct {
	ID            int64     `gorm:"primaryKey;column:id"`
	IntegrationID int64     `gorm:"column:integration_id;not null;index"`
	Endpoint      string    `gorm:"column:endpoint;size:255;not null"`
	Method        string    `gorm:"column:method;size:10;not null"`
	Status        int       `gorm:"column:status;default:0;not null"`
	LatencyMs     int64     `gorm:"column:latency_ms;default:0;not null"`
	Attempts      int       `gorm:"column:attempts;default:0;not null"`
	AutoFixed     bool      `gorm:"column:auto_fixed;default:false;not null"`
	ErrorKind     string    `gorm:"column:error_kind;size:50;default:''"`
	ErrorMsg      string    `gorm:"column:error_msg;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName specifies the table name for GORM
func (RequestLog) TableName() string {
	return "request_logs"
}

// RequestLogWriter implements biz.RequestLogRepo with an async channel, same
// shape as the audit logger: the call path never waits on the database.
type RequestLogWriter struct {
	db      *gorm.DB
	logChan chan *RequestLog
	logger  *log.Helper
}

// NewRequestLogWriter creates the async request log writer.
func NewRequestLogWriter(db *gorm.DB, logger log.Logger) *RequestLogWriter {
	w := &RequestLogWriter{
		db:      db,
		logChan: make(chan *RequestLog, 1000),
		logger:  log.NewHelper(logger),
	}
	go w.start()
	return w
}

func (w *RequestLogWriter) start() {
	for entry := range w.logChan {
		ctx := context.Background()
		if err := w.db.WithContext(ctx).Create(entry).Error; err != nil {
			w.logger.Errorw("failed to write request log",
				"integration_id", entry.IntegrationID,
				"endpoint", entry.Endpoint,
				"error", err)
		}
	}
}

// Append queues one request log entry. A full buffer drops the entry with a
// warning rather than stalling the call path.
func (w *RequestLogWriter) Append(ctx context.Context, entry *RequestLog) {
	select {
	case w.logChan <- entry:
	default:
		w.logger.Warnw("request log channel full, dropping entry",
			"integration_id", entry.IntegrationID,
			"endpoint", entry.Endpoint)
	}
}
