package jobstore

import (
	"context"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/keanuklestil/ichiba/internal/kinderr"
)

// Store is a gorm-backed repository of job Records, following the
// migrate-then-query shape of nhbchain's otc-gateway models package
// (AutoMigrate at open time, plain Where/Find/Order queries at call time).
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) a sqlite-backed job store at path. Pass
// ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "open job store", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "migrate job store", err)
	}
	return &Store{db: db}, nil
}

// Create inserts rec, stamping CreatedAt/UpdatedAt if unset.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return kinderr.Wrap(kinderr.Internal, "insert job record", err)
	}
	return nil
}

// Get fetches a single record by id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "load job record", err)
	}
	return &rec, nil
}

// UpdateStatus transitions id to status, merging any additional fields
// (e.g. payment_hash, error_message) in the same update.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status, fields map[string]any) error {
	updates := map[string]any{"status": status, "updated_at": time.Now()}
	for k, v := range fields {
		updates[k] = v
	}
	result := s.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return kinderr.Wrap(kinderr.Internal, "update job record", result.Error)
	}
	if result.RowsAffected == 0 {
		return kinderr.New(kinderr.Internal, "no job record matched for update: "+id)
	}
	return nil
}

// ListPendingPayment returns every record still awaiting a payment
// determination, for the reconciler to poll.
func (s *Store) ListPendingPayment(ctx context.Context) ([]*Record, error) {
	var recs []*Record
	if err := s.db.WithContext(ctx).Where("status = ?", StatusPendingPayment).Find(&recs).Error; err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "list pending-payment job records", err)
	}
	return recs, nil
}

// HistoryPage is the result of GetHistory: a finite, stably paginated slice
// of records ordered by CreatedAt descending (id as a tiebreak for equal
// timestamps, so pagination is stable across pages).
type HistoryPage struct {
	Entries  []*Record
	Total    int64
	Page     int
	PageSize int
}

// HistoryQuery is the input to GetHistory.
type HistoryQuery struct {
	Page   int // 1-based; values < 1 are treated as 1
	Limit  int // values < 1 are treated as 20
	Status *Status
}

// GetHistory returns one page of job records, most recent first.
func (s *Store) GetHistory(ctx context.Context, q HistoryQuery) (*HistoryPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = 20
	}

	scope := s.db.WithContext(ctx).Model(&Record{})
	if q.Status != nil {
		scope = scope.Where("status = ?", *q.Status)
	}

	var total int64
	if err := scope.Count(&total).Error; err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "count job records", err)
	}

	var entries []*Record
	if err := scope.Order("created_at DESC, id ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "page job records", err)
	}

	return &HistoryPage{Entries: entries, Total: total, Page: page, PageSize: limit}, nil
}

// Statistics is the result of GetStatistics.
type Statistics struct {
	Total       int64
	Completed   int64
	Errored     int64
	RevenueSats int64
	PeriodLabel string
}

// GetStatistics summarizes every job record ever stored. PeriodLabel is
// always "all-time"; callers wanting a windowed summary filter by CreatedAt
// themselves via GetHistory.
func (s *Store) GetStatistics(ctx context.Context) (*Statistics, error) {
	base := s.db.WithContext(ctx).Model(&Record{})

	var total, completed, errored int64
	if err := base.Count(&total).Error; err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "count job records", err)
	}
	if err := s.db.WithContext(ctx).Model(&Record{}).Where("status = ?", StatusCompleted).Count(&completed).Error; err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "count completed job records", err)
	}
	if err := s.db.WithContext(ctx).Model(&Record{}).Where("status = ?", StatusError).Count(&errored).Error; err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "count errored job records", err)
	}

	var revenue struct{ Sum int64 }
	if err := s.db.WithContext(ctx).Model(&Record{}).
		Where("status IN ?", []Status{StatusPaid, StatusCompleted}).
		Select("COALESCE(SUM(invoice_amount_sats), 0) AS sum").
		Scan(&revenue).Error; err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "sum job record revenue", err)
	}

	return &Statistics{
		Total:       total,
		Completed:   completed,
		Errored:     errored,
		RevenueSats: revenue.Sum,
		PeriodLabel: "all-time",
	}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return kinderr.Wrap(kinderr.Internal, "access underlying db handle", err)
	}
	return sqlDB.Close()
}
