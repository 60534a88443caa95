package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CatalogSync/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrRunNotFound 对账批次不存在
var ErrRunNotFound = errors.New("reconcile run not found")

// verdictBatchSize 结论分批写入，避免单条 INSERT 参数过多
const verdictBatchSize = 500

// AuditRepository 对账审计仓储：每次发布的批次与结论
type AuditRepository interface {
	SaveRun(ctx context.Context, run *model.ReconcileRun, verdicts []*model.MatchVerdict) error
	ListRuns(ctx context.Context, filter RunFilter, page, pageSize int) ([]*model.ReconcileRun, int64, error)
	GetRun(ctx context.Context, runUUID string) (*model.ReconcileRun, error)
	ListVerdicts(ctx context.Context, runUUID string) ([]*model.VerdictRecord, error)
	LatestRun(ctx context.Context) (*model.ReconcileRun, error)
}

// RunFilter 批次列表筛选
type RunFilter struct {
	Status   string     // published / failed
	FromTime *time.Time // 开始时间起
	ToTime   *time.Time // 开始时间止
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

// AutoMigrate 建表（不存在则创建）
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.ReconcileRun{}, &model.VerdictRecord{})
}

// SaveRun 在一个事务内写入批次及其全部结论
func (r *auditRepository) SaveRun(ctx context.Context, run *model.ReconcileRun, verdicts []*model.MatchVerdict) error {
	records := make([]*model.VerdictRecord, 0, len(verdicts))
	for _, v := range verdicts {
		evidence, err := json.Marshal(v.Evidence)
		if err != nil {
			return fmt.Errorf("序列化证据失败: %w", err)
		}
		records = append(records, &model.VerdictRecord{
			RunUUID:      run.RunUUID,
			LeftEntryID:  v.LeftEntryID,
			RightEntryID: v.RightEntryID,
			Status:       string(v.Status),
			Confidence:   string(v.Confidence),
			RuleID:       v.RuleID,
			Evidence:     datatypes.JSON(evidence),
		})
	}
	run.VerdictCount = len(records)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("写入对账批次失败: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(records, verdictBatchSize).Error; err != nil {
			return fmt.Errorf("写入匹配结论失败: %w", err)
		}
		return nil
	})
}

func (r *auditRepository) ListRuns(ctx context.Context, filter RunFilter, page, pageSize int) ([]*model.ReconcileRun, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	db := r.db.WithContext(ctx).Model(&model.ReconcileRun{})
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.FromTime != nil {
		db = db.Where("started_at >= ?", *filter.FromTime)
	}
	if filter.ToTime != nil {
		db = db.Where("started_at <= ?", *filter.ToTime)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []*model.ReconcileRun
	if err := db.Order("started_at DESC").Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *auditRepository) GetRun(ctx context.Context, runUUID string) (*model.ReconcileRun, error) {
	var run model.ReconcileRun
	if err := r.db.WithContext(ctx).Where("run_uuid = ?", runUUID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

func (r *auditRepository) ListVerdicts(ctx context.Context, runUUID string) ([]*model.VerdictRecord, error) {
	var list []*model.VerdictRecord
	if err := r.db.WithContext(ctx).Where("run_uuid = ?", runUUID).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *auditRepository) LatestRun(ctx context.Context) (*model.ReconcileRun, error) {
	var run model.ReconcileRun
	if err := r.db.WithContext(ctx).Order("started_at DESC").Order("id DESC").First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}
