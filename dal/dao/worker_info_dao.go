package dao

import (
	"context"
	"time"

	"github.com/abesuite/abe-powminer/dal/do"
	"github.com/abesuite/abe-powminer/errcode"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WorkerInfoDAO interface {
	Touch(ctx context.Context, tx *gorm.DB, address string, seenAt time.Time) error
	GetByAddress(ctx context.Context, tx *gorm.DB, address string) (*do.WorkerInfo, error)
	GetWorkerNum(ctx context.Context, tx *gorm.DB) (int64, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*do.WorkerInfo, error)
	AddShares(ctx context.Context, tx *gorm.DB, address string, accepted int64, rejected int64) (int64, error)
	AddMinedBlock(ctx context.Context, tx *gorm.DB, address string) (int64, error)
}

type WorkerInfoDAOImpl struct{}

var workerInfoDAO WorkerInfoDAO = &WorkerInfoDAOImpl{}

func GetWorkerInfoDAOImpl() WorkerInfoDAO {
	return workerInfoDAO
}

// Touch creates the worker row on first sight and refreshes its last seen
// time afterwards.
func (w *WorkerInfoDAOImpl) Touch(ctx context.Context, tx *gorm.DB, address string, seenAt time.Time) error {
	if tx == nil {
		return errcode.ErrNilGormDB
	}

	info := &do.WorkerInfo{
		Address:    address,
		LastSeenAt: seenAt,
	}
	query := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at", "updated_at"}),
	}).Create(info)
	return query.Error
}

func (w *WorkerInfoDAOImpl) GetByAddress(ctx context.Context, tx *gorm.DB, address string) (*do.WorkerInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	res := do.WorkerInfo{}
	query := tx.Model(&do.WorkerInfo{}).Where("address = ?", address).Take(&res)
	if query.Error != nil {
		return nil, query.Error
	}
	return &res, nil
}

func (w *WorkerInfoDAOImpl) GetWorkerNum(ctx context.Context, tx *gorm.DB) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	var res int64
	query := tx.Model(&do.WorkerInfo{}).Count(&res)
	return res, query.Error
}

func (w *WorkerInfoDAOImpl) GetAll(ctx context.Context, tx *gorm.DB) ([]*do.WorkerInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	infos := make([]*do.WorkerInfo, 0)
	query := tx.Find(&infos)
	return infos, query.Error
}

func (w *WorkerInfoDAOImpl) AddShares(ctx context.Context, tx *gorm.DB, address string, accepted int64, rejected int64) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	query := tx.Model(&do.WorkerInfo{}).Where("address = ?", address).Updates(map[string]interface{}{
		"accepted_shares": gorm.Expr("accepted_shares + ?", accepted),
		"rejected_shares": gorm.Expr("rejected_shares + ?", rejected),
	})
	return query.RowsAffected, query.Error
}

func (w *WorkerInfoDAOImpl) AddMinedBlock(ctx context.Context, tx *gorm.DB, address string) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	query := tx.Model(&do.WorkerInfo{}).Where("address = ?", address).Update("mined_blocks", gorm.Expr("mined_blocks + ?", 1))
	return query.RowsAffected, query.Error
}
