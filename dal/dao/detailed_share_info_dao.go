package dao

import (
	"context"
	"time"

	"github.com/abesuite/abe-powminer/dal/do"
	"github.com/abesuite/abe-powminer/errcode"

	"gorm.io/gorm"
)

type DetailedShareInfoDAO interface {
	Create(ctx context.Context, tx *gorm.DB, info *do.DetailedShareInfo) (int64, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*do.DetailedShareInfo, error)
	GetByWorker(ctx context.Context, tx *gorm.DB, worker string, page int, num int) ([]*do.DetailedShareInfo, error)
	GetShareNum(ctx context.Context, tx *gorm.DB, worker string) (int64, error)
	DeleteBefore(ctx context.Context, tx *gorm.DB, before time.Time) (int64, error)
}

type DetailedShareInfoDAOImpl struct{}

var detailedShareInfoDAO DetailedShareInfoDAO = &DetailedShareInfoDAOImpl{}

func GetDetailedShareInfoDAOImpl() DetailedShareInfoDAO {
	return detailedShareInfoDAO
}

func (s *DetailedShareInfoDAOImpl) Create(ctx context.Context, tx *gorm.DB, info *do.DetailedShareInfo) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	if info == nil {
		return 0, errcode.ErrNilRecord
	}

	query := tx.Create(info)
	return query.RowsAffected, query.Error
}

func (s *DetailedShareInfoDAOImpl) GetAll(ctx context.Context, tx *gorm.DB) ([]*do.DetailedShareInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	var infos []*do.DetailedShareInfo
	query := tx.Model(&do.DetailedShareInfo{}).Find(&infos)
	if query.Error != nil {
		return nil, query.Error
	}
	return infos, nil
}

// GetByWorker returns one page of the shares of worker, newest first.
func (s *DetailedShareInfoDAOImpl) GetByWorker(ctx context.Context, tx *gorm.DB, worker string, page int, num int) ([]*do.DetailedShareInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	res := make([]*do.DetailedShareInfo, 0)
	if page <= 0 || num <= 0 {
		return res, nil
	}
	query := tx.Model(&do.DetailedShareInfo{}).Where("worker = ?", worker).
		Order("id desc").Offset((page - 1) * num).Limit(num).Find(&res)
	return res, query.Error
}

// GetShareNum counts the shares of worker, or of every worker when worker
// is empty.
func (s *DetailedShareInfoDAOImpl) GetShareNum(ctx context.Context, tx *gorm.DB, worker string) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	var res int64
	query := tx.Model(&do.DetailedShareInfo{})
	if worker != "" {
		query = query.Where("worker = ?", worker)
	}
	query = query.Count(&res)
	return res, query.Error
}

func (s *DetailedShareInfoDAOImpl) DeleteBefore(ctx context.Context, tx *gorm.DB, before time.Time) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	query := tx.Where("created_at < ?", before).Delete(&do.DetailedShareInfo{})
	return query.RowsAffected, query.Error
}
