package dao

import (
	"context"
	"errors"

	"github.com/abesuite/abe-powminer/dal/do"
	"github.com/abesuite/abe-powminer/errcode"
	"github.com/abesuite/abe-powminer/utils"

	"gorm.io/gorm"
)

type MinedBlockInfoDAO interface {
	Create(ctx context.Context, tx *gorm.DB, info *do.MinedBlockInfo) (int64, error)
	Get(ctx context.Context, tx *gorm.DB, page int, num int, positiveOrder bool) ([]*do.MinedBlockInfo, error)
	GetByBlockHash(ctx context.Context, tx *gorm.DB, blockHash string) (*do.MinedBlockInfo, error)
	GetBlockNum(ctx context.Context, tx *gorm.DB) (int64, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*do.MinedBlockInfo, error)
	ConnectByBlockHash(ctx context.Context, tx *gorm.DB, blockHash string) (int64, error)
	RejectedByBlockHash(ctx context.Context, tx *gorm.DB, blockHash string, info string) (int64, error)
	GetConnectedBlocksHigherThanHeight(ctx context.Context, tx *gorm.DB, height int64) ([]*do.MinedBlockInfo, error)
}

type MinedBlockInfoDAOImpl struct{}

var minedBlockInfoDAO MinedBlockInfoDAO = &MinedBlockInfoDAOImpl{}

func GetMinedBlockInfoDAOImpl() MinedBlockInfoDAO {
	return minedBlockInfoDAO
}

func (m *MinedBlockInfoDAOImpl) Create(ctx context.Context, tx *gorm.DB, info *do.MinedBlockInfo) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	if info == nil {
		return 0, errcode.ErrNilRecord
	}

	query := tx.Create(info)
	return query.RowsAffected, query.Error
}

func (m *MinedBlockInfoDAOImpl) Get(ctx context.Context, tx *gorm.DB, page int, num int, positiveOrder bool) ([]*do.MinedBlockInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	res := make([]*do.MinedBlockInfo, 0)
	if page <= 0 || num <= 0 {
		return res, nil
	}
	var query *gorm.DB
	if positiveOrder {
		query = tx.Model(&do.MinedBlockInfo{}).Offset((page - 1) * num).Limit(num).Find(&res)
	} else {
		query = tx.Model(&do.MinedBlockInfo{}).Order("id desc").Offset((page - 1) * num).Limit(num).Find(&res)
	}
	return res, query.Error
}

func (m *MinedBlockInfoDAOImpl) GetByBlockHash(ctx context.Context, tx *gorm.DB, blockHash string) (*do.MinedBlockInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	res := do.MinedBlockInfo{}
	query := tx.Model(&do.MinedBlockInfo{}).Where("block_hash = ?", blockHash).Take(&res)
	if query.Error != nil {
		return nil, query.Error
	}
	return &res, nil
}

func (m *MinedBlockInfoDAOImpl) GetBlockNum(ctx context.Context, tx *gorm.DB) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	var res int64
	query := tx.Model(&do.MinedBlockInfo{}).Count(&res)
	return res, query.Error
}

func (m *MinedBlockInfoDAOImpl) ConnectByBlockHash(ctx context.Context, tx *gorm.DB, blockHash string) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	if utils.IsBlank(blockHash) {
		return 0, errors.New("internal error: empty block hash")
	}

	query := tx.Model(&do.MinedBlockInfo{}).Where("block_hash = ?", blockHash).Update("connected", 1)
	return query.RowsAffected, query.Error
}

func (m *MinedBlockInfoDAOImpl) RejectedByBlockHash(ctx context.Context, tx *gorm.DB, blockHash string, info string) (int64, error) {
	if tx == nil {
		return 0, errcode.ErrNilGormDB
	}

	if utils.IsBlank(blockHash) {
		return 0, errors.New("internal error: empty block hash")
	}

	query := tx.Model(&do.MinedBlockInfo{}).Where("block_hash = ?", blockHash).Updates(do.MinedBlockInfo{Rejected: 1, Info: info})
	return query.RowsAffected, query.Error
}

func (m *MinedBlockInfoDAOImpl) GetConnectedBlocksHigherThanHeight(ctx context.Context, tx *gorm.DB, height int64) ([]*do.MinedBlockInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	var res []*do.MinedBlockInfo
	query := tx.Model(&do.MinedBlockInfo{}).Where("height > ?", height).Where("connected = ?", 1).Find(&res)
	return res, query.Error
}

func (m *MinedBlockInfoDAOImpl) GetAll(ctx context.Context, tx *gorm.DB) ([]*do.MinedBlockInfo, error) {
	if tx == nil {
		return nil, errcode.ErrNilGormDB
	}

	var infos []*do.MinedBlockInfo
	query := tx.Model(&do.MinedBlockInfo{}).Find(&infos)
	if query.Error != nil {
		return nil, query.Error
	}
	return infos, nil
}
