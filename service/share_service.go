package service

import (
	"context"
	"errors"
	"time"

	"github.com/abesuite/abe-powminer/dal/dao"
	"github.com/abesuite/abe-powminer/dal/do"
	"github.com/abesuite/abe-powminer/model"
	"github.com/abesuite/abe-powminer/utils"

	"gorm.io/gorm"
)

type ShareService interface {
	AddShare(ctx context.Context, db *gorm.DB, shareInfo *model.ShareInfo, recordDetail bool) error
	AddRejectedShare(ctx context.Context, db *gorm.DB, worker string) error
	GetShares(ctx context.Context, tx *gorm.DB, worker string, page int, num int) ([]*do.DetailedShareInfo, error)
	GetShareCount(ctx context.Context, tx *gorm.DB, worker string) (int64, error)
	PruneShares(ctx context.Context, tx *gorm.DB, before time.Time) (int64, error)
	AddMinedBlock(ctx context.Context, db *gorm.DB, shareInfo *model.ShareInfo) error
	GetMinedBlocks(ctx context.Context, tx *gorm.DB, page int, num int, positiveOrder bool) ([]*do.MinedBlockInfo, error)
	GetMinedBlockNum(ctx context.Context, tx *gorm.DB) (int64, error)
	ConnectBlock(ctx context.Context, tx *gorm.DB, blockHash string) error
	RejectBlock(ctx context.Context, tx *gorm.DB, blockNotification *model.BlockNotification) error
}

type ShareServiceImpl struct {
	workerInfoDao        dao.WorkerInfoDAO
	detailedShareInfoDao dao.DetailedShareInfoDAO
	minedBlockInfoDao    dao.MinedBlockInfoDAO
}

var shareService ShareService = &ShareServiceImpl{
	workerInfoDao:        dao.GetWorkerInfoDAOImpl(),
	detailedShareInfoDao: dao.GetDetailedShareInfoDAOImpl(),
	minedBlockInfoDao:    dao.GetMinedBlockInfoDAOImpl(),
}

func GetShareService() ShareService {
	return shareService
}

// AddShare counts an accepted share for its worker and, when recordDetail
// is set, keeps the share itself.
func (s *ShareServiceImpl) AddShare(ctx context.Context, db *gorm.DB, shareInfo *model.ShareInfo, recordDetail bool) error {
	if shareInfo == nil {
		return errors.New("nil share info")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.workerInfoDao.AddShares(ctx, tx, shareInfo.Worker, 1, 0)
		if err != nil {
			log.Errorf("Internal error: unable to add share for %v: %v", shareInfo.Worker, err)
			return err
		}

		if !recordDetail {
			return nil
		}
		_, err = s.detailedShareInfoDao.Create(ctx, tx, model.ConvertShareInfoToDO(shareInfo))
		if err != nil {
			log.Errorf("Create detailed share info error: %v", err)
			return err
		}
		return nil
	})
}

func (s *ShareServiceImpl) AddRejectedShare(ctx context.Context, db *gorm.DB, worker string) error {
	_, err := s.workerInfoDao.AddShares(ctx, db.WithContext(ctx), worker, 0, 1)
	return err
}

func (s *ShareServiceImpl) GetShares(ctx context.Context, tx *gorm.DB, worker string, page int, num int) ([]*do.DetailedShareInfo, error) {
	return s.detailedShareInfoDao.GetByWorker(ctx, tx, worker, page, num)
}

func (s *ShareServiceImpl) GetShareCount(ctx context.Context, tx *gorm.DB, worker string) (int64, error) {
	return s.detailedShareInfoDao.GetShareNum(ctx, tx, worker)
}

func (s *ShareServiceImpl) PruneShares(ctx context.Context, tx *gorm.DB, before time.Time) (int64, error) {
	return s.detailedShareInfoDao.DeleteBefore(ctx, tx, before)
}

// AddMinedBlock records a share that solved a block and credits its worker.
func (s *ShareServiceImpl) AddMinedBlock(ctx context.Context, db *gorm.DB, shareInfo *model.ShareInfo) error {
	if shareInfo == nil {
		return errors.New("nil share info")
	}

	minedBlockInfo := model.ConvertShareInfoToMinedBlockDO(shareInfo)
	if minedBlockInfo == nil {
		return errors.New("share did not solve a block")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.minedBlockInfoDao.Create(ctx, tx, minedBlockInfo)
		if err != nil {
			return err
		}
		_, err = s.workerInfoDao.AddMinedBlock(ctx, tx, shareInfo.Worker)
		return err
	})
}

func (s *ShareServiceImpl) GetMinedBlocks(ctx context.Context, tx *gorm.DB, page int, num int, positiveOrder bool) ([]*do.MinedBlockInfo, error) {
	return s.minedBlockInfoDao.Get(ctx, tx, page, num, positiveOrder)
}

func (s *ShareServiceImpl) GetMinedBlockNum(ctx context.Context, tx *gorm.DB) (int64, error) {
	return s.minedBlockInfoDao.GetBlockNum(ctx, tx)
}

func (s *ShareServiceImpl) ConnectBlock(ctx context.Context, tx *gorm.DB, blockHash string) error {
	if utils.IsBlank(blockHash) {
		return errors.New("empty blockHash")
	}

	_, err := s.minedBlockInfoDao.ConnectByBlockHash(ctx, tx, blockHash)
	return err
}

func (s *ShareServiceImpl) RejectBlock(ctx context.Context, tx *gorm.DB, blockNotification *model.BlockNotification) error {
	if blockNotification == nil {
		return errors.New("nil blockNotification")
	}

	_, err := s.minedBlockInfoDao.RejectedByBlockHash(ctx, tx, blockNotification.BlockHash.String(), blockNotification.Info)
	return err
}
