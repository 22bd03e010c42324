package service

import (
	"context"
	"fmt"
	"time"

	"github.com/abesuite/abe-powminer/dal/dao"
	"github.com/abesuite/abe-powminer/dal/do"
	"github.com/abesuite/abe-powminer/utils"

	"gorm.io/gorm"
)

// MaxWorkerNameLength bounds the worker address stored per connection.
const MaxWorkerNameLength = 100

type WorkerService interface {
	WorkerSeen(ctx context.Context, tx *gorm.DB, address string, seenAt time.Time) error
	GetWorker(ctx context.Context, tx *gorm.DB, address string) (*do.WorkerInfo, error)
	GetWorkers(ctx context.Context, tx *gorm.DB) ([]*do.WorkerInfo, error)
	GetWorkerNum(ctx context.Context, tx *gorm.DB) (int64, error)
}

type WorkerServiceImpl struct {
	workerInfoDao dao.WorkerInfoDAO
}

var workerService WorkerService = &WorkerServiceImpl{
	workerInfoDao: dao.GetWorkerInfoDAOImpl(),
}

func GetWorkerService() WorkerService {
	return workerService
}

func (w *WorkerServiceImpl) WorkerSeen(ctx context.Context, tx *gorm.DB, address string, seenAt time.Time) error {
	if utils.IsBlank(address) || len(address) > MaxWorkerNameLength {
		return fmt.Errorf("invalid worker %v: blank or exceed max length", address)
	}
	return w.workerInfoDao.Touch(ctx, tx, address, seenAt)
}

func (w *WorkerServiceImpl) GetWorker(ctx context.Context, tx *gorm.DB, address string) (*do.WorkerInfo, error) {
	return w.workerInfoDao.GetByAddress(ctx, tx, address)
}

func (w *WorkerServiceImpl) GetWorkers(ctx context.Context, tx *gorm.DB) ([]*do.WorkerInfo, error) {
	return w.workerInfoDao.GetAll(ctx, tx)
}

func (w *WorkerServiceImpl) GetWorkerNum(ctx context.Context, tx *gorm.DB) (int64, error) {
	return w.workerInfoDao.GetWorkerNum(ctx, tx)
}
