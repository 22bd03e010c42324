package dal

import (
	"context"
	"fmt"

	"github.com/abesuite/abe-powminer/dal/do"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DBTypeSQLite = "sqlite"
	DBTypeMySQL  = "mysql"
)

var knownDBTypes = map[string]struct{}{
	DBTypeSQLite: {},
	DBTypeMySQL:  {},
}

var GlobalDBClient *gorm.DB

func GetDB(ctx context.Context) *gorm.DB {
	return GlobalDBClient.WithContext(ctx)
}

type DBConfig struct {
	// Type is sqlite or mysql.
	Type string

	// Path is the sqlite database file.
	Path string

	Username string
	Password string
	// Address including the ip address and port of database (e.g. 127.0.0.1:3306)
	Address      string
	DatabaseName string
}

// IsKnownDBType reports whether typ names a supported database backend.
func IsKnownDBType(typ string) bool {
	_, ok := knownDBTypes[typ]
	return ok
}

func (cfg *DBConfig) dialector(withDatabase bool) (gorm.Dialector, error) {
	switch cfg.Type {
	case DBTypeSQLite:
		return sqlite.Open(cfg.Path), nil
	case DBTypeMySQL:
		database := ""
		if withDatabase {
			database = cfg.DatabaseName
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=Local", cfg.Username, cfg.Password,
			cfg.Address, database)
		return mysql.Open(dsn), nil
	}
	return nil, fmt.Errorf("unknown database type %q", cfg.Type)
}

func (cfg *DBConfig) String() string {
	if cfg.Type == DBTypeSQLite {
		return cfg.Path
	}
	return cfg.DatabaseName + "@" + cfg.Address
}

func InitDB(cfg *DBConfig, autoCreate bool) error {
	if autoCreate {
		err := CreateDatabase(cfg)
		if err != nil {
			return err
		}
	}

	log.Infof("Connecting to %v database %v...", cfg.Type, cfg)

	dialector, err := cfg.dialector(true)
	if err != nil {
		return err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}
	if cfg.Type == DBTypeSQLite {
		// sqlite allows a single writer.
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if autoCreate {
		err = CreateTables(db)
		if err != nil {
			return err
		}
	}

	GlobalDBClient = db

	log.Infof("Successfully connect to database")

	return nil
}

// CreateDatabase creates the mysql database if it does not exist. sqlite
// creates its file on open.
func CreateDatabase(cfg *DBConfig) error {
	if cfg.Type != DBTypeMySQL {
		return nil
	}

	log.Infof("Creating database %s...", cfg.DatabaseName)

	dialector, err := cfg.dialector(false)
	if err != nil {
		return err
	}
	db, err := gorm.Open(dialector, nil)
	if err != nil {
		return err
	}

	createSQL := fmt.Sprintf(
		"CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4;",
		cfg.DatabaseName,
	)

	err = db.Exec(createSQL).Error
	if err != nil {
		log.Infof("Unable to create database %s...", cfg.DatabaseName)
		return err
	}
	return nil
}

func CreateTables(db *gorm.DB) error {
	log.Infof("Creating table worker_infos...")
	err := db.AutoMigrate(&do.WorkerInfo{})
	if err != nil {
		log.Infof("Fail to create table worker_infos")
		return err
	}

	log.Infof("Creating table detailed_share_infos...")
	err = db.AutoMigrate(&do.DetailedShareInfo{})
	if err != nil {
		log.Infof("Fail to create table detailed_share_infos")
		return err
	}

	log.Infof("Creating table mined_block_infos...")
	err = db.AutoMigrate(&do.MinedBlockInfo{})
	if err != nil {
		log.Infof("Fail to create table mined_block_infos")
		return err
	}
	return nil
}
