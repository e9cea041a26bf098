package config

import (
	"strings"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB 初始化数据库. TranslateError is always on so unique-key races surface
// as gorm.ErrDuplicatedKey.
func InitDB(c *Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch c.Database.Driver {
	case "mysql":
		if c.Database.DSN == "" {
			return nil, errors.New("database dsn is required for mysql")
		}
		dialector = mysql.Open(c.Database.DSN)
	case "sqlite":
		dialector = sqlite.Open(c.Database.DSN)
	default:
		return nil, errors.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logLevel(c.Database.LogLevel)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "database handle")
	}
	if c.Database.Driver == "sqlite" {
		// SQLite only supports one writer at a time.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(c.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(c.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(c.Database.ConnMaxLife)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return db, nil
}

func logLevel(s string) logger.LogLevel {
	switch strings.ToLower(s) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
