// Package eventlog reads the rsyslog MySQL event store. The store is owned by
// the syslog pipeline; nothing here writes to it.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store queries SystemEvents by host.
type Store struct {
	orm *gorm.DB
}

// Open connects to the event store without pinging it, so an unreachable
// store degrades log views instead of blocking startup.
func Open(dsn string) (*Store, error) {
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse events dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}

	orm, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       cfg.FormatDSN(),
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := orm.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return &Store{orm: orm}, nil
}

// NewStore wraps an existing gorm handle.
func NewStore(orm *gorm.DB) (*Store, error) {
	if orm == nil {
		return nil, errors.New("gorm handle is required")
	}
	return &Store{orm: orm}, nil
}

// RecentByHost returns up to limit events whose FromHost equals host,
// newest first. The comparison is byte-exact; the plain equality keeps the
// FromHost index usable under the column's case-insensitive collation.
func (s *Store) RecentByHost(ctx context.Context, host string, limit int) ([]Event, error) {
	var rows []systemEventModel
	err := s.orm.WithContext(ctx).
		Preload("Properties").
		Where("FromHost = ?", host).
		Where("BINARY FromHost = ?", host).
		Order("ReceivedAt DESC").
		Order("ID DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEvent())
	}
	return out, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.orm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
