package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/normoes/xmrto-wrapper/internal/domain"
)

// OrderRecord is the journal entry for an order this client has seen.
// Only the secret key and bookkeeping fields live here; order state is
// a cached copy for display, the service stays the source of truth.
type OrderRecord struct {
	SecretKey          string `gorm:"primaryKey"`
	DestinationAddress string
	State              string
	BTCAmount          string
	UsesLightning      bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Journal persists the secret keys of created orders so a later session
// can pick tracking back up.
type Journal struct {
	db *gorm.DB
}

// NewJournal opens (and migrates) the journal database. An empty path
// resolves to the user config directory.
func NewJournal(path string) (*Journal, error) {
	if path == "" {
		resolved, err := defaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve journal path: %w", err)
		}
		path = resolved
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if err := db.AutoMigrate(&OrderRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal database: %w", err)
	}

	return &Journal{db: db}, nil
}

func defaultDBPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "xmrto-wrapper", "data", "orders.db"), nil
}

// RecordOrder creates or refreshes the journal entry for an order.
func (j *Journal) RecordOrder(order domain.Order) error {
	if order.SecretKey == "" {
		return fmt.Errorf("order without secret key cannot be journaled")
	}

	record := OrderRecord{
		SecretKey:          order.SecretKey,
		DestinationAddress: order.DestinationAddress,
		State:              order.RawState,
		BTCAmount:          order.BTCAmount.String(),
		UsesLightning:      order.UsesLightning,
	}

	// Preserve the original creation time across updates.
	if existing, err := j.GetOrder(order.SecretKey); err == nil && existing != nil {
		record.CreatedAt = existing.CreatedAt
	}

	return j.db.Save(&record).Error
}

// GetOrder retrieves a journal entry by secret key; nil when unknown.
func (j *Journal) GetOrder(secretKey string) (*OrderRecord, error) {
	var record OrderRecord
	err := j.db.First(&record, "secret_key = ?", secretKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &record, err
}

// GetAllOrders retrieves all journaled orders, newest first.
func (j *Journal) GetAllOrders() ([]OrderRecord, error) {
	var records []OrderRecord
	err := j.db.Order("created_at desc").Find(&records).Error
	return records, err
}

// DeleteOrder removes a journal entry.
func (j *Journal) DeleteOrder(secretKey string) error {
	return j.db.Where("secret_key = ?", secretKey).Delete(&OrderRecord{}).Error
}
