package database

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database holds bot-surface state: per-chat settings and a log of sent
// alerts. The monitor's task table never touches it.
type Database struct {
	db *gorm.DB
}

// Models

// UserSettings is per-chat bot configuration
type UserSettings struct {
	ChatID        int64           `gorm:"primaryKey"`
	AlertsEnabled bool            `gorm:"default:true"`
	AlertMargin   decimal.Decimal `gorm:"type:decimal(10,2);default:10"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Alert is a record of a delivered margin alert
type Alert struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	ChatID    int64           `gorm:"index"`
	Team      string          `gorm:"index"`
	Threshold decimal.Decimal `gorm:"type:decimal(10,2)"`
	Trailing  decimal.Decimal `gorm:"type:decimal(10,2)"`
	CreatedAt time.Time
}

// New opens the database. A postgres:// DSN selects PostgreSQL,
// anything else is treated as a SQLite file path.
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&UserSettings{}, &Alert{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// User settings operations

func (d *Database) GetUserSettings(chatID int64) (*UserSettings, error) {
	var settings UserSettings
	err := d.db.FirstOrCreate(&settings, UserSettings{ChatID: chatID}).Error
	return &settings, err
}

func (d *Database) SaveUserSettings(settings *UserSettings) error {
	return d.db.Save(settings).Error
}

// Alert operations

// RecordAlert logs a delivered alert
func (d *Database) RecordAlert(chatID int64, team string, threshold, trailing decimal.Decimal) error {
	return d.db.Create(&Alert{
		ChatID:    chatID,
		Team:      team,
		Threshold: threshold,
		Trailing:  trailing,
	}).Error
}

// GetLastAlertTime returns when a chat was last alerted for a team
func (d *Database) GetLastAlertTime(chatID int64, team string) (time.Time, error) {
	var alert Alert
	err := d.db.Where("chat_id = ? AND team = ?", chatID, team).Order("created_at DESC").First(&alert).Error
	if err != nil {
		return time.Time{}, err
	}
	return alert.CreatedAt, nil
}
