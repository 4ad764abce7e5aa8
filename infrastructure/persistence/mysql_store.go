package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"linkhealth/domain/repository"
	"linkhealth/infrastructure/configuration"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

func NewMySQLDb(cfg configuration.Db) (*gorm.DB, error) {
	port := cfg.Port
	if port == "" {
		port = "3306"
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC", cfg.User, cfg.Password, cfg.Host, port, cfg.Name)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}

type documentRow struct {
	Collection string    `gorm:"primaryKey;size:100"`
	ID         string    `gorm:"primaryKey;size:200"`
	Data       string    `gorm:"type:json;not null"`
	UpdatedAt  time.Time `gorm:"index"`
}

func (documentRow) TableName() string { return documentsTable }

// MySQLStore keeps documents in a JSON column through gorm.
type MySQLStore struct{ db *gorm.DB }

func NewMySQLStore(db *gorm.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) EnsureSchema() error {
	return s.db.AutoMigrate(&documentRow{})
}

func (s *MySQLStore) Put(ctx context.Context, collection, id string, doc any) error {
	raw, err := jsonString(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	row := documentRow{Collection: collection, ID: id, Data: raw, UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MySQLStore) Get(ctx context.Context, collection, id string, out any) error {
	var row documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return decodeOne([]byte(row.Data), out)
}

func (s *MySQLStore) Query(ctx context.Context, collection string, filter repository.Filter, out any) error {
	keys, err := filterKeys(filter)
	if err != nil {
		return err
	}
	tx := s.db.WithContext(ctx).Where("collection = ?", collection)
	for _, k := range keys {
		tx = tx.Where("JSON_UNQUOTE(JSON_EXTRACT(data, ?)) = ?", "$."+k, filterValue(filter[k]))
	}
	var rows []documentRow
	if err := tx.Order("updated_at").Find(&rows).Error; err != nil {
		return fmt.Errorf("query %s: %w", collection, err)
	}
	docs := make([][]byte, len(rows))
	for i, r := range rows {
		docs[i] = []byte(r.Data)
	}
	return decodeList(docs, out)
}
