package memory

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// factRecord is the gorm model of a fact row.
type factRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Subject   string    `gorm:"size:191;not null;uniqueIndex:idx_memory_subject_key"`
	Key       string    `gorm:"column:fact_key;size:191;not null;uniqueIndex:idx_memory_subject_key"`
	Value     string    `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (factRecord) TableName() string { return "agentgraph_memory_facts" }

// SQLStore keeps facts in a SQL table through gorm. Any gorm dialector
// works: postgres, mysql or sqlite.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore migrates the facts table and returns the store.
func NewSQLStore(ctx context.Context, db *gorm.DB) (*SQLStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&factRecord{}); err != nil {
		return nil, fmt.Errorf("migrate memory table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, subject string) ([]Fact, error) {
	var recs []factRecord
	if err := s.db.WithContext(ctx).
		Where("subject = ?", subject).
		Order("fact_key").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	out := make([]Fact, len(recs))
	for i, r := range recs {
		out[i] = Fact{Subject: r.Subject, Key: r.Key, Value: r.Value, UpdatedAt: r.UpdatedAt}
	}
	return out, nil
}

func (s *SQLStore) Put(ctx context.Context, facts ...Fact) error {
	if len(facts) == 0 {
		return nil
	}
	recs := make([]factRecord, len(facts))
	for i, f := range facts {
		if f.Subject == "" || f.Key == "" {
			return fmt.Errorf("fact needs subject and key: %+v", f)
		}
		recs[i] = factRecord{Subject: f.Subject, Key: f.Key, Value: f.Value, UpdatedAt: f.UpdatedAt}
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject"}, {Name: "fact_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&recs).Error
	if err != nil {
		return fmt.Errorf("upsert facts: %w", err)
	}
	return nil
}
