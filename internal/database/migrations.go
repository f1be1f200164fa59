package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/storyboard/internal/drafts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillDraftVersions = "2026-10-01_backfill_draft_versions"
	migrationPruneOrphanRevisions  = "2026-10-09_prune_orphan_draft_revisions"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillDraftVersions, apply: backfillDraftVersions},
		{name: migrationPruneOrphanRevisions, apply: pruneOrphanRevisions},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Drafts written before versioning carry version 0.
func backfillDraftVersions(db *gorm.DB) error {
	return db.Model(&drafts.Draft{}).
		Where("version = 0").
		Update("version", 1).Error
}

func pruneOrphanRevisions(db *gorm.DB) error {
	return db.Exec(`DELETE FROM editor_draft_revisions
WHERE NOT EXISTS (
	SELECT 1 FROM editor_drafts
	WHERE editor_drafts.campaign_id = editor_draft_revisions.campaign_id
	AND editor_drafts.group_id = editor_draft_revisions.group_id
)`).Error
}
