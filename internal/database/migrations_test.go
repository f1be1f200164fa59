package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/storyboard/internal/drafts"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsDraftsAndPrunesOrphans(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&drafts.Draft{}, &drafts.DraftRevision{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	draft := drafts.Draft{
		CampaignID:     "campaign-1",
		GroupID:        "group-1",
		DraftID:        "draft-1",
		DocumentJSON:   "{}",
		DocumentHash:   "hash-kept",
		SavedAtSeconds: 1,
	}
	if err := database.Create(&draft).Error; err != nil {
		testContext.Fatalf("failed to insert draft: %v", err)
	}
	revisions := []drafts.DraftRevision{
		{CampaignID: "campaign-1", GroupID: "group-1", DocumentHash: "hash-kept", DocumentJSON: "{}", SavedAtSeconds: 1},
		{CampaignID: "campaign-1", GroupID: "group-gone", DocumentHash: "hash-orphan", DocumentJSON: "{}", SavedAtSeconds: 1},
	}
	if err := database.Create(&revisions).Error; err != nil {
		testContext.Fatalf("failed to insert revisions: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored drafts.Draft
	if err := database.Where("campaign_id = ? AND group_id = ?", draft.CampaignID, draft.GroupID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload draft: %v", err)
	}
	if stored.Version != 1 {
		testContext.Fatalf("expected draft version to be backfilled, got %d", stored.Version)
	}

	var remaining []drafts.DraftRevision
	if err := database.Find(&remaining).Error; err != nil {
		testContext.Fatalf("failed to list revisions: %v", err)
	}
	if len(remaining) != 1 || remaining[0].DocumentHash != "hash-kept" {
		testContext.Fatalf("expected only the owned revision to remain, got %+v", remaining)
	}

	for _, name := range []string{migrationBackfillDraftVersions, migrationPruneOrphanRevisions} {
		var record migrationRecord
		if err := database.Where("name = ?", name).Take(&record).Error; err != nil {
			testContext.Fatalf("expected migration record %s to be created: %v", name, err)
		}
		if record.AppliedAtSeconds == 0 {
			testContext.Fatalf("expected migration timestamp to be set for %s", name)
		}
	}
}

func TestApplyMigrationsRunsOnce(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "once.db")
	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}

	draft := drafts.Draft{
		CampaignID:     "campaign-1",
		GroupID:        "group-1",
		DraftID:        "draft-1",
		DocumentJSON:   "{}",
		DocumentHash:   "hash",
		SavedAtSeconds: 1,
	}
	if err := database.Create(&draft).Error; err != nil {
		testContext.Fatalf("failed to insert draft: %v", err)
	}
	if err := applyMigrations(database, nil); err != nil {
		testContext.Fatalf("failed to reapply migrations: %v", err)
	}

	var stored drafts.Draft
	if err := database.Where("draft_id = ?", "draft-1").Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload draft: %v", err)
	}
	if stored.Version != 0 {
		testContext.Fatalf("expected applied migrations to be skipped, got version %d", stored.Version)
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}
