package drafts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/storyboard/internal/canvas"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries an operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew    = "drafts.store.new"
	opSaveDraft   = "drafts.save"
	opLatestDraft = "drafts.latest"
	opListHistory = "drafts.history"

	reasonEncodeFailed   = "encode_failed"
	reasonRevisionFailed = "revision_insert_failed"
	reasonDraftFailed    = "draft_upsert_failed"
	reasonQueryFailed    = "query_failed"

	queryDraftKey = "campaign_id = ? AND group_id = ?"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// StoreConfig wires a Store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store persists drafts and their revision history.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// SaveOutcome reports the result of Save.
type SaveOutcome struct {
	Draft     Draft
	Duplicate bool
}

// Save records document as the latest draft for key. A document identical to the
// current draft is reported as a duplicate and leaves the draft untouched; returning to
// an older document advances the version. History keeps one row per distinct document.
func (s *Store) Save(ctx context.Context, key DraftKey, document canvas.DocumentJSON, revision uint64) (SaveOutcome, error) {
	if key.CampaignID == "" || key.GroupID == "" {
		return SaveOutcome{}, newServiceError(opSaveDraft, "invalid_key", ErrInvalidDraftKey)
	}
	encoded, err := json.Marshal(document)
	if err != nil {
		s.logError(opSaveDraft, reasonEncodeFailed, err)
		return SaveOutcome{}, newServiceError(opSaveDraft, reasonEncodeFailed, err)
	}
	hash := documentHash(encoded)
	savedAt := s.clock().UTC().Unix()

	var outcome SaveOutcome
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := DraftRevision{
			CampaignID:     key.CampaignID,
			GroupID:        key.GroupID,
			DocumentHash:   hash,
			DocumentJSON:   string(encoded),
			SavedAtSeconds: savedAt,
		}
		created := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
		if created.Error != nil {
			s.logError(opSaveDraft, reasonRevisionFailed, created.Error, keyFields(key)...)
			return newServiceError(opSaveDraft, reasonRevisionFailed, created.Error)
		}

		var existing Draft
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(queryDraftKey, key.CampaignID, key.GroupID).
			Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			draft := Draft{
				CampaignID:     key.CampaignID,
				GroupID:        key.GroupID,
				DraftID:        uuid.NewString(),
				DocumentJSON:   string(encoded),
				DocumentHash:   hash,
				Revision:       int64(revision),
				Version:        1,
				SavedAtSeconds: savedAt,
			}
			if err := tx.Create(&draft).Error; err != nil {
				s.logError(opSaveDraft, reasonDraftFailed, err, keyFields(key)...)
				return newServiceError(opSaveDraft, reasonDraftFailed, err)
			}
			outcome.Draft = draft
			return nil
		case err != nil:
			s.logError(opSaveDraft, reasonDraftFailed, err, keyFields(key)...)
			return newServiceError(opSaveDraft, reasonDraftFailed, err)
		}

		if existing.DocumentHash == hash {
			outcome = SaveOutcome{Draft: existing, Duplicate: true}
			return nil
		}
		existing.DocumentJSON = string(encoded)
		existing.DocumentHash = hash
		existing.Revision = int64(revision)
		existing.Version++
		existing.SavedAtSeconds = savedAt
		if err := tx.Save(&existing).Error; err != nil {
			s.logError(opSaveDraft, reasonDraftFailed, err, keyFields(key)...)
			return newServiceError(opSaveDraft, reasonDraftFailed, err)
		}
		outcome.Draft = existing
		return nil
	})
	if txErr != nil {
		return SaveOutcome{}, txErr
	}
	return outcome, nil
}

// Latest returns the latest draft for key.
func (s *Store) Latest(ctx context.Context, key DraftKey) (Draft, error) {
	var draft Draft
	err := s.db.WithContext(ctx).Where(queryDraftKey, key.CampaignID, key.GroupID).Take(&draft).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Draft{}, fmt.Errorf("%w: %s/%s", ErrDraftNotFound, key.CampaignID, key.GroupID)
	}
	if err != nil {
		s.logError(opLatestDraft, reasonQueryFailed, err, keyFields(key)...)
		return Draft{}, newServiceError(opLatestDraft, reasonQueryFailed, err)
	}
	return draft, nil
}

// History returns up to limit revisions for key, newest first.
func (s *Store) History(ctx context.Context, key DraftKey, limit int) ([]DraftRevision, error) {
	if limit <= 0 {
		limit = 20
	}
	var revisions []DraftRevision
	err := s.db.WithContext(ctx).
		Where(queryDraftKey, key.CampaignID, key.GroupID).
		Order("revision_id DESC").
		Limit(limit).
		Find(&revisions).Error
	if err != nil {
		s.logError(opListHistory, reasonQueryFailed, err, keyFields(key)...)
		return nil, newServiceError(opListHistory, reasonQueryFailed, err)
	}
	return revisions, nil
}

func documentHash(encoded []byte) string {
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

func keyFields(key DraftKey) []zap.Field {
	return []zap.Field{zap.String("campaign_id", key.CampaignID), zap.String("group_id", key.GroupID)}
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("drafts store error", attrs...)
}
