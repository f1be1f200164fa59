// Package drafts persists autosaved canvas documents per campaign group.
package drafts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/storyboard/internal/canvas"
)

var (
	// ErrInvalidDraftKey indicates a draft key without campaign or group.
	ErrInvalidDraftKey = errors.New("drafts: invalid draft key")
	// ErrDraftNotFound indicates no draft was saved for a key.
	ErrDraftNotFound = errors.New("drafts: draft not found")
)

// DraftKey identifies the document being edited.
type DraftKey struct {
	CampaignID string
	GroupID    string
}

// NewDraftKey validates and returns a DraftKey.
func NewDraftKey(campaignID string, groupID string) (DraftKey, error) {
	key := DraftKey{CampaignID: strings.TrimSpace(campaignID), GroupID: strings.TrimSpace(groupID)}
	if key.CampaignID == "" || key.GroupID == "" {
		return DraftKey{}, fmt.Errorf("%w: campaign %q group %q", ErrInvalidDraftKey, campaignID, groupID)
	}
	return key, nil
}

// Draft stores the latest document per campaign group.
type Draft struct {
	CampaignID     string `gorm:"column:campaign_id;primaryKey;size:190;not null"`
	GroupID        string `gorm:"column:group_id;primaryKey;size:190;not null"`
	DraftID        string `gorm:"column:draft_id;size:64;not null;uniqueIndex"`
	DocumentJSON   string `gorm:"column:document_json;type:text;not null"`
	DocumentHash   string `gorm:"column:document_hash;size:64;not null"`
	Revision       int64  `gorm:"column:document_revision;not null;default:0"`
	Version        int64  `gorm:"column:version;not null;default:0"`
	SavedAtSeconds int64  `gorm:"column:saved_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Draft) TableName() string {
	return "editor_drafts"
}

// Document decodes the stored canvas document.
func (d Draft) Document() (canvas.DocumentJSON, error) {
	var document canvas.DocumentJSON
	if err := json.Unmarshal([]byte(d.DocumentJSON), &document); err != nil {
		return canvas.DocumentJSON{}, fmt.Errorf("drafts: decode document: %w", err)
	}
	return document, nil
}

// DraftRevision is an append-only history entry, deduplicated by document hash.
type DraftRevision struct {
	RevisionID     int64  `gorm:"column:revision_id;primaryKey;autoIncrement"`
	CampaignID     string `gorm:"column:campaign_id;size:190;not null;index:idx_draft_revisions_key,priority:1;uniqueIndex:idx_draft_revision_dedupe,priority:1"`
	GroupID        string `gorm:"column:group_id;size:190;not null;index:idx_draft_revisions_key,priority:2;uniqueIndex:idx_draft_revision_dedupe,priority:2"`
	DocumentHash   string `gorm:"column:document_hash;size:64;not null;uniqueIndex:idx_draft_revision_dedupe,priority:3"`
	DocumentJSON   string `gorm:"column:document_json;type:text;not null"`
	SavedAtSeconds int64  `gorm:"column:saved_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DraftRevision) TableName() string {
	return "editor_draft_revisions"
}
