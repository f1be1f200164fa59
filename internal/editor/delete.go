package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarcoPoloResearchLab/storyboard/internal/campaigns"
)

var (
	// ErrDeletionCancelled indicates the user declined a backend deletion.
	ErrDeletionCancelled = errors.New("editor: deletion cancelled")
	// ErrDeletionFailed indicates at least one backend delete failed; nothing was removed.
	ErrDeletionFailed = errors.New("editor: deletion failed")
)

// DeleteResult reports what a DeletePages call removed.
type DeleteResult struct {
	RemovedPageIDs  []string
	DeletedSlideIDs []campaigns.ID
}

// DeletePages removes pages from the document. Pages hydrated from backend slides need
// user confirmation and a successful backend delete for every one of them before any page
// is removed; a single failure leaves the document untouched and alerts the user.
func (s *Session) DeletePages(ctx context.Context, pageIDs []string) (DeleteResult, error) {
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()
	if !open {
		return DeleteResult{}, ErrSessionClosed
	}

	var known []string
	var correlated []campaigns.ID
	for _, pageID := range pageIDs {
		page, ok := s.document.Page(pageID)
		if !ok {
			s.logger.Debug("editor delete skipped unknown page", zap.String("page_id", pageID))
			continue
		}
		known = append(known, pageID)
		if page.Custom.OriginalSlideID == "" {
			continue
		}
		if slide, found := s.cache.FindSlide(campaigns.ID(page.Custom.OriginalSlideID)); found {
			correlated = append(correlated, slide.ID)
		}
	}
	if len(known) == 0 {
		return DeleteResult{}, nil
	}

	if len(correlated) > 0 {
		message := fmt.Sprintf("Delete %d slide(s)? This cannot be undone.", len(correlated))
		if !s.confirmer.Confirm(ctx, message) {
			return DeleteResult{}, ErrDeletionCancelled
		}

		var group errgroup.Group
		failures := make([]error, len(correlated))
		for index, slideID := range correlated {
			group.Go(func() error {
				if err := s.deleter.DeleteStorySlide(ctx, slideID); err != nil {
					failures[index] = fmt.Errorf("slide %s: %w", slideID, err)
					return failures[index]
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			joined := errors.Join(failures...)
			s.logger.Error("editor delete pages failed",
				zap.Strings("page_ids", known),
				zap.Error(joined),
			)
			s.alerter.Alert(ctx, "Failed to delete slides: "+summarize(failures))
			return DeleteResult{}, fmt.Errorf("%w: %w", ErrDeletionFailed, joined)
		}
		s.cache.RemoveSlides(correlated)
		s.controller.Invalidate()
	}

	s.document.DeletePages(known)
	return DeleteResult{RemovedPageIDs: known, DeletedSlideIDs: correlated}, nil
}

func summarize(failures []error) string {
	messages := make([]string, 0, len(failures))
	for _, failure := range failures {
		if failure != nil {
			messages = append(messages, failure.Error())
		}
	}
	return strings.Join(messages, "; ")
}
