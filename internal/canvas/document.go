package canvas

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/storyboard/internal/geometry"
)

const (
	defaultUnit        = "px"
	defaultDPI         = 72
	defaultExportScale = geometry.BaselineExportWidth / geometry.PageWidth
)

var (
	// ErrPageNotFound indicates an unknown page id.
	ErrPageNotFound = errors.New("canvas: page not found")
	// ErrElementNotFound indicates an unknown element id.
	ErrElementNotFound = errors.New("canvas: element not found")
	// ErrInvalidDocument indicates a document rejected by LoadJSON.
	ErrInvalidDocument = errors.New("canvas: invalid document")
)

// DocumentConfig configures a Document.
type DocumentConfig struct {
	Width       float64
	Height      float64
	ExportScale float64
}

// Document is an in-memory canvas store. All methods are safe for concurrent use.
type Document struct {
	mu           sync.RWMutex
	width        float64
	height       float64
	exportScale  float64
	fonts        []Font
	pages        []Page
	activePageID string
	selectedIDs  []string
	revision     uint64
	feed         *changeFeed
}

// NewDocument constructs an empty document at the page baseline unless overridden.
func NewDocument(cfg DocumentConfig) *Document {
	width := cfg.Width
	if width <= 0 {
		width = geometry.PageWidth
	}
	height := cfg.Height
	if height <= 0 {
		height = geometry.PageHeight
	}
	exportScale := cfg.ExportScale
	if exportScale <= 0 {
		exportScale = defaultExportScale
	}
	return &Document{
		width:       width,
		height:      height,
		exportScale: exportScale,
		feed:        newChangeFeed(),
	}
}

// Close stops change delivery.
func (d *Document) Close() {
	d.feed.close()
}

// Subscribe registers a listener and returns its disposer. Listeners run on the feed
// goroutine and must not call WaitIdle.
func (d *Document) Subscribe(listener Listener) func() {
	return d.feed.subscribe(listener)
}

// WaitIdle blocks until every change published so far has been delivered.
func (d *Document) WaitIdle(ctx context.Context) error {
	return d.feed.waitIdle(ctx)
}

// Size returns the logical page size in canvas units.
func (d *Document) Size() geometry.Size {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return geometry.Size{Width: d.width, Height: d.height}
}

// ExportSize returns the pixel size of an exported page.
func (d *Document) ExportSize() geometry.Size {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return geometry.Size{Width: d.width * d.exportScale, Height: d.height * d.exportScale}
}

// ExportScale returns export pixels per canvas unit.
func (d *Document) ExportScale() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.exportScale
}

// SetExportScale changes the export scale.
func (d *Document) SetExportScale(scale float64) {
	d.mu.Lock()
	d.exportScale = scale
	d.mu.Unlock()
}

// Revision increases on every mutation.
func (d *Document) Revision() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.revision
}

// LoadJSON replaces the whole document. The previous state is kept when validation fails.
func (d *Document) LoadJSON(doc DocumentJSON) error {
	if err := validateDocument(doc); err != nil {
		return err
	}
	pages := make([]Page, len(doc.Pages))
	for index, page := range doc.Pages {
		pages[index] = clonePage(page)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if doc.Width > 0 {
		d.width = doc.Width
	}
	if doc.Height > 0 {
		d.height = doc.Height
	}
	d.fonts = append([]Font(nil), doc.Fonts...)
	previousActive := d.activePageID
	d.pages = pages
	d.selectedIDs = nil
	d.activePageID = ""
	if len(pages) > 0 {
		d.activePageID = pages[0].ID
	}
	d.revision++
	d.feed.publish(Change{Kind: ChangeLoaded, Revision: d.revision, ActivePageID: d.activePageID, PageIDs: pageIDs(pages)})
	if previousActive != d.activePageID {
		d.feed.publish(Change{Kind: ChangeActivePage, Revision: d.revision, ActivePageID: d.activePageID, PreviousActivePageID: previousActive})
	}
	return nil
}

// ToJSON returns a deep copy of the document.
func (d *Document) ToJSON() DocumentJSON {
	d.mu.RLock()
	defer d.mu.RUnlock()
	pages := make([]Page, len(d.pages))
	for index, page := range d.pages {
		pages[index] = clonePage(page)
	}
	return DocumentJSON{
		Width:  d.width,
		Height: d.height,
		Unit:   defaultUnit,
		DPI:    defaultDPI,
		Fonts:  append([]Font{}, d.fonts...),
		Pages:  pages,
	}
}

// Pages returns copies of all pages in order.
func (d *Document) Pages() []Page {
	d.mu.RLock()
	defer d.mu.RUnlock()
	pages := make([]Page, len(d.pages))
	for index, page := range d.pages {
		pages[index] = clonePage(page)
	}
	return pages
}

// Page returns a copy of the page with the given id.
func (d *Document) Page(id string) (Page, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	index := d.pageIndex(id)
	if index < 0 {
		return Page{}, false
	}
	return clonePage(d.pages[index]), true
}

// ActivePageID returns the active page id, empty when the document has no pages.
func (d *Document) ActivePageID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activePageID
}

// ActivePage returns a copy of the active page.
func (d *Document) ActivePage() (Page, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	index := d.pageIndex(d.activePageID)
	if index < 0 {
		return Page{}, false
	}
	return clonePage(d.pages[index]), true
}

// SelectPage makes the page active.
func (d *Document) SelectPage(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pageIndex(id) < 0 {
		return fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	if d.activePageID == id {
		return nil
	}
	previous := d.activePageID
	d.activePageID = id
	d.selectedIDs = nil
	d.revision++
	d.feed.publish(Change{Kind: ChangeActivePage, Revision: d.revision, ActivePageID: id, PreviousActivePageID: previous})
	return nil
}

// DeletePages removes pages; unknown ids are ignored. When the active page is removed the
// page that followed it (or the new last page) becomes active.
func (d *Document) DeletePages(ids []string) {
	remove := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		remove[id] = struct{}{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	activeIndex := d.pageIndex(d.activePageID)
	kept := make([]Page, 0, len(d.pages))
	removed := make([]string, 0, len(ids))
	nextActive := ""
	for index, page := range d.pages {
		if _, ok := remove[page.ID]; ok {
			removed = append(removed, page.ID)
			continue
		}
		if nextActive == "" && index > activeIndex {
			nextActive = page.ID
		}
		kept = append(kept, page)
	}
	if len(removed) == 0 {
		return
	}
	d.pages = kept
	d.revision++
	d.feed.publish(Change{Kind: ChangePagesDeleted, Revision: d.revision, PageIDs: removed, ActivePageID: d.activePageID})

	if d.pageIndex(d.activePageID) >= 0 {
		return
	}
	previous := d.activePageID
	switch {
	case nextActive != "":
		d.activePageID = nextActive
	case len(kept) > 0:
		d.activePageID = kept[len(kept)-1].ID
	default:
		d.activePageID = ""
	}
	d.selectedIDs = nil
	d.feed.publish(Change{Kind: ChangeActivePage, Revision: d.revision, ActivePageID: d.activePageID, PreviousActivePageID: previous})
}

// SelectElements selects elements on the active page.
func (d *Document) SelectElements(ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	index := d.pageIndex(d.activePageID)
	if index < 0 {
		if len(ids) == 0 {
			return nil
		}
		return fmt.Errorf("%w: no active page", ErrPageNotFound)
	}
	for _, id := range ids {
		if elementIndex(d.pages[index], id) < 0 {
			return fmt.Errorf("%w: %s", ErrElementNotFound, id)
		}
	}
	d.selectedIDs = append([]string(nil), ids...)
	d.revision++
	d.feed.publish(Change{Kind: ChangeSelection, Revision: d.revision, ActivePageID: d.activePageID, ElementIDs: append([]string(nil), ids...)})
	return nil
}

// SelectedElementIDs returns the current selection.
func (d *Document) SelectedElementIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.selectedIDs...)
}

// AddElement appends an element to a page.
func (d *Document) AddElement(pageID string, element Element) error {
	if strings.TrimSpace(element.ID) == "" {
		return fmt.Errorf("%w: element id is required", ErrInvalidDocument)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	index := d.pageIndex(pageID)
	if index < 0 {
		return fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}
	if elementIndex(d.pages[index], element.ID) >= 0 {
		return fmt.Errorf("%w: duplicate element id %s", ErrInvalidDocument, element.ID)
	}
	d.pages[index].Children = append(d.pages[index].Children, cloneElement(element))
	d.touchElements(pageID, element.ID)
	return nil
}

// ReplaceElement swaps an element in place, keeping its z-order.
func (d *Document) ReplaceElement(pageID string, element Element) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	index := d.pageIndex(pageID)
	if index < 0 {
		return fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}
	position := elementIndex(d.pages[index], element.ID)
	if position < 0 {
		return fmt.Errorf("%w: %s", ErrElementNotFound, element.ID)
	}
	d.pages[index].Children[position] = cloneElement(element)
	d.touchElements(pageID, element.ID)
	return nil
}

// RemoveElement deletes an element from a page.
func (d *Document) RemoveElement(pageID string, elementID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	index := d.pageIndex(pageID)
	if index < 0 {
		return fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}
	position := elementIndex(d.pages[index], elementID)
	if position < 0 {
		return fmt.Errorf("%w: %s", ErrElementNotFound, elementID)
	}
	children := d.pages[index].Children
	d.pages[index].Children = append(children[:position:position], children[position+1:]...)
	kept := d.selectedIDs[:0]
	for _, id := range d.selectedIDs {
		if id != elementID {
			kept = append(kept, id)
		}
	}
	d.selectedIDs = kept
	d.touchElements(pageID, elementID)
	return nil
}

func (d *Document) touchElements(pageID string, elementID string) {
	d.revision++
	d.feed.publish(Change{Kind: ChangeElements, Revision: d.revision, ActivePageID: d.activePageID, PageIDs: []string{pageID}, ElementIDs: []string{elementID}})
}

func (d *Document) pageIndex(id string) int {
	if id == "" {
		return -1
	}
	for index, page := range d.pages {
		if page.ID == id {
			return index
		}
	}
	return -1
}

func elementIndex(page Page, id string) int {
	for index, element := range page.Children {
		if element.ID == id {
			return index
		}
	}
	return -1
}

func pageIDs(pages []Page) []string {
	ids := make([]string, len(pages))
	for index, page := range pages {
		ids[index] = page.ID
	}
	return ids
}

func validateDocument(doc DocumentJSON) error {
	if doc.Width < 0 || doc.Height < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidDocument)
	}
	seenPages := make(map[string]struct{}, len(doc.Pages))
	for _, page := range doc.Pages {
		if strings.TrimSpace(page.ID) == "" {
			return fmt.Errorf("%w: page id is required", ErrInvalidDocument)
		}
		if _, duplicate := seenPages[page.ID]; duplicate {
			return fmt.Errorf("%w: duplicate page id %s", ErrInvalidDocument, page.ID)
		}
		seenPages[page.ID] = struct{}{}
		seenElements := make(map[string]struct{}, len(page.Children))
		for _, element := range page.Children {
			if strings.TrimSpace(element.ID) == "" {
				return fmt.Errorf("%w: element id is required on page %s", ErrInvalidDocument, page.ID)
			}
			if _, duplicate := seenElements[element.ID]; duplicate {
				return fmt.Errorf("%w: duplicate element id %s on page %s", ErrInvalidDocument, element.ID, page.ID)
			}
			seenElements[element.ID] = struct{}{}
		}
	}
	return nil
}
