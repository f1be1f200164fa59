// Package codec converts backend slide records into canvas pages and extracts the
// editor-facing state of a slide. Both directions read only backend fields and tolerate
// corrupt metadata: a slide with unreadable content or styling hydrates with defaults.
package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/storyboard/internal/campaigns"
	"github.com/MarcoPoloResearchLab/storyboard/internal/canvas"
	"github.com/MarcoPoloResearchLab/storyboard/internal/cta"
	"github.com/MarcoPoloResearchLab/storyboard/internal/geometry"
)

const (
	defaultTextFontSize = 24.0
	defaultTextColor    = "#FFFFFF"
	defaultTextFont     = "Inter"
	textMargin          = 20.0
	defaultTextTop      = 260.0
	defaultTextHeight   = 120.0
	pagePrefix          = "page-"
)

// Config wires an Encoder.
type Config struct {
	// Space is the document CTA placements are mapped into. Nil uses the page baseline.
	Space  geometry.Space
	Logger *zap.Logger
}

// Encoder converts slides into canvas pages.
type Encoder struct {
	space  geometry.Space
	logger *zap.Logger
}

// NewEncoder constructs an Encoder.
func NewEncoder(cfg Config) *Encoder {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Encoder{space: cfg.Space, logger: logger}
}

// PageID derives the canvas page id of a slide.
func PageID(slideID campaigns.ID) string {
	return pagePrefix + slideID.String()
}

// CTAElementID derives the canvas element id of a CTA on a page.
func CTAElementID(pageID string, index int, item cta.CTA) string {
	if item.ID != "" {
		return pageID + "-cta-" + item.ID
	}
	return pageID + "-cta-" + strconv.Itoa(index)
}

// EditorState is the transient editor view of one slide.
type EditorState struct {
	SlideID campaigns.ID
	PageID  string
	Text    string
	Image   string
	Video   string
	CTAs    []cta.CTA
	Poll    *Poll
	Styling SlideStyling
	Report  Report
}

type parsedSlide struct {
	pageID  string
	text    string
	ctas    []cta.CTA
	poll    *Poll
	styling SlideStyling
	report  Report
}

// SlidesToCanvasStore builds one page per slide in the given order at the page baseline.
func (e *Encoder) SlidesToCanvasStore(slides []campaigns.Slide) (canvas.DocumentJSON, Report) {
	document := canvas.DocumentJSON{
		Width:  geometry.PageWidth,
		Height: geometry.PageHeight,
		Unit:   "px",
		DPI:    72,
		Fonts:  []canvas.Font{},
		Pages:  make([]canvas.Page, 0, len(slides)),
	}
	var report Report
	pageIDs := assignPageIDs(slides)
	for index, slide := range slides {
		parsed := e.parse(slide, pageIDs[index])
		report.merge(parsed.report)
		document.Pages = append(document.Pages, e.buildPage(slide, parsed))
	}
	return document, report
}

// HydrateEditorStateFromSlide extracts backend-shaped fields of a slide. It never reads
// canvas state.
func (e *Encoder) HydrateEditorStateFromSlide(slide campaigns.Slide) EditorState {
	parsed := e.parse(slide, assignPageIDs([]campaigns.Slide{slide})[0])
	ctas := append([]cta.CTA(nil), parsed.ctas...)
	return EditorState{
		SlideID: slide.ID,
		PageID:  parsed.pageID,
		Text:    parsed.text,
		Image:   slide.Image,
		Video:   slide.Video,
		CTAs:    ctas,
		Poll:    parsed.poll,
		Styling: parsed.styling,
		Report:  parsed.report,
	}
}

// CTAElement renders one CTA as a canvas element placed through the coordinate mapper.
func (e *Encoder) CTAElement(pageID string, index int, item cta.CTA) (canvas.Element, error) {
	if item.Variant == nil {
		return canvas.Element{}, fmt.Errorf("%w: cta %q has no variant", cta.ErrInvalidPayload, item.ID)
	}
	encoded, err := json.Marshal(item)
	if err != nil {
		return canvas.Element{}, err
	}
	layout := item.Variant.Layout()
	rect := e.place(layout.Size, layout.Position)
	elementID := item.Editor.ElementID
	if elementID == "" {
		elementID = CTAElementID(pageID, index, item)
	}
	element := canvas.Element{
		ID:      elementID,
		Name:    "cta-" + string(item.Kind()),
		X:       rect.X,
		Y:       rect.Y,
		Width:   rect.Width,
		Height:  rect.Height,
		Opacity: 1,
		Custom:  &canvas.ElementCustom{Role: canvas.RoleCTA, CTAID: item.ID, CTA: encoded},
	}
	switch variant := item.Variant.(type) {
	case cta.Raster:
		element.Type = canvas.ElementImage
		element.Src = variant.ImageSource()
		if image, ok := variant.(cta.Image); ok {
			if image.Styling.Opacity > 0 {
				element.Opacity = image.Styling.Opacity
			}
			if layout.Size.Width > 0 {
				element.CornerRadius = image.Styling.BorderRadius * rect.Width / layout.Size.Width
			}
		}
	case cta.Vector:
		element.Type = canvas.ElementSVG
		element.Src = cta.DataURL(variant.Markup())
	default:
		return canvas.Element{}, fmt.Errorf("%w: %s has no renderer", cta.ErrUnknownKind, item.Kind())
	}
	return element, nil
}

func (e *Encoder) place(size geometry.Size, position geometry.Point) geometry.Rect {
	rect, err := geometry.CanvasRectOrIdentity(e.space, size, position)
	if err != nil && e.space != nil {
		e.logger.Warn("codec placement fell back to page baseline", zap.Error(err))
	}
	return rect
}

// assignPageIDs derives one unique page id per slide. Slides keep "page-<id>" on the
// first occurrence of their id; id-less slides and repeated ids get a positional id,
// suffixed until it is free.
func assignPageIDs(slides []campaigns.Slide) []string {
	pageIDs := make([]string, len(slides))
	taken := make(map[string]struct{}, len(slides))
	for index, slide := range slides {
		if slide.ID == "" {
			continue
		}
		pageID := PageID(slide.ID)
		if _, duplicate := taken[pageID]; duplicate {
			continue
		}
		taken[pageID] = struct{}{}
		pageIDs[index] = pageID
	}
	for index, slide := range slides {
		if pageIDs[index] != "" {
			continue
		}
		base := pagePrefix + strconv.Itoa(index+1)
		if slide.ID != "" {
			base = PageID(slide.ID)
		}
		candidate := base
		for suffix := 2; ; suffix++ {
			if _, used := taken[candidate]; !used {
				break
			}
			candidate = base + "-" + strconv.Itoa(suffix)
		}
		taken[candidate] = struct{}{}
		pageIDs[index] = candidate
	}
	return pageIDs
}

func (e *Encoder) parse(slide campaigns.Slide, pageID string) parsedSlide {
	slideID := slide.ID.String()
	parsed := parsedSlide{pageID: pageID, report: Report{Slides: 1}}

	content, err := decodeObject(slide.Content)
	if err != nil {
		e.logger.Warn("codec slide content malformed", zap.String("slide_id", slideID), zap.Error(err))
		parsed.report.MalformedContent = append(parsed.report.MalformedContent, slideID)
	}
	styling, err := decodeObject(slide.Styling)
	if err != nil {
		e.logger.Warn("codec slide styling malformed", zap.String("slide_id", slideID), zap.Error(err))
		parsed.report.MalformedStyling = append(parsed.report.MalformedStyling, slideID)
	}
	parsed.styling = parseStyling(styling)
	parsed.text = stringValue(content["text"])

	if rawPoll, ok := content["poll"]; ok {
		poll, pollErr := parsePoll(rawPoll)
		if pollErr != nil {
			e.logger.Warn("codec slide poll malformed", zap.String("slide_id", slideID), zap.Error(pollErr))
			parsed.report.MalformedPolls = append(parsed.report.MalformedPolls, slideID)
		}
		parsed.poll = poll
	}

	entries, err := rawCTAs(content)
	if err != nil {
		e.logger.Warn("codec slide ctas malformed", zap.String("slide_id", slideID), zap.Error(err))
		parsed.report.SkippedCTAs = append(parsed.report.SkippedCTAs, SkippedCTA{SlideID: slideID, Index: -1, Reason: err.Error()})
	}
	for entryIndex, entry := range entries {
		item, decodeErr := decodeCTA(entry)
		if decodeErr != nil {
			e.logger.Warn("codec cta skipped",
				zap.String("slide_id", slideID),
				zap.Int("index", entryIndex),
				zap.Error(decodeErr),
			)
			parsed.report.SkippedCTAs = append(parsed.report.SkippedCTAs, SkippedCTA{SlideID: slideID, Index: entryIndex, Reason: decodeErr.Error()})
			continue
		}
		parsed.ctas = append(parsed.ctas, item)
	}
	assignElementIDs(pageID, parsed.ctas)
	parsed.report.CTAs = len(parsed.ctas)
	return parsed
}

// assignElementIDs gives every CTA a unique element id on its page, suffixing the
// position when stored data repeats a CTA id.
func assignElementIDs(pageID string, ctas []cta.CTA) {
	seen := make(map[string]struct{}, len(ctas))
	for index := range ctas {
		elementID := CTAElementID(pageID, index, ctas[index])
		if _, duplicate := seen[elementID]; duplicate {
			elementID = elementID + "-" + strconv.Itoa(index)
		}
		seen[elementID] = struct{}{}
		ctas[index].Editor.ElementID = elementID
	}
}

func (e *Encoder) buildPage(slide campaigns.Slide, parsed parsedSlide) canvas.Page {
	page := canvas.Page{
		ID:         parsed.pageID,
		Background: parsed.styling.BackgroundColor,
		Children:   []canvas.Element{},
		Custom:     canvas.PageCustom{OriginalSlideID: slide.CorrelationID().String()},
	}
	if page.Background == "" {
		page.Background = "#000000"
	}
	if slide.Image != "" {
		page.Children = append(page.Children, mediaElement(parsed.pageID+"-background-image", canvas.ElementImage, slide.Image))
		page.Custom.HasMedia = true
	}
	if slide.Video != "" {
		page.Children = append(page.Children, mediaElement(parsed.pageID+"-background-video", canvas.ElementVideo, slide.Video))
		page.Custom.HasMedia = true
	}
	if strings.TrimSpace(parsed.text) != "" {
		page.Children = append(page.Children, textElement(parsed.pageID+"-text", parsed.text, parsed.styling))
		page.Custom.HasText = true
	}
	for index, item := range parsed.ctas {
		element, err := e.CTAElement(parsed.pageID, index, item)
		if err != nil {
			e.logger.Warn("codec cta element failed",
				zap.String("slide_id", slide.ID.String()),
				zap.String("cta_id", item.ID),
				zap.Error(err),
			)
			continue
		}
		page.Children = append(page.Children, element)
		page.Custom.HasCtas = true
	}
	if parsed.poll != nil {
		rect := e.place(pollBaselineSize, pollBaselinePosition)
		page.Children = append(page.Children, canvas.Element{
			ID:      parsed.pageID + "-poll",
			Type:    canvas.ElementSVG,
			Name:    "poll",
			X:       rect.X,
			Y:       rect.Y,
			Width:   rect.Width,
			Height:  rect.Height,
			Opacity: 1,
			Src:     cta.DataURL(pollMarkup(*parsed.poll)),
			Custom:  &canvas.ElementCustom{Role: canvas.RolePoll},
		})
		page.Custom.HasPoll = true
	}
	return page
}

func mediaElement(id string, elementType canvas.ElementType, src string) canvas.Element {
	return canvas.Element{
		ID:      id,
		Type:    elementType,
		Name:    "background",
		Width:   geometry.PageWidth,
		Height:  geometry.PageHeight,
		Opacity: 1,
		Src:     src,
		Custom:  &canvas.ElementCustom{Role: canvas.RoleBackground},
	}
}

func textElement(id string, text string, styling SlideStyling) canvas.Element {
	fontSize := styling.FontSize
	if fontSize <= 0 {
		fontSize = defaultTextFontSize
	}
	x, y := textMargin, defaultTextTop
	if styling.HasTextPosition {
		x, y = styling.TextX, styling.TextY
	}
	align := styling.TextAlign
	if align == "" {
		align = "center"
	}
	fill := styling.TextColor
	if fill == "" {
		fill = defaultTextColor
	}
	fontFamily := styling.FontFamily
	if fontFamily == "" {
		fontFamily = defaultTextFont
	}
	return canvas.Element{
		ID:         id,
		Type:       canvas.ElementText,
		Name:       "text",
		X:          x,
		Y:          y,
		Width:      geometry.PageWidth - 2*textMargin,
		Height:     defaultTextHeight,
		Opacity:    1,
		Text:       text,
		FontSize:   fontSize,
		FontFamily: fontFamily,
		FontWeight: styling.FontWeight,
		Fill:       fill,
		Align:      align,
		Custom:     &canvas.ElementCustom{Role: canvas.RoleText},
	}
}
