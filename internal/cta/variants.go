package cta

import (
	"encoding/json"

	"github.com/MarcoPoloResearchLab/storyboard/internal/geometry"
)

// Variant is the closed set of CTA kinds. Each implementation carries its own
// strongly typed content and styling records, and keeps the supplied keys verbatim
// so unmodelled values and explicit zeros are written back unchanged.
type Variant interface {
	Kind() Kind
	// Layout returns the baseline export size and position of the rendered element.
	Layout() Layout
	parts() (content any, styling any)
	stored() storedFields
	merge(content json.RawMessage, styling json.RawMessage, mode decodeMode) (Variant, error)
}

// Layout is a placement authored in baseline export pixels (1080x1920).
type Layout struct {
	Size     geometry.Size
	Position geometry.Point
}

// ButtonContent is shared by the classic and swipe-up variants.
type ButtonContent struct {
	Text        string `json:"text,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// ButtonStyling configures the classic button.
type ButtonStyling struct {
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	TextColor       string  `json:"textColor,omitempty"`
	BorderColor     string  `json:"borderColor,omitempty"`
	BorderWidth     float64 `json:"borderWidth,omitempty"`
	BorderRadius    float64 `json:"borderRadius,omitempty"`
	FontSize        float64 `json:"fontSize,omitempty"`
	FontWeight      string  `json:"fontWeight,omitempty"`
	FontFamily      string  `json:"fontFamily,omitempty"`
	Alignment       string  `json:"alignment,omitempty"`
	MarginBottom    float64 `json:"marginBottom,omitempty"`
}

// SwipeUpStyling configures the swipe-up hint.
type SwipeUpStyling struct {
	TextColor    string  `json:"textColor,omitempty"`
	ArrowColor   string  `json:"arrowColor,omitempty"`
	FontSize     float64 `json:"fontSize,omitempty"`
	FontWeight   string  `json:"fontWeight,omitempty"`
	FontFamily   string  `json:"fontFamily,omitempty"`
	Alignment    string  `json:"alignment,omitempty"`
	MarginBottom float64 `json:"marginBottom,omitempty"`
}

// ImageContent describes an image CTA.
type ImageContent struct {
	ImageURL    string `json:"imageUrl,omitempty"`
	AltText     string `json:"altText,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// ImageStyling configures an image CTA.
type ImageStyling struct {
	BorderRadius float64 `json:"borderRadius,omitempty"`
	Opacity      float64 `json:"opacity,omitempty"`
	Alignment    string  `json:"alignment,omitempty"`
	MarginBottom float64 `json:"marginBottom,omitempty"`
}

// ProductContent is shared by the product card variants.
type ProductContent struct {
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	Price         string `json:"price,omitempty"`
	OriginalPrice string `json:"originalPrice,omitempty"`
	Currency      string `json:"currency,omitempty"`
	ImageURL      string `json:"imageUrl,omitempty"`
	ButtonText    string `json:"buttonText,omitempty"`
	RedirectURL   string `json:"redirectUrl,omitempty"`
}

// ProductStyling is shared by the product card variants.
type ProductStyling struct {
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	TextColor       string  `json:"textColor,omitempty"`
	PriceColor      string  `json:"priceColor,omitempty"`
	ButtonColor     string  `json:"buttonColor,omitempty"`
	ButtonTextColor string  `json:"buttonTextColor,omitempty"`
	BorderRadius    float64 `json:"borderRadius,omitempty"`
	FontSize        float64 `json:"fontSize,omitempty"`
	FontFamily      string  `json:"fontFamily,omitempty"`
	Alignment       string  `json:"alignment,omitempty"`
	MarginBottom    float64 `json:"marginBottom,omitempty"`
}

// Classic is a rounded text button.
type Classic struct {
	Content ButtonContent
	Styling ButtonStyling
	fields  storedFields
}

func (Classic) Kind() Kind { return KindClassic }

func (Classic) Layout() Layout {
	return Layout{Size: geometry.Size{Width: 520, Height: 140}, Position: geometry.Point{X: 280, Y: 1620}}
}

func (v Classic) parts() (any, any) { return v.Content, v.Styling }

func (v Classic) stored() storedFields { return v.fields }

func (v Classic) merge(content json.RawMessage, styling json.RawMessage, mode decodeMode) (Variant, error) {
	fields, err := v.fields.apply(&v.Content, &v.Styling, content, styling, mode)
	if err != nil {
		return nil, err
	}
	v.fields = fields
	return v, nil
}

// SwipeUp is a swipe gesture hint.
type SwipeUp struct {
	Content ButtonContent
	Styling SwipeUpStyling
	fields  storedFields
}

func (SwipeUp) Kind() Kind { return KindSwipeUp }

func (SwipeUp) Layout() Layout {
	return Layout{Size: geometry.Size{Width: 400, Height: 200}, Position: geometry.Point{X: 340, Y: 1660}}
}

func (v SwipeUp) parts() (any, any) { return v.Content, v.Styling }

func (v SwipeUp) stored() storedFields { return v.fields }

func (v SwipeUp) merge(content json.RawMessage, styling json.RawMessage, mode decodeMode) (Variant, error) {
	fields, err := v.fields.apply(&v.Content, &v.Styling, content, styling, mode)
	if err != nil {
		return nil, err
	}
	v.fields = fields
	return v, nil
}

// Image is a tappable image rendered as a plain image element.
type Image struct {
	Content ImageContent
	Styling ImageStyling
	fields  storedFields
}

func (Image) Kind() Kind { return KindImage }

func (Image) Layout() Layout {
	return Layout{Size: geometry.Size{Width: 600, Height: 300}, Position: geometry.Point{X: 240, Y: 1480}}
}

func (v Image) parts() (any, any) { return v.Content, v.Styling }

func (v Image) stored() storedFields { return v.fields }

func (v Image) merge(content json.RawMessage, styling json.RawMessage, mode decodeMode) (Variant, error) {
	fields, err := v.fields.apply(&v.Content, &v.Styling, content, styling, mode)
	if err != nil {
		return nil, err
	}
	v.fields = fields
	return v, nil
}

// VisitProduct is a compact product card with a visit button.
type VisitProduct struct {
	Content ProductContent
	Styling ProductStyling
	fields  storedFields
}

func (VisitProduct) Kind() Kind { return KindVisitProduct }

func (VisitProduct) Layout() Layout {
	return Layout{Size: geometry.Size{Width: 880, Height: 260}, Position: geometry.Point{X: 100, Y: 1540}}
}

func (v VisitProduct) parts() (any, any) { return v.Content, v.Styling }

func (v VisitProduct) stored() storedFields { return v.fields }

func (v VisitProduct) merge(content json.RawMessage, styling json.RawMessage, mode decodeMode) (Variant, error) {
	fields, err := v.fields.apply(&v.Content, &v.Styling, content, styling, mode)
	if err != nil {
		return nil, err
	}
	v.fields = fields
	return v, nil
}

// DescribeProduct is a product card with a description paragraph.
type DescribeProduct struct {
	Content ProductContent
	Styling ProductStyling
	fields  storedFields
}

func (DescribeProduct) Kind() Kind { return KindDescribeProduct }

func (DescribeProduct) Layout() Layout {
	return Layout{Size: geometry.Size{Width: 880, Height: 420}, Position: geometry.Point{X: 100, Y: 1380}}
}

func (v DescribeProduct) parts() (any, any) { return v.Content, v.Styling }

func (v DescribeProduct) stored() storedFields { return v.fields }

func (v DescribeProduct) merge(content json.RawMessage, styling json.RawMessage, mode decodeMode) (Variant, error) {
	fields, err := v.fields.apply(&v.Content, &v.Styling, content, styling, mode)
	if err != nil {
		return nil, err
	}
	v.fields = fields
	return v, nil
}

// BuyProduct is a product card with price and a purchase button.
type BuyProduct struct {
	Content ProductContent
	Styling ProductStyling
	fields  storedFields
}

func (BuyProduct) Kind() Kind { return KindBuyProduct }

func (BuyProduct) Layout() Layout {
	return Layout{Size: geometry.Size{Width: 880, Height: 340}, Position: geometry.Point{X: 100, Y: 1460}}
}

func (v BuyProduct) parts() (any, any) { return v.Content, v.Styling }

func (v BuyProduct) stored() storedFields { return v.fields }

func (v BuyProduct) merge(content json.RawMessage, styling json.RawMessage, mode decodeMode) (Variant, error) {
	fields, err := v.fields.apply(&v.Content, &v.Styling, content, styling, mode)
	if err != nil {
		return nil, err
	}
	v.fields = fields
	return v, nil
}

func defaultClassic() Variant {
	return Classic{
		Content: ButtonContent{Text: "Shop now"},
		Styling: ButtonStyling{
			BackgroundColor: "#FFFFFF",
			TextColor:       "#000000",
			BorderRadius:    70,
			FontSize:        42,
			FontWeight:      "600",
			FontFamily:      "Inter",
			Alignment:       "center",
			MarginBottom:    160,
		},
	}
}

func defaultSwipeUp() Variant {
	return SwipeUp{
		Content: ButtonContent{Text: "Swipe up"},
		Styling: SwipeUpStyling{
			TextColor:    "#FFFFFF",
			ArrowColor:   "#FFFFFF",
			FontSize:     40,
			FontWeight:   "600",
			FontFamily:   "Inter",
			Alignment:    "center",
			MarginBottom: 60,
		},
	}
}

func defaultImage() Variant {
	return Image{
		Content: ImageContent{AltText: "Call to action"},
		Styling: ImageStyling{
			BorderRadius: 24,
			Opacity:      1,
			Alignment:    "center",
			MarginBottom: 140,
		},
	}
}

func defaultProductStyling() ProductStyling {
	return ProductStyling{
		BackgroundColor: "#FFFFFF",
		TextColor:       "#111111",
		PriceColor:      "#111111",
		ButtonColor:     "#111111",
		ButtonTextColor: "#FFFFFF",
		BorderRadius:    32,
		FontSize:        36,
		FontFamily:      "Inter",
		Alignment:       "center",
		MarginBottom:    120,
	}
}

func defaultVisitProduct() Variant {
	return VisitProduct{
		Content: ProductContent{Title: "Product name", ButtonText: "Visit"},
		Styling: defaultProductStyling(),
	}
}

func defaultDescribeProduct() Variant {
	return DescribeProduct{
		Content: ProductContent{Title: "Product name", Description: "Describe the product", ButtonText: "Learn more"},
		Styling: defaultProductStyling(),
	}
}

func defaultBuyProduct() Variant {
	return BuyProduct{
		Content: ProductContent{Title: "Product name", Price: "0.00", Currency: "USD", ButtonText: "Buy now"},
		Styling: defaultProductStyling(),
	}
}
