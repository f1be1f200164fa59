package cta

import (
	"fmt"
	"html"
	"strings"
)

// Vector is implemented by variants drawn as generated SVG markup.
type Vector interface {
	Variant
	// Markup renders the variant in its baseline layout box. All user text is escaped.
	Markup() string
}

// Raster is implemented by variants drawn as a plain image element.
type Raster interface {
	Variant
	ImageSource() string
}

const (
	defaultFontFamily = "Inter"
	defaultFontWeight = "600"
)

// ImageSource returns the image reference of the CTA.
func (v Image) ImageSource() string { return v.Content.ImageURL }

// Markup renders the classic button.
func (v Classic) Markup() string {
	size := v.Layout().Size
	var builder strings.Builder
	openSVG(&builder, size.Width, size.Height)
	borderWidth := v.Styling.BorderWidth
	inset := borderWidth / 2
	fmt.Fprintf(&builder, `<rect x="%s" y="%s" width="%s" height="%s" rx="%s" fill="%s"`,
		number(inset), number(inset), number(size.Width-borderWidth), number(size.Height-borderWidth),
		number(clampRadius(v.Styling.BorderRadius, size.Height)), escape(orDefault(v.Styling.BackgroundColor, "#FFFFFF")))
	if borderWidth > 0 {
		fmt.Fprintf(&builder, ` stroke="%s" stroke-width="%s"`, escape(orDefault(v.Styling.BorderColor, "#000000")), number(borderWidth))
	}
	builder.WriteString("/>")
	writeText(&builder, textSpec{
		x: size.Width / 2, y: size.Height / 2, text: v.Content.Text,
		color: v.Styling.TextColor, fontSize: v.Styling.FontSize, fontWeight: v.Styling.FontWeight, fontFamily: v.Styling.FontFamily,
	})
	builder.WriteString("</svg>")
	return builder.String()
}

// Markup renders the swipe-up hint: a chevron above the label.
func (v SwipeUp) Markup() string {
	size := v.Layout().Size
	var builder strings.Builder
	openSVG(&builder, size.Width, size.Height)
	centerX := size.Width / 2
	fmt.Fprintf(&builder, `<path d="M%s %s L%s %s L%s %s" fill="none" stroke="%s" stroke-width="8" stroke-linecap="round" stroke-linejoin="round"/>`,
		number(centerX-40), number(70), number(centerX), number(30), number(centerX+40), number(70),
		escape(orDefault(v.Styling.ArrowColor, "#FFFFFF")))
	writeText(&builder, textSpec{
		x: centerX, y: size.Height * 0.72, text: v.Content.Text,
		color: orDefault(v.Styling.TextColor, "#FFFFFF"), fontSize: v.Styling.FontSize, fontWeight: v.Styling.FontWeight, fontFamily: v.Styling.FontFamily,
	})
	builder.WriteString("</svg>")
	return builder.String()
}

// Markup renders the visit card: title row and a trailing button.
func (v VisitProduct) Markup() string {
	size := v.Layout().Size
	var builder strings.Builder
	openSVG(&builder, size.Width, size.Height)
	writeCard(&builder, size.Width, size.Height, v.Styling)
	productThumbnail(&builder, v.Content.ImageURL, 30, 30, size.Height-60)
	textX := size.Height
	writeLeftText(&builder, textSpec{x: textX, y: size.Height / 2, text: v.Content.Title, color: v.Styling.TextColor, fontSize: v.Styling.FontSize, fontWeight: "600", fontFamily: v.Styling.FontFamily})
	writeButton(&builder, size.Width-270, size.Height/2-45, 240, 90, v.Content.ButtonText, v.Styling)
	builder.WriteString("</svg>")
	return builder.String()
}

// Markup renders the describe card: title, description and a full-width button.
func (v DescribeProduct) Markup() string {
	size := v.Layout().Size
	var builder strings.Builder
	openSVG(&builder, size.Width, size.Height)
	writeCard(&builder, size.Width, size.Height, v.Styling)
	productThumbnail(&builder, v.Content.ImageURL, 30, 30, 180)
	writeLeftText(&builder, textSpec{x: 240, y: 90, text: v.Content.Title, color: v.Styling.TextColor, fontSize: v.Styling.FontSize, fontWeight: "600", fontFamily: v.Styling.FontFamily})
	writeLeftText(&builder, textSpec{x: 240, y: 160, text: v.Content.Description, color: v.Styling.TextColor, fontSize: v.Styling.FontSize * 0.8, fontWeight: "400", fontFamily: v.Styling.FontFamily})
	writeButton(&builder, 30, size.Height-130, size.Width-60, 100, v.Content.ButtonText, v.Styling)
	builder.WriteString("</svg>")
	return builder.String()
}

// Markup renders the buy card: title, price line and a full-width button.
func (v BuyProduct) Markup() string {
	size := v.Layout().Size
	var builder strings.Builder
	openSVG(&builder, size.Width, size.Height)
	writeCard(&builder, size.Width, size.Height, v.Styling)
	productThumbnail(&builder, v.Content.ImageURL, 30, 30, 180)
	writeLeftText(&builder, textSpec{x: 240, y: 80, text: v.Content.Title, color: v.Styling.TextColor, fontSize: v.Styling.FontSize, fontWeight: "600", fontFamily: v.Styling.FontFamily})
	price := strings.TrimSpace(v.Content.Price + " " + v.Content.Currency)
	writeLeftText(&builder, textSpec{x: 240, y: 150, text: price, color: v.Styling.PriceColor, fontSize: v.Styling.FontSize, fontWeight: "700", fontFamily: v.Styling.FontFamily})
	if v.Content.OriginalPrice != "" {
		fmt.Fprintf(&builder, `<text x="%s" y="%s" fill="%s" font-size="%s" font-family="%s" text-decoration="line-through" opacity="0.6">%s</text>`,
			number(520), number(150), escape(orDefault(v.Styling.TextColor, "#111111")), number(fontSizeOrDefault(v.Styling.FontSize)*0.8),
			escape(orDefault(v.Styling.FontFamily, defaultFontFamily)), escape(v.Content.OriginalPrice))
	}
	writeButton(&builder, 30, size.Height-130, size.Width-60, 100, v.Content.ButtonText, v.Styling)
	builder.WriteString("</svg>")
	return builder.String()
}

type textSpec struct {
	x          float64
	y          float64
	text       string
	color      string
	fontSize   float64
	fontWeight string
	fontFamily string
}

func openSVG(builder *strings.Builder, width float64, height float64) {
	fmt.Fprintf(builder, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		number(width), number(height), number(width), number(height))
}

func writeText(builder *strings.Builder, spec textSpec) {
	writeTextAnchored(builder, spec, "middle")
}

func writeLeftText(builder *strings.Builder, spec textSpec) {
	writeTextAnchored(builder, spec, "start")
}

func writeTextAnchored(builder *strings.Builder, spec textSpec, anchor string) {
	if spec.text == "" {
		return
	}
	fmt.Fprintf(builder, `<text x="%s" y="%s" fill="%s" font-size="%s" font-weight="%s" font-family="%s" text-anchor="%s" dominant-baseline="middle">%s</text>`,
		number(spec.x), number(spec.y), escape(orDefault(spec.color, "#000000")), number(fontSizeOrDefault(spec.fontSize)),
		escape(orDefault(spec.fontWeight, defaultFontWeight)), escape(orDefault(spec.fontFamily, defaultFontFamily)), anchor, escape(spec.text))
}

func writeCard(builder *strings.Builder, width float64, height float64, styling ProductStyling) {
	fmt.Fprintf(builder, `<rect x="0" y="0" width="%s" height="%s" rx="%s" fill="%s"/>`,
		number(width), number(height), number(clampRadius(styling.BorderRadius, height)), escape(orDefault(styling.BackgroundColor, "#FFFFFF")))
}

func writeButton(builder *strings.Builder, x float64, y float64, width float64, height float64, label string, styling ProductStyling) {
	fmt.Fprintf(builder, `<rect x="%s" y="%s" width="%s" height="%s" rx="%s" fill="%s"/>`,
		number(x), number(y), number(width), number(height), number(height/2), escape(orDefault(styling.ButtonColor, "#111111")))
	writeText(builder, textSpec{
		x: x + width/2, y: y + height/2, text: label,
		color: orDefault(styling.ButtonTextColor, "#FFFFFF"), fontSize: styling.FontSize, fontWeight: "600", fontFamily: styling.FontFamily,
	})
}

func productThumbnail(builder *strings.Builder, imageURL string, x float64, y float64, side float64) {
	if imageURL == "" {
		return
	}
	fmt.Fprintf(builder, `<image href="%s" x="%s" y="%s" width="%s" height="%s" preserveAspectRatio="xMidYMid slice"/>`,
		escape(imageURL), number(x), number(y), number(side), number(side))
}

func clampRadius(radius float64, height float64) float64 {
	if radius < 0 {
		return 0
	}
	if radius > height/2 {
		return height / 2
	}
	return radius
}

func fontSizeOrDefault(size float64) float64 {
	if size <= 0 {
		return 36
	}
	return size
}

func orDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func escape(value string) string {
	return html.EscapeString(value)
}

func number(value float64) string {
	return fmt.Sprintf("%g", value)
}

// DataURL wraps SVG markup into a percent-encoded data URL.
func DataURL(markup string) string {
	var builder strings.Builder
	builder.WriteString("data:image/svg+xml;charset=utf-8,")
	for _, r := range markup {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			builder.WriteRune(r)
		default:
			for _, b := range []byte(string(r)) {
				fmt.Fprintf(&builder, "%%%02X", b)
			}
		}
	}
	return builder.String()
}
