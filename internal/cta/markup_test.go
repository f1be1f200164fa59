package cta

import (
	"net/url"
	"strings"
	"testing"
)

func TestMarkupEscapesUserText(t *testing.T) {
	hostile := `Tom & "Jerry" <script>'x'</script>`
	testCases := []struct {
		name    string
		variant Vector
	}{
		{name: "classic", variant: Classic{Content: ButtonContent{Text: hostile}}},
		{name: "swipe up", variant: SwipeUp{Content: ButtonContent{Text: hostile}}},
		{name: "visit product", variant: VisitProduct{Content: ProductContent{Title: hostile, ButtonText: hostile}}},
		{name: "describe product", variant: DescribeProduct{Content: ProductContent{Description: hostile}}},
		{name: "buy product", variant: BuyProduct{Content: ProductContent{Title: "t", OriginalPrice: hostile, ButtonText: "b"}}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			markup := testCase.variant.Markup()
			if strings.Contains(markup, "<script>") || strings.Contains(markup, `"Jerry"`) {
				t.Fatalf("unescaped text in markup: %s", markup)
			}
			if !strings.Contains(markup, "Tom &amp; &#34;Jerry&#34; &lt;script&gt;&#39;x&#39;&lt;/script&gt;") {
				t.Fatalf("expected escaped text in markup: %s", markup)
			}
			if !strings.HasPrefix(markup, "<svg ") || !strings.HasSuffix(markup, "</svg>") {
				t.Fatalf("markup is not a single svg document: %s", markup)
			}
		})
	}
}

func TestMarkupEscapesStylingAttributes(t *testing.T) {
	variant := Classic{Content: ButtonContent{Text: "Go"}, Styling: ButtonStyling{BackgroundColor: `red" onload="x`}}
	markup := variant.Markup()
	if strings.Contains(markup, `onload="x"`) {
		t.Fatalf("attribute injection survived: %s", markup)
	}
}

func TestImageVariantIsRaster(t *testing.T) {
	var variant Variant = Image{Content: ImageContent{ImageURL: "https://cdn.example.com/cta.png"}}
	raster, ok := variant.(Raster)
	if !ok {
		t.Fatalf("expected image variant to be raster")
	}
	if raster.ImageSource() != "https://cdn.example.com/cta.png" {
		t.Fatalf("unexpected image source %q", raster.ImageSource())
	}
	if _, isVector := variant.(Vector); isVector {
		t.Fatalf("image variant must not generate markup")
	}
}

func TestDataURLRoundTrips(t *testing.T) {
	markup := Classic{Content: ButtonContent{Text: "Shop & save 100%"}}.Markup()
	dataURL := DataURL(markup)
	prefix := "data:image/svg+xml;charset=utf-8,"
	if !strings.HasPrefix(dataURL, prefix) {
		t.Fatalf("unexpected prefix %q", dataURL)
	}
	encoded := strings.TrimPrefix(dataURL, prefix)
	if strings.ContainsAny(encoded, " <>\"#") {
		t.Fatalf("data url carries reserved characters: %s", encoded)
	}
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		t.Fatalf("unescape: %v", err)
	}
	if decoded != markup {
		t.Fatalf("decoded markup differs")
	}
}
