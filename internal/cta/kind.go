package cta

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind names a CTA variant.
type Kind string

const (
	// KindClassic is a rounded text button.
	KindClassic Kind = "classic"
	// KindSwipeUp is a swipe gesture hint with a caption.
	KindSwipeUp Kind = "swipe_up"
	// KindImage is a tappable image.
	KindImage Kind = "image"
	// KindVisitProduct is a product card linking to the product page.
	KindVisitProduct Kind = "visit_product"
	// KindDescribeProduct is a product card with a description block.
	KindDescribeProduct Kind = "describe_product"
	// KindBuyProduct is a product card with price and purchase button.
	KindBuyProduct Kind = "buy_product"
)

var (
	// ErrUnknownKind indicates a CTA type outside the supported variant set.
	ErrUnknownKind = errors.New("cta: unknown kind")
	// ErrInvalidOverrides indicates override values that do not fit the variant fields.
	ErrInvalidOverrides = errors.New("cta: invalid overrides")
	// ErrInvalidPayload indicates a CTA entry that could not be decoded.
	ErrInvalidPayload = errors.New("cta: invalid payload")
)

type definition struct {
	blank    func() Variant
	defaults func() Variant
}

var registry = map[Kind]definition{
	KindClassic:         {blank: func() Variant { return Classic{} }, defaults: defaultClassic},
	KindSwipeUp:         {blank: func() Variant { return SwipeUp{} }, defaults: defaultSwipeUp},
	KindImage:           {blank: func() Variant { return Image{} }, defaults: defaultImage},
	KindVisitProduct:    {blank: func() Variant { return VisitProduct{} }, defaults: defaultVisitProduct},
	KindDescribeProduct: {blank: func() Variant { return DescribeProduct{} }, defaults: defaultDescribeProduct},
	KindBuyProduct:      {blank: func() Variant { return BuyProduct{} }, defaults: defaultBuyProduct},
}

// Legacy spellings found in stored slides.
var aliases = map[string]Kind{
	"button":           KindClassic,
	"classic_button":   KindClassic,
	"swipe-up":         KindSwipeUp,
	"swipeup":          KindSwipeUp,
	"image_cta":        KindImage,
	"visitproduct":     KindVisitProduct,
	"visit-product":    KindVisitProduct,
	"describeproduct":  KindDescribeProduct,
	"describe-product": KindDescribeProduct,
	"buyproduct":       KindBuyProduct,
	"buy-product":      KindBuyProduct,
}

// ParseKind resolves a raw type string, including legacy spellings, to a Kind.
func ParseKind(raw string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := registry[Kind(normalized)]; ok {
		return Kind(normalized), nil
	}
	if kind, ok := aliases[normalized]; ok {
		return kind, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// Kinds lists the supported variants in a stable order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
