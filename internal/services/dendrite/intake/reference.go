package intake

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
)

// ErrInvalidReference indicates a human option reference could not be parsed.
var ErrInvalidReference = errors.New("invalid option reference")

// OptionReference is the human form of an option address, written like
// "12-b-0": page 12, variant b, option position 0.
type OptionReference struct {
	PageNumber  int
	VariantName string
	Position    int
}

// String renders the reference in its canonical form.
func (r OptionReference) String() string {
	return fmt.Sprintf("%d-%s-%d", r.PageNumber, r.VariantName, r.Position)
}

// ParseOptionReference reads a reference made of three alphanumeric parts
// separated by any run of other characters. Variant names are lowercased.
func ParseOptionReference(value string) (OptionReference, error) {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return !isASCIIAlnum(r)
	})
	if len(parts) != 3 {
		return OptionReference{}, fmt.Errorf("%w: %q", ErrInvalidReference, value)
	}
	page, err := strconv.Atoi(parts[0])
	if err != nil {
		return OptionReference{}, fmt.Errorf("%w: page %q", ErrInvalidReference, parts[0])
	}
	name := strings.ToLower(parts[1])
	if !domain.IsVariantName(name) {
		return OptionReference{}, fmt.Errorf("%w: variant %q", ErrInvalidReference, parts[1])
	}
	position, err := strconv.Atoi(parts[2])
	if err != nil {
		return OptionReference{}, fmt.Errorf("%w: option %q", ErrInvalidReference, parts[2])
	}
	return OptionReference{PageNumber: page, VariantName: name, Position: position}, nil
}

func isASCIIAlnum(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// OptionFinder is the read surface needed to resolve option references.
type OptionFinder interface {
	FindPageByNumber(ctx context.Context, number int) (domain.PageRef, domain.Page, error)
	FindVariantByName(ctx context.Context, page domain.PageRef, name string) (domain.VariantRef, domain.Variant, error)
	FindOptionByPosition(ctx context.Context, variant domain.VariantRef, position int) (domain.OptionRef, domain.Option, error)
}

// ResolveOptionReference walks page, variant and option. Any missing link
// yields storage.ErrNotFound.
func ResolveOptionReference(ctx context.Context, finder OptionFinder, ref OptionReference) (domain.OptionRef, error) {
	pageRef, _, err := finder.FindPageByNumber(ctx, ref.PageNumber)
	if err != nil {
		return domain.OptionRef{}, fmt.Errorf("find page %d: %w", ref.PageNumber, err)
	}
	variantRef, _, err := finder.FindVariantByName(ctx, pageRef, ref.VariantName)
	if err != nil {
		return domain.OptionRef{}, fmt.Errorf("find variant %s: %w", ref.VariantName, err)
	}
	optionRef, _, err := finder.FindOptionByPosition(ctx, variantRef, ref.Position)
	if err != nil {
		return domain.OptionRef{}, fmt.Errorf("find option %d: %w", ref.Position, err)
	}
	return optionRef, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
