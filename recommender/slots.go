package recommender

import (
	"fmt"
	"strings"
	"unicode"
)

type Category string

const (
	CategoryBags     Category = "Bags, Wallets & Belts"
	CategoryFootwear Category = "Footwear"
	CategoryToys     Category = "Toys"
	CategoryClothing Category = "Clothing and Accessories"
)

var Categories = []Category{CategoryBags, CategoryFootwear, CategoryToys, CategoryClothing}

// ParseCategory maps a loosely written category onto the closed set.
// "bags/wallets/belts" and "FOOTWEAR" both match; anything else reports false.
func ParseCategory(value string) (Category, bool) {
	key := categoryKey(value)
	if key == "" {
		return "", false
	}
	for _, c := range Categories {
		if categoryKey(string(c)) == key {
			return c, true
		}
	}

	return "", false
}

func IsCategory(value string) bool {
	for _, c := range Categories {
		if string(c) == value {
			return true
		}
	}

	return false
}

func categoryKey(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	return strings.ReplaceAll(b.String(), "and", "")
}

type Slot string

const (
	SlotCategory    Slot = "category"
	SlotProductName Slot = "product_name"
	SlotSubject     Slot = "subject"
	SlotColor       Slot = "color"
	SlotBrand       Slot = "brand"
)

// Slots is the fixed order in which slots are rendered and filtered.
var Slots = []Slot{SlotCategory, SlotProductName, SlotSubject, SlotColor, SlotBrand}

// AttributeSlots is what the extractor could read out of a question.
// Empty fields were not stated by the user.
type AttributeSlots struct {
	Category    Category `json:"category"`
	ProductName string   `json:"product_name"`
	Subject     string   `json:"subject"`
	Color       string   `json:"color"`
	Brand       string   `json:"brand"`
}

func (a AttributeSlots) Value(slot Slot) string {
	switch slot {
	case SlotCategory:
		return string(a.Category)
	case SlotProductName:
		return a.ProductName
	case SlotSubject:
		return a.Subject
	case SlotColor:
		return a.Color
	case SlotBrand:
		return a.Brand
	}

	return ""
}

func (a AttributeSlots) Validate() error {
	if strings.TrimSpace(a.ProductName) == "" {
		return fmt.Errorf("%w: product name is missing", ErrExtraction)
	}
	if a.Category != "" && !IsCategory(string(a.Category)) {
		return fmt.Errorf("%w: unknown category", ErrExtraction)
	}

	return nil
}

// Stringify renders the non-empty slots one per line.
func (a AttributeSlots) Stringify() string {
	labels := map[Slot]string{
		SlotCategory:    "Category",
		SlotProductName: "Product name",
		SlotSubject:     "Subject",
		SlotColor:       "Color",
		SlotBrand:       "Brand",
	}

	var b strings.Builder
	for _, slot := range Slots {
		if v := a.Value(slot); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", labels[slot], v)
		}
	}

	return b.String()
}
