package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/imkonsowa/catalog-recommender/models"
)

// CrawledAtLayout is the date format of the crawled_at field, e.g. "10/02/2021, 20:11:51".
const CrawledAtLayout = "02/01/2006, 15:04:05"

// Column length limits of the products table.
const (
	priceLength = 50
	labelLength = 100
	titleLength = 255
)

// Record is one element of the catalog JSON array.
type Record struct {
	ID             string          `json:"_id"`
	ActualPrice    string          `json:"actual_price"`
	AverageRating  json.RawMessage `json:"average_rating"`
	Brand          string          `json:"brand"`
	Category       string          `json:"category"`
	CrawledAt      string          `json:"crawled_at"`
	Description    string          `json:"description"`
	Discount       string          `json:"discount"`
	Images         json.RawMessage `json:"images"`
	OutOfStock     bool            `json:"out_of_stock"`
	PID            string          `json:"pid"`
	ProductDetails json.RawMessage `json:"product_details"`
	Seller         string          `json:"seller"`
	SellingPrice   string          `json:"selling_price"`
	SubCategory    string          `json:"sub_category"`
	Title          string          `json:"title"`
	URL            string          `json:"url"`
}

// ToProduct converts r into a row of the products table. Over-long values
// are cut to the column size instead of being rejected.
func (r Record) ToProduct() (models.Product, error) {
	rating, err := parseRating(r.AverageRating)
	if err != nil {
		return models.Product{}, fmt.Errorf("record %s: invalid average_rating: %w", r.ID, err)
	}

	crawledAt, err := time.Parse(CrawledAtLayout, strings.TrimSpace(r.CrawledAt))
	if err != nil {
		return models.Product{}, fmt.Errorf("record %s: invalid crawled_at: %w", r.ID, err)
	}

	images, err := jsonText(r.Images)
	if err != nil {
		return models.Product{}, fmt.Errorf("record %s: invalid images: %w", r.ID, err)
	}
	details, err := jsonText(r.ProductDetails)
	if err != nil {
		return models.Product{}, fmt.Errorf("record %s: invalid product_details: %w", r.ID, err)
	}

	return models.Product{
		ID:             r.ID,
		ActualPrice:    truncate(r.ActualPrice, priceLength),
		AverageRating:  rating,
		Brand:          truncate(r.Brand, labelLength),
		Category:       truncate(r.Category, labelLength),
		CrawledAt:      crawledAt,
		Description:    r.Description,
		Discount:       truncate(r.Discount, priceLength),
		Images:         images,
		OutOfStock:     r.OutOfStock,
		PID:            truncate(r.PID, priceLength),
		ProductDetails: details,
		Seller:         truncate(r.Seller, labelLength),
		SellingPrice:   truncate(r.SellingPrice, priceLength),
		SubCategory:    truncate(r.SubCategory, labelLength),
		Title:          truncate(r.Title, titleLength),
		URL:            r.URL,
	}, nil
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	return string([]rune(s)[:n])
}

// parseRating accepts a number, a numeric string, or a blank string or null
// for an unrated product.
func parseRating(raw json.RawMessage) (*float64, error) {
	value := strings.TrimSpace(string(raw))
	if value == "" || value == "null" {
		return nil, nil
	}
	if strings.HasPrefix(value, `"`) {
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, err
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return nil, nil
		}
	}

	rating, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}

	return &rating, nil
}

// jsonText renders raw as compact JSON text. A missing value becomes null.
func jsonText(raw json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "null", nil
	}

	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return "", err
	}

	return b.String(), nil
}
