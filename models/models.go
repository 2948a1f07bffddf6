package models

import (
	"fmt"
	"time"
)

// Product is a catalog record as written by the ingestion tool.
type Product struct {
	ID             string    `gorm:"column:_id;size:64;index" json:"_id"`
	ActualPrice    string    `gorm:"column:actual_price;size:50" json:"actual_price"`
	AverageRating  *float64  `gorm:"column:average_rating" json:"average_rating"`
	Brand          string    `gorm:"column:brand;size:100" json:"brand"`
	Category       string    `gorm:"column:category;size:100;index" json:"category"`
	CrawledAt      time.Time `gorm:"column:crawled_at" json:"crawled_at"`
	Description    string    `gorm:"column:description;type:text" json:"description"`
	Discount       string    `gorm:"column:discount;size:50" json:"discount"`
	Images         string    `gorm:"column:images;type:json" json:"images"`
	OutOfStock     bool      `gorm:"column:out_of_stock" json:"out_of_stock"`
	PID            string    `gorm:"column:pid;size:50" json:"pid"`
	ProductDetails string    `gorm:"column:product_details;type:json" json:"product_details"`
	Seller         string    `gorm:"column:seller;size:100" json:"seller"`
	SellingPrice   string    `gorm:"column:selling_price;size:50" json:"selling_price"`
	SubCategory    string    `gorm:"column:sub_category;size:100" json:"sub_category"`
	Title          string    `gorm:"column:title;size:255" json:"title"`
	URL            string    `gorm:"column:url;type:text" json:"url"`
}

func (p *Product) TableName() string {
	return "products"
}

// Columns lists the physical columns in insertion order.
func (p *Product) Columns() []string {
	return []string{
		"_id", "actual_price", "average_rating", "brand", "category", "crawled_at", "description", "discount",
		"images", "out_of_stock", "pid", "product_details", "seller", "selling_price", "sub_category", "title", "url",
	}
}

// Values returns the column values in the order of Columns.
func (p *Product) Values() []interface{} {
	return []interface{}{
		p.ID, p.ActualPrice, p.AverageRating, p.Brand, p.Category, p.CrawledAt, p.Description, p.Discount,
		p.Images, p.OutOfStock, p.PID, p.ProductDetails, p.Seller, p.SellingPrice, p.SubCategory, p.Title, p.URL,
	}
}

// ProductRow is the projection the recommendation pipeline reads.
type ProductRow struct {
	ID    string `gorm:"column:_id" json:"id"`
	Title string `gorm:"column:title" json:"title"`
	URL   string `gorm:"column:url" json:"url"`
}

func (r ProductRow) Stringify() string {
	return fmt.Sprintf("(%q, %q, %q)", r.ID, r.Title, r.URL)
}
