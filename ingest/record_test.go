package ingest

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRecord = `{
	"_id": "fa8e22d6-c0b6-5229-bb9e-ad52eda39a0a",
	"actual_price": "2,999",
	"average_rating": "3.9",
	"brand": "York",
	"category": "Clothing and Accessories",
	"crawled_at": "02/10/2021, 20:11:51",
	"description": "Yorker trackpants made from 100% rich combed cotton",
	"discount": "69% off",
	"images": ["https://rukminim1.flixcart.com/image/128/128/jr3t5e80/track-pant.jpeg"],
	"out_of_stock": false,
	"pid": "TKPFCZ9EA7H5FYZH",
	"product_details": [{"Style Code": "1005COMBO2"}, {"Closure": "Elastic"}],
	"seller": "Shyam Enterprises",
	"selling_price": "921",
	"sub_category": "Bottomwear",
	"title": "Solid Men Multicolor Track Pants",
	"url": "https://www.flipkart.com/yorker-solid-men-multicolor-track-pants/p/itmd2c76aadce459"
}`

func decodeRecord(t *testing.T, payload string) Record {
	t.Helper()

	var record Record
	require.NoError(t, json.Unmarshal([]byte(payload), &record))

	return record
}

func TestRecord_ToProduct(t *testing.T) {
	product, err := decodeRecord(t, sampleRecord).ToProduct()
	require.NoError(t, err)

	require.NotNil(t, product.AverageRating)
	assert.InDelta(t, 3.9, *product.AverageRating, 0.0001)
	assert.Equal(t, time.Date(2021, time.October, 2, 20, 11, 51, 0, time.UTC), product.CrawledAt)
	assert.Equal(t, `["https://rukminim1.flixcart.com/image/128/128/jr3t5e80/track-pant.jpeg"]`, product.Images)
	assert.Equal(t, `[{"Style Code":"1005COMBO2"},{"Closure":"Elastic"}]`, product.ProductDetails)
	assert.Equal(t, "Solid Men Multicolor Track Pants", product.Title)
	assert.Equal(t, "Clothing and Accessories", product.Category)
	assert.False(t, product.OutOfStock)
}

func TestRecord_BlankRatingIsNull(t *testing.T) {
	for _, rating := range []string{`""`, `"  "`, `null`} {
		record := decodeRecord(t, sampleRecord)
		record.AverageRating = json.RawMessage(rating)

		product, err := record.ToProduct()
		require.NoError(t, err, rating)
		assert.Nil(t, product.AverageRating, rating)
	}

	record := decodeRecord(t, sampleRecord)
	record.AverageRating = nil
	product, err := record.ToProduct()
	require.NoError(t, err)
	assert.Nil(t, product.AverageRating)
}

func TestRecord_NumericRating(t *testing.T) {
	record := decodeRecord(t, sampleRecord)
	record.AverageRating = json.RawMessage(`4.5`)

	product, err := record.ToProduct()
	require.NoError(t, err)
	require.NotNil(t, product.AverageRating)
	assert.Equal(t, 4.5, *product.AverageRating)
}

func TestRecord_Truncates(t *testing.T) {
	record := decodeRecord(t, sampleRecord)
	record.Title = strings.Repeat("a", 300)
	record.Brand = strings.Repeat("b", 101)
	record.Seller = strings.Repeat("é", 150)
	record.ActualPrice = strings.Repeat("9", 60)
	record.PID = strings.Repeat("P", 51)
	record.Description = strings.Repeat("d", 5000)

	product, err := record.ToProduct()
	require.NoError(t, err)

	assert.Len(t, product.Title, 255)
	assert.Len(t, product.Brand, 100)
	assert.Equal(t, 100, utf8.RuneCountInString(product.Seller))
	assert.True(t, utf8.ValidString(product.Seller))
	assert.Len(t, product.ActualPrice, 50)
	assert.Len(t, product.PID, 50)
	assert.Len(t, product.Description, 5000)
}

func TestRecord_ShortValuesUntouched(t *testing.T) {
	record := decodeRecord(t, sampleRecord)
	record.Title = strings.Repeat("t", 255)

	product, err := record.ToProduct()
	require.NoError(t, err)
	assert.Equal(t, record.Title, product.Title)
}

func TestRecord_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Record)
	}{
		{name: "rating", mutate: func(r *Record) { r.AverageRating = json.RawMessage(`"four"`) }},
		{name: "crawled_at", mutate: func(r *Record) { r.CrawledAt = "2021-10-02T20:11:51Z" }},
		{name: "images", mutate: func(r *Record) { r.Images = json.RawMessage(`[`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := decodeRecord(t, sampleRecord)
			tt.mutate(&record)

			_, err := record.ToProduct()
			assert.ErrorContains(t, err, tt.name)
		})
	}
}
