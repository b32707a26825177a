package domain

import "time"

// Stock thresholds used to classify inventory levels.
const (
	HighStockThreshold   = 100
	MediumStockThreshold = 50
)

// StockLevel is a coarse classification of a product's stock
type StockLevel string

const (
	StockLevelHigh   StockLevel = "high"
	StockLevelMedium StockLevel = "medium"
	StockLevelLow    StockLevel = "low"
)

// ProductFields holds the user-editable attributes of a product
type ProductFields struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Stock       int     `json:"stock"`
}

// Product represents a product in the inventory.
// ID and CreatedAt are assigned by the store and never change afterwards.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Fields returns the editable part of the product
func (p Product) Fields() ProductFields {
	return ProductFields{
		Name:        p.Name,
		Price:       p.Price,
		Category:    p.Category,
		Description: p.Description,
		Stock:       p.Stock,
	}
}

// WithFields returns a copy of p with every editable field replaced by f.
func (p Product) WithFields(f ProductFields) Product {
	p.Name = f.Name
	p.Price = f.Price
	p.Category = f.Category
	p.Description = f.Description
	p.Stock = f.Stock
	return p
}

// StockLevel classifies the current stock
func (p Product) StockLevel() StockLevel {
	switch {
	case p.Stock > HighStockThreshold:
		return StockLevelHigh
	case p.Stock > MediumStockThreshold:
		return StockLevelMedium
	default:
		return StockLevelLow
	}
}
