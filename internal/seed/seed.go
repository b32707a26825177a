// Package seed provides the default product collection shown before
// anything has been persisted.
package seed

import (
	"time"

	"stockroom/internal/domain"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// Products returns a fresh copy of the seed collection on every call,
// so callers may modify the result freely.
func Products() []domain.Product {
	return []domain.Product{
		{
			ID:          "1",
			Name:        "Wireless Mouse",
			Price:       29.99,
			Category:    "Electronics",
			Description: "Ergonomic wireless mouse with 2.4GHz connectivity",
			Stock:       150,
			CreatedAt:   day(2024, time.January, 15),
		},
		{
			ID:          "2",
			Name:        "Mechanical Keyboard",
			Price:       89.99,
			Category:    "Electronics",
			Description: "RGB mechanical keyboard with blue switches",
			Stock:       75,
			CreatedAt:   day(2024, time.January, 20),
		},
		{
			ID:          "3",
			Name:        "USB-C Hub",
			Price:       45.50,
			Category:    "Accessories",
			Description: "7-in-1 USB-C hub with HDMI and ethernet",
			Stock:       200,
			CreatedAt:   day(2024, time.February, 1),
		},
		{
			ID:          "4",
			Name:        "Laptop Stand",
			Price:       34.99,
			Category:    "Accessories",
			Description: "Adjustable aluminum laptop stand",
			Stock:       120,
			CreatedAt:   day(2024, time.February, 10),
		},
		{
			ID:          "5",
			Name:        "Webcam HD",
			Price:       59.99,
			Category:    "Electronics",
			Description: "1080p HD webcam with built-in microphone",
			Stock:       90,
			CreatedAt:   day(2024, time.February, 15),
		},
	}
}
