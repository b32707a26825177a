// Package schema validates candidate product records.
//
// Numeric fields are coerced before the range rules run, so a form that
// submits "12.5" for a price is treated the same as one that submits 12.5.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"stockroom/internal/domain"

	"github.com/go-playground/validator/v10"
)

const (
	msgNotANumber = "Expected number, received nan"
	msgNotFinite  = "Number must be finite"
)

// MaxStock is the largest stock count every float64 and int can hold exactly
const MaxStock = 1<<53 - 1

// Field-level messages keyed by JSON field name and validator tag
var fieldMessages = map[string]map[string]string{
	"name":        {"required": "Product name is required"},
	"price":       {"gte": "Price must be positive"},
	"category":    {"required": "Category is required"},
	"description": {"required": "Description is required"},
	"stock": {
		"integral": "Expected integer, received float",
		"gte":      "Stock must be a positive integer",
		"lte":      "Number must be less than or equal to 9007199254740991",
	},
}

// ProductInput is a candidate set of editable fields as received from a form.
// Price and Stock accept numbers or numeric strings.
type ProductInput struct {
	Name        string `json:"name"`
	Price       any    `json:"price"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Stock       any    `json:"stock"`
}

// InputFromFields builds an input from already typed fields
func InputFromFields(f domain.ProductFields) ProductInput {
	return ProductInput{
		Name:        f.Name,
		Price:       f.Price,
		Category:    f.Category,
		Description: f.Description,
		Stock:       f.Stock,
	}
}

type coercedProduct struct {
	Name        string  `json:"name" validate:"required"`
	Price       float64 `json:"price" validate:"gte=0"`
	Category    string  `json:"category" validate:"required"`
	Description string  `json:"description" validate:"required"`
	Stock       float64 `json:"stock" validate:"integral,gte=0,lte=9007199254740991"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// integral: a float field that holds a whole number
	if err := v.RegisterValidation("integral", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsInf(f, 0) && f == math.Trunc(f)
	}); err != nil {
		panic(fmt.Sprintf("schema: register integral validation: %v", err))
	}

	return v
}

// Validate checks the input and returns the coerced fields.
// On failure the error is a *domain.ValidationError with one message per field.
func Validate(input ProductInput) (domain.ProductFields, error) {
	problems := make(map[string]string)

	price, err := coerceNumber(input.Price)
	if err != nil {
		problems["price"] = err.Error()
	}
	stock, err := coerceNumber(input.Stock)
	if err != nil {
		problems["stock"] = err.Error()
	}

	candidate := coercedProduct{
		Name:        input.Name,
		Price:       price,
		Category:    input.Category,
		Description: input.Description,
		Stock:       stock,
	}

	if err := validate.Struct(candidate); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return domain.ProductFields{}, fmt.Errorf("schema: validate product: %w", err)
		}
		for _, fe := range fieldErrs {
			field := fe.Field()
			if _, seen := problems[field]; seen {
				continue
			}
			problems[field] = messageFor(field, fe.Tag())
		}
	}

	if len(problems) > 0 {
		return domain.ProductFields{}, domain.NewValidationError(problems)
	}

	return domain.ProductFields{
		Name:        candidate.Name,
		Price:       candidate.Price,
		Category:    candidate.Category,
		Description: candidate.Description,
		Stock:       int(candidate.Stock),
	}, nil
}

// CheckProduct validates a complete stored record, including the
// system-assigned id and creation time.
func CheckProduct(p domain.Product) error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("product id is empty")
	}
	if p.CreatedAt.IsZero() {
		return fmt.Errorf("product %s has no creation time", p.ID)
	}
	if _, err := Validate(InputFromFields(p.Fields())); err != nil {
		return fmt.Errorf("product %s: %w", p.ID, err)
	}
	return nil
}

func messageFor(field, tag string) string {
	if msgs, ok := fieldMessages[field]; ok {
		if msg, ok := msgs[tag]; ok {
			return msg
		}
	}
	return "Invalid value"
}

// coerceNumber converts form input into a float64
func coerceNumber(v any) (float64, error) {
	var f float64

	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return 0, errors.New(msgNotANumber)
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.New(msgNotANumber)
		}
		f = parsed
	case bool:
		if n {
			f = 1
		}
	default:
		return 0, errors.New(msgNotANumber)
	}

	if math.IsNaN(f) {
		return 0, errors.New(msgNotANumber)
	}
	if math.IsInf(f, 0) {
		return 0, errors.New(msgNotFinite)
	}
	return f, nil
}
