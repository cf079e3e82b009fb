package validation

import (
	"fmt"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// New returns a configured validator with the custom types and struct-level
// validations registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// decimals are validated through their canonical string form
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	if err := v.RegisterValidation("money", validateMoney); err != nil {
		panic(err)
	}

	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.String()
	}
	return nil
}

// validateMoney accepts amounts with at most two fractional digits.
func validateMoney(fl validatorv10.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return d.Equal(d.Truncate(2))
}

// createOrderStructValidation rejects repeated lines for the same catalog entry;
// callers must merge them into one line with the combined quantity.
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	seen := make(map[Item]int, len(req.Items))
	for i, it := range req.Items {
		key := Item{ProductID: it.ProductID, VariantID: it.VariantID, Size: it.Size, RentalDays: it.RentalDays}
		if first, dup := seen[key]; dup {
			sl.ReportError(req.Items[i], fmt.Sprintf("items[%d]", i), fmt.Sprintf("Items[%d]", i), "unique_line",
				fmt.Sprintf("duplicates items[%d]", first))
			continue
		}
		seen[key] = i
	}
}
