// Package form decodes HTML form posts and query strings into structs
// tagged with `schema:"name"`.
package form

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gorilla/schema"
	"github.com/labstack/echo/v4"
)

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// Decode fills dst from the request's form body. Fields absent from the
// form keep the value dst already has, so decode into a fresh value when
// unchecked checkboxes must read as false.
func Decode(c echo.Context, dst any) error {
	values, err := c.FormParams()
	if err != nil {
		return fmt.Errorf("read form: %w", err)
	}
	if err := decoder.Decode(dst, values); err != nil {
		return describe(err)
	}
	return nil
}

// DecodeQuery fills dst from the query string.
func DecodeQuery(c echo.Context, dst any) error {
	if err := decoder.Decode(dst, c.QueryParams()); err != nil {
		return describe(err)
	}
	return nil
}

// describe turns schema's conversion errors into a message fit for an
// inline alert.
func describe(err error) error {
	var multi schema.MultiError
	if !errors.As(err, &multi) {
		return err
	}
	fields := make([]string, 0, len(multi))
	for field, ferr := range multi {
		var conv schema.ConversionError
		if errors.As(ferr, &conv) {
			fields = append(fields, field)
			continue
		}
		return ferr
	}
	sort.Strings(fields)
	return fmt.Errorf("invalid value for %s", strings.Join(fields, ", "))
}
