package httpserver

import (
	"github.com/Skotchmaster/car_rental/internal/service"
	"github.com/Skotchmaster/car_rental/internal/transport"
)

// CustomValidator plugs transport validation into echo's c.Validate.
type CustomValidator struct {
	V *transport.Validator
}

func (cv *CustomValidator) Validate(i any) error {
	fields, err := cv.V.Check(i)
	if err != nil {
		return err
	}
	if len(fields) > 0 {
		return &service.ValidationError{Fields: fields}
	}
	return nil
}
