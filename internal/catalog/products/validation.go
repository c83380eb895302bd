package products

import (
	"errors"
	"fmt"
	"strings"
)

var errInvalidFields = errors.New("invalid product fields")

func (s *Service) validate(f Fields) error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: name is required", errInvalidFields)
	}
	if f.PriceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", errInvalidFields)
	}
	if f.VatPercent < 0 || f.VatPercent > 100 {
		return fmt.Errorf("%w: vat percentage out of range", errInvalidFields)
	}
	if f.AlcoholPerc < 0 || f.AlcoholPerc > 100 {
		return fmt.Errorf("%w: alcohol percentage out of range", errInvalidFields)
	}
	return nil
}
