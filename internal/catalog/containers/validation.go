package containers

import (
	"errors"
	"fmt"
	"strings"
)

var errInvalidFields = errors.New("invalid container fields")

func (s *Service) validate(f Fields) error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: name is required", errInvalidFields)
	}
	return nil
}
