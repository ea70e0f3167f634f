package postgresrepo

import (
	"encoding/json"
	"fmt"

	"github.com/kirinyoku/citybus/internal/domain"
)

// wrapDBErr maps common DB errors to repository-level errors and wraps them with
// the provided operation name.
func wrapDBErr(op string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s:%w", op, translateDBErr(err))
}

func encodeStops(stops []domain.RouteStop) ([]byte, error) {
	if stops == nil {
		stops = []domain.RouteStop{}
	}
	return json.Marshal(stops)
}

func encodeLocation(loc *domain.Location) ([]byte, error) {
	if loc == nil {
		return nil, nil
	}
	return json.Marshal(loc)
}
