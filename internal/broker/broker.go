// Package broker talks to the brokerage that holds the managed account.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyike/SchwabAI/internal/models"
)

// ErrNotAuthenticated means no usable OAuth token is available. Callers
// treat it as fatal.
var ErrNotAuthenticated = errors.New("broker: not authenticated")

// Broker is the narrow capability set the trading pipeline needs.
type Broker interface {
	Portfolio(ctx context.Context) (*models.Portfolio, error)
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	PlaceOrder(ctx context.Context, order models.OrderRequest) (string, error)
}

// APIError is a non-2xx response from the brokerage API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker api error: status %d: %s", e.StatusCode, e.Body)
}
