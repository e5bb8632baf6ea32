package client

import (
	"context"
	"fmt"
)

// SourceNOAA tags data resolved from NOAA climate records.
const SourceNOAA = "noaa"

// NOAAClient reserves the HistoryClient slot for NOAA's Climate Data Online service.
// It has no implementation yet and always fails, which resolvers treat as absent.
type NOAAClient struct {
	token string
}

// NewNOAAClient creates the NOAA client stub. token is kept for the eventual CDO API.
func NewNOAAClient(token string) *NOAAClient {
	return &NOAAClient{token: token}
}

// Source implements HistoryClient.
func (c *NOAAClient) Source() string { return SourceNOAA }

// FetchDaily implements HistoryClient and always returns ErrNotImplemented.
func (c *NOAAClient) FetchDaily(ctx context.Context, req HistoryRequest) ([]DailyObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("noaa history for %s: %w", req.Location(), ErrNotImplemented)
}
