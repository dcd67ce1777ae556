package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kelsos/safes-dump/internal/config"
	"github.com/kelsos/safes-dump/internal/logger"
	"github.com/kelsos/safes-dump/internal/models"
	"github.com/kelsos/safes-dump/internal/utils"
)

// APIClient handles all HTTP communication with the subgraph's GraphQL endpoint
type APIClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewAPIClient creates a new API client with the given configuration
func NewAPIClient(cfg *config.Config) *APIClient {
	return &APIClient{
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}
}

// Endpoint returns the GraphQL endpoint this client talks to
func (c *APIClient) Endpoint() string {
	return c.endpoint
}

// HTTPClient returns the underlying HTTP client so auxiliary calls share its timeout
func (c *APIClient) HTTPClient() *http.Client {
	return c.httpClient
}

// Query POSTs a GraphQL query with variables and decodes the envelope.
// Transport failures, non-200 responses, undecodable bodies and GraphQL `errors`
// are all returned as errors; a missing `data` member is left to the caller.
func Query[T any](ctx context.Context, c *APIClient, query string, variables map[string]interface{}) (*models.GraphQLResponse[T], error) {
	request := models.GraphQLRequest{
		Query:     query,
		Variables: variables,
	}

	response, err := utils.FetchWithValidation[models.GraphQLResponse[T]](ctx, c.httpClient, c.endpoint, http.MethodPost, request)
	if err != nil {
		return nil, fmt.Errorf("graphql request failed: %w", err)
	}

	if err := response.Err(); err != nil {
		logger.Error("%s: %v", c.endpoint, err)
		return nil, err
	}

	return response, nil
}
