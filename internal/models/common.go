package models

import (
	"fmt"
	"strings"
)

// GraphQLRequest is the body POSTed to a GraphQL endpoint
type GraphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// GraphQLResponse is the standard GraphQL envelope. Data is a pointer so that a
// missing or null `data` member can be told apart from an empty result.
type GraphQLResponse[T any] struct {
	Data   *T                    `json:"data"`
	Errors []GraphQLErrorMessage `json:"errors,omitempty"`
}

type GraphQLErrorMessage struct {
	Message string `json:"message"`
}

// GraphQLError reports the `errors` member of a GraphQL response
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("graphql error: %s", strings.Join(e.Messages, "; "))
}

// Err returns a *GraphQLError when the response carries errors, nil otherwise
func (r *GraphQLResponse[T]) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	messages := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		messages = append(messages, e.Message)
	}
	return &GraphQLError{Messages: messages}
}

// ExplorerResponse is the envelope of the block explorer's etherscan-style API
type ExplorerResponse[T any] struct {
	JSONRPC string `json:"jsonrpc,omitempty"`
	ID      int    `json:"id,omitempty"`
	Result  T      `json:"result"`
	Message string `json:"message,omitempty"`
}
