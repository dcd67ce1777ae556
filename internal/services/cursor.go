package services

import (
	"errors"
	"fmt"

	"github.com/kelsos/safes-dump/internal/config"
	"github.com/kelsos/safes-dump/internal/models"
)

// ErrCursorStalled is returned when a page would not move the id cursor forward,
// which would make the next request repeat a page forever.
var ErrCursorStalled = errors.New("pagination cursor did not advance")

const safeFields = `id
    outgoing { limit limitPercentage canSendToAddress userAddress }
    incoming { limit limitPercentage canSendToAddress userAddress }
    balances { amount token { id owner { id } } }`

const cursorQuery = `query Safes($first: Int!, $lastID: ID!) {
  safes(orderBy: id, first: $first, where: { id_gt: $lastID }) {
    ` + safeFields + `
  }
}`

const offsetQuery = `query Safes($first: Int!, $skip: Int!) {
  safes(orderBy: id, first: $first, skip: $skip) {
    ` + safeFields + `
  }
}`

// Cursor is the pagination state sent with each page request.
// Skip is used by offset pagination, LastID by cursor pagination.
type Cursor struct {
	Strategy config.Pagination
	Skip     int
	LastID   string
}

// NewCursor returns the cursor of the first page for the given strategy
func NewCursor(strategy config.Pagination) Cursor {
	return Cursor{Strategy: strategy}
}

// Query returns the GraphQL document for this cursor's strategy
func (c Cursor) Query() string {
	if c.Strategy == config.PaginationOffset {
		return offsetQuery
	}
	return cursorQuery
}

// Variables returns the GraphQL variables for a page of the given size
func (c Cursor) Variables(first int) map[string]interface{} {
	if c.Strategy == config.PaginationOffset {
		return map[string]interface{}{"first": first, "skip": c.Skip}
	}
	return map[string]interface{}{"first": first, "lastID": c.LastID}
}

// Next advances the cursor past a non-empty page
func (c Cursor) Next(page []models.Safe, pageSize int) (Cursor, error) {
	if len(page) == 0 {
		return c, fmt.Errorf("cannot advance past an empty page")
	}

	if c.Strategy == config.PaginationOffset {
		c.Skip += pageSize
		return c, nil
	}

	lastID := page[len(page)-1].ID
	if lastID <= c.LastID {
		return c, fmt.Errorf("%w: last id %q is not after %q", ErrCursorStalled, lastID, c.LastID)
	}
	c.LastID = lastID
	return c, nil
}

func (c Cursor) String() string {
	if c.Strategy == config.PaginationOffset {
		return fmt.Sprintf("skip=%d", c.Skip)
	}
	return fmt.Sprintf("id_gt=%q", c.LastID)
}
