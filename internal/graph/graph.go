// Package graph turns a safes dump into the directed capacity graph used for
// transitive transfers: who can send how much of which token to whom.
package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/kelsos/safes-dump/internal/models"
)

type connectionKey struct {
	canSendTo common.Address
	user      common.Address
}

// Graph holds the balances, token owners and trust limits of a dump
type Graph struct {
	// safe -> token -> balance
	balances    map[common.Address]map[common.Address]*uint256.Int
	tokenOwners map[common.Address]common.Address
	// first limit seen for a (canSendTo, user) pair wins
	limits map[connectionKey]*uint256.Int
}

// Edge is a transfer capacity of Token from From to To
type Edge struct {
	From     common.Address
	To       common.Address
	Token    common.Address
	Capacity *uint256.Int
}

type edgeJSON struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Token    string `json:"token"`
	Capacity string `json:"capacity"`
}

func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal(edgeJSON{
		From:     hexutil.Encode(e.From[:]),
		To:       hexutil.Encode(e.To[:]),
		Token:    hexutil.Encode(e.Token[:]),
		Capacity: e.Capacity.Dec(),
	})
}

// Build indexes safes. Every address and amount is validated; the first bad one
// is reported together with the safe it belongs to.
func Build(safes []models.Safe) (*Graph, error) {
	g := &Graph{
		balances:    make(map[common.Address]map[common.Address]*uint256.Int, len(safes)),
		tokenOwners: make(map[common.Address]common.Address),
		limits:      make(map[connectionKey]*uint256.Int),
	}

	for _, safe := range safes {
		address, err := parseAddress(safe.ID)
		if err != nil {
			return nil, fmt.Errorf("safe %q: %w", safe.ID, err)
		}

		held := make(map[common.Address]*uint256.Int, len(safe.Balances))
		for _, balance := range safe.Balances {
			token, err := parseAddress(balance.Token.ID)
			if err != nil {
				return nil, fmt.Errorf("safe %q: token: %w", safe.ID, err)
			}
			owner, err := parseAddress(balance.Token.Owner.ID)
			if err != nil {
				return nil, fmt.Errorf("safe %q: token owner: %w", safe.ID, err)
			}
			amount, err := parseAmount(balance.Amount)
			if err != nil {
				return nil, fmt.Errorf("safe %q: balance of %s: %w", safe.ID, balance.Token.ID, err)
			}
			if _, known := g.tokenOwners[token]; !known {
				g.tokenOwners[token] = owner
			}
			held[token] = amount
		}
		g.balances[address] = held

		for _, limits := range [][]models.Limit{safe.Outgoing, safe.Incoming} {
			for _, limit := range limits {
				if err := g.addLimit(limit); err != nil {
					return nil, fmt.Errorf("safe %q: %w", safe.ID, err)
				}
			}
		}
	}

	return g, nil
}

func (g *Graph) addLimit(limit models.Limit) error {
	canSendTo, err := parseAddress(limit.CanSendToAddress)
	if err != nil {
		return fmt.Errorf("canSendToAddress: %w", err)
	}
	user, err := parseAddress(limit.UserAddress)
	if err != nil {
		return fmt.Errorf("userAddress: %w", err)
	}
	value, err := parseAmount(limit.Limit)
	if err != nil {
		return fmt.Errorf("limit %s -> %s: %w", limit.UserAddress, limit.CanSendToAddress, err)
	}

	key := connectionKey{canSendTo: canSendTo, user: user}
	if _, exists := g.limits[key]; !exists {
		g.limits[key] = value
	}
	return nil
}

// SafeCount returns the number of distinct safes
func (g *Graph) SafeCount() int {
	return len(g.balances)
}

// TokenCount returns the number of distinct tokens
func (g *Graph) TokenCount() int {
	return len(g.tokenOwners)
}

// Edges derives every non-zero capacity edge, sorted by (from, to, token).
//
// Holding a token implicitly lets its owner send to the holder up to the held
// balance. A user can send token T to canSendTo when canSendTo accepts T's owner;
// the capacity is the user's T balance capped by that acceptance limit.
func (g *Graph) Edges() []Edge {
	connections := make(map[connectionKey]*uint256.Int, len(g.limits))
	for key, limit := range g.limits {
		connections[key] = limit
	}
	for holder, held := range g.balances {
		for token, balance := range held {
			key := connectionKey{canSendTo: g.tokenOwners[token], user: holder}
			if _, exists := connections[key]; !exists {
				connections[key] = balance
			}
		}
	}

	edges := make([]Edge, 0)
	for key := range connections {
		held, known := g.balances[key.user]
		if !known || key.user == key.canSendTo {
			continue
		}

		for token, balance := range held {
			limit, accepted := connections[connectionKey{canSendTo: key.canSendTo, user: g.tokenOwners[token]}]
			if !accepted {
				continue
			}

			capacity := new(uint256.Int).Set(balance)
			if limit.Lt(capacity) {
				capacity.Set(limit)
			}
			if capacity.IsZero() {
				continue
			}

			edges = append(edges, Edge{
				From:     key.user,
				To:       key.canSendTo,
				Token:    token,
				Capacity: capacity,
			})
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if c := bytes.Compare(edges[i].From[:], edges[j].From[:]); c != 0 {
			return c < 0
		}
		if c := bytes.Compare(edges[i].To[:], edges[j].To[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(edges[i].Token[:], edges[j].Token[:]) < 0
	})

	return edges
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*uint256.Int, error) {
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return amount, nil
}
