package models

import "encoding/json"

// Limit is a directed trust relationship between two safes as indexed by the subgraph.
// LimitPercentage is optional and kept as-is, including an explicit null.
type Limit struct {
	Limit            string  `json:"limit"`
	LimitPercentage  *string `json:"limitPercentage"`
	CanSendToAddress string  `json:"canSendToAddress"`
	UserAddress      string  `json:"userAddress"`
}

type TokenOwner struct {
	ID string `json:"id"`
}

type Token struct {
	ID    string     `json:"id"`
	Owner TokenOwner `json:"owner"`
}

type Balance struct {
	Amount string `json:"amount"`
	Token  Token  `json:"token"`
}

// Safe is one account of the ledger with its trust edges and token balances
type Safe struct {
	ID       string    `json:"id"`
	Outgoing []Limit   `json:"outgoing"`
	Incoming []Limit   `json:"incoming"`
	Balances []Balance `json:"balances"`
}

// UnmarshalJSON leaves absent or null lists empty so they are written back as []
func (s *Safe) UnmarshalJSON(data []byte) error {
	type safe Safe
	var raw safe
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Outgoing == nil {
		raw.Outgoing = []Limit{}
	}
	if raw.Incoming == nil {
		raw.Incoming = []Limit{}
	}
	if raw.Balances == nil {
		raw.Balances = []Balance{}
	}
	*s = Safe(raw)
	return nil
}

// SafesPage is the `data` member of a safes query. Safes is a pointer so that a
// response without the `safes` field is distinguishable from an empty page.
type SafesPage struct {
	Safes *[]Safe `json:"safes"`
}

type SafesResponse = GraphQLResponse[SafesPage]

// Snapshot is the output document written when the block number is captured
type Snapshot struct {
	BlockNumber string `json:"blockNumber"`
	Safes       []Safe `json:"safes"`
}

// NewSnapshot pairs a block number with safes, never leaving Safes nil
func NewSnapshot(blockNumber string, safes []Safe) Snapshot {
	if safes == nil {
		safes = []Safe{}
	}
	return Snapshot{BlockNumber: blockNumber, Safes: safes}
}
