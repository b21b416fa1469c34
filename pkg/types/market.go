package types

import (
	"strconv"

	"github.com/goccy/go-json"
)

// Market represents a prediction market record from the Gamma API.
//
// The API serves two shapes for the outcome tokens: an inline tokens list
// (CLOB style) and parallel clobTokenIds/outcomes arrays that arrive either
// JSON-encoded as strings or as native lists. Both are preserved here;
// arbitrage.ExtractTokenIDs resolves them into a (yes, no) pair.
type Market struct {
	ConditionID   string    `json:"conditionId"`
	Question      string    `json:"question"`
	Slug          string    `json:"slug"`
	Active        bool      `json:"active"`
	Closed        bool      `json:"closed"`
	Tokens        []Token   `json:"tokens,omitempty"`
	ClobTokenIDs  FlexList  `json:"clobTokenIds,omitempty"`
	Outcomes      FlexList  `json:"outcomes,omitempty"`
	OutcomePrices FlexList  `json:"outcomePrices,omitempty"`
	BestAsk       *float64  `json:"bestAsk,omitempty"`
	BestBid       *float64  `json:"bestBid,omitempty"`
}

// UnmarshalJSON accepts both conditionId and condition_id spellings.
func (m *Market) UnmarshalJSON(data []byte) error {
	type Alias Market
	aux := &struct {
		ConditionIDSnake string `json:"condition_id"`
		*Alias
	}{
		Alias: (*Alias)(m),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if m.ConditionID == "" {
		m.ConditionID = aux.ConditionIDSnake
	}

	return nil
}

// Token represents a market outcome token.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

// UnmarshalJSON accepts token_id, tokenId and id spellings for the token ID.
func (t *Token) UnmarshalJSON(data []byte) error {
	aux := struct {
		TokenID      string `json:"token_id"`
		TokenIDCamel string `json:"tokenId"`
		ID           string `json:"id"`
		Outcome      string `json:"outcome"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	t.Outcome = aux.Outcome
	t.TokenID = aux.TokenID
	if t.TokenID == "" {
		t.TokenID = aux.TokenIDCamel
	}
	if t.TokenID == "" {
		t.TokenID = aux.ID
	}

	return nil
}

// FlexList is a list of strings that the Gamma API serves either as a native
// JSON array or as a JSON-encoded string ("[\"Yes\",\"No\"]"). Numeric
// elements are stringified.
type FlexList []string

// UnmarshalJSON decodes both encodings.
func (f *FlexList) UnmarshalJSON(data []byte) error {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		if encoded == "" {
			*f = nil
			return nil
		}
		data = []byte(encoded)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Malformed payload — treat as empty rather than failing the market.
		*f = nil
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, elem := range raw {
		var s string
		if err := json.Unmarshal(elem, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(elem, &n); err == nil {
			out = append(out, strconv.FormatFloat(n, 'f', -1, 64))
		}
	}
	*f = out

	return nil
}

// Floats parses every element as a float64, skipping unparsable entries.
func (f FlexList) Floats() []float64 {
	out := make([]float64, 0, len(f))
	for _, s := range f {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}

	return out
}
