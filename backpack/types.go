// Copyright (c) 2025 BVK Chaitanya

package backpack

import "encoding/json"

// Ticker is the 24hr ticker summary for a market. Numeric fields are kept
// exactly as sent by the server; callers validate them.
type Ticker struct {
	Symbol             string      `json:"symbol"`
	FirstPrice         RawValue    `json:"firstPrice"`
	LastPrice          RawValue    `json:"lastPrice"`
	PriceChange        RawValue    `json:"priceChange"`
	PriceChangePercent RawValue    `json:"priceChangePercent"`
	High               RawValue    `json:"high"`
	Low                RawValue    `json:"low"`
	Volume             RawValue    `json:"volume"`
	QuoteVolume        RawValue    `json:"quoteVolume"`
	Trades             json.Number `json:"trades"`
}

// RawValue holds a json field exactly as sent by the server. Strings are
// unquoted; numbers and other json values are kept as their json text so the
// caller can validate and report them. Null is an empty value.
type RawValue string

func (v *RawValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = RawValue(s)
		return nil
	}
	*v = RawValue(data)
	return nil
}

// Balance is the per-asset capital entry from the private capital endpoint.
type Balance struct {
	Available string `json:"available"`
	Locked    string `json:"locked"`
	Staked    string `json:"staked"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
