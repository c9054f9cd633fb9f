// Package signal standardizes payloads shared between data ingestion and strategy layers.
package signal

import "time"

// Tick models a single reference-instrument trade.
type Tick struct {
	Symbol string
	Price  float64
	Size   float64
	Side   int // +1 buy, -1 sell (aggressor)
	Ts     time.Time
}

// Level is one price/size rung of an order book.
type Level struct {
	Price float64
	Size  float64
}

// BookUpdate carries ask and bid levels for one outcome token, either a snapshot or a delta.
type BookUpdate struct {
	AssetID string
	Asks    []Level
	Bids    []Level
	Ts      time.Time
}

// Quote is the reduced top of book for an outcome token.
type Quote struct {
	Bid float64
	Ask float64
	Ts  time.Time
}

// Candle is one OHLC bar of the reference instrument.
type Candle struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}
