package domain

import (
	"encoding/json"
	"time"
)

// Event types published to the signal bus and mirrored to the audit log.
const (
	EventMarketCreated     = "market.created"
	EventMarketApproved    = "market.approved"
	EventMarketActivated   = "market.activated"
	EventMarketCancelled   = "market.cancelled"
	EventMarketResolved    = "market.resolved"
	EventMarketDisputed    = "market.disputed"
	EventMarketFinalized   = "market.finalized"
	EventVoteSubmitted     = "vote.submitted"
	EventVotesAggregated   = "vote.aggregated"
	EventTradeExecuted     = "trade.executed"
	EventWinningsClaimed   = "winnings.claimed"
	EventLiquidityWithdraw = "liquidity.withdrawn"
	EventConfigUpdated     = "config.updated"
	EventProtocolPaused    = "protocol.paused"
)

// EventChannel is the pub/sub channel all protocol events are published to.
const EventChannel = "zmart.events"

// EventStream is the durable stream mirror of EventChannel.
const EventStream = "zmart:events"

// Event is the wire form of a protocol event.
type Event struct {
	Type     string         `json:"type"`
	MarketID string         `json:"market_id,omitempty"`
	At       time.Time      `json:"at"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// Encode marshals the event for the bus.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
