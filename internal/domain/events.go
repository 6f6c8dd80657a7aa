package domain

// Engine event types, published on the signal bus channel EventChannel and
// appended to EventStream after the ledger commit. Every state-mutating
// operation emits exactly one of these.
const (
	EventBondIssued         = "bond_issued"
	EventInvestmentRecorded = "investment_recorded"
	EventRevenueDistributed = "revenue_distributed"
	EventBondMatured        = "bond_matured"
	EventBondDefaulted      = "bond_defaulted"
	EventRedeemed           = "redeemed"
)

const (
	// EventChannel is the pub/sub channel for ephemeral event fan-out.
	EventChannel = "bonds"
	// EventStream is the durable stream external indexers replay from.
	EventStream = "bond_events"
)
