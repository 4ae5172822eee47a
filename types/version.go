package types

// Version is the canonical screener client version.
// The query_completed event contract version is kept in lockstep with it.
const Version = "0.3.0"

// ContractVersion is the version stamped on published events.
const ContractVersion = Version
