package domain

// ProtocolStats son los contadores agregados del protocolo.
type ProtocolStats struct {
	TotalMarkets       uint64
	TotalVolume        uint64
	TotalFeesCollected uint64
}
