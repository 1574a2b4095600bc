package reader

// Store reads and writes checkpoint sequence numbers kept outside the
// reader. Implementations live under store/.
type Store interface {
	GetCheckpoint(streamName, shardID string) (string, error)
	SetCheckpoint(streamName, shardID, sequenceNumber string) error
}
