package contracts

import (
	"context"
)

// AMQPMessage represents a message to be published to AMQP
type AMQPMessage struct {
	Exchange   string                 `json:"exchange"`
	RoutingKey string                 `json:"routing_key"`
	Body       []byte                 `json:"body"`
	Headers    map[string]interface{} `json:"headers,omitempty"`
}

// AMQPClient defines the interface for AMQP operations
type AMQPClient interface {
	// Publish publishes a message to the specified exchange
	Publish(ctx context.Context, message AMQPMessage) error

	// Close closes the AMQP connection
	Close() error
}

// Exchange names - configurable constants
const (
	// MetadataExchange carries page-boundary notifications from the
	// processor (C7 step 8) to the metadata fetcher (C8).
	MetadataExchange = "nft.metadata.notify"
	DLXExchange      = "nft.metadata.dlx"
)

// Queue names - configurable constants
const (
	MetadataFetchQueue = "metadata.fetch"
)

// Routing keys - configurable constants
const (
	// ContractDiscoveredKey routes a {"contract":{...}} envelope (spec.md §6).
	ContractDiscoveredKey = "contract.discovered"
	// TokenUpdatedKey routes a {"token":{...}} envelope (spec.md §6).
	TokenUpdatedKey = "token.updated"
)
