// Package notify implements the processor's notification emission (C7
// step 8): one AMQP message per new or updated token/contract, consumed by
// the metadata fetcher (C8) (spec.md §4.6, §6).
//
// Grounded on shared/messaging/rabbitmq.go's RabbitMQ.PublishJSON and
// shared/contracts/amqp.go's exchange/routing-key constants, reusing the
// teacher's AMQP wrapper unchanged but with this repo's own envelope
// shapes and routing keys.
package notify

import (
	"context"

	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/shared/contracts"
	"github.com/zunokit/evm-nft-indexer/shared/logging"
)

// publisher is the subset of RabbitMQ's API a Notifier needs.
type publisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, data interface{}) error
}

// Notifier publishes metadata-fetcher envelopes (spec.md §6). A failure to
// notify is non-fatal: the page has already committed (spec.md §4.6 step 8).
type Notifier struct {
	mq     publisher
	logger *logging.Logger
}

// New builds a Notifier over an already-connected AMQP publisher.
func New(mq publisher, logger *logging.Logger) *Notifier {
	return &Notifier{mq: mq, logger: logger}
}

type contractEnvelope struct {
	Contract contractRecord `json:"contract"`
}

type contractRecord struct {
	Address string `json:"address"`
}

type tokenEnvelope struct {
	Token tokenRecord `json:"token"`
}

type tokenRecord struct {
	Address  string  `json:"address"`
	TokenID  string  `json:"token_id"`
	TokenURI *string `json:"token_uri"`
}

// NotifyContract publishes a contract-discovered envelope. Errors are
// logged, not returned: notification failure never rolls back a page.
func (n *Notifier) NotifyContract(ctx context.Context, addr chain.Address) {
	env := contractEnvelope{Contract: contractRecord{Address: addr.Hex()}}
	if err := n.mq.PublishJSON(ctx, contracts.MetadataExchange, contracts.ContractDiscoveredKey, env); err != nil {
		n.logger.WithFields(map[string]interface{}{
			"contract": addr.Hex(),
			"error":    err.Error(),
		}).Warn("contract notification failed")
	}
}

// NotifyToken publishes a token-updated envelope.
func (n *Notifier) NotifyToken(ctx context.Context, id chain.NftId, tokenURI *string) {
	env := tokenEnvelope{Token: tokenRecord{
		Address:  id.Contract.Hex(),
		TokenID:  id.TokenID.String(),
		TokenURI: tokenURI,
	}}
	if err := n.mq.PublishJSON(ctx, contracts.MetadataExchange, contracts.TokenUpdatedKey, env); err != nil {
		n.logger.WithFields(map[string]interface{}{
			"token": id.String(),
			"error": err.Error(),
		}).Warn("token notification failed")
	}
}
