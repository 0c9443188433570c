package metadata

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/shared/contracts"
	"github.com/zunokit/evm-nft-indexer/shared/logging"
	"github.com/zunokit/evm-nft-indexer/shared/messaging"
	rediskeys "github.com/zunokit/evm-nft-indexer/shared/redis"
)

// consumer is the subset of RabbitMQ's API a Worker needs, grounded on
// shared/messaging/rabbitmq.go's Consume, which runs its own ack/nack
// loop and hands each delivery to the supplied handler.
type consumer interface {
	Consume(queueName, consumerTag string, handler messaging.MessageHandler) error
}

// dedupeCache is the subset of shared/redis's Redis client a Worker needs to
// collapse a burst of identical notifications into a single fetch.
type dedupeCache interface {
	Exists(ctx context.Context, keys ...string) (int64, error)
	Set(ctx context.Context, key, value string, expiration time.Duration) error
}

// dedupeWindow bounds how long a (contract, token, uri) triple is
// suppressed after being fetched once.
const dedupeWindow = 30 * time.Second

// Worker turns C7's notification envelopes (spec.md §6) into Fetch calls,
// the consumer side of the AMQP transport spec.md leaves as an external
// collaborator.
type Worker struct {
	mq      consumer
	fetcher *Fetcher
	logger  *logging.Logger
	queue   string
	dedupe  dedupeCache
}

// NewWorker builds a Worker consuming from the metadata-fetch queue. dedupe
// may be nil, in which case every notification is fetched unconditionally.
func NewWorker(mq consumer, fetcher *Fetcher, logger *logging.Logger, dedupe dedupeCache) *Worker {
	return &Worker{mq: mq, fetcher: fetcher, logger: logger, queue: contracts.MetadataFetchQueue, dedupe: dedupe}
}

// Run starts consuming. It returns once the consumer is registered;
// delivery handling itself runs in the background (Consume's contract).
func (w *Worker) Run(consumerTag string) error {
	return w.mq.Consume(w.queue, consumerTag, w.handleDelivery)
}

type contractEnvelope struct {
	Contract *struct {
		Address string `json:"address"`
	} `json:"contract"`
}

type tokenEnvelope struct {
	Token *struct {
		Address  string  `json:"address"`
		TokenID  string  `json:"token_id"`
		TokenURI *string `json:"token_uri"`
	} `json:"token"`
}

// handleDelivery dispatches a single notification body. Contract envelopes
// are logged: spec.md does not define an ABI-fetch algorithm, so contract
// discovery has no further action to take in this repo's scope.
func (w *Worker) handleDelivery(ctx context.Context, d amqp.Delivery) error {
	var contractEnv contractEnvelope
	if err := json.Unmarshal(d.Body, &contractEnv); err == nil && contractEnv.Contract != nil {
		w.logger.WithField("contract", contractEnv.Contract.Address).Info("contract discovered notification received")
		return nil
	}

	var tokenEnv tokenEnvelope
	if err := json.Unmarshal(d.Body, &tokenEnv); err != nil || tokenEnv.Token == nil {
		return fmt.Errorf("metadata worker: unrecognized envelope: %s", string(d.Body))
	}

	contract, err := chain.ParseAddress(tokenEnv.Token.Address)
	if err != nil {
		return fmt.Errorf("metadata worker: parse contract address: %w", err)
	}
	tokenID, err := chain.U256FromDecimalString(tokenEnv.Token.TokenID)
	if err != nil {
		return fmt.Errorf("metadata worker: parse token id: %w", err)
	}

	id := chain.NftId{Contract: contract, TokenID: tokenID}

	dedupeKey := w.dedupeKey(tokenEnv.Token.Address, tokenEnv.Token.TokenID, tokenEnv.Token.TokenURI)
	if w.dedupe != nil && dedupeKey != "" {
		n, err := w.dedupe.Exists(ctx, dedupeKey)
		if err != nil {
			w.logger.WithError(err).Warn("dedupe cache lookup failed, fetching anyway")
		} else if n > 0 {
			w.logger.WithField("nft", id.String()).Debug("skipping duplicate metadata fetch within dedupe window")
			return nil
		}
	}

	_, err = w.fetcher.Fetch(ctx, id, tokenEnv.Token.TokenURI)
	if err != nil {
		return fmt.Errorf("metadata worker: fetch %s: %w", id, err)
	}

	if w.dedupe != nil && dedupeKey != "" {
		if err := w.dedupe.Set(ctx, dedupeKey, "1", dedupeWindow); err != nil {
			w.logger.WithError(err).Warn("failed to record metadata fetch in dedupe cache")
		}
	}
	return nil
}

// dedupeKey returns the redis key guarding against a refetch within the
// dedupe window, or "" when there is no token uri to key on.
func (w *Worker) dedupeKey(address, tokenID string, tokenURI *string) string {
	if tokenURI == nil {
		return ""
	}
	sum := md5.Sum([]byte(*tokenURI))
	return rediskeys.MetadataFetchKey(address, tokenID, hex.EncodeToString(sum[:]))
}
