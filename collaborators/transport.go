// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package collaborators

import (
	"context"

	"github.com/chainkit/reactor/types"
)

// MessageCategory names one of the wire message categories spec.md §6
// enumerates. CategoryWeights assigns each a configurable weight (0 =
// exempt); peerbook.Throttle does not read these weights.
type MessageCategory string

const (
	CategoryConsensus            MessageCategory = "consensus"
	CategoryBlockGossip          MessageCategory = "block_gossip"
	CategoryTransactionGossip    MessageCategory = "transaction_gossip"
	CategoryFinalitySigGossip    MessageCategory = "finality_signature_gossip"
	CategoryAddressGossip        MessageCategory = "address_gossip"
	CategoryBlockRequest         MessageCategory = "block_request"
	CategoryHeaderRequest        MessageCategory = "header_request"
	CategoryTrieRequest          MessageCategory = "trie_request"
	CategoryFinalitySigRequest   MessageCategory = "finality_signature_request"
	CategorySyncLeapRequest      MessageCategory = "sync_leap_request"
	CategoryApprovalsHashRequest MessageCategory = "approvals_hashes_request"
	CategoryExecutionResultsReq  MessageCategory = "execution_results_request"
	CategoryLegacyDeployRequest  MessageCategory = "legacy_deploy_request"
)

// Transport is the gossip-overlay collaborator named in spec.md §6. Its
// wire framing is out of scope; the core only needs peer up/down events,
// categorized inbound messages, and the ability to send/disconnect.
type Transport interface {
	SendMessage(ctx context.Context, peer types.NodeID, category MessageCategory, payload []byte) error
	Disconnect(ctx context.Context, peer types.NodeID) error
}

// InboundMessage is one categorized message delivered from Transport onto
// the control bus.
type InboundMessage struct {
	From     types.NodeID
	Category MessageCategory
	Payload  []byte
}

// CategoryWeights maps each MessageCategory to its configured throttle
// weight, 0 marking a category as exempt. No component in this module
// consumes the map: peerbook.Throttle limits non-validator byte and message
// rates without regard to category.
type CategoryWeights map[MessageCategory]int
