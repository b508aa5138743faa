// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package collaborators

import (
	"github.com/luxfi/crypto/bls"

	"github.com/chainkit/reactor/types"
)

// VerifyFinalitySignature checks a finality signature using BLS, the
// signature scheme the teacher's validator package uses for warp/finality
// signatures (validator/warp_ordering.go, validators/new.go). It satisfies
// accumulator.VerifySignature.
func VerifyFinalitySignature(blockHash types.Hash, signer types.PublicKey, sig types.Signature) bool {
	pk, err := bls.PublicKeyFromCompressedBytes(signer[:])
	if err != nil {
		return false
	}
	s, err := bls.SignatureFromBytes(sig)
	if err != nil {
		return false
	}
	return bls.Verify(pk, s, blockHash[:])
}
