// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cqdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StoreFull is the full set of queue and catalog operations, including the
// transactional wrappers that are not part of the generated Querier.
type StoreFull interface {
	Querier
	CommandQueueUpdateStatus(ctx context.Context, params CommandQueueSetStatusParams) (SubsystemCommandQueue, error)
	CommandQueueMarkDeleted(ctx context.Context, params CommandQueueSetMarkedForDeleteParams) (SubsystemCommandQueue, error)
	CommandQueueClaim(ctx context.Context, params CommandQueueClaimParams) (SubsystemCommandQueue, error)
	CommandQueueClaimNext(ctx context.Context, params CommandQueueClaimNextCandidateParams, toStatus string) (SubsystemCommandQueue, error)
	CatalogImport(ctx context.Context, params CatalogImportParams) error
	Ping(ctx context.Context) error
	Pool() *pgxpool.Pool
	Close()
}

// Store provides all functions to execute db queries and transactions
type Store struct {
	*Queries
	connPool *pgxpool.Pool
}

var _ StoreFull = (*Store)(nil)

// NewStore creates a new Store
func NewStore(connPool *pgxpool.Pool) *Store {
	return &Store{
		connPool: connPool,
		Queries:  New(connPool),
	}
}

func (store *Store) Pool() *pgxpool.Pool {
	return store.connPool
}

// Ping checks that a connection can be acquired and used.
func (store *Store) Ping(ctx context.Context) error {
	return store.connPool.Ping(ctx)
}

// Close closes the connection pool.
func (store *Store) Close() {
	if store.connPool != nil {
		store.connPool.Close()
	}
}

func (store *Store) execTx(ctx context.Context, fn func(*Store) error) (err error) {
	tx, err := store.connPool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// The caller ctx may already be cancelled; rollback must still happen.
		rbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			if err != nil {
				err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
			} else {
				err = fmt.Errorf("rollback failed: %w", rbErr)
			}
		}
	}()

	txStore := &Store{
		connPool: store.connPool,
		Queries:  New(tx),
	}

	if err = fn(txStore); err != nil {
		return err
	}

	commitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = tx.Commit(commitCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	committed = true
	return nil
}
