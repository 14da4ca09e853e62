package indexer

import (
	"context"
	"errors"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/0xPexy/sentra-checkout/internal/store"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type logSubscriber struct {
	cfg    Config
	repo   Repo
	client EthClient
	logger *log.Logger
}

func newLogSubscriber(cfg Config, repo Repo, client EthClient, logger *log.Logger) *logSubscriber {
	return &logSubscriber{cfg: cfg, repo: repo, client: client, logger: logger}
}

func (s *logSubscriber) query(from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.cfg.EntryPoint},
		Topics: [][]common.Hash{
			{userOperationEvent.ID},
			nil,
			nil,
			{common.BytesToHash(s.cfg.Paymaster.Bytes())},
		},
	}
}

// stream sends confirmed logs to out in chunks and advances the cursor once
// the workers have settled every log of a chunk. A failed write stops the
// stream with the cursor still before that chunk, so it is read again on the
// next run.
func (s *logSubscriber) stream(ctx context.Context, out chan<- trackedLog) error {
	entryPoint := s.cfg.EntryPoint.Hex()
	cursor, err := s.repo.GetLogCursor(ctx, s.cfg.ChainID, entryPoint)
	if err != nil {
		return err
	}
	startBlock := s.cfg.DeploymentBlock
	var lastTxHash string
	var lastLogIndex uint
	if cursor != nil {
		lastTxHash = cursor.LastTxHash
		lastLogIndex = cursor.LastLogIndex
		if cursor.LastBlock >= startBlock {
			startBlock = cursor.LastBlock + 1
		}
		s.logf("cursor restored: lastBlock=%d lastTx=%s", cursor.LastBlock, lastTxHash)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		head, err := s.client.HeaderByNumber(ctx, nil)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.logf("failed to fetch head: %v", err)
			if !sleep(ctx, s.cfg.resubscribeDelay()) {
				return ctx.Err()
			}
			continue
		}
		var safeHead uint64
		if head.Number != nil && head.Number.Uint64() > s.cfg.Confirmations {
			safeHead = head.Number.Uint64() - s.cfg.Confirmations
		}

		from := startBlock
		for from <= safeHead {
			to := from + s.cfg.chunkSize() - 1
			if to > safeHead {
				to = safeHead
			}
			logs, err := s.client.FilterLogs(ctx, s.query(from, to))
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logf("filter logs %d-%d failed: %v", from, to, err)
				if !sleep(ctx, s.cfg.resubscribeDelay()) {
					return ctx.Err()
				}
				break
			}
			var chunk sync.WaitGroup
			for _, lg := range logs {
				chunk.Add(1)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case out <- trackedLog{log: lg, chunk: &chunk}:
				}
				lastTxHash = lg.TxHash.Hex()
				lastLogIndex = uint(lg.Index)
			}
			if !settled(ctx, &chunk) {
				return ctx.Err()
			}
			if err := s.repo.UpsertLogCursor(ctx, &store.LogCursor{
				ChainID:      s.cfg.ChainID,
				Address:      entryPoint,
				LastBlock:    to,
				LastTxHash:   lastTxHash,
				LastLogIndex: lastLogIndex,
			}); err != nil {
				return err
			}
			if len(logs) > 0 {
				s.logf("processed blocks %d-%d: logs=%d", from, to, len(logs))
			}
			from = to + 1
			startBlock = from
		}

		if !sleep(ctx, s.cfg.pollInterval()) {
			return ctx.Err()
		}
	}
}

func (s *logSubscriber) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func settled(ctx context.Context, chunk *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		chunk.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return true
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
