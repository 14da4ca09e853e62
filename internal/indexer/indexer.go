// Package indexer follows EntryPoint UserOperationEvent logs for the
// sponsoring paymaster and attributes them to stored subscriptions.
package indexer

import (
	"context"
	"log"
	"sync"

	"github.com/0xPexy/sentra-checkout/internal/store"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

// trackedLog and trackedExec carry the chunk they were read in. The cursor
// passes a chunk only after each of its logs is recorded or discarded.
type trackedLog struct {
	log   types.Log
	chunk *sync.WaitGroup
}

type trackedExec struct {
	exec  *store.InstallmentExecution
	chunk *sync.WaitGroup
}

type Indexer struct {
	cfg        Config
	repo       Repo
	logger     *log.Logger
	decoder    *decoder
	subscriber *logSubscriber
}

func New(cfg Config, repo Repo, client EthClient, logger *log.Logger) *Indexer {
	return &Indexer{
		cfg:        cfg,
		repo:       repo,
		logger:     logger,
		decoder:    newDecoder(cfg, client, logger),
		subscriber: newLogSubscriber(cfg, repo, client, logger),
	}
}

func (i *Indexer) Run(ctx context.Context) error {
	i.logf("installment tracker starting: chain=%d entryPoint=%s paymaster=%s", i.cfg.ChainID, i.cfg.EntryPoint.Hex(), i.cfg.Paymaster.Hex())
	g, ctx := errgroup.WithContext(ctx)

	decodeCh := make(chan trackedLog, i.cfg.decodeWorkerCount()*32)
	writeCh := make(chan trackedExec, i.cfg.writeWorkerCount()*16)

	g.Go(func() error {
		defer close(decodeCh)
		return i.subscriber.stream(ctx, decodeCh)
	})

	var decodeWG sync.WaitGroup
	for n := 0; n < i.cfg.decodeWorkerCount(); n++ {
		decodeWG.Add(1)
		g.Go(func() error {
			defer decodeWG.Done()
			return i.runDecodeWorker(ctx, decodeCh, writeCh)
		})
	}
	g.Go(func() error {
		decodeWG.Wait()
		close(writeCh)
		return nil
	})

	for n := 0; n < i.cfg.writeWorkerCount(); n++ {
		g.Go(func() error {
			return i.runWriteWorker(ctx, writeCh)
		})
	}

	err := g.Wait()
	if err != nil {
		i.logf("installment tracker stopped: %v", err)
		return err
	}
	return nil
}

func (i *Indexer) runDecodeWorker(ctx context.Context, in <-chan trackedLog, out chan<- trackedExec) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-in:
			if !ok {
				return nil
			}
			exec := i.decoder.decode(ctx, item.log)
			if exec == nil {
				item.chunk.Done()
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- trackedExec{exec: exec, chunk: item.chunk}:
			}
		}
	}
}

func (i *Indexer) runWriteWorker(ctx context.Context, in <-chan trackedExec) error {
	for item := range in {
		exec := item.exec
		callCtx := ctx
		if ctx.Err() != nil {
			callCtx = context.Background()
		}
		res, err := i.repo.RecordExecution(callCtx, exec)
		if err != nil {
			i.logf("record execution %s: %v", exec.UserOpHash, err)
			return err
		}
		item.chunk.Done()
		if res == nil {
			i.logf("unmatched operation: sender=%s nonce=%s", exec.Sender, exec.Nonce)
			continue
		}
		if res.Recorded {
			i.logf("installment %d of %s executed: success=%t tx=%s", res.Execution.Sequence, res.Subscription.SubscriberID, exec.Success, exec.TxHash)
		}
	}
	return ctx.Err()
}

func (i *Indexer) logf(format string, args ...any) {
	if i.logger != nil {
		i.logger.Printf(format, args...)
	}
}
