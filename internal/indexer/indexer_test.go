package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/0xPexy/sentra-checkout/internal/checkout"
	"github.com/0xPexy/sentra-checkout/internal/store"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	entryPoint = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	paymaster  = common.HexToAddress("0xa566b84cc8e917a553c854a8503a0d3afbc93e88")
	sender     = common.HexToAddress("0xe9eb4a51414de92c4dbe5a46f6259cb4f456d7f9")
	validatorA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

type recordingSink struct {
	mu     sync.Mutex
	events []checkout.Event
}

func (s *recordingSink) Publish(ev checkout.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) snapshot() []checkout.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]checkout.Event(nil), s.events...)
}

func newTestRepo(t *testing.T) *store.Repository {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := store.OpenSQLite("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return store.NewRepository(db)
}

func baseNonce() *big.Int {
	return new(big.Int).Lsh(validatorA.Big(), 64)
}

func executionLog(t *testing.T, hash, tx common.Hash, block uint64, pm common.Address, offset int64, success bool) types.Log {
	t.Helper()
	data, err := userOperationEvent.Inputs.NonIndexed().Pack(
		new(big.Int).Add(baseNonce(), big.NewInt(offset)),
		success,
		big.NewInt(5_000),
		big.NewInt(200_000),
	)
	if err != nil {
		t.Fatalf("pack event: %v", err)
	}
	return types.Log{
		Address:     entryPoint,
		Topics:      []common.Hash{userOperationEvent.ID, hash, topicFromAddress(sender), topicFromAddress(pm)},
		Data:        data,
		BlockNumber: block,
		TxHash:      tx,
	}
}

func TestIndexerTracksInstallments(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateSubscription(ctx, &store.Subscription{
		SubscriberID: "sub-1",
		ChainID:      137,
		SessionID:    "sess-1",
		Owner:        "0x00000000000000000000000000000000000000ee",
		Account:      sender.Hex(),
		Validator:    validatorA.Hex(),
		BaseNonce:    baseNonce().String(),
		Installments: 2,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	const block1, block2 = uint64(10), uint64(12)
	client := newStubEthClient([]types.Log{
		executionLog(t, common.HexToHash("0xaa"), common.HexToHash("0x1"), block1, paymaster, 0, true),
		executionLog(t, common.HexToHash("0xcc"), common.HexToHash("0x1"), block1, common.HexToAddress("0xdead"), 1, true),
	}, block1, map[uint64]uint64{block1: 1_700_000_000})

	sink := &recordingSink{}
	idx := New(Config{
		ChainID:           137,
		EntryPoint:        entryPoint,
		Paymaster:         paymaster,
		DeploymentBlock:   block1 - 5,
		ChunkSize:         64,
		PollInterval:      10 * time.Millisecond,
		DecodeWorkerCount: 1,
		WriteWorkerCount:  1,
		ResubscribeDelay:  10 * time.Millisecond,
	}, NewStoreAdapter(repo, sink), client, log.New(io.Discard, "", 0))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- idx.Run(runCtx) }()

	waitFor(t, 2*time.Second, func() bool { return len(sink.snapshot()) == 1 })

	client.appendLogs([]types.Log{
		executionLog(t, common.HexToHash("0xbb"), common.HexToHash("0x2"), block2, paymaster, 1, false),
	})
	client.setSafeHead(block2)
	waitFor(t, 2*time.Second, func() bool { return len(sink.snapshot()) == 2 })

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("indexer did not stop")
	}

	events := sink.snapshot()
	if events[0].Type != checkout.EventExecuted || events[0].Sequence == nil || *events[0].Sequence != 0 || events[0].SessionID != "sess-1" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	raw, err := json.Marshal(events[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"sequence":0`) {
		t.Fatalf("first installment lost its sequence: %s", raw)
	}
	if events[0].At.Unix() != 1_700_000_000 {
		t.Fatalf("block time not carried: %s", events[0].At)
	}
	if events[1].Type != checkout.EventExecutionFailed || events[1].Sequence == nil || *events[1].Sequence != 1 {
		t.Fatalf("unexpected second event %+v", events[1])
	}

	sub, err := repo.GetSubscription(ctx, "sub-1")
	if err != nil || sub == nil {
		t.Fatalf("get: %v %v", sub, err)
	}
	if sub.Executed != 1 || sub.Failed != 1 || sub.Status != store.SubscriptionCompleted {
		t.Fatalf("unexpected subscription %+v", sub)
	}
	cursor, err := repo.GetLogCursor(ctx, 137, entryPoint.Hex())
	if err != nil || cursor == nil || cursor.LastBlock != block2 {
		t.Fatalf("unexpected cursor %+v %v", cursor, err)
	}

	q := client.lastQuery()
	if len(q.Addresses) != 1 || q.Addresses[0] != entryPoint || len(q.Topics) != 4 || q.Topics[3][0] != topicFromAddress(paymaster) {
		t.Fatalf("unexpected filter %+v", q)
	}
}

func TestIndexerResumesFromCursor(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.UpsertLogCursor(ctx, &store.LogCursor{ChainID: 137, Address: entryPoint.Hex(), LastBlock: 40}); err != nil {
		t.Fatalf("cursor: %v", err)
	}
	client := newStubEthClient(nil, 41, nil)
	idx := New(Config{
		ChainID:         137,
		EntryPoint:      entryPoint,
		Paymaster:       paymaster,
		DeploymentBlock: 1,
		PollInterval:    10 * time.Millisecond,
	}, repo, client, nil)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- idx.Run(runCtx) }()
	waitFor(t, 2*time.Second, func() bool { return client.lastQuery().FromBlock != nil })
	cancel()
	<-done

	if from := client.lastQuery().FromBlock.Uint64(); from != 41 {
		t.Fatalf("resumed from %d, want 41", from)
	}
}

type failingRecorder struct {
	*store.Repository
	err error
}

func (f failingRecorder) RecordExecution(ctx context.Context, exec *store.InstallmentExecution) (*store.ExecutionResult, error) {
	return nil, f.err
}

func TestIndexerKeepsCursorOnWriteFailure(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateSubscription(ctx, &store.Subscription{
		SubscriberID: "sub-1",
		ChainID:      137,
		SessionID:    "sess-1",
		Account:      sender.Hex(),
		Validator:    validatorA.Hex(),
		BaseNonce:    baseNonce().String(),
		Installments: 1,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	const block = uint64(10)
	cfg := Config{
		ChainID:          137,
		EntryPoint:       entryPoint,
		Paymaster:        paymaster,
		DeploymentBlock:  block - 5,
		PollInterval:     10 * time.Millisecond,
		ResubscribeDelay: 10 * time.Millisecond,
	}
	logs := []types.Log{executionLog(t, common.HexToHash("0xaa"), common.HexToHash("0x1"), block, paymaster, 0, true)}

	writeErr := errors.New("database is locked")
	idx := New(cfg, failingRecorder{Repository: repo, err: writeErr}, newStubEthClient(logs, block, nil), log.New(io.Discard, "", 0))
	done := make(chan error, 1)
	go func() { done <- idx.Run(ctx) }()
	select {
	case err := <-done:
		if !errors.Is(err, writeErr) {
			t.Fatalf("run returned %v, want write error", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("indexer did not stop on write failure")
	}
	cursor, err := repo.GetLogCursor(ctx, 137, entryPoint.Hex())
	if err != nil || cursor != nil {
		t.Fatalf("cursor advanced past an unrecorded chunk: %+v %v", cursor, err)
	}

	sink := &recordingSink{}
	client := newStubEthClient(logs, block, nil)
	idx = New(cfg, NewStoreAdapter(repo, sink), client, log.New(io.Discard, "", 0))
	runCtx, cancel := context.WithCancel(ctx)
	done = make(chan error, 1)
	go func() { done <- idx.Run(runCtx) }()
	waitFor(t, 2*time.Second, func() bool { return len(sink.snapshot()) == 1 })
	cancel()
	<-done

	if first := client.queries[0].FromBlock.Uint64(); first != block-5 {
		t.Fatalf("replay started at %d, want %d", first, block-5)
	}
	sub, err := repo.GetSubscription(ctx, "sub-1")
	if err != nil || sub == nil || sub.Executed != 1 {
		t.Fatalf("replayed installment not recorded: %+v %v", sub, err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

type stubEthClient struct {
	mu         sync.Mutex
	batches    [][]types.Log
	safeHead   uint64
	blockTimes map[uint64]uint64
	queries    []ethereum.FilterQuery
}

func newStubEthClient(logs []types.Log, safeHead uint64, blockTimes map[uint64]uint64) *stubEthClient {
	var batches [][]types.Log
	if len(logs) > 0 {
		batches = append(batches, append([]types.Log(nil), logs...))
	}
	return &stubEthClient{batches: batches, safeHead: safeHead, blockTimes: blockTimes}
}

// FilterLogs hands out one queued batch per call, ignoring the range.
func (s *stubEthClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if len(s.batches) == 0 {
		return nil, nil
	}
	out := s.batches[0]
	s.batches = s.batches[1:]
	return out, nil
}

func (s *stubEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bn := s.safeHead
	if number != nil {
		bn = number.Uint64()
	}
	ts := s.blockTimes[bn]
	if ts == 0 {
		ts = uint64(time.Now().Unix())
	}
	return &types.Header{Number: new(big.Int).SetUint64(bn), Time: ts}, nil
}

func (s *stubEthClient) appendLogs(logs []types.Log) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]types.Log(nil), logs...))
}

func (s *stubEthClient) setSafeHead(head uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.safeHead = head
}

func (s *stubEthClient) lastQuery() ethereum.FilterQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return ethereum.FilterQuery{}
	}
	return s.queries[len(s.queries)-1]
}
