package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"log"
	"math/big"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/0xPexy/sentra-checkout/internal/auth"
	"github.com/0xPexy/sentra-checkout/internal/batch"
	"github.com/0xPexy/sentra-checkout/internal/chain"
	"github.com/0xPexy/sentra-checkout/internal/checkout"
	cfgpkg "github.com/0xPexy/sentra-checkout/internal/config"
	"github.com/0xPexy/sentra-checkout/internal/fees"
	"github.com/0xPexy/sentra-checkout/internal/indexer"
	"github.com/0xPexy/sentra-checkout/internal/paymaster"
	"github.com/0xPexy/sentra-checkout/internal/server"
	"github.com/0xPexy/sentra-checkout/internal/session"
	"github.com/0xPexy/sentra-checkout/internal/store"
	"github.com/0xPexy/sentra-checkout/internal/submit"
	"github.com/0xPexy/sentra-checkout/internal/validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := cfgpkg.Load()
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.OpenSQLite(cfg.Database.SQLiteDSN)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}
	repo := store.NewRepository(db)

	ethClient, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		log.Fatalf("failed to connect chain rpc: %v", err)
	}
	chainID := new(big.Int).SetUint64(cfg.Chain.ChainID)
	if cfg.Chain.ChainID == 0 {
		chainID, err = ethClient.ChainID(ctx)
		if err != nil {
			log.Fatalf("failed to get chain id: %v", err)
		}
		cfg.Chain.ChainID = chainID.Uint64()
		if cfg.Auth.SIWEChainID == 0 {
			cfg.Auth.SIWEChainID = cfg.Chain.ChainID
		}
	}

	pools := make(map[uint64]validator.Pool)
	for id, csv := range cfg.Validators.For(cfg.Chain.ChainID) {
		pool, err := validator.ParsePool(csv)
		if err != nil {
			log.Fatalf("invalid validator pool for chain %d: %v", id, err)
		}
		pools[id] = pool
	}
	if err := store.SeedValidatorPools(ctx, repo, pools); err != nil {
		log.Fatalf("failed to seed validator pools: %v", err)
	}

	var relayer *ecdsa.PrivateKey
	if pk := strings.TrimPrefix(cfg.Chain.RelayerPrivateKey, "0x"); pk != "" {
		relayer, err = crypto.HexToECDSA(pk)
		if err != nil {
			log.Fatalf("invalid relayer key: %v", err)
		}
	}
	entryPoint := common.HexToAddress(cfg.Chain.EntryPoint)
	accounts := chain.NewAccounts(ethClient, chain.AccountConfig{
		ChainID:    chainID,
		EntryPoint: entryPoint,
		Factory:    common.HexToAddress(cfg.Chain.AccountFactory),
		Salt:       new(big.Int).SetUint64(cfg.Chain.AccountSalt),
		RelayerKey: relayer,
	}, log.New(log.Writer(), "chain: ", log.LstdFlags))

	pmLogger := log.New(log.Writer(), "pm: ", log.LstdFlags)
	pm := paymaster.NewClient(cfg.Paymaster.URL, paymaster.Options{
		APIKey:  cfg.Paymaster.APIKey,
		Timeout: cfg.Paymaster.Timeout,
	}, pmLogger)
	var signer batch.Signer = pm
	if cfg.Paymaster.RPCURL != "" {
		rpcSigner, err := paymaster.DialRPCSigner(ctx, cfg.Paymaster.RPCURL, entryPoint, chainID, nil, pmLogger)
		if err != nil {
			log.Fatalf("failed to connect paymaster rpc: %v", err)
		}
		defer rpcSigner.Close()
		signer = rpcSigner
	}

	eventHub := server.NewEventHub(log.New(log.Writer(), "events: ", log.LstdFlags))
	coLogger := log.New(log.Writer(), "checkout: ", log.LstdFlags)
	sessions := session.NewClient(cfg.Checkout.SessionAPIURL, cfg.Checkout.SessionAPIKey, cfg.Checkout.SessionTimeout, coLogger)
	svc := checkout.NewService(checkout.Config{
		ChainID:         cfg.Chain.ChainID,
		StartDelay:      cfg.Checkout.StartDelay,
		MaxInstallments: cfg.Checkout.MaxInstallments,
		Batch: batch.Config{
			Paymaster:       common.HexToAddress(cfg.Paymaster.Address),
			SignConcurrency: cfg.Paymaster.SignConcurrency,
		},
	}, checkout.Deps{
		Sessions: sessions,
		Accounts: func(ctx context.Context, owner common.Address) (checkout.Account, error) {
			acct, err := accounts.For(ctx, owner)
			if err != nil {
				return nil, err
			}
			return acct, nil
		},
		Allocator:  validator.NewAllocator(repo.ValidatorPool, pm, log.New(log.Writer(), "validator: ", log.LstdFlags)),
		Quoter:     fees.NewQuoter(chain.NewFeeOracle(ethClient, common.HexToAddress(cfg.Chain.FeeCalculator))),
		Allowances: chain.NewTokenReader(ethClient),
		Encoder:    chain.TransferEncoder{},
		Signer:     signer,
		Submitter:  submit.New(pm, log.New(log.Writer(), "submit: ", log.LstdFlags)),
		Events:     eventHub,
	}, coLogger)

	authSvc := auth.NewService(cfg.Auth, repo)
	r := server.NewRouter(cfg, server.Deps{
		Auth:          authSvc,
		Checkout:      svc,
		Subscriptions: repo,
		Sessions:      sessions,
		Accounts: func(ctx context.Context, owner common.Address) (server.SmartAccount, error) {
			acct, err := accounts.For(ctx, owner)
			if err != nil {
				return nil, err
			}
			return acct, nil
		},
		Events: eventHub,
		Logger: coLogger,
	})
	srv := server.NewHTTP(cfg.Server.HTTPAddr, r)

	go eventHub.Run(ctx)
	if cfg.Indexer.Enabled {
		tracker := indexer.New(indexer.Config{
			ChainID:           cfg.Chain.ChainID,
			EntryPoint:        entryPoint,
			Paymaster:         common.HexToAddress(cfg.Paymaster.Address),
			DeploymentBlock:   cfg.Indexer.DeploymentBlock,
			ChunkSize:         cfg.Indexer.ChunkSize,
			Confirmations:     cfg.Indexer.Confirmations,
			PollInterval:      cfg.Indexer.PollInterval,
			DecodeWorkerCount: cfg.Indexer.DecodeWorkers,
			WriteWorkerCount:  cfg.Indexer.WriteWorkers,
		}, indexer.NewStoreAdapter(repo, eventHub), ethClient, log.New(log.Writer(), "indexer: ", log.LstdFlags))
		go func() {
			if err := tracker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("installment tracker stopped: %v", err)
			}
		}()
	}
	go func() {
		log.Printf("listening on %s (chain %d)", cfg.Server.HTTPAddr, cfg.Chain.ChainID)
		if err := srv.Start(); err != nil {
			log.Fatal(err)
		}
	}()
	<-ctx.Done()
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdown)
}
