package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/renbridge/chains/eth"
	"github.com/sisu-network/renbridge/chains/progress"
	"github.com/sisu-network/renbridge/chains/renvm"
	"github.com/sisu-network/renbridge/client"
	"github.com/sisu-network/renbridge/config"
	"github.com/sisu-network/renbridge/database"
	"github.com/sisu-network/renbridge/metrics"
	"github.com/sisu-network/renbridge/types"
	"github.com/sisu-network/renbridge/utils"
	"go.uber.org/atomic"
)

const (
	finishedCacheSize = 1000
)

// submitter is the part of a chain submitter the processor needs to follow its progress.
type submitter interface {
	Chain() string
	Progress() types.ChainTransactionProgress
	Subscribe() *progress.Subscription
}

type submission struct {
	key       string
	submitter submitter
	run       func(ctx context.Context) error
	started   time.Time
}

// Processor accepts submissions, drives their submitters in the background and forwards every
// progress update to the database and the gateway server.
type Processor struct {
	cfg           config.Config
	db            database.Database
	gatewayClient client.Client
	renvmClient   renvm.Client
	metrics       *metrics.Metrics

	handlers *eth.PayloadHandlerRegistry
	signers  map[string]eth.Signer

	lock     *sync.Mutex
	active   map[string]*submission
	finished *lru.Cache
	wg       *sync.WaitGroup

	gatewayReady *atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewProcessor(
	cfg *config.Config,
	db database.Database,
	gatewayClient client.Client,
	renvmClient renvm.Client,
	m *metrics.Metrics,
) *Processor {
	handlers := eth.NewPayloadHandlerRegistry()
	handlers.Register(eth.PayloadTypeContract, eth.NewContractCallHandler())

	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		cfg:           *cfg,
		db:            db,
		gatewayClient: gatewayClient,
		renvmClient:   renvmClient,
		metrics:       m,
		handlers:      handlers,
		signers:       make(map[string]eth.Signer),
		lock:          &sync.Mutex{},
		active:        make(map[string]*submission),
		finished:      lru.New(finishedCacheSize),
		wg:            &sync.WaitGroup{},
		gatewayReady:  atomic.NewBool(false),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// InitChains connects a wallet signer to every configured EVM chain.
func (p *Processor) InitChains(privateKey string) error {
	for chain, cfg := range p.cfg.Chains {
		log.Info("Supported chain and config: ", chain, cfg)

		ethClient := eth.NewEthClients(chain, cfg.Rpcs)
		provider := eth.NewProvider(cfg, ethClient)
		signer, err := eth.NewWalletSigner(cfg, privateKey, ethClient, provider)
		if err != nil {
			return fmt.Errorf("cannot create signer for chain %s: %w", chain, err)
		}

		p.SetSigner(chain, signer)
	}

	return nil
}

func (p *Processor) SetSigner(chain string, signer eth.Signer) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.signers[chain] = signer
}

func (p *Processor) getSigner(chain string) eth.Signer {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.signers[chain]
}

// RegisterPayloadHandler adds a handler for a payload type.
func (p *Processor) RegisterPayloadHandler(payloadType string, handler eth.PayloadHandler) {
	p.handlers.Register(payloadType, handler)
}

// Start resumes the submissions that had not finished when the processor last stopped.
func (p *Processor) Start() error {
	log.Info("Starting tx processor...")

	submissions, err := p.db.LoadUnfinishedSubmissions()
	if err != nil {
		return err
	}

	for _, s := range submissions {
		log.Info("Resuming submission ", s.Key, " kind = ", s.Kind)

		var err error
		switch s.Kind {
		case database.SubmissionKindEvm:
			req := &types.SubmitEvmTxRequest{}
			if err = json.Unmarshal(s.Request, req); err == nil {
				_, err = p.SubmitEvmTx(req)
			}

		case database.SubmissionKindRenVM:
			req := &types.SubmitRenVMTxRequest{}
			if err = json.Unmarshal(s.Request, req); err == nil {
				_, err = p.SubmitRenVMTx(req)
			}

		default:
			err = fmt.Errorf("unknown submission kind %s", s.Kind)
		}

		if err != nil {
			log.Errorf("Cannot resume submission %s, err = %s", s.Key, err)
		}
	}

	return nil
}

// Stop cancels every running submission and waits for them to return.
func (p *Processor) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Processor) SetGatewayReady(isReady bool) {
	p.gatewayReady.Store(isReady)
}

// SubmitEvmTx sends the transaction described by the request and tracks it until it has enough
// confirmations. Submitting the same request again returns the existing submission.
func (p *Processor) SubmitEvmTx(req *types.SubmitEvmTxRequest) (*types.SubmitResult, error) {
	network, ok := p.cfg.Chains[req.Chain]
	if !ok {
		return nil, fmt.Errorf("unknown chain %s", req.Chain)
	}

	key := req.Key
	if key == "" {
		bz, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		key = utils.KeccakHash32Bytes(bz)
	}

	if result := p.existing(key); result != nil {
		return result, nil
	}

	params := make(eth.ParamValues, len(req.Params))
	for k, v := range req.Params {
		params[k] = v
	}

	chain := req.Chain
	s := eth.NewTxSubmitter(eth.TxSubmitterParams{
		Network: network,
		Chain:   chain,
		Payload: eth.Payload{
			Chain:  chain,
			Type:   req.PayloadType,
			Params: req.Payload,
		},
		GetSigner: func() eth.Signer {
			return p.getSigner(chain)
		},
		GetPayloadHandler: p.handlers.Get,
		GetParams: func() eth.ParamValues {
			return params
		},
		FindExistingTransaction: func(ctx context.Context) (*types.ChainTransaction, error) {
			return p.db.FindTransaction(key, chain)
		},
	})

	stored := *req
	stored.Key = key
	run := func(ctx context.Context) error {
		if _, err := s.Submit(ctx, eth.TxOptions{}).Await(ctx); err != nil {
			return err
		}

		_, err := s.Wait(ctx, 0).Await(ctx)
		return err
	}

	return p.accept(key, database.SubmissionKindEvm, &stored, s, run)
}

// SubmitRenVMTx submits a transaction to RenVM and tracks it until RenVM is done with it. The
// submission key is the transaction hash.
func (p *Processor) SubmitRenVMTx(req *types.SubmitRenVMTxRequest) (*types.SubmitResult, error) {
	s, err := renvm.NewTxSubmitter(p.cfg.RenVM, p.renvmClient, req.Tx, nil)
	if err != nil {
		return nil, err
	}

	key := s.Hash()
	if result := p.existing(key); result != nil {
		return result, nil
	}

	stored := *req
	stored.Tx.Hash = key
	run := func(ctx context.Context) error {
		if _, err := s.Submit(ctx, renvm.SubmitOptions{}).Await(ctx); err != nil {
			return err
		}

		_, err := s.Wait(ctx, 0).Await(ctx)
		return err
	}

	return p.accept(key, database.SubmissionKindRenVM, &stored, s, run)
}

// GetProgress returns the latest progress of a submission or nil if the key is unknown.
func (p *Processor) GetProgress(key string) (*types.ChainTransactionProgress, error) {
	p.lock.Lock()
	if sub, ok := p.active[key]; ok {
		p.lock.Unlock()
		current := sub.submitter.Progress()
		return &current, nil
	}
	if value, ok := p.finished.Get(key); ok {
		p.lock.Unlock()
		current := value.(*submission).submitter.Progress()
		return &current, nil
	}
	p.lock.Unlock()

	s, err := p.db.LoadSubmission(key)
	if err != nil || s == nil {
		return nil, err
	}

	chain := renvm.Chain
	if s.Kind == database.SubmissionKindEvm {
		req := &types.SubmitEvmTxRequest{}
		if err := json.Unmarshal(s.Request, req); err != nil {
			return nil, err
		}
		chain = req.Chain
	}

	return p.db.LoadProgress(key, chain)
}

func (p *Processor) existing(key string) *types.SubmitResult {
	p.lock.Lock()
	defer p.lock.Unlock()

	sub, ok := p.active[key]
	if !ok {
		var value interface{}
		if value, ok = p.finished.Get(key); ok {
			sub = value.(*submission)
		}
	}
	if !ok {
		return nil
	}

	current := sub.submitter.Progress()
	return &types.SubmitResult{Key: key, Progress: &current}
}

func (p *Processor) accept(key, kind string, request interface{}, s submitter,
	run func(ctx context.Context) error) (*types.SubmitResult, error) {
	bz, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	p.lock.Lock()
	if _, ok := p.active[key]; ok {
		p.lock.Unlock()
		return p.existing(key), nil
	}
	sub := &submission{
		key:       key,
		submitter: s,
		run:       run,
		started:   time.Now(),
	}
	p.active[key] = sub
	p.lock.Unlock()

	if err := p.db.SaveSubmission(key, kind, bz); err != nil {
		p.lock.Lock()
		delete(p.active, key)
		p.lock.Unlock()
		return nil, err
	}

	initial := s.Progress()
	if saved, err := p.db.LoadProgress(key, s.Chain()); err == nil && saved == nil {
		if err := p.db.SaveProgress(key, initial); err != nil {
			log.Errorf("Cannot save initial progress of %s, err = %s", key, err)
		}
	}

	p.metrics.SubmissionsTotal.WithLabelValues(s.Chain()).Inc()
	p.metrics.ActiveSubmissions.Inc()

	p.wg.Add(1)
	go p.process(sub)

	log.Infof("Accepted submission %s on chain %s", key, s.Chain())
	return &types.SubmitResult{Key: key, Progress: &initial}, nil
}

func (p *Processor) process(sub *submission) {
	defer p.wg.Done()

	events := sub.submitter.Subscribe()
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for update := range events.C() {
			p.onProgress(sub.key, update)
		}
	}()

	err := sub.run(p.ctx)
	events.Close()
	<-forwarded

	chain := sub.submitter.Chain()
	final := sub.submitter.Progress()
	result := final.Status.String()
	if err != nil {
		log.Errorf("Submission %s on chain %s finished with error: %s", sub.key, chain, err)
		if !final.Status.IsTerminal() {
			result = "error"
		}
	} else {
		log.Infof("Submission %s on chain %s finished: %s", sub.key, chain, final)
	}

	p.metrics.ActiveSubmissions.Dec()
	p.metrics.SubmissionsFinished.WithLabelValues(chain, result).Inc()
	p.metrics.Duration.WithLabelValues(chain).Observe(time.Since(sub.started).Seconds())

	p.lock.Lock()
	delete(p.active, sub.key)
	p.finished.Add(sub.key, sub)
	p.lock.Unlock()
}

func (p *Processor) onProgress(key string, update types.ChainTransactionProgress) {
	p.metrics.ProgressUpdates.WithLabelValues(update.Chain, update.Status.String()).Inc()

	if err := p.db.SaveProgress(key, update); err != nil {
		log.Errorf("Cannot save progress of %s, err = %s", key, err)
	}

	if !p.gatewayReady.Load() {
		log.Warnf("Gateway is not ready, progress of %s is not posted", key)
		return
	}

	if err := p.gatewayClient.PostProgress(&types.ProgressUpdate{Key: key, Progress: update}); err != nil {
		p.metrics.GatewayPostErrors.Inc()
	}
}
