package dispatcher

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"github.com/michaelpento.lv/flasharb/audit"
	"github.com/michaelpento.lv/flasharb/contract"
	"github.com/michaelpento.lv/flasharb/executor"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/lock"
	"github.com/michaelpento.lv/flasharb/simulator"
	"github.com/michaelpento.lv/flasharb/types"
	fpmath "github.com/michaelpento.lv/flasharb/utils/math"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"go.uber.org/zap"
)

// ChainClient is the part of *ethclient.Client the dispatcher needs.
type ChainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ProviderLookup resolves the provider an opportunity was priced with.
type ProviderLookup interface {
	Provider(name string) (flashloan.Provider, bool)
}

// Preflighter dry-runs an opportunity before it is signed.
type Preflighter interface {
	PreflightOpportunity(ctx context.Context, from, executor common.Address, opp *types.Opportunity) (*simulator.SimulationResult, error)
}

// TxPreflighter dry-runs a signed transaction before it is submitted, as
// relay bundle simulation does.
type TxPreflighter interface {
	PreflightTx(ctx context.Context, tx *gethtypes.Transaction) (*simulator.SimulationResult, error)
}

type Settings struct {
	ChainID                 *big.Int
	InclusionTimeout        time.Duration
	ReceiptPollInterval     time.Duration
	GasBumpPercent          uint64
	MaxGasMultiplierPercent uint64
	MaxGasPrice             *big.Int
	GasLimit                uint64
	RevertCooldown          time.Duration
	CooldownSize            int
}

var errInclusionTimeout = errors.New("transaction not included")

// Dispatcher submits opportunities to the executor contract, one at a time
// per owner account.
type Dispatcher struct {
	settings  Settings
	client    ChainClient
	submitter Submitter
	key       *ecdsa.PrivateKey
	from      common.Address
	signer    gethtypes.Signer
	providers ProviderLookup
	lock      lock.AccountLock
	audit     audit.Log
	preflight Preflighter
	txCheck   TxPreflighter
	cooldown  *lru.Cache
	metrics   *metrics.DispatcherMetrics
	logger    *zap.Logger

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

func NewDispatcher(settings Settings, client ChainClient, submitter Submitter, key *ecdsa.PrivateKey, providers ProviderLookup, accountLock lock.AccountLock, auditLog audit.Log, m *metrics.DispatcherMetrics, logger *zap.Logger) (*Dispatcher, error) {
	if settings.ChainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	if settings.MaxGasPrice == nil || settings.MaxGasPrice.Sign() <= 0 {
		return nil, fmt.Errorf("max gas price must be positive")
	}
	size := settings.CooldownSize
	if size <= 0 {
		size = 128
	}
	cooldown, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cooldown cache: %w", err)
	}

	return &Dispatcher{
		settings:  settings,
		client:    client,
		submitter: submitter,
		key:       key,
		from:      crypto.PubkeyToAddress(key.PublicKey),
		signer:    gethtypes.LatestSignerForChainID(settings.ChainID),
		providers: providers,
		lock:      accountLock,
		audit:     auditLog,
		cooldown:  cooldown,
		metrics:   m,
		logger:    logger,
	}, nil
}

// EnablePreflight makes every dispatch dry-run its call first. A revert
// during the dry run is terminal and nothing is submitted.
func (d *Dispatcher) EnablePreflight(p Preflighter) {
	d.preflight = p
}

// EnableTxPreflight makes every dispatch simulate the signed transaction
// before submitting it. A revert is terminal.
func (d *Dispatcher) EnableTxPreflight(p TxPreflighter) {
	d.txCheck = p
}

// From returns the owner account transactions are signed with.
func (d *Dispatcher) From() common.Address {
	return d.from
}

// TryDispatch starts a dispatch of opp in the background unless one is
// already in flight or the cycle is cooling down after a revert, in which
// case opp is dropped as stale and false is returned.
func (d *Dispatcher) TryDispatch(ctx context.Context, opp *types.Opportunity) bool {
	if d.coolingDown(opp.Cycle.Key()) {
		d.drop(opp, "cooldown")
		return false
	}
	if !d.inFlight.CompareAndSwap(false, true) {
		d.drop(opp, "in_flight")
		return false
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.inFlight.Store(false)
		d.Dispatch(ctx, opp)
	}()
	return true
}

// Wait blocks until the background dispatch, if any, has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drop(opp *types.Opportunity, why string) {
	err := fmt.Errorf("%w: %s", types.ErrStaleOpportunity, why)
	d.metrics.Dropped.WithLabelValues(why).Inc()
	d.logger.Info("Dropped opportunity",
		zap.String("id", opp.ID),
		zap.Stringer("cycle", opp.Cycle),
		zap.String("net_profit", opp.NetProfit.String()),
		zap.Error(err))
}

func (d *Dispatcher) coolingDown(key uint64) bool {
	v, ok := d.cooldown.Get(key)
	if !ok {
		return false
	}
	if time.Now().Before(v.(time.Time)) {
		return true
	}
	d.cooldown.Remove(key)
	return false
}

// Dispatch submits opp and waits for its outcome. It always returns exactly
// one terminal result, which is also appended to the audit log.
func (d *Dispatcher) Dispatch(ctx context.Context, opp *types.Opportunity) *types.ExecutionResult {
	start := time.Now()
	d.metrics.Dispatched.Inc()
	d.metrics.InFlight.Inc()
	defer d.metrics.InFlight.Dec()

	res := &types.ExecutionResult{
		OpportunityID: opp.ID,
		Cycle:         opp.Cycle.String(),
		CycleKey:      opp.Cycle.Key(),
		LoanAsset:     opp.LoanAsset,
		LoanAmount:    new(big.Int).Set(opp.LoanAmount),
		Profit:        new(big.Int),
		GasPrice:      fpmath.Clone(opp.GasPrice),
	}

	d.logger.Info("Dispatching opportunity",
		zap.String("id", opp.ID),
		zap.Stringer("cycle", opp.Cycle),
		zap.String("loan", opp.LoanAmount.String()),
		zap.String("net_profit", opp.NetProfit.String()),
		zap.String("provider", opp.Provider))

	if err := d.dispatch(ctx, opp, res); err != nil {
		res.Success = false
		res.FailureReason = failureReason(err)
		if _, reverted := executor.IsRevert(err); reverted && d.settings.RevertCooldown > 0 {
			d.cooldown.Add(res.CycleKey, time.Now().Add(d.settings.RevertCooldown))
		}
	}
	res.Timestamp = time.Now()

	d.record(ctx, res, time.Since(start))
	return res
}

func failureReason(err error) string {
	if reason, ok := executor.IsRevert(err); ok {
		return reason
	}
	return types.Reason(err)
}

func (d *Dispatcher) dispatch(ctx context.Context, opp *types.Opportunity, res *types.ExecutionResult) error {
	release, err := d.lock.Acquire(ctx, d.from)
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			return fmt.Errorf("%w: account %s busy", types.ErrStaleOpportunity, d.from.Hex())
		}
		return fmt.Errorf("failed to lock account: %w", err)
	}
	defer release()

	provider, ok := d.providers.Provider(opp.Provider)
	if !ok {
		return fmt.Errorf("unknown flash loan provider %q", opp.Provider)
	}
	target := provider.Executor()

	params, err := flashloan.EncodeParams(flashloan.LegsFromCycle(opp.Cycle))
	if err != nil {
		return fmt.Errorf("failed to encode legs: %w", err)
	}
	data, err := contract.PackInitiateFlashLoan(opp.LoanAsset, opp.LoanAmount, params)
	if err != nil {
		return err
	}

	if d.preflight != nil {
		sim, err := d.preflight.PreflightOpportunity(ctx, d.from, target, opp)
		if err := d.checkPreflight(opp, sim, err); err != nil {
			return err
		}
	}

	nonce, err := d.client.PendingNonceAt(ctx, d.from)
	if err != nil {
		return fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice := fpmath.Min(opp.GasPrice, d.settings.MaxGasPrice)
	first, err := d.sign(nonce, target, gasPrice, data)
	if err != nil {
		return err
	}
	if d.txCheck != nil {
		sim, err := d.txCheck.PreflightTx(ctx, first)
		if err := d.checkPreflight(opp, sim, err); err != nil {
			return err
		}
	}
	if err := d.submit(ctx, first); err != nil {
		return err
	}
	res.Attempts = 1
	res.TxHash = first.Hash()
	res.GasPrice = gasPrice

	receipt, err := d.waitReceipt(ctx, first.Hash())
	if errors.Is(err, errInclusionTimeout) {
		receipt, err = d.resubmit(ctx, first, res)
	}
	if err != nil {
		return err
	}

	res.TxHash = receipt.TxHash
	if receipt.TxHash == first.Hash() {
		res.GasPrice = gasPrice
	}

	if receipt.Status == gethtypes.ReceiptStatusFailed {
		reason := d.replayRevert(ctx, target, data, receipt.BlockNumber)
		d.logger.Warn("Transaction reverted",
			zap.String("tx", receipt.TxHash.Hex()),
			zap.String("reason", reason))
		return &executor.RevertError{Reason: reason}
	}

	if ev, ok := contract.ParseProfit(receipt.Logs, target); ok {
		res.Profit = ev.Profit
	} else {
		d.logger.Warn("Successful transaction without profit event", zap.String("tx", receipt.TxHash.Hex()))
	}
	res.Success = true
	return nil
}

func (d *Dispatcher) checkPreflight(opp *types.Opportunity, sim *simulator.SimulationResult, err error) error {
	if err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}
	if !sim.Success {
		d.logger.Warn("Preflight reverted, not submitting",
			zap.String("id", opp.ID),
			zap.String("reason", sim.Reason))
		return &executor.RevertError{Reason: sim.Reason}
	}
	return nil
}

func (d *Dispatcher) sign(nonce uint64, to common.Address, gasPrice *big.Int, data []byte) (*gethtypes.Transaction, error) {
	tx, err := gethtypes.SignTx(gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      d.settings.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	}), d.signer, d.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}

func (d *Dispatcher) submit(ctx context.Context, tx *gethtypes.Transaction) error {
	if err := d.submitter.Submit(ctx, tx); err != nil {
		return fmt.Errorf("failed to submit transaction: %w", err)
	}
	d.logger.Info("Submitted transaction",
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64("nonce", tx.Nonce()),
		zap.String("gas_price", tx.GasPrice().String()))
	return nil
}

func (d *Dispatcher) send(ctx context.Context, nonce uint64, to common.Address, gasPrice *big.Int, data []byte) (*gethtypes.Transaction, error) {
	tx, err := d.sign(nonce, to, gasPrice, data)
	if err != nil {
		return nil, err
	}
	if err := d.submit(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// BumpGasPrice raises price by GasBumpPercent, capped at original times
// MaxGasMultiplierPercent and at MaxGasPrice.
func (d *Dispatcher) BumpGasPrice(original *big.Int) *big.Int {
	bumped := fpmath.Percent(original, d.settings.GasBumpPercent)
	bumped = fpmath.Min(bumped, fpmath.Percent(original, d.settings.MaxGasMultiplierPercent))
	return fpmath.Min(bumped, d.settings.MaxGasPrice)
}

// resubmit replaces first with a same-nonce transaction at a higher gas price
// and waits once more for either of them. This is the only retry.
func (d *Dispatcher) resubmit(ctx context.Context, first *gethtypes.Transaction, res *types.ExecutionResult) (*gethtypes.Receipt, error) {
	bumped := d.BumpGasPrice(first.GasPrice())
	if bumped.Cmp(first.GasPrice()) <= 0 {
		return nil, fmt.Errorf("%w: gas price already at cap %s", types.ErrDispatchTimeout, first.GasPrice())
	}

	d.logger.Warn("Inclusion timeout, resubmitting with higher gas price",
		zap.String("tx", first.Hash().Hex()),
		zap.String("gas_price", first.GasPrice().String()),
		zap.String("bumped", bumped.String()))

	hashes := []common.Hash{first.Hash()}
	second, err := d.send(ctx, first.Nonce(), *first.To(), bumped, first.Data())
	if err != nil {
		// The original may have landed meanwhile; keep watching it.
		d.logger.Warn("Resubmission failed", zap.Error(err))
	} else {
		d.metrics.Resubmits.Inc()
		res.Attempts = 2
		res.TxHash = second.Hash()
		res.GasPrice = bumped
		hashes = append(hashes, second.Hash())
	}

	receipt, err := d.waitReceipt(ctx, hashes...)
	if errors.Is(err, errInclusionTimeout) {
		return nil, fmt.Errorf("%w: not included after %d attempts", types.ErrDispatchTimeout, res.Attempts)
	}
	return receipt, err
}

// waitReceipt polls for a receipt of any of hashes until InclusionTimeout.
// Cancellation yields ErrAbandoned since the transactions are already out.
func (d *Dispatcher) waitReceipt(ctx context.Context, hashes ...common.Hash) (*gethtypes.Receipt, error) {
	timeout := time.NewTimer(d.settings.InclusionTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(d.settings.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		for _, h := range hashes {
			receipt, err := d.client.TransactionReceipt(ctx, h)
			if err == nil && receipt != nil {
				return receipt, nil
			}
			if err != nil && !errors.Is(err, ethereum.NotFound) {
				d.logger.Debug("Receipt lookup failed", zap.String("tx", h.Hex()), zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", types.ErrAbandoned, ctx.Err())
		case <-timeout.C:
			return nil, errInclusionTimeout
		case <-ticker.C:
		}
	}
}

// replayRevert re-executes the call on the parent of the block that
// included it to recover the revert reason.
func (d *Dispatcher) replayRevert(ctx context.Context, to common.Address, data []byte, block *big.Int) string {
	var at *big.Int
	if block != nil && block.Sign() > 0 {
		at = new(big.Int).Sub(block, big.NewInt(1))
	}
	_, err := d.client.CallContract(ctx, ethereum.CallMsg{
		From: d.from,
		To:   &to,
		Gas:  d.settings.GasLimit,
		Data: data,
	}, at)
	if reason, ok := contract.RevertReason(err); ok {
		return reason
	}
	if err != nil {
		d.logger.Warn("Failed to replay reverted call", zap.Error(err))
	}
	return "reverted without reason"
}

func (d *Dispatcher) record(ctx context.Context, res *types.ExecutionResult, took time.Duration) {
	d.metrics.Latency.Observe(took.Seconds())
	if res.Success {
		d.metrics.Successes.Inc()
		profit, _ := new(big.Float).SetInt(res.Profit).Float64()
		d.metrics.ProfitTotal.Add(profit)
	} else {
		d.metrics.Failures.WithLabelValues(res.FailureReason).Inc()
	}
	if total := metrics.CounterValue(d.metrics.Dispatched); total > 0 {
		d.metrics.SuccessRate.Set(metrics.CounterValue(d.metrics.Successes) / total)
	}

	fields := []zap.Field{
		zap.String("id", res.OpportunityID),
		zap.String("cycle", res.Cycle),
		zap.Bool("success", res.Success),
		zap.Int("attempts", res.Attempts),
		zap.Duration("took", took),
	}
	if res.TxHash != (common.Hash{}) {
		fields = append(fields, zap.String("tx", res.TxHash.Hex()))
	}
	if res.Success {
		d.logger.Info("Execution succeeded", append(fields, zap.String("profit", res.Profit.String()))...)
	} else {
		d.logger.Warn("Execution failed", append(fields, zap.String("reason", res.FailureReason))...)
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.audit.Append(auditCtx, res); err != nil {
		d.logger.Error("Failed to append audit entry", zap.String("id", res.OpportunityID), zap.Error(err))
	}
}

// Withdraw sends the executor's whole balance of token to the owner and waits
// for the receipt.
func (d *Dispatcher) Withdraw(ctx context.Context, executorAddr, token common.Address, gasPrice *big.Int) (*gethtypes.Receipt, error) {
	release, err := d.lock.Acquire(ctx, d.from)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	defer release()

	data, err := contract.PackWithdraw(token)
	if err != nil {
		return nil, err
	}
	nonce, err := d.client.PendingNonceAt(ctx, d.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	tx, err := d.send(ctx, nonce, executorAddr, fpmath.Min(gasPrice, d.settings.MaxGasPrice), data)
	if err != nil {
		return nil, err
	}

	receipt, err := d.waitReceipt(ctx, tx.Hash())
	if errors.Is(err, errInclusionTimeout) {
		return nil, fmt.Errorf("%w: withdraw %s", types.ErrDispatchTimeout, tx.Hash().Hex())
	}
	if err != nil {
		return nil, err
	}
	if receipt.Status == gethtypes.ReceiptStatusFailed {
		reason := d.replayRevert(ctx, executorAddr, data, receipt.BlockNumber)
		return receipt, &executor.RevertError{Reason: reason}
	}
	return receipt, nil
}
