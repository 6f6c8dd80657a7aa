// Package chain anchors lifecycle events on an EVM chain. Each anchor
// transaction carries the keccak256 digest of the serialized event plus an
// EIP-712 signature over it, giving bond holders an independent audit trail.
package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/knowton/ipbond/internal/crypto"
)

// Config holds connection parameters for the anchor client.
type Config struct {
	RPCURL        string
	ChainID       int64
	AnchorAddress string
	GasLimit      uint64
	Retry         RetryConfig
}

// Anchor submits event digests to the anchor address.
type Anchor struct {
	eth      *ethclient.Client
	signer   *crypto.Signer
	to       common.Address
	chainID  *big.Int
	gasLimit uint64
	retry    RetryConfig
	logger   *slog.Logger
}

// New dials the RPC endpoint and verifies the chain ID matches the
// configured one before returning the client.
func New(ctx context.Context, cfg Config, signer *crypto.Signer, logger *slog.Logger) (*Anchor, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: query chain id: %w", err)
	}
	if chainID.Int64() != cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("chain: endpoint serves chain %d, config expects %d", chainID.Int64(), cfg.ChainID)
	}

	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 100_000
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	return &Anchor{
		eth:      eth,
		signer:   signer,
		to:       common.HexToAddress(cfg.AnchorAddress),
		chainID:  chainID,
		gasLimit: gasLimit,
		retry:    retry,
		logger:   logger.With(slog.String("component", "chain")),
	}, nil
}

// Close releases the underlying RPC connection.
func (a *Anchor) Close() {
	a.eth.Close()
}

// AnchorEvent submits one event digest on-chain and returns the transaction
// hash. Submission is retried on transient RPC failures; the nonce is
// re-fetched on every attempt so a stale-nonce rejection heals itself.
func (a *Anchor) AnchorEvent(ctx context.Context, bondID, event string, payload []byte) (string, error) {
	var digest [32]byte
	copy(digest[:], ethcrypto.Keccak256(payload))

	sig, err := a.signer.SignAnchor(crypto.AnchorPayload{
		BondID:    bondID,
		Event:     event,
		Digest:    digest,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("chain: sign anchor for bond %s: %w", bondID, err)
	}
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return "", fmt.Errorf("chain: decode anchor signature: %w", err)
	}

	// Transaction data is the digest followed by the 65-byte signature.
	data := make([]byte, 0, len(digest)+len(sigBytes))
	data = append(data, digest[:]...)
	data = append(data, sigBytes...)

	var txHash common.Hash
	err = RetryWithBackoff(ctx, a.retry, func() error {
		hash, sendErr := a.send(ctx, data)
		if sendErr != nil {
			return sendErr
		}
		txHash = hash
		return nil
	})
	if err != nil {
		return "", err
	}

	a.logger.Info("event anchored",
		slog.String("bond_id", bondID),
		slog.String("event", event),
		slog.String("tx", txHash.Hex()),
	)
	return txHash.Hex(), nil
}

func (a *Anchor) send(ctx context.Context, data []byte) (common.Hash, error) {
	nonce, err := a.eth.PendingNonceAt(ctx, a.signer.Address())
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: pending nonce: %w", err)
	}

	tipCap, err := a.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: suggest gas tip: %w", err)
	}
	head, err := a.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: latest header: %w", err)
	}
	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   a.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       a.gasLimit,
		To:        &a.to,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), a.signer.PrivateKey())
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: sign tx: %w", err)
	}

	if err := a.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("chain: send tx: %w", err)
	}
	return signed.Hash(), nil
}

// WaitMined blocks until the transaction is included in a block or the
// context expires, polling at a fixed interval.
func (a *Anchor) WaitMined(ctx context.Context, txHash string) (*types.Receipt, error) {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := a.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: wait mined %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}
