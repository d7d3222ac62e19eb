package publish

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainConfig configures the EVM anchor.
type ChainConfig struct {
	RPCURL        string
	PrivateKeyHex string
	// AnchorAddress receives the zero-value anchor transactions. Empty sends to self.
	AnchorAddress string
	GasLimit      uint64
}

// ChainBackend is the subset of ethclient.Client the anchor uses.
type ChainBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// ChainAnchorPublisher records each envelope's digest in the data field of a
// signed zero-value transaction. Account nonces are strictly increasing, so
// the marker is "nonce:txHash".
type ChainAnchorPublisher struct {
	backend  ChainBackend
	key      *ecdsa.PrivateKey
	from     common.Address
	to       common.Address
	chainID  *big.Int
	gasLimit uint64
	closer   func()

	mu sync.Mutex
}

// DialChainAnchor connects to cfg.RPCURL.
func DialChainAnchor(ctx context.Context, cfg ChainConfig) (*ChainAnchorPublisher, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, errors.New("chain RPC URL is required")
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	p, err := NewChainAnchorPublisher(ctx, client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	p.closer = client.Close
	return p, nil
}

// NewChainAnchorPublisher builds an anchor on an existing backend.
func NewChainAnchorPublisher(ctx context.Context, backend ChainBackend, cfg ChainConfig) (*ChainAnchorPublisher, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse anchor key: %w", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	to := from
	if cfg.AnchorAddress != "" {
		if !common.IsHexAddress(cfg.AnchorAddress) {
			return nil, fmt.Errorf("invalid anchor address %q", cfg.AnchorAddress)
		}
		to = common.HexToAddress(cfg.AnchorAddress)
	}
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 60_000
	}

	return &ChainAnchorPublisher{
		backend:  backend,
		key:      key,
		from:     from,
		to:       to,
		chainID:  chainID,
		gasLimit: gasLimit,
	}, nil
}

// AnchorData is the transaction payload: topic, a zero byte, then the digest.
func AnchorData(topic Topic, env Envelope) []byte {
	digest := env.Digest()
	data := make([]byte, 0, len(topic)+1+len(digest))
	data = append(data, topic...)
	data = append(data, 0)
	return append(data, digest[:]...)
}

func (p *ChainAnchorPublisher) Publish(ctx context.Context, topic Topic, env Envelope) (SequenceMarker, error) {
	// Serialised so each call signs with the next pending nonce.
	p.mu.Lock()
	defer p.mu.Unlock()

	nonce, err := p.backend.PendingNonceAt(ctx, p.from)
	if err != nil {
		return "", Failed(err, "fetch anchor nonce failed")
	}
	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", Failed(err, "fetch gas price failed")
	}

	to := p.to
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      p.gasLimit,
		GasPrice: gasPrice,
		Data:     AnchorData(topic, env),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(p.chainID), p.key)
	if err != nil {
		return "", Failed(err, "sign anchor transaction failed")
	}
	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return "", Failed(err, "send anchor transaction failed")
	}
	return SequenceMarker(fmt.Sprintf("%d:%s", nonce, signed.Hash().Hex())), nil
}

// From returns the signing account.
func (p *ChainAnchorPublisher) From() common.Address {
	return p.from
}

func (p *ChainAnchorPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}
