package publish

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tally/pkg/domain-errors"
)

// fakeChain accepts transactions and advances the pending nonce.
type fakeChain struct {
	mu      sync.Mutex
	nonce   uint64
	sent    []*types.Transaction
	sendErr error
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(31337), nil }

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func newTestAnchor(t *testing.T, backend ChainBackend) *ChainAnchorPublisher {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	p, err := NewChainAnchorPublisher(context.Background(), backend, ChainConfig{
		PrivateKeyHex: fmt.Sprintf("%x", crypto.FromECDSA(key)),
	})
	require.NoError(t, err)
	return p
}

func TestChainAnchorPublishesSignedDigest(t *testing.T) {
	chain := &fakeChain{nonce: 5}
	p := newTestAnchor(t, chain)
	env, err := AttendanceEnvelope(testRecord())
	require.NoError(t, err)

	marker, err := p.Publish(context.Background(), "records", env)
	require.NoError(t, err)
	require.Len(t, chain.sent, 1)

	tx := chain.sent[0]
	assert.Equal(t, SequenceMarker(fmt.Sprintf("5:%s", tx.Hash().Hex())), marker)
	assert.Equal(t, AnchorData("records", env), tx.Data())
	assert.Equal(t, p.From(), *tx.To(), "anchors to self by default")

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), tx)
	require.NoError(t, err)
	assert.Equal(t, p.From(), sender)
}

func TestChainAnchorNoncesIncrease(t *testing.T) {
	chain := &fakeChain{}
	p := newTestAnchor(t, chain)
	env, err := AttendanceEnvelope(testRecord())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 5 {
		wg.Go(func() {
			_, err := p.Publish(context.Background(), "records", env)
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	require.Len(t, chain.sent, 5)
	for i, tx := range chain.sent {
		assert.Equal(t, uint64(i), tx.Nonce())
	}
}

func TestChainAnchorSendFailure(t *testing.T) {
	chain := &fakeChain{sendErr: errors.New("nonce too low")}
	p := newTestAnchor(t, chain)
	env, err := AttendanceEnvelope(testRecord())
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), "records", env)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePublishFailed))
}

func TestChainAnchorRejectsBadConfig(t *testing.T) {
	_, err := NewChainAnchorPublisher(context.Background(), &fakeChain{}, ChainConfig{PrivateKeyHex: "zz"})
	assert.Error(t, err)

	key, _ := crypto.GenerateKey()
	_, err = NewChainAnchorPublisher(context.Background(), &fakeChain{}, ChainConfig{
		PrivateKeyHex: fmt.Sprintf("%x", crypto.FromECDSA(key)),
		AnchorAddress: "not-an-address",
	})
	assert.Error(t, err)
}
