package bounty

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/langell/chainOverflow/pkg/chain/evm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContract struct {
	contract  common.Address
	signature string
	args      []any
	sendErr   error
	status    uint64
}

func (f *fakeContract) SendContractCall(ctx context.Context, contract common.Address, signature string, args ...any) (common.Hash, error) {
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.contract, f.signature, f.args = contract, signature, args
	return common.HexToHash("0xbeef"), nil
}

func (f *fakeContract) WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*evm.Receipt, error) {
	return &evm.Receipt{TxHash: hash, Status: f.status, BlockNumber: big.NewInt(3)}, nil
}

var (
	vault  = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	winner = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func TestRelease(t *testing.T) {
	c := &fakeContract{status: 1}
	r := NewReleaser(c, &vault, time.Second, nil)

	hash, err := r.Release(context.Background(), 42, winner)
	require.NoError(t, err)

	assert.Equal(t, common.HexToHash("0xbeef"), hash)
	assert.Equal(t, vault, c.contract)
	assert.Equal(t, ReleaseSignature, c.signature)
	assert.Equal(t, []any{"42", winner}, c.args)
}

func TestReleaseErrors(t *testing.T) {
	_, err := NewReleaser(&fakeContract{status: 1}, nil, time.Second, nil).Release(context.Background(), 1, winner)
	assert.ErrorIs(t, err, ErrVaultNotConfigured)

	_, err = NewReleaser(&fakeContract{status: 1}, &vault, time.Second, nil).Release(context.Background(), 1, common.Address{})
	assert.ErrorIs(t, err, ErrInvalidWinner)

	boom := errors.New("nonce too low")
	_, err = NewReleaser(&fakeContract{sendErr: boom}, &vault, time.Second, nil).Release(context.Background(), 1, winner)
	assert.ErrorIs(t, err, boom)

	_, err = NewReleaser(&fakeContract{status: 0}, &vault, time.Second, nil).Release(context.Background(), 1, winner)
	assert.ErrorContains(t, err, "reverted")
}

func TestReleaseSignatureEncodes(t *testing.T) {
	data, err := evm.EncodeCall(ReleaseSignature, "42", winner)
	require.NoError(t, err)
	assert.Len(t, data, 4+4*32)
}
