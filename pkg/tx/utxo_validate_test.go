package tx

import (
	"errors"
	"testing"

	"github.com/kgxledger/kgxledger/pkg/crypto"
	"github.com/kgxledger/kgxledger/pkg/types"
	"github.com/shopspring/decimal"
)

type fakeUTXOSet map[types.Outpoint]struct {
	Address types.Address
	Amount  decimal.Decimal
}

func (f fakeUTXOSet) GetUTXO(o types.Outpoint) (types.Address, decimal.Decimal, bool) {
	u, ok := f[o]
	return u.Address, u.Amount, ok
}

func TestValidateWithUTXOs_Valid(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())
	out := types.Outpoint{TxID: types.Hash{0x02}, Index: 0}

	b := NewBuilder().
		AddInput(out).
		AddOutput(testAddress(t, 0x09), decimal.NewFromInt(6))
	b.Sign(key)
	txn := b.Build()

	utxos := fakeUTXOSet{out: {Address: addr, Amount: decimal.NewFromInt(10)}}
	fee, err := txn.ValidateWithUTXOs(utxos)
	if err != nil {
		t.Fatalf("expected valid transaction, got %v", err)
	}
	if !fee.Equal(decimal.NewFromInt(4)) {
		t.Errorf("fee = %s, want 4", fee)
	}
}

func TestValidateWithUTXOs_InputNotFound(t *testing.T) {
	key, _ := crypto.GenerateKey()
	b := NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x03}, Index: 0}).
		AddOutput(testAddress(t, 0x09), decimal.NewFromInt(1))
	b.Sign(key)
	txn := b.Build()

	_, err := txn.ValidateWithUTXOs(fakeUTXOSet{})
	if !errors.Is(err, ErrInputNotFound) {
		t.Errorf("expected ErrInputNotFound, got %v", err)
	}
}

func TestValidateWithUTXOs_AddressMismatch(t *testing.T) {
	key, _ := crypto.GenerateKey()
	out := types.Outpoint{TxID: types.Hash{0x04}, Index: 0}
	b := NewBuilder().
		AddInput(out).
		AddOutput(testAddress(t, 0x09), decimal.NewFromInt(1))
	b.Sign(key)
	txn := b.Build()

	utxos := fakeUTXOSet{out: {Address: testAddress(t, 0xff), Amount: decimal.NewFromInt(10)}}
	_, err := txn.ValidateWithUTXOs(utxos)
	if !errors.Is(err, ErrAddressMismatch) {
		t.Errorf("expected ErrAddressMismatch, got %v", err)
	}
}

func TestValidateWithUTXOs_InsufficientFunds(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())
	out := types.Outpoint{TxID: types.Hash{0x05}, Index: 0}
	b := NewBuilder().
		AddInput(out).
		AddOutput(testAddress(t, 0x09), decimal.NewFromInt(100))
	b.Sign(key)
	txn := b.Build()

	utxos := fakeUTXOSet{out: {Address: addr, Amount: decimal.NewFromInt(1)}}
	_, err := txn.ValidateWithUTXOs(utxos)
	if !errors.Is(err, ErrInsufficientFee) {
		t.Errorf("expected ErrInsufficientFee, got %v", err)
	}
}

func TestValidateWithUTXOs_RejectsCoinbase(t *testing.T) {
	cb := Coinbase(testAddress(t, 0x01), 1)
	if _, err := cb.ValidateWithUTXOs(fakeUTXOSet{}); err == nil {
		t.Error("coinbase transactions should not be validated against the UTXO set directly")
	}
}
