package config

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/nanolattice/nanod/block"
	"github.com/nanolattice/nanod/types"
)

// GenesisConfig describes the network's seed state: the genesis account
// (which opens with its own maximum-supply open block, self-funded rather
// than received), its representative, and the two epoch signer accounts
// that authorise epoch-upgrade blocks for this network.
type GenesisConfig struct {
	Account        string `json:"account"`
	Representative string `json:"representative"`
	Balance        string `json:"balance"` // decimal raw amount
	EpochSignerV1  string `json:"epoch_signer_v1"`
	EpochSignerV2  string `json:"epoch_signer_v2"`
}

// DefaultGenesisConfig derives a deterministic development network: the
// genesis, representative, and epoch-signer accounts are all seeded from
// fixed, publicly-known strings so every node started with network "test"
// agrees on the same genesis chain without needing to ship a real key.
func DefaultGenesisConfig() GenesisConfig {
	genesisKP := keyPairFromLabel("nanod test genesis")
	epochV1KP := keyPairFromLabel("nanod test epoch v1 signer")
	epochV2KP := keyPairFromLabel("nanod test epoch v2 signer")
	return GenesisConfig{
		Account:        genesisKP.Public.String(),
		Representative: genesisKP.Public.String(),
		Balance:        maxSupplyRaw.String(),
		EpochSignerV1:  epochV1KP.Public.String(),
		EpochSignerV2:  epochV2KP.Public.String(),
	}
}

// maxSupplyRaw is the total raw supply minted into the genesis account: 2^120,
// the same order of magnitude as the real network's 2^128/2^8 raw supply.
var maxSupplyRaw = new(big.Int).Lsh(big.NewInt(1), 120)

// keyPairFromLabel deterministically derives a key pair from an arbitrary
// label, for network genesis/epoch-signer accounts that must be identical
// across every node on a given dev/test network without distributing a real
// private key out of band.
func keyPairFromLabel(label string) *types.KeyPair {
	seed := sha256.Sum256([]byte(label))
	kp, err := types.KeyPairFromSeed(seed[:])
	if err != nil {
		panic(fmt.Sprintf("config: derive genesis key pair: %v", err))
	}
	return kp
}

// GenesisKeyPair returns the deterministic signing key for this network's
// genesis account, for test harnesses and the "test"/"beta" dev networks
// that do not ship a real, out-of-band genesis private key.
func GenesisKeyPair() *types.KeyPair {
	return keyPairFromLabel("nanod test genesis")
}

// EpochSignerKeyPair returns the deterministic signing key for epoch e
// (Epoch1 or Epoch2) on the "test"/"beta" dev networks.
func EpochSignerKeyPair(e block.Epoch) *types.KeyPair {
	switch e {
	case block.Epoch1:
		return keyPairFromLabel("nanod test epoch v1 signer")
	case block.Epoch2:
		return keyPairFromLabel("nanod test epoch v2 signer")
	default:
		panic(fmt.Sprintf("config: no epoch signer for %v", e))
	}
}

// Block builds and signs the network's genesis open block: a State block
// that opens with Previous/Link both zero and an explicit maximum balance,
// carrying no pending entry of its own (§3: every other account's first
// raw balance is ultimately traceable to a send from this account).
func (g GenesisConfig) Block() (*block.Block, error) {
	account, err := types.AccountFromHex(g.Account)
	if err != nil {
		return nil, fmt.Errorf("config: genesis account: %w", err)
	}
	rep, err := types.AccountFromHex(g.Representative)
	if err != nil {
		return nil, fmt.Errorf("config: genesis representative: %w", err)
	}
	balance, ok := new(big.Int).SetString(g.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("config: genesis balance %q is not a decimal integer", g.Balance)
	}
	amount, err := amountFromBigInt(balance)
	if err != nil {
		return nil, err
	}

	blk := &block.Block{
		Type:           block.State,
		Account:        account,
		Previous:       types.Hash{},
		Representative: rep,
		Balance:        amount,
		Link:           types.Hash{},
	}
	blk.Sign(GenesisKeyPair())
	return blk, nil
}

func amountFromBigInt(v *big.Int) (types.Amount, error) {
	b := v.Bytes()
	if len(b) > types.AmountSize {
		return types.ZeroAmount, fmt.Errorf("config: amount overflows 128 bits")
	}
	padded := make([]byte, types.AmountSize)
	copy(padded[types.AmountSize-len(b):], b)
	return types.AmountFromBytes(padded)
}
