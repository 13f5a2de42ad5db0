// Package config loads and validates the node's JSON configuration,
// generalising the teacher's config.Config/Load/Validate shape to the
// block-lattice node's knobs (§6 of the specification).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nanolattice/nanod/types"
)

// BootstrapConfig toggles individual bootstrap sub-protocols and the
// fast_bootstrap shortcut (§6: disable_bootstrap_*, fast_bootstrap).
type BootstrapConfig struct {
	DisableLegacy  bool `json:"disable_legacy"`
	DisableLazy    bool `json:"disable_lazy"`
	DisableAscPull bool `json:"disable_asc_pull"`
	// Fast raises block_processor_batch_size/full_size and
	// vote_processor_capacity, and disables unchecked-entry deletion.
	Fast bool `json:"fast_bootstrap"`
}

// NodeConfig holds all node configuration (§6 "Node-level knobs").
type NodeConfig struct {
	Network string `json:"network"` // "live", "beta", "test" — selects genesis + epoch signers + protocol id
	DataDir string `json:"data_dir"`

	PeeringPort             int    `json:"peering_port"`
	RPCListenAddress        string `json:"rpc_listen_address"`
	WebsocketListenAddress  string `json:"websocket_listen_address"`

	DisableRepCrawler bool            `json:"disable_rep_crawler"`
	EnablePruning     bool            `json:"enable_pruning"`
	Bootstrap         BootstrapConfig `json:"bootstrap"`

	BlockProcessorBatchSize int `json:"block_processor_batch_size"`
	BlockProcessorFullSize  int `json:"block_processor_full_size"`
	VoteProcessorCapacity   int `json:"vote_processor_capacity"`

	OnlineWeightMinimum   string `json:"online_weight_minimum"`   // raw amount, decimal string (128-bit)
	PrincipalWeightFactor uint64 `json:"principal_weight_factor"` // minimum principal weight = online_weight / this

	TLS *TLSConfig `json:"tls,omitempty"`

	Genesis GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *NodeConfig {
	return &NodeConfig{
		Network:                "test",
		DataDir:                "./data",
		PeeringPort:            7075,
		RPCListenAddress:       "127.0.0.1:7076",
		WebsocketListenAddress: "127.0.0.1:7078",

		BlockProcessorBatchSize: 256,
		BlockProcessorFullSize:  65536,
		VoteProcessorCapacity:   4096,

		OnlineWeightMinimum:   "60000000000000000000000000000000", // 60 whole units at 10^30 raw
		PrincipalWeightFactor: 1000,

		Genesis: DefaultGenesisConfig(),
	}
}

// Load reads a JSON config file from path, merges it over DefaultConfig, and
// validates the result.
func Load(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Bootstrap.Fast {
		cfg.BlockProcessorBatchSize *= 4
		cfg.BlockProcessorFullSize *= 4
		cfg.VoteProcessorCapacity *= 4
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *NodeConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.PeeringPort <= 0 || c.PeeringPort > 65535 {
		return fmt.Errorf("peering_port must be 1-65535, got %d", c.PeeringPort)
	}
	if c.RPCListenAddress == "" {
		return fmt.Errorf("rpc_listen_address must not be empty")
	}
	if c.WebsocketListenAddress == "" {
		return fmt.Errorf("websocket_listen_address must not be empty")
	}
	if c.BlockProcessorBatchSize <= 0 {
		return fmt.Errorf("block_processor_batch_size must be positive")
	}
	if c.BlockProcessorFullSize <= 0 {
		return fmt.Errorf("block_processor_full_size must be positive")
	}
	if c.VoteProcessorCapacity <= 0 {
		return fmt.Errorf("vote_processor_capacity must be positive")
	}
	if _, err := types.AccountFromHex(c.Genesis.Account); err != nil {
		return fmt.Errorf("genesis.account: %w", err)
	}
	if _, err := types.AccountFromHex(c.Genesis.Representative); err != nil {
		return fmt.Errorf("genesis.representative: %w", err)
	}
	if _, err := types.AccountFromHex(c.Genesis.EpochSignerV1); err != nil {
		return fmt.Errorf("genesis.epoch_signer_v1: %w", err)
	}
	if _, err := types.AccountFromHex(c.Genesis.EpochSignerV2); err != nil {
		return fmt.Errorf("genesis.epoch_signer_v2: %w", err)
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *NodeConfig, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
