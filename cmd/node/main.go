// Command node starts a block-lattice node: it opens the block store, wires
// every component described in §4, and serves RPC, WebSocket, and peering
// traffic until interrupted.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nanolattice/nanod/blockprocessor"
	"github.com/nanolattice/nanod/config"
	"github.com/nanolattice/nanod/confirmingset"
	"github.com/nanolattice/nanod/crypto/certgen"
	"github.com/nanolattice/nanod/election"
	"github.com/nanolattice/nanod/events"
	"github.com/nanolattice/nanod/ledger"
	"github.com/nanolattice/nanod/network"
	"github.com/nanolattice/nanod/nlog"
	"github.com/nanolattice/nanod/repregister"
	"github.com/nanolattice/nanod/rpc"
	"github.com/nanolattice/nanod/scheduler"
	"github.com/nanolattice/nanod/store"
	"github.com/nanolattice/nanod/types"
	"github.com/nanolattice/nanod/vote"
	"github.com/nanolattice/nanod/workpool"
	"github.com/nanolattice/nanod/wsnotify"
)

func main() {
	app := &cli.App{
		Name:  "nanod",
		Usage: "a block-lattice node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.json", Usage: "path to config file"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, or error"},
			&cli.StringFlag{Name: "node-id-key", Value: "node_id.key", Usage: "path to the peering identity's seed file (created on first run)"},
			&cli.StringFlag{Name: "voting-key", Usage: "hex-encoded 32-byte seed for this node's representative voting key; omit to run non-voting"},
			&cli.StringSliceFlag{Name: "peer", Usage: "address (host:port) of a peer to connect to at startup; may be repeated"},
		},
		Action: runNode,
		Commands: []*cli.Command{
			{
				Name:  "genkey",
				Usage: "generate a fresh ed25519 key pair and print it",
				Action: func(c *cli.Context) error {
					kp, err := types.GenerateKeyPair()
					if err != nil {
						return err
					}
					fmt.Printf("Account:  %s\n", kp.Public)
					fmt.Printf("Seed:     %s\n", hex.EncodeToString(kp.Seed))
					return nil
				},
			},
			{
				Name:  "gencerts",
				Usage: "generate a CA + node TLS certificate pair",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Value: "config.json"},
					&cli.StringFlag{Name: "out", Required: true, Usage: "output directory"},
					&cli.StringFlag{Name: "node-id-key", Value: "node_id.key"},
				},
				Action: runGenCerts,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		nlog.For("main").Fatalf("%v", err)
	}
}

func runGenCerts(c *cli.Context) error {
	nodeKP, err := loadOrCreateKeyFile(c.String("node-id-key"))
	if err != nil {
		return fmt.Errorf("node id key: %w", err)
	}
	dir := c.String("out")
	if err := certgen.GenerateAll(dir, nodeKP.Public.String(), nil); err != nil {
		return fmt.Errorf("gencerts: %w", err)
	}
	fmt.Printf("Certificates generated in %s for node %s\n", dir, nodeKP.Public)
	return nil
}

func runNode(c *cli.Context) error {
	nlog.SetLevel(c.String("log-level"))
	log := nlog.For("main")

	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	nodeKP, err := loadOrCreateKeyFile(c.String("node-id-key"))
	if err != nil {
		return fmt.Errorf("node id key: %w", err)
	}

	var votingKP *types.KeyPair
	if seedHex := c.String("voting-key"); seedHex != "" {
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return fmt.Errorf("voting-key: not valid hex: %w", err)
		}
		votingKP, err = types.KeyPairFromSeed(seed)
		if err != nil {
			return fmt.Errorf("voting-key: %w", err)
		}
		log.Infof("voting as representative %s", votingKP.Public)
	} else {
		log.Infof("no voting key configured, running non-voting")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	s, err := store.Open(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	epochSigner, err := types.AccountFromHex(cfg.Genesis.EpochSignerV2)
	if err != nil {
		return fmt.Errorf("genesis.epoch_signer_v2: %w", err)
	}
	l := ledger.New(epochSigner)

	genesisAccount, err := types.AccountFromHex(cfg.Genesis.Account)
	if err != nil {
		return fmt.Errorf("genesis.account: %w", err)
	}
	if err := seedGenesisIfFresh(l, s, cfg, genesisAccount); err != nil {
		return fmt.Errorf("seed genesis: %w", err)
	}

	onlineWeightMinimum, err := parseAmount(cfg.OnlineWeightMinimum)
	if err != nil {
		return fmt.Errorf("online_weight_minimum: %w", err)
	}

	em := events.NewEmitter()
	bp := blockprocessor.New(l, s, workpool.DefaultPolicy, em, blockprocessor.DefaultConfig)
	reps := repregister.New()
	online := repregister.NewOnlineWeight(func(acc types.Account) types.Amount {
		tx, err := s.BeginRead()
		if err != nil {
			return types.ZeroAmount
		}
		defer tx.Discard()
		w, err := l.Weight(tx, acc)
		if err != nil {
			return types.ZeroAmount
		}
		return w
	})
	cs := confirmingset.New(l, s, em, confirmingset.DefaultConfig)

	// election depends on the scheduler and the network layer as its
	// SuccessorActivator/Broadcaster, but both of those in turn depend on
	// election (directly, or transitively through the vote processor it
	// feeds as ElectionSink): wire the Manager first with both nil, then
	// fill them in once the dependents exist.
	elect := election.New(l, s, reps, online, onlineWeightMinimum, cs, nil, nil, em)
	sched := scheduler.New(l, elect)
	elect.SetSuccessorActivator(sched)

	history := vote.NewHistory()
	var generator *vote.Generator
	if votingKP != nil {
		generator = vote.NewGenerator(votingKP, history, nowMillis)
	}
	aggregator := vote.NewAggregator(history, generator)
	voteProc := vote.NewProcessor(elect, func(acc types.Account) types.Amount {
		tx, err := s.BeginRead()
		if err != nil {
			return types.ZeroAmount
		}
		defer tx.Discard()
		w, err := l.Weight(tx, acc)
		if err != nil {
			return types.ZeroAmount
		}
		return w
	}, em)

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if tlsCfg != nil {
		log.Infof("mTLS enabled for peering")
	}

	cache := network.NewPeerCache(s)
	p2pAddr := fmt.Sprintf(":%d", cfg.PeeringPort)
	node := network.NewNode(nodeKP, p2pAddr, tlsCfg, bp, voteProc, aggregator, cache)
	elect.SetBroadcaster(node)
	node.AttachBootstrapper(network.NewBootstrapper(l, s, bp))

	rpcHandler := rpc.NewHandler(l, s, bp, reps, elect)
	rpcAuthToken := os.Getenv("NANOD_RPC_TOKEN")
	rpcServer := rpc.NewServer(cfg.RPCListenAddress, rpcHandler, rpcAuthToken)

	wsHub := wsnotify.NewHub(em)
	wsServer := wsnotify.NewServer(cfg.WebsocketListenAddress, wsHub)

	// ---- start everything ----
	bp.Start()
	cs.Start()
	sched.Start()
	elect.Start()
	voteProc.Start()
	if err := node.Start(); err != nil {
		return fmt.Errorf("peering start: %w", err)
	}
	log.Infof("peering listening on %s", p2pAddr)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	log.Infof("rpc listening on %s", cfg.RPCListenAddress)
	if rpcAuthToken != "" {
		log.Infof("rpc bearer token authentication enabled")
	}
	if err := wsServer.Start(); err != nil {
		return fmt.Errorf("websocket start: %w", err)
	}
	log.Infof("websocket listening on %s", cfg.WebsocketListenAddress)

	connectToPeers(node, cache, c.StringSlice("peer"), log)

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Infof("shutting down...")

	// Stop producers of new work before the components that consume it, so
	// nothing is left mid-flight: peering and RPC first (no new blocks/votes
	// admitted), then the election/scheduler/vote pipeline, then storage.
	wsServer.Stop()
	rpcServer.Stop()
	node.Stop()
	voteProc.Stop()
	elect.Stop()
	sched.Stop()
	cs.Stop()
	bp.Stop()

	log.Infof("shutdown complete")
	return nil
}

type mainLogger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

func connectToPeers(node *network.Node, cache *network.PeerCache, flagPeers []string, log mainLogger) {
	cached, err := cache.Addresses()
	if err != nil {
		log.Warnf("peer cache: %v", err)
		cached = nil
	}
	addrs := append(append([]string{}, flagPeers...), cached...)
	var wg sync.WaitGroup
	for _, addr := range addrs {
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := node.Connect(addr); err != nil {
				log.Warnf("connect to peer %s: %v", addr, err)
				return
			}
			log.Infof("connected to peer %s", addr)
		}()
	}
	wg.Wait()
}

func loadConfig(path string) (*config.NodeConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			nlog.For("main").Infof("config file not found at %s, using defaults", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// loadOrCreateKeyFile reads a hex-encoded 32-byte seed from path, or
// generates one and persists it on first run. Used for the node's peering
// identity, which (unlike a representative's voting key) has no
// confidentiality requirement beyond not being guessable by other peers.
func loadOrCreateKeyFile(path string) (*types.KeyPair, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		seed, err := hex.DecodeString(string(trimNewline(data)))
		if err != nil {
			return nil, fmt.Errorf("%s: not valid hex: %w", path, err)
		}
		return types.KeyPairFromSeed(seed)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate seed: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(seed)+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return types.KeyPairFromSeed(seed)
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func seedGenesisIfFresh(l *ledger.Ledger, s store.Store, cfg *config.NodeConfig, genesisAccount types.Account) error {
	rtx, err := s.BeginRead()
	if err != nil {
		return err
	}
	_, infoErr := l.GetAccountInfo(rtx, genesisAccount)
	rtx.Discard()
	if infoErr == nil {
		return nil
	}

	genesisBlock, err := cfg.Genesis.Block()
	if err != nil {
		return err
	}
	wtx, err := s.BeginWrite()
	if err != nil {
		return err
	}
	if err := l.InitializeGenesis(wtx, genesisBlock, uint64(time.Now().Unix())); err != nil {
		wtx.Abort()
		return err
	}
	if err := wtx.Commit(); err != nil {
		return err
	}
	nlog.For("main").Infof("genesis block committed: %s", genesisBlock.Hash())
	return nil
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

func parseAmount(s string) (types.Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return types.ZeroAmount, fmt.Errorf("%q is not a decimal integer", s)
	}
	if v.Sign() < 0 {
		return types.ZeroAmount, fmt.Errorf("%q is negative", s)
	}
	b := v.Bytes()
	if len(b) > types.AmountSize {
		return types.ZeroAmount, fmt.Errorf("%q overflows 128 bits", s)
	}
	padded := make([]byte, types.AmountSize)
	copy(padded[types.AmountSize-len(b):], b)
	return types.AmountFromBytes(padded)
}
