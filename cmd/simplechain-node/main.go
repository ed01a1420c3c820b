// Command simplechain-node runs a single proof-of-work blockchain node:
// it mines blocks against its peers, serves its chain over HTTP, and can
// be told to stage a history-rewrite attack against itself mid-run for
// testing.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramonaguilera/simplechain/pkg/chain"
	"github.com/ramonaguilera/simplechain/pkg/consensus"
	"github.com/ramonaguilera/simplechain/pkg/forensics"
	"github.com/ramonaguilera/simplechain/pkg/logger"
	"github.com/ramonaguilera/simplechain/pkg/miner"
	"github.com/ramonaguilera/simplechain/pkg/nodeconfig"
	"github.com/ramonaguilera/simplechain/pkg/nodeserver"
	"github.com/ramonaguilera/simplechain/pkg/report"
	"github.com/ramonaguilera/simplechain/pkg/rewrite"
	"github.com/ramonaguilera/simplechain/pkg/snapshot"
	"github.com/ramonaguilera/simplechain/pkg/walletgen"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "simplechain-node",
		Short: "simplechain-node runs a single proof-of-work blockchain node",
		RunE:  runNode,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "INI config file (default: none, flags only)")
	nodeconfig.BindFlags(root)

	root.AddCommand(walletCmd())
	root.AddCommand(reportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := nodeconfig.Load(configFile)
	if err != nil {
		return fmt.Errorf("simplechain-node: %w", err)
	}

	log := logger.NewLogger(&logger.Config{
		Level:  pickLevel(cfg.Quiet),
		Prefix: "simplechain-" + cfg.Miner,
		Output: os.Stdout,
	})

	chainCfg := chain.DefaultConfig()
	chainCfg.Dificultad = cfg.Dificultad
	chainCfg.NumeroMinero = cfg.Miner
	chainCfg.IP = cfg.IP
	chainCfg.Puerto = cfg.Puerto
	chainCfg.ListadoNodos = cfg.Peers

	wallet, err := resolveWallet(cfg.WalletFile)
	if err != nil {
		return fmt.Errorf("simplechain-node: miner wallet: %w", err)
	}
	chainCfg.DireccionMinero = wallet.DireccionMinero
	chainCfg.ClavePrivadaMinero = wallet.ClavePrivadaMinero

	emisor, err := resolveWallet(cfg.EmisorWallet)
	if err != nil {
		return fmt.Errorf("simplechain-node: emisor wallet: %w", err)
	}
	receptor, err := resolveWallet(cfg.ReceptorWallet)
	if err != nil {
		return fmt.Errorf("simplechain-node: receptor wallet: %w", err)
	}
	malicioso, err := resolveWallet(cfg.MaliciosoWallet)
	if err != nil {
		return fmt.Errorf("simplechain-node: malicioso wallet: %w", err)
	}

	c := chain.New(chainCfg)

	if cfg.ForensicsDir != "" {
		flog, err := forensics.Open(cfg.ForensicsDir)
		if err != nil {
			return fmt.Errorf("simplechain-node: open forensics log: %w", err)
		}
		defer flog.Close()
		c.SetForensics(flog)
	}

	cs := consensus.New(c, log, nil)
	m := miner.New(c, cs, log)
	mc := rewrite.New(c, cs, log)

	srv := nodeserver.New(c, log, &nodeserver.Config{Addr: fmt.Sprintf("%s:%d", cfg.IP, cfg.Puerto), ShutdownTimeout: 5 * time.Second})
	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.ListenAndServe() }()

	if len(cfg.Peers) > 0 {
		waitForPeers(cs, cfg.Peers, log)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	rewritten := false
	mining := true
	for mining {
		select {
		case sig := <-sigChan:
			log.Info("received %v, shutting down", sig)
			mining = false
			continue
		default:
		}

		// The rewrite trigger is a chain height: once the tip reaches it,
		// the attack runs exactly once and mining skips a round.
		if cfg.RewriteAt >= 0 && cfg.RewriteTrigger >= 0 && !rewritten && cfg.RewriteTrigger <= tipIndex(c) {
			runRewriteAttack(mc, cfg, emisor, malicioso, log)
			rewritten = true
			if err := snapshot.WriteChain(snapshot.MaliciousFileName(cfg.Miner), c.Snapshot()); err != nil {
				log.Error("simplechain-node: persist malicious snapshot: %v", err)
			}
			continue
		}

		// Mine expects the driver to have filled the mempool: one reward
		// transaction plus at least one signed user transaction per attempt.
		c.Lock()
		c.AddRewardTransaction()
		if ok, reason := c.AddTransaction(emisor.DireccionMinero, emisor.ClavePrivadaMinero, receptor.DireccionMinero, "0.02", "Transaccion normal"); !ok {
			log.Warn("simplechain-node: test transaction rejected: %s", reason)
		}
		c.Unlock()

		m.Mine()

		if err := persist(c, cfg.Miner); err != nil {
			log.Error("simplechain-node: persist snapshot: %v", err)
		}

		if cfg.Iterations > 0 && tipIndex(c) >= cfg.Iterations {
			mining = false
		}
	}

	if cfg.StopAfter >= 0 {
		time.Sleep(time.Duration(cfg.StopAfter) * time.Second)
		selfShutdown(cfg.Puerto)
	}

	_ = srv.Shutdown()
	<-serverDone
	return nil
}

// tipIndex reads the current tip's index under the chain lock.
func tipIndex(c *chain.Chain) int {
	c.Lock()
	defer c.Unlock()
	return c.Tip().Indice
}

// waitForPeers polls every listed peer's /blockchain endpoint until none
// reports not-ready, so a fleet of nodes started together doesn't start
// mining in isolation before the others are reachable.
func waitForPeers(cs *consensus.Consensus, peers []string, log *logger.Logger) {
	for {
		_, notReady := cs.DiscoverPeerChains("startup", peers)
		if len(notReady) == 0 {
			return
		}
		log.Info("waiting for peers: %v", notReady)
		time.Sleep(2 * time.Second)
	}
}

// selfShutdown asks this node's own HTTP server to shut down, the way a
// bounded test run ends itself without an external operator.
func selfShutdown(port int) {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/apagado", port))
	if err == nil {
		resp.Body.Close()
	}
}

func runRewriteAttack(mc *rewrite.MaliciousChain, cfg *nodeconfig.Config, emisor, malicioso *walletgen.Wallet, log *logger.Logger) {
	mc.AddMaliciousRewardTransaction()
	if ok, reason := mc.AddMaliciousTransaction(emisor.DireccionMinero, emisor.ClavePrivadaMinero, malicioso.DireccionMinero, "10", "Transaccion maliciosa"); !ok {
		log.Warn("simplechain-node: malicious transaction rejected: %s", reason)
	}

	won, err := mc.RewriteChain(cfg.RewriteAt)
	if err != nil {
		log.Error("rewrite attack failed: %v", err)
		return
	}
	log.Info("rewrite attack at index %d: won=%t", cfg.RewriteAt, won)
}

// resolveWallet loads the wallet at path, or generates a fresh ephemeral
// keypair if path is empty, so a quick local demo run needs no wallet
// files on disk to try every code path.
func resolveWallet(path string) (*walletgen.Wallet, error) {
	if path == "" {
		return walletgen.Generate()
	}
	return walletgen.LoadWallet(path)
}

func persist(c *chain.Chain, miner string) error {
	return snapshot.WriteChain(snapshot.FileName(miner), c.Snapshot())
}

func pickLevel(quiet bool) logger.Level {
	if quiet {
		return logger.ERROR
	}
	return logger.INFO
}

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet [file]",
		Short: "generate a new miner keypair and write it to a wallet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := walletgen.Generate()
			if err != nil {
				return err
			}
			if err := w.WriteFile(args[0]); err != nil {
				return err
			}
			fmt.Printf("Wallet written to %s\n", args[0])
			fmt.Printf("direccion_minero = %s\n", w.DireccionMinero)
			return nil
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "report [dir]",
		Short: "consolidate a directory of node chain snapshots into a fork check and CSV report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := report.Collect(args[0])
			if err != nil {
				return err
			}

			fork := report.CheckForFork(files)
			if fork.Consistent {
				fmt.Println("All nodes agree on a single chain.")
			} else {
				fmt.Printf("Nodes disagree: %d distinct chains found.\n", len(fork.Groups))
			}

			if out == "" {
				out = "informe.csv"
			}
			if err := report.WriteCSV(out, files); err != nil {
				return err
			}
			fmt.Printf("Report written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output CSV path (default: informe.csv)")
	return cmd
}
