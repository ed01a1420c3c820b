// Package nodeconfig loads a node's startup parameters from an INI config
// file plus command-line flags, mirroring the original node's
// ConfigParser-plus-argparse split: flags always win over the file.
package nodeconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is everything a node needs to start: its chain identity, network
// parameters, and the bounded-run knobs used for testing (iteration
// limits, a scheduled rewrite attack, auto-shutdown).
type Config struct {
	Dificultad      int
	Miner           string
	IP              string
	Puerto          int
	Peers           []string
	LAN             bool
	NoPeers         bool
	Quiet           bool
	Iterations      int
	RewriteAt       int
	RewriteTrigger  int
	StopAfter       int

	// WalletFile, EmisorWallet, ReceptorWallet and MaliciosoWallet name
	// wallet files (in walletgen's key=value form) for this node's own
	// mining identity and for the three wallets the test-transaction and
	// rewrite-attack loops use: the emitter signs, the receiver and the
	// malicious wallet are only paid to. Empty means "generate an ephemeral
	// keypair for this run", matching a quick local demo that has no
	// wallet files on disk yet.
	WalletFile      string
	EmisorWallet    string
	ReceptorWallet  string
	MaliciosoWallet string

	// ForensicsDir, when non-empty, turns on the append-only audit log of
	// every block this node ever accepts. Empty disables it entirely.
	ForensicsDir string
}

// Default returns the node's out-of-the-box parameters: difficulty 5, a
// single local node, unbounded mining.
func Default() *Config {
	return &Config{
		Dificultad: 5,
		Miner:      "1",
		IP:         "127.0.0.1",
		Puerto:     8000,
		Iterations: 0,
		RewriteAt:  -1,
		StopAfter:  -1,
	}
}

// BindFlags registers the node's CLI flags on cmd. The shorthands -d, -m,
// -i and -r match the original argparse flags; every other flag has only a
// long descriptive name (--rewrite-trigger, --stop-after, --lan,
// --no-peers, --quiet, ...).
func BindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntP("difficulty", "d", 5, "number of leading hex zero digits required of a block hash")
	flags.StringP("miner", "m", "1", "this node's miner number")
	flags.String("ip", "127.0.0.1", "address to bind the HTTP server to")
	flags.Int("port", 8000, "port to bind the HTTP server to")
	flags.StringSlice("peers", nil, "peer base URLs, e.g. http://127.0.0.1:8001")
	flags.Bool("lan", false, "recorded as Config.LAN; no part of the node reads it")
	flags.Bool("no-peers", false, "run with no peers regardless of --peers")
	flags.Bool("quiet", false, "suppress informational logging")
	flags.IntP("iterations", "i", 0, "chain height at which to stop mining (0 = unbounded)")
	flags.IntP("rewrite-at", "r", -1, "block index to splice a history-rewrite attack at (-1 = disabled)")
	flags.Int("rewrite-trigger", -1, "chain height at which to launch the rewrite attack")
	flags.Int("stop-after", -1, "seconds to wait after mining stops before requesting own shutdown (-1 = disabled)")
	flags.String("wallet", "", "this node's own miner wallet file (default: generate an ephemeral keypair)")
	flags.String("emisor-wallet", "", "wallet file to sign the recurring test transaction with")
	flags.String("receptor-wallet", "", "wallet file the recurring test transaction pays to")
	flags.String("malicioso-wallet", "", "wallet file the rewrite attack's forged transaction pays to")
	flags.String("forensics-dir", "", "directory for the append-only block audit log (default: disabled)")

	_ = viper.BindPFlags(flags)
}

// Load reads an optional INI config file, then layers the process's CLI
// flags on top (flags always win), and returns the resolved Config.
func Load(configFile string) (*Config, error) {
	viper.SetConfigType("ini")
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("nodeconfig: read %s: %w", configFile, err)
		}
	}

	cfg := Default()
	cfg.Dificultad = viper.GetInt("difficulty")
	cfg.Miner = viper.GetString("miner")
	cfg.IP = viper.GetString("ip")
	cfg.Puerto = viper.GetInt("port")
	cfg.Peers = cleanPeers(viper.GetStringSlice("peers"))
	cfg.LAN = viper.GetBool("lan")
	cfg.NoPeers = viper.GetBool("no-peers")
	cfg.Quiet = viper.GetBool("quiet")
	cfg.Iterations = viper.GetInt("iterations")
	cfg.RewriteAt = viper.GetInt("rewrite-at")
	cfg.RewriteTrigger = viper.GetInt("rewrite-trigger")
	cfg.StopAfter = viper.GetInt("stop-after")
	cfg.WalletFile = viper.GetString("wallet")
	cfg.EmisorWallet = viper.GetString("emisor-wallet")
	cfg.ReceptorWallet = viper.GetString("receptor-wallet")
	cfg.MaliciosoWallet = viper.GetString("malicioso-wallet")
	cfg.ForensicsDir = viper.GetString("forensics-dir")

	if cfg.NoPeers {
		cfg.Peers = nil
	}

	return cfg, nil
}

func cleanPeers(raw []string) []string {
	peers := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			peers = append(peers, p)
		}
	}
	return peers
}
