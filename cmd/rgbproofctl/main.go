// Command rgbproofctl drives the proof engine from the shell. Every command
// prints its result as JSON on stdout; logs go to stderr and the rotated
// log file under the data dir.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Feustey/rgbproof/chainwatcher"
	"github.com/Feustey/rgbproof/config"
	"github.com/Feustey/rgbproof/engine"
	"github.com/Feustey/rgbproof/logging"
)

const usage = `usage: rgbproofctl [global flags] <command> [args]

commands:
  create     -mentor ID -mentee ID -request ID -rating N [-comment S] [-seal TXID:VOUT]
  verify     CONTRACT_ID SIGNATURE
  details    CONTRACT_ID
  transfer   [-amount N] CONTRACT_ID FROM_OUTPOINT TO_OUTPOINT
  history    CONTRACT_ID
  list       [-mentor ID] [-mentee ID] [-limit N] [-offset N]
  validate   CONTRACT_ID
  verify-all [-workers N]
  onchain    TXID
  health
`

// errUsage marks bad command lines; main exits with status 2 for them.
var errUsage = errors.New("usage error")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, err)
		if k := engine.KindOf(err); k != engine.KindUnknown {
			fmt.Fprintf(os.Stderr, "(%s, http %d)\n", k, k.HTTPStatus())
		}
		os.Exit(1)
	}
}

type app struct {
	eng    *engine.Engine
	stdout io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("rgbproofctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		datadir    = fs.String("datadir", "", "Directory holding the stash, issuer key and config file")
		configFile = fs.String("config", "", "Path to a YAML config file")
		envFile    = fs.String("envfile", ".env", "Dotenv file to load before reading the environment; empty to skip")
		network    = fs.String("network", "", "Bitcoin network label: mainnet, testnet, signet or regtest")
		esplora    = fs.String("esplora", "", "Esplora base URL for on-chain checks")
		debugLevel = fs.String("debuglevel", "", "Logging level: trace, debug, info, warn, error, critical, off")
	)
	fs.Usage = func() { fmt.Fprint(stderr, usage); fs.PrintDefaults() }
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	cfg, err := config.Load(*envFile, config.Overrides{
		ConfigFile: *configFile,
		DataDir:    *datadir,
		Network:    *network,
		EsploraURL: *esplora,
		DebugLevel: *debugLevel,
	})
	if err != nil {
		return err
	}

	lb, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:     cfg.LogFile,
		DebugLevel:  cfg.DebugLevel,
		MaxLogFiles: cfg.MaxLogFiles,
		Stdout:      stderr,
	})
	if err != nil {
		return err
	}
	defer lb.Close()
	log := lb.Logger("CTL")

	var checker chainwatcher.Checker
	if cfg.EsploraURL != "" {
		ew, err := chainwatcher.NewEsplora(lb.Logger("CHWT"), cfg.EsploraURL, cfg.ExplorerTimeout)
		if err != nil {
			return err
		}
		checker = ew
	}

	eng, err := engine.New(ctx, engine.Config{
		DataDir:      cfg.DataDir,
		Network:      cfg.Network,
		IssuerKeyHex: cfg.IssuerKeyHex,
		Checker:      checker,
		Log:          lb.Logger("ENGN"),
		StashLog:     lb.Logger("STSH"),
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	runID := uuid.New()
	log.Debugf("Run %s: %s %s", runID, cmd, strings.Join(rest, " "))

	a := &app{eng: eng, stdout: stdout}
	switch cmd {
	case "create":
		err = a.create(ctx, rest)
	case "verify":
		err = a.verify(rest)
	case "details":
		err = a.details(rest)
	case "transfer":
		err = a.transfer(ctx, rest)
	case "history":
		err = a.history(rest)
	case "list":
		err = a.list(rest)
	case "validate":
		err = a.validate(rest)
	case "verify-all":
		err = a.verifyAll(ctx, rest)
	case "onchain":
		err = a.onchain(ctx, rest)
	case "health":
		err = a.health(ctx, rest)
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	if err != nil {
		log.Debugf("Run %s failed: %v", runID, err)
	}
	return err
}

func (a *app) print(v interface{}) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func positional(name string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: %s takes %d argument(s), got %d", errUsage, name, n, len(args))
	}
	return nil
}

func subFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := subFlags("create")
	var (
		mentor  = fs.String("mentor", "", "Mentor id")
		mentee  = fs.String("mentee", "", "Mentee id")
		request = fs.String("request", "", "Mentoring request id")
		rating  = fs.Uint("rating", 0, "Rating from 0 to 5")
		comment = fs.String("comment", "", "Free-form comment")
		seal    = fs.String("seal", "", "Optional TXID:VOUT to bind the proof to")
	)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: create: %v", errUsage, err)
	}
	if err := positional("create", fs.Args(), 0); err != nil {
		return err
	}
	if *rating > 255 {
		return fmt.Errorf("%w: create: rating %d out of range", errUsage, *rating)
	}

	id, sig, err := a.eng.CreateProof(ctx, engine.ProofParams{
		MentorID:  *mentor,
		MenteeID:  *mentee,
		RequestID: *request,
		Rating:    uint8(*rating),
		Comment:   *comment,
		UTXOSeal:  *seal,
	})
	if err != nil {
		return err
	}
	return a.print(struct {
		ContractID string `json:"contract_id"`
		Signature  string `json:"signature"`
	}{id, sig})
}

func (a *app) verify(args []string) error {
	if err := positional("verify", args, 2); err != nil {
		return err
	}
	return a.print(struct {
		ContractID string `json:"contract_id"`
		Valid      bool   `json:"valid"`
	}{args[0], a.eng.VerifyProof(args[0], args[1])})
}

func (a *app) details(args []string) error {
	if err := positional("details", args, 1); err != nil {
		return err
	}
	d, err := a.eng.GetProofDetails(args[0])
	if err != nil {
		return err
	}
	return a.print(d)
}

func (a *app) transfer(ctx context.Context, args []string) error {
	fs := subFlags("transfer")
	amount := fs.Uint64("amount", 0, "Amount recorded with the transfer")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: transfer: %v", errUsage, err)
	}
	if err := positional("transfer", fs.Args(), 3); err != nil {
		return err
	}
	id, err := a.eng.TransferProof(ctx, fs.Arg(0), fs.Arg(1), fs.Arg(2), *amount)
	if err != nil {
		return err
	}
	return a.print(struct {
		TransferID string `json:"transfer_id"`
	}{id})
}

func (a *app) history(args []string) error {
	if err := positional("history", args, 1); err != nil {
		return err
	}
	h, err := a.eng.GetContractHistory(args[0])
	if err != nil {
		return err
	}
	return a.print(h)
}

func (a *app) list(args []string) error {
	fs := subFlags("list")
	var f engine.ListFilter
	fs.StringVar(&f.MentorID, "mentor", "", "Only proofs by this mentor")
	fs.StringVar(&f.MenteeID, "mentee", "", "Only proofs for this mentee")
	fs.IntVar(&f.Limit, "limit", 0, "Maximum results; 0 for all")
	fs.IntVar(&f.Offset, "offset", 0, "Results to skip")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: list: %v", errUsage, err)
	}
	if err := positional("list", fs.Args(), 0); err != nil {
		return err
	}
	return a.print(a.eng.ListProofs(f))
}

func (a *app) validate(args []string) error {
	if err := positional("validate", args, 1); err != nil {
		return err
	}
	if err := a.eng.ValidateContract(args[0]); err != nil {
		return err
	}
	return a.print(struct {
		ContractID string `json:"contract_id"`
		Valid      bool   `json:"valid"`
	}{args[0], true})
}

type validation struct {
	ContractID string `json:"contract_id"`
	Valid      bool   `json:"valid"`
	Error      string `json:"error,omitempty"`
}

// verifyAll revalidates every contract in the stash on a bounded worker
// pool. It fails when any contract is invalid.
func (a *app) verifyAll(ctx context.Context, args []string) error {
	fs := subFlags("verify-all")
	workers := fs.Int("workers", 4, "Concurrent validations")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: verify-all: %v", errUsage, err)
	}
	if *workers < 1 {
		return fmt.Errorf("%w: verify-all: workers must be positive", errUsage)
	}

	proofs := a.eng.ListProofs(engine.ListFilter{})
	results := make([]validation, len(proofs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)
	for i, p := range proofs {
		i, id := i, p.ContractID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = validation{ContractID: id, Valid: true}
			if err := a.eng.ValidateContract(id); err != nil {
				results[i] = validation{ContractID: id, Error: err.Error()}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].ContractID < results[j].ContractID })
	if err := a.print(results); err != nil {
		return err
	}
	var bad int
	for _, r := range results {
		if !r.Valid {
			bad++
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d contract(s) failed validation", bad, len(results))
	}
	return nil
}

func (a *app) onchain(ctx context.Context, args []string) error {
	if err := positional("onchain", args, 1); err != nil {
		return err
	}
	ok, err := a.eng.VerifyUTXOOnchain(ctx, args[0])
	if err != nil {
		return err
	}
	return a.print(struct {
		Txid   string `json:"txid"`
		Exists bool   `json:"exists"`
	}{args[0], ok})
}

func (a *app) health(ctx context.Context, args []string) error {
	if err := positional("health", args, 0); err != nil {
		return err
	}
	r, err := a.eng.HealthCheck(ctx)
	if err != nil {
		return err
	}
	return a.print(r)
}
