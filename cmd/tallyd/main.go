package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/antonymartiz/PrivateVoting/boundary"
	"github.com/antonymartiz/PrivateVoting/config"
	"github.com/antonymartiz/PrivateVoting/finalizer"
	"github.com/antonymartiz/PrivateVoting/log"
	"github.com/antonymartiz/PrivateVoting/service"
	"github.com/antonymartiz/PrivateVoting/storage"
	"github.com/antonymartiz/PrivateVoting/web3/rpc"
	"go.vocdoni.io/dvote/db"
	flag "github.com/spf13/pflag"
	"go.vocdoni.io/dvote/db/metadb"
)

// finalizeCommand is the subcommand run by the isolated finalizer process.
const finalizeCommand = "finalize"

func main() {
	if len(os.Args) > 1 && os.Args[1] == finalizeCommand {
		os.Exit(runFinalizer(os.Args[2:]))
	}
	conf, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log.Init(conf.LogLevel, conf.LogOutput, nil)
	if err := run(conf); err != nil {
		log.Fatal(err)
	}
}

func run(conf *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := metadb.New(db.TypePebble, filepath.Join(conf.DataDir, "storage"))
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	stg := storage.New(database)
	defer stg.Close()

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate own binary: %w", err)
	}
	if conf.UsesSignerEnv() {
		log.Warnw("signing key read from the environment, use a signer key file outside development",
			"env", conf.SignerKeyEnv)
	}
	// the child gets the same configuration, it reads the secrets itself
	pb := &boundary.ProcessBoundary{
		Path:    self,
		Args:    append([]string{finalizeCommand}, os.Args[1:]...),
		Env:     conf.ChildEnv(os.Environ()),
		Timeout: conf.FinalizeTimeout,
	}
	resolver := rpc.NewResolver(conf.Providers()...)
	tallySvc := service.NewTally(&service.TallyConfig{
		DefaultContract: conf.VotingContract,
		ProviderURL:     conf.ProviderURL,
		KeyPath:         conf.KeyPath,
		SignerKeyPath:   conf.SignerKeyPath,
		SignerKeyEnv:    conf.SignerKeyEnv,
	}, stg, service.NewWeb3Ledger(resolver), pb)
	pb.OnLate = tallySvc.HandleLate
	if err := tallySvc.Start(); err != nil {
		return err
	}
	defer tallySvc.Stop()

	apiSvc := service.NewAPI(tallySvc, conf.Host, conf.Port, conf.APITimeout())
	if err := apiSvc.Start(ctx); err != nil {
		return err
	}
	defer apiSvc.Stop()

	log.Infow("tally server started",
		"port", conf.Port,
		"providers", len(resolver.Candidates()),
		"contract", conf.VotingContract,
		"keyPath", conf.KeyPath,
		"finalizeTimeout", conf.FinalizeTimeout.String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("shutting down", "signal", sig.String())
	return nil
}

// runFinalizer serves one boundary request on stdin and stdout. Logs go to
// stderr only.
func runFinalizer(args []string) int {
	conf, err := config.Load(flag.NewFlagSet(finalizeCommand, flag.ContinueOnError), args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	log.Init(conf.LogLevel, "stderr", nil)
	handler := finalizer.NewHandler(&finalizer.HandlerConfig{
		KeyPath:       conf.KeyPath,
		SignerKeyPath: conf.SignerKeyPath,
		SignerKeyEnv:  conf.SignerKeyEnv,
		Providers:     conf.Providers(),
		Deadline:      conf.ChildDeadline(),
	})
	if err := boundary.Serve(context.Background(), os.Stdin, os.Stdout, handler); err != nil {
		log.Errorw(err, "finalization failed")
		return 1
	}
	return 0
}
