package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/antonymartiz/PrivateVoting/api/client"
	"github.com/antonymartiz/PrivateVoting/config"
	"github.com/antonymartiz/PrivateVoting/crypto/ethereum"
	"github.com/antonymartiz/PrivateVoting/crypto/paillier"
	"github.com/antonymartiz/PrivateVoting/log"
	"github.com/antonymartiz/PrivateVoting/tally"
	"github.com/antonymartiz/PrivateVoting/web3"
	"github.com/antonymartiz/PrivateVoting/web3/rpc"
	flag "github.com/spf13/pflag"
)

func main() {
	backend := flag.String("backend", "http://localhost:3001", "tally API URL")
	forVotes := flag.Uint64("for", 1, "for votes carried by the ballot")
	againstVotes := flag.Uint64("against", 0, "against votes carried by the ballot")
	voterKey := flag.String("voterKeyPath", "", "file with the hex key of the voter, if empty $"+config.SignerKeyEnv+" is used")
	skipFinalize := flag.Bool("skipFinalize", false, "only submit the vote")
	conf, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log.Init(conf.LogLevel, "stdout", nil)

	if err := run(conf, *backend, *voterKey, *forVotes, *againstVotes, *skipFinalize); err != nil {
		log.Fatal(err)
	}
}

func run(conf *config.Config, backend, voterKey string, forVotes, againstVotes uint64, skipFinalize bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cli, err := client.New(backend)
	if err != nil {
		return fmt.Errorf("backend not available: %w", err)
	}
	pub, err := cli.PublicKey()
	if err != nil {
		return fmt.Errorf("failed to get public key: %w", err)
	}
	ballot := tally.PackUint64(forVotes, againstVotes)
	ct, err := paillier.Encrypt(pub, ballot)
	if err != nil {
		return err
	}
	log.Infow("ballot encrypted", "for", forVotes, "against", againstVotes, "bytes", len(ct.Bytes()))

	addr, err := web3.ParseAddress(conf.VotingContract)
	if err != nil {
		return err
	}
	endpoint, err := rpc.NewResolver(conf.Providers()...).Resolve(ctx, addr)
	if err != nil {
		return err
	}
	defer endpoint.Close()
	signer, err := ethereum.LoadSignKeys(voterKey, config.SignerKeyEnv)
	if err != nil {
		return fmt.Errorf("failed to load voter key: %w", err)
	}
	voting := web3.NewVoting(addr, endpoint)
	voting.SetSigner(signer)
	hash, err := voting.SubmitVote(ctx, ct.Bytes())
	if err != nil {
		return err
	}
	if _, err := voting.WaitTx(ctx, hash); err != nil {
		return err
	}
	log.Infow("vote mined", "tx", hash.Hex(), "voter", voting.AccountAddress().Hex())
	if skipFinalize {
		return nil
	}

	res, err := cli.AggregateAndFinalize(addr.Hex())
	if err != nil {
		return err
	}
	if res == nil {
		log.Warnw("backend found no votes", "contract", addr.Hex())
		return nil
	}
	log.Infow("tally finalized",
		"for", res.ForVotes.String(),
		"against", res.AgainstVotes.String(),
		"tx", res.Tx.Hex())
	return nil
}
