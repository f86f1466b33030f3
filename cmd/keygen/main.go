package main

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/antonymartiz/PrivateVoting/config"
	"github.com/antonymartiz/PrivateVoting/crypto/ethereum"
	"github.com/antonymartiz/PrivateVoting/crypto/paillier"
	"github.com/antonymartiz/PrivateVoting/log"
	flag "github.com/spf13/pflag"
)

func main() {
	out := flag.String("out", config.DefaultKeyPath, "key file to write")
	bits := flag.Int("bits", paillier.DefaultKeyBits, "modulus size in bits")
	force := flag.Bool("force", false, "overwrite an existing key file")
	signerOut := flag.String("signerOut", "", "also write a new ledger signing key to this file")
	flag.Parse()
	log.Init(log.LogLevelInfo, "stdout", nil)

	if paillier.KeyFileExists(*out) && !*force {
		fmt.Fprintf(os.Stderr, "key file %s already exists, use --force to replace it\n", *out)
		os.Exit(1)
	}
	priv, err := paillier.GenerateKey(rand.Reader, *bits)
	if err != nil {
		log.Fatal(err)
	}
	if err := paillier.WriteKeyFile(*out, paillier.NewKeyFile(priv)); err != nil {
		log.Fatal(err)
	}
	log.Infow("key file written", "path", *out, "bits", priv.N.BitLen())

	if *signerOut == "" {
		return
	}
	signer := ethereum.NewSignKeys()
	if err := signer.Generate(); err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(*signerOut, []byte(ethereum.HexKey(signer)+"\n"), 0o600); err != nil {
		log.Fatal(err)
	}
	log.Infow("signing key written", "path", *signerOut, "address", signer.Address().Hex())
}
