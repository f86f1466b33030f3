package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/antonymartiz/PrivateVoting/config"
	"github.com/antonymartiz/PrivateVoting/log"
	"github.com/antonymartiz/PrivateVoting/web3"
	"github.com/antonymartiz/PrivateVoting/web3/rpc"
	flag "github.com/spf13/pflag"
)

func main() {
	conf, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log.Init(conf.LogLevel, "stderr", nil)

	addr, err := web3.ParseAddress(conf.VotingContract)
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	endpoint, err := rpc.NewResolver(conf.Providers()...).Resolve(ctx, addr)
	if err != nil {
		log.Fatal(err)
	}
	defer endpoint.Close()

	info, err := web3.NewVoting(addr, endpoint).Info(ctx)
	if err != nil {
		log.Fatal(err)
	}
	out := struct {
		*web3.ContractInfo
		Endpoint string `json:"endpoint"`
		ChainID  uint64 `json:"chainId"`
		Start    string `json:"start"`
		End      string `json:"end"`
	}{
		ContractInfo: info,
		Endpoint:     endpoint.URI,
		ChainID:      endpoint.ChainID,
		Start:        time.Unix(info.StartTime.Int64(), 0).UTC().Format(time.RFC3339),
		End:          time.Unix(info.EndTime.Int64(), 0).UTC().Format(time.RFC3339),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal(err)
	}
}
