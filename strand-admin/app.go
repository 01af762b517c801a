// This is a command line interface for running strand ceremonies
// locally: a full key-generation and tally demo with simulated
// trustees, and a deterministic ordering tool.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/onet/v3/log"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/sequentech/strand/ceremony"
	"github.com/sequentech/strand/lib"
	"github.com/sequentech/strand/order"
)

const (
	// DefaultName is the name of the binary we produce.
	DefaultName = "strand-admin"

	// Version of this binary.
	Version = "0.1"
)

// demoConfig is the toml layout of the demo configuration file.
type demoConfig struct {
	Threshold int
	Trustees  []string
	Elections []string
	Ballots   int
	Archive   string
}

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = DefaultName
	cliApp.Usage = "run strand ceremonies locally"
	cliApp.Version = Version

	cliApp.Commands = []cli.Command{
		{
			Name:  "demo",
			Usage: "Run a full key ceremony and tally with simulated trustees",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "config, c",
					Value: "demo.toml",
					Usage: "demo configuration file",
				},
			},
			Action: runDemo,
		},
		{
			Name:      "order",
			Usage:     "Deterministically order comma-separated items",
			ArgsUsage: "item[,item...]",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "policy, p",
					Value: "random",
					Usage: "ordering policy: random, custom or alphabetical",
				},
				cli.StringFlag{
					Name:  "scope",
					Usage: "scope id for seed derivation",
				},
				cli.StringFlag{
					Name:  "nonce",
					Usage: "nonce for seed derivation",
				},
			},
			Action: runOrder,
		},
	}
	cliApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "debug, d",
			Value: 0,
			Usage: "debug-level: 1 for terse, 5 for maximal",
		},
	}
	cliApp.Before = func(c *cli.Context) error {
		log.SetDebugVisible(c.GlobalInt("debug"))
		return nil
	}
	log.ErrFatal(cliApp.Run(os.Args))
}

func runDemo(c *cli.Context) error {
	config := demoConfig{Threshold: 2, Ballots: 10}
	if _, err := toml.DecodeFile(c.String("config"), &config); err != nil {
		return fmt.Errorf("reading config: %v", err)
	}
	if len(config.Trustees) == 0 {
		config.Trustees = []string{"trustee-1", "trustee-2", "trustee-3"}
	}
	if len(config.Elections) == 0 {
		config.Elections = []string{"election-1"}
	}

	registry := ceremony.NewRegistry()
	events := registry.Subscribe()
	defer registry.Unsubscribe(events)
	go func() {
		for event := range events {
			log.Lvlf2("event %s: %s (%s)", event.CeremonyID, event.Status, event.Detail)
		}
	}()

	n := len(config.Trustees)
	keys, err := registry.NewKeyCeremony(config.Threshold, config.Trustees)
	if err != nil {
		return err
	}
	if err := keys.Start(); err != nil {
		return err
	}

	// Each trustee runs on its own machine in production; here we
	// simulate the whole exchange in-process.
	deals, secrets, err := lib.DKGSimulate(n, config.Threshold)
	if err != nil {
		return err
	}
	for i, id := range config.Trustees {
		if err := keys.SubmitKeyShare(id, deals[i].KeyShare()); err != nil {
			return err
		}
	}
	key, err := keys.CombineShares()
	if err != nil {
		return err
	}
	fmt.Println("election key:", key)

	for i, id := range config.Trustees {
		if err := keys.RetrieveKey(id); err != nil {
			return err
		}
		if _, err := keys.CheckPrivateKey(id, deals[i].Secret()); err != nil {
			return err
		}
	}

	tally, err := registry.NewTallyCeremony(keys, config.Elections)
	if err != nil {
		return err
	}
	for i, id := range config.Trustees {
		if err := tally.RestoreKey(id, secrets[i].V); err != nil {
			return err
		}
	}

	for _, electionID := range config.Elections {
		box := demoBox(key, electionID, config.Ballots)
		if err := tally.SetBallots(electionID, box); err != nil {
			return err
		}

		previous := box.Ballots
		for i, id := range config.Trustees {
			mix, err := lib.NewMix(key, previous, id, deals[i].Secret(), random.New())
			if err != nil {
				return err
			}
			if err := tally.AdvanceMix(electionID, id, mix); err != nil {
				return err
			}
			previous = mix.Ballots
		}

		final := &lib.Mix{Ballots: previous}
		for i := 0; i < config.Threshold; i++ {
			id := config.Trustees[i]
			partial := lib.NewPartial(secrets[i], id, final)
			if err := tally.AdvanceDecrypt(electionID, id, partial); err != nil {
				return err
			}
		}
		result, err := tally.CombineDecryptionShares(electionID)
		if err != nil {
			return err
		}
		fmt.Printf("election %s (%d mixes):\n", electionID, n)
		for _, message := range result.Messages {
			fmt.Printf("  %s\n", message)
		}
	}

	if config.Archive != "" {
		archive, err := ceremony.OpenArchive(config.Archive)
		if err != nil {
			return err
		}
		defer archive.Close()
		if err := archive.SaveKeys(keys.Snapshot()); err != nil {
			return err
		}
		if err := archive.SaveTally(tally.Snapshot()); err != nil {
			return err
		}
		fmt.Println("snapshots archived to", config.Archive)
	}

	for _, status := range registry.Statuses() {
		fmt.Printf("%s ceremony %s: %v\n", status.Kind, status.CeremonyID, status.Status)
	}
	return nil
}

func runOrder(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one comma-separated list of items")
	}
	policy, err := order.ParsePolicy(c.String("policy"))
	if err != nil {
		return err
	}

	var seed *lib.Seed
	if policy == order.Random {
		if c.String("scope") == "" || c.String("nonce") == "" {
			return fmt.Errorf("random ordering needs --scope and --nonce")
		}
		s := lib.DeriveSeed(c.String("scope"), c.String("nonce"))
		seed = &s
	}

	var items []order.Item
	for _, name := range strings.Split(c.Args().First(), ",") {
		items = append(items, order.Item{ID: name, Name: name})
	}
	ordered, err := order.Order(items, policy, seed)
	if err != nil {
		return err
	}
	for _, item := range ordered {
		fmt.Println(item.Name)
	}
	return nil
}

// demoBox encrypts a handful of recognizable plaintexts under the
// election key.
func demoBox(key kyber.Point, electionID string, n int) *lib.Box {
	if n < 2 {
		n = 2
	}
	ballots := make([]*lib.Ballot, n)
	for i := range ballots {
		message := []byte(fmt.Sprintf("%s/vote-%d", electionID, i))
		alpha, beta := lib.Encrypt(key, message, random.New())
		ballots[i] = &lib.Ballot{Alpha: alpha, Beta: beta}
	}
	return &lib.Box{Ballots: ballots}
}
