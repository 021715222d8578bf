// Command ombra runs the Ombra group messenger control plane.
//
// Usage:
//
//	ombra run                     Poll group swarms and process messages
//	ombra create-group <name>     Create a group with this device as admin
//	ombra groups                  List groups in the local mirror
//	ombra approve <account-id>    Approve a contact for direct invites
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	env "github.com/caarlos0/env/v11"
	flags "github.com/jessevdk/go-flags"

	client "github.com/ombra-im/ombra-go"
	"github.com/ombra-im/ombra-go/internal/sessioncrypto"
)

type envConfig struct {
	DB           string `env:"OMBRA_DB" envDefault:"ombra.db"`
	SwarmBaseURL string `env:"OMBRA_SWARM_URL" envDefault:"wss://swarm.ombra.im"`
	IdentityFile string `env:"OMBRA_IDENTITY"`
}

type globalOpts struct {
	DB      string `long:"db" description:"Path to database file"`
	Swarm   string `long:"swarm" description:"Base URL of the swarm websocket endpoint"`
	Verbose bool   `short:"v" long:"verbose" description:"Enable verbose logging"`

	Run     runCommand     `command:"run" description:"Poll group swarms and process messages"`
	Create  createCommand  `command:"create-group" description:"Create a group with this device as admin"`
	Groups  groupsCommand  `command:"groups" description:"List groups in the local mirror"`
	Approve approveCommand `command:"approve" description:"Approve a contact for direct invites"`
}

var (
	opts globalOpts
	conf envConfig
)

func main() {
	if err := env.Parse(&conf); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	parser := flags.NewParser(&opts, flags.Default)
	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func dbPath() string {
	if opts.DB != "" {
		return opts.DB
	}
	return conf.DB
}

func swarmBase() string {
	if opts.Swarm != "" {
		return opts.Swarm
	}
	return conf.SwarmBaseURL
}

// identity loads the device identity seed, generating and saving one on
// first use.
func identity() (sessioncrypto.KeyPair, error) {
	path := conf.IdentityFile
	if path == "" {
		path = filepath.Join(filepath.Dir(dbPath()), "identity.key")
	}

	if data, err := os.ReadFile(path); err == nil {
		seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return sessioncrypto.KeyPair{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return sessioncrypto.KeyPairFromSeed(seed)
	}

	seed := make([]byte, sessioncrypto.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return sessioncrypto.KeyPair{}, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(seed)), 0o600); err != nil {
		return sessioncrypto.KeyPair{}, fmt.Errorf("save identity: %w", err)
	}
	return sessioncrypto.KeyPairFromSeed(seed)
}

func newClient() (*client.Client, error) {
	kp, err := identity()
	if err != nil {
		return nil, err
	}

	copts := []client.Option{
		client.WithDBPath(dbPath()),
		client.WithSwarmURL(func(groupID string) string {
			return swarmBase() + "/" + groupID
		}),
	}
	if opts.Verbose {
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		copts = append(copts, client.WithLogger(slog.NewLogLogger(h, slog.LevelDebug)))
	}
	return client.NewClient(kp, copts...)
}

type runCommand struct{}

func (cmd *runCommand) Execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("Running as %s (Ctrl+C to stop)\n", c.LocalID())
	<-ctx.Done()
	return nil
}

type createCommand struct {
	Args struct {
		Name    string   `positional-arg-name:"name" required:"true" description:"Group name"`
		Members []string `positional-arg-name:"member" description:"Account IDs to invite"`
	} `positional-args:"true" required:"true"`
}

func (cmd *createCommand) Execute(args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	groupID, err := c.CreateGroup(context.Background(), cmd.Args.Name, cmd.Args.Members)
	if err != nil {
		return err
	}
	fmt.Printf("Created %s (%s)\n", cmd.Args.Name, groupID)
	return nil
}

type groupsCommand struct{}

func (cmd *groupsCommand) Execute(args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	groups, err := c.Groups()
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		fmt.Println("No groups")
		return nil
	}
	for _, g := range groups {
		state := "member"
		switch {
		case g.Destroyed:
			state = "kicked"
		case g.Invited:
			state = "invited"
		case g.IsAdmin():
			state = "admin"
		}
		fmt.Printf("%s  %-10s %s\n", g.GroupID, state, g.Name)
	}
	return nil
}

type approveCommand struct {
	Args struct {
		AccountID string `positional-arg-name:"account-id" required:"true" description:"Prefixed hex account ID"`
		Name      string `positional-arg-name:"name" description:"Display name"`
	} `positional-args:"true" required:"true"`
}

func (cmd *approveCommand) Execute(args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.ApproveContact(cmd.Args.AccountID, cmd.Args.Name); err != nil {
		return err
	}
	fmt.Printf("Approved %s\n", cmd.Args.AccountID)
	return nil
}
