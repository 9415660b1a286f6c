// Command dbus inspects and pokes at DBus message buses.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	dbus "github.com/danderson/dbus-typed"
)

var globalArgs struct {
	UseSessionBus bool          `flag:"session,Connect to session bus instead of system bus"`
	Names         string        `flag:"names,Comma-separated list of bus names to request"`
	Timeout       time.Duration `flag:"timeout,default=25s,Timeout for bus calls"`
}

// discoveryTimeout bounds commands that walk entire object trees.
const discoveryTimeout = time.Minute

func main() {
	root := &command.C{
		Name:     "dbus",
		Usage:    "command args...",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			listCommands,
			{
				Name:  "ping",
				Usage: "ping peer",
				Help:  "Ping a peer.",
				Run:   onBus(1, 1, 0, runPing),
			},
			{
				Name:  "machine-id",
				Usage: "machine-id peer",
				Help:  "Print the machine ID of a peer.",
				Run:   onBus(1, 1, 0, runMachineID),
			},
			{
				Name:  "whois",
				Usage: "whois peer",
				Help:  "Get a peer's identity.",
				Run:   onBus(1, 1, 0, runWhois),
			},
			{
				Name:  "features",
				Usage: "features",
				Help:  "List the message bus's feature flags.",
				Run:   onBus(0, 0, 0, runFeatures),
			},
			{
				Name:     "generate",
				Usage:    "generate peer interface",
				Help:     "Generate a typed Go client for an interface from its introspection data.",
				SetFlags: command.Flags(flax.MustBind, &generateArgs),
				Run:      onBus(2, 2, discoveryTimeout, runGenerate),
			},
			freedesktopCommands,
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

// busFunc is the body of a command that talks to the bus. args are
// the command's positional arguments.
type busFunc func(ctx context.Context, conn *dbus.Conn, args []string) error

// onBus returns a command.C Run function that checks the number of
// positional arguments, connects to the bus, and invokes fn with a
// context bounded by timeout. A zero timeout means --timeout.
func onBus(minArgs, maxArgs int, timeout time.Duration, fn busFunc) func(*command.Env) error {
	return func(env *command.Env) error {
		if n := len(env.Args); n < minArgs || n > maxArgs {
			if minArgs == maxArgs {
				return env.Usagef("got %d arguments, want %d", n, minArgs)
			}
			return env.Usagef("got %d arguments, want %d to %d", n, minArgs, maxArgs)
		}

		conn, err := busConn(env.Context())
		if err != nil {
			return fmt.Errorf("connecting to bus: %w", err)
		}
		defer conn.Close()

		d := timeout
		if d == 0 {
			d = globalArgs.Timeout
		}
		ctx, cancel := context.WithTimeout(env.Context(), d)
		defer cancel()
		return fn(ctx, conn, env.Args)
	}
}

// busConn connects to the bus selected by --session, and claims the
// names listed in --names.
func busConn(ctx context.Context) (*dbus.Conn, error) {
	dial := dbus.SystemBus
	if globalArgs.UseSessionBus {
		dial = dbus.SessionBus
	}
	conn, err := dial(ctx)
	if err != nil {
		return nil, err
	}

	for _, n := range strings.Split(globalArgs.Names, ",") {
		if n == "" {
			continue
		}
		primary, err := conn.RequestName(ctx, n, dbus.NameRequestNoQueue)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("requesting name %q: %w", n, err)
		}
		if primary {
			fmt.Printf("acquired name %s\n", n)
		}
	}

	return conn, nil
}
