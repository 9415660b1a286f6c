package main

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	dbus "github.com/danderson/dbus-typed"
	"github.com/danderson/dbus-typed/internal/dbusgen"
)

func runPing(ctx context.Context, conn *dbus.Conn, args []string) error {
	peer := conn.Peer(args[0])
	start := time.Now()
	if err := peer.Ping(ctx); err != nil {
		return fmt.Errorf("pinging %s: %w", peer, err)
	}
	fmt.Printf("reply from %s in %v\n", peer.Name(), time.Since(start).Round(time.Microsecond))
	return nil
}

func runMachineID(ctx context.Context, conn *dbus.Conn, args []string) error {
	peer := conn.Peer(args[0])
	id, err := peer.MachineID(ctx)
	if err != nil {
		return fmt.Errorf("getting machine ID of %s: %w", peer, err)
	}
	fmt.Println(id)
	return nil
}

func runWhois(ctx context.Context, conn *dbus.Conn, args []string) error {
	creds, err := conn.GetPeerCredentials(ctx, args[0])
	if err != nil {
		return fmt.Errorf("getting credentials of %s: %w", args[0], err)
	}
	if creds.PIDFD != nil {
		defer creds.PIDFD.Close()
	}

	var out indenter
	out.f("PID: %d", creds.PID)
	out.f("UID: %d", creds.UID)
	out.f("GIDs: %v", creds.GIDs)
	if creds.PIDFD != nil {
		out.f("PIDFD: %d", creds.PIDFD.Fd())
	}
	if len(creds.SecurityLabel) > 0 {
		out.f("Security label: %s", strings.TrimRight(string(creds.SecurityLabel), "\x00"))
	}
	if creds.SID != "" {
		out.f("SID: %s", creds.SID)
	}
	for _, k := range slices.Sorted(slices.Values(creds.Unknown)) {
		out.f("%s (?)", k)
	}
	return nil
}

func runFeatures(ctx context.Context, conn *dbus.Conn, _ []string) error {
	features, err := conn.Features(ctx)
	if err != nil {
		return fmt.Errorf("listing bus features: %w", err)
	}
	slices.Sort(features)
	for _, f := range features {
		fmt.Println(f)
	}
	return nil
}

var generateArgs struct {
	PackageName string `flag:"package,default=client,Package name to output"`
	OutFile     string `flag:"out,default=gen.go,Output file path"`
}

func runGenerate(ctx context.Context, conn *dbus.Conn, args []string) error {
	peer, ifaceName := conn.Peer(args[0]), args[1]

	var desc *dbus.InterfaceDescription
	exact := "^" + regexp.QuoteMeta(ifaceName) + "$"
	for oi, err := range listInterfaces(ctx, peer, "", exact) {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		fmt.Printf("found %s at %s\n", ifaceName, oi.Object().Path())
		desc = oi.Description
		break
	}
	if desc == nil {
		return fmt.Errorf("no object of %s implements %s", peer, ifaceName)
	}

	code, err := dbusgen.Interface(generateArgs.PackageName, desc)
	if err != nil {
		return fmt.Errorf("generating client for %s: %w", ifaceName, err)
	}
	if err := os.WriteFile(generateArgs.OutFile, []byte(code), 0644); err != nil {
		return fmt.Errorf("writing generated code: %w", err)
	}
	fmt.Printf("wrote %s\n", generateArgs.OutFile)
	return nil
}
