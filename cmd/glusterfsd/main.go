// Command glusterfsd runs a single brick's storage engine as a
// standalone daemon: it opens the brick, starts the janitor/health/
// reserve/fsyncer background workers, and stages a fresh graph from its
// volfile on SIGHUP (§4.4, §4.5, §5).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gluster/glusterfs-sub002/fsctx"
	"github.com/gluster/glusterfs-sub002/internal/gfs"
	"github.com/gluster/glusterfs-sub002/janitor"
	"github.com/gluster/glusterfs-sub002/lifecycle"
	"github.com/gluster/glusterfs-sub002/posix"
)

var (
	brickRoot string
	graphPath string
	options   []string
)

func main() {
	root := &cobra.Command{
		Use:          "glusterfsd",
		Short:        "Run a brick's POSIX storage engine as a standalone daemon",
		SilenceUsage: true,
		RunE:         run,
	}
	flags := root.Flags()
	flags.StringVar(&brickRoot, "brick-root", "", "absolute path to the brick's backing directory (required)")
	flags.StringVar(&graphPath, "graph", "", "path to the translator graph file (required)")
	flags.StringArrayVar(&options, "option", nil, "brick option as key=value, repeatable (§6)")
	_ = root.MarkFlagRequired("brick-root")
	_ = root.MarkFlagRequired("graph")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func parseOptions(flagValues []string) (gfs.Mapper, error) {
	m := gfs.Mapper{}
	for _, kv := range flagValues {
		key, value, ok := splitKV(kv)
		if !ok {
			return nil, fmt.Errorf("glusterfsd: --option %q is not key=value", kv)
		}
		m[key] = value
	}
	return m, nil
}

func splitKV(s string) (key, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func run(cmd *cobra.Command, _ []string) error {
	opt := posix.DefaultOptions()
	m, err := parseOptions(options)
	if err != nil {
		return err
	}
	if err := gfs.Set(m, &opt); err != nil {
		return fmt.Errorf("glusterfsd: applying options: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The janitor needs a *posix.Brick to close descriptors against,
	// but Brick.Open needs the janitor's close hook to wire into its
	// FDTable - so the janitor is built first with Brick left nil and
	// patched in right after Open succeeds.
	j := janitor.New(nil)
	b, err := posix.Open(brickRoot, opt, func(fd *fsctx.FD) { j.EnqueueFDClose(fd) })
	if err != nil {
		return fmt.Errorf("glusterfsd: opening brick: %w", err)
	}
	j.Brick = b
	defer func() {
		if cerr := b.Close(); cerr != nil {
			gfs.Errorf(b, "close brick: %v", cerr)
		}
	}()

	graph, err := lifecycle.ParseGraphFile(graphPath)
	if err != nil {
		return fmt.Errorf("glusterfsd: parsing graph: %w", err)
	}
	migrator := lifecycle.NewBrickMigrator(b)
	switcher := lifecycle.NewSwitcher(graph, migrator)

	health := janitor.NewHealthChecker(b)
	reserve, err := janitor.NewReserveMonitor(b)
	if err != nil {
		return fmt.Errorf("glusterfsd: configuring disk reserve: %w", err)
	}
	fsyncer := janitor.NewFsyncer(b)

	go j.Run(ctx, 0)
	go health.Run(ctx)
	go reserve.Run(ctx)
	go fsyncer.Run(ctx)
	go watchReload(ctx, switcher)

	gfs.Logf(b, "brick %s serving graph %d", brickRoot, graph.ID)
	<-ctx.Done()
	gfs.Logf(b, "shutting down")
	return nil
}

// watchReload stages and switches a freshly re-parsed graph on each
// SIGHUP, the daemon-reload analogue of the source's volfile-fetch
// cycle (§4.4).
func watchReload(ctx context.Context, switcher *lifecycle.Switcher) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sighup:
			reload(ctx, switcher)
		}
	}
}

func reload(ctx context.Context, switcher *lifecycle.Switcher) {
	graph, err := lifecycle.ParseGraphFile(graphPath)
	if err != nil {
		gfs.Errorf(nil, "glusterfsd: reload: parsing graph: %v", err)
		return
	}
	if err := switcher.Stage(graph); err != nil {
		gfs.Errorf(nil, "glusterfsd: reload: stage: %v", err)
		return
	}
	if err := switcher.Switch(ctx); err != nil {
		gfs.Errorf(nil, "glusterfsd: reload: switch: %v", err)
	}
}
