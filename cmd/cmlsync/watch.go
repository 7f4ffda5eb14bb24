package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/me2d/cmlsync/internal/daemon"
	"github.com/me2d/cmlsync/internal/infra"
	"github.com/me2d/cmlsync/internal/state"
	"github.com/me2d/cmlsync/internal/usecase"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive session that reads operations from stdin",
	Long: `Starts a long-running session. Each line on stdin starts one operation in
the background:

  register      register this device
  fetch         reload the command list
  exec <n>      execute command n
  dismiss       clear the finished call status
  quit          stop the session

Status changes are printed as they happen. A finished call is cleared
automatically after the configured dismiss delay.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			a.logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	wc := daemon.DefaultWatcherConfig()
	wc.DismissDelay = a.cfg.DismissDelay
	watcher := daemon.NewWatcher(wc, a.hub, a.resolver, a.logger)
	watcher.OnChange = printSnapshot

	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	go func() {
		readOperations(ctx, a, os.Stdin)
		cancel()
	}()

	fmt.Println("cmlsync watch: type 'register', 'fetch', 'exec <n>', 'dismiss' or 'quit'")
	<-done
	return nil
}

// readOperations dispatches one operation per input line until EOF or "quit".
func readOperations(ctx context.Context, a *app, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "register":
			a.dispatcher.Register()
		case "fetch":
			a.dispatcher.FetchCommands()
		case "exec":
			if len(fields) != 2 {
				fmt.Println("usage: exec <number>")
				continue
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Printf("invalid command number %q\n", fields[1])
				continue
			}
			a.dispatcher.ExecuteCommand(n)
		case "dismiss":
			if !a.hub.DismissCall() {
				fmt.Println("nothing to dismiss")
			}
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown operation %q\n", fields[0])
		}
	}
}

func printSnapshot(snap state.Snapshot) {
	printCall(snap.Call)
}

func runLegacyImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := createLogger(cfg, false)
	defer func() { _ = logger.Sync() }()

	values := map[string]string{}
	for flag, key := range map[string]string{
		"server-url":  usecase.LegacyKeyServerURL,
		"sent-date":   usecase.LegacyKeySentDate,
		"private-key": usecase.LegacyKeyPrivateKey,
	} {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetString(flag)
			values[key] = v
		}
	}
	if len(values) == 0 {
		return fmt.Errorf("nothing to import, pass --server-url, --sent-date or --private-key")
	}
	if v, ok := values[usecase.LegacyKeySentDate]; ok {
		if _, err := usecase.ParseLegacyDate(v); err != nil {
			return err
		}
	}

	dir := filepath.Join(cfg.DataDir, infra.LegacyPrefsDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create legacy store: %w", err)
	}
	prefs, err := infra.OpenLegacyPrefs(infra.LegacyPrefsOptions{Dir: dir, Logger: logger})
	if err != nil {
		return err
	}
	defer func() { logIfErr(logger, "failed to close legacy store", prefs.Close()) }()

	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()
	for key, v := range values {
		if err := prefs.PutString(ctx, key, v); err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
		fmt.Printf("imported %s\n", key)
	}

	if _, err := os.Stat(filepath.Join(cfg.DataDir, infra.StateDBName)); err == nil {
		fmt.Println("Note: state already exists, legacy values are only migrated on first launch.")
	}
	logger.Info("legacy values imported", zap.Int("count", len(values)))
	return nil
}
