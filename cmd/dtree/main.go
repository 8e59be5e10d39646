package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/arlowe/dtree/internal/config"
	"github.com/arlowe/dtree/internal/engine"
	"github.com/arlowe/dtree/internal/model"
	"github.com/arlowe/dtree/internal/ops"
	"github.com/arlowe/dtree/internal/remote"
	"github.com/arlowe/dtree/internal/scanner"
	"github.com/arlowe/dtree/internal/shell"
	"github.com/arlowe/dtree/internal/tree"
	"github.com/arlowe/dtree/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
)

var (
	version = "dev"
)

type scanTarget struct {
	Remote         bool
	LocalPath      string
	SSHDestination string
	RemotePath     string
}

func main() {
	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(1)
	}

	if cfg.ShowVersion {
		fmt.Printf("dtree %s\n", version)
		os.Exit(0)
	}

	// Import mode
	if cfg.ImportPath != "" {
		if len(cfg.Args) > 0 {
			fmt.Fprintf(os.Stderr, "Error: --import cannot be used with scan targets\n")
			os.Exit(1)
		}

		if cfg.ExportPath != "" {
			// Re-export an imported scan
			root, err := ops.ImportJSON(cfg.ImportPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
				os.Exit(1)
			}
			if err := ops.ExportJSON(root, cfg.ExportPath, version); err != nil {
				fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
				os.Exit(1)
			}
			if cfg.ExportPath != "-" {
				fmt.Printf("Exported to %s\n", cfg.ExportPath)
			}
			os.Exit(0)
		}

		app := ui.NewAppFromImport(cfg.ImportPath)
		app.Version = version
		runApp(app)
		return
	}

	treeOpts := tree.Options{
		ShowHidden:     cfg.ShowHidden,
		FollowSymlinks: cfg.FollowSymlinks,
		Concurrency:    cfg.Concurrency,
		DisableGC:      cfg.DisableGC,
	}
	if len(cfg.Exclude) > 0 {
		treeOpts.ExcludePatterns = cfg.Exclude
	}

	engOpts := engine.Options{
		DedupHardLinks: cfg.DedupHardLinks,
		OneFileSystem:  cfg.OneFileSystem,
	}

	target, err := resolveScanTarget(cfg.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if target.Remote {
		if err := runRemoteScan(target, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	absPath, err := filepath.Abs(target.LocalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Verify path exists
	info, err := os.Stat(absPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !info.IsDir() {
		fmt.Fprintf(os.Stderr, "Error: %s is not a directory\n", absPath)
		os.Exit(1)
	}

	// Headless export mode: build the structure, run one computation to
	// convergence, write the totals out.
	if cfg.ExportPath != "" {
		if cfg.ExportPath != "-" {
			fmt.Printf("Scanning %s...\n", absPath)
		}
		root, err := scanToConvergence(context.Background(), absPath, treeOpts, engOpts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Scan error: %v\n", err)
			os.Exit(1)
		}
		if err := ops.ExportJSON(root, cfg.ExportPath, version); err != nil {
			fmt.Fprintf(os.Stderr, "Export error: %v\n", err)
			os.Exit(1)
		}
		if cfg.ExportPath != "-" {
			fmt.Printf("Exported to %s\n", cfg.ExportPath)
		}
		return
	}

	// Interactive TUI mode
	app := ui.NewApp(absPath, treeOpts, engOpts)
	app.ExportPath = "dtree-export.json"
	app.Version = version
	runApp(app)
}

func runApp(app *ui.App) {
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithOutput(os.Stderr))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := app.FatalError(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := shell.EmitTarget(app.ChosenDir()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not report chosen directory: %v\n", err)
	}
}

// scanToConvergence walks path, runs one engine computation over it, and
// blocks until every directory's size has settled — the headless
// export path has no UI tick loop to drive polling.
func scanToConvergence(ctx context.Context, path string, treeOpts tree.Options, engOpts engine.Options) (*model.DirNode, error) {
	root, err := tree.Build(ctx, path, treeOpts, nil)
	if err != nil {
		return nil, err
	}
	tree.ComputeItemCounts(root)

	if info, statErr := os.Stat(path); statErr == nil {
		engOpts.RootDevice = engine.DeviceOf(info)
	}

	eng := engine.NewEngine(runtime.GOMAXPROCS(0))
	defer eng.Close()

	snap := tree.ToSnapshot(root)
	eng.StartComputation(snap, engOpts)

	for {
		converged := true
		for _, n := range snap.Nodes {
			if !n.IsDir {
				continue
			}
			if _, ok := eng.Caches.DirSize(n.Path); !ok {
				converged = false
				break
			}
		}
		if converged {
			break
		}
		select {
		case <-ctx.Done():
			return root, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}

	tree.SyncSizes(root, eng.Caches)
	return root, nil
}

func runRemoteScan(target scanTarget, cfg config.Config) error {
	rcfg := remote.Config{
		Target:    target.SSHDestination,
		Port:      cfg.SSHPort,
		BatchMode: cfg.SSHBatch,
		Timeout:   time.Duration(cfg.SSHTimeout) * time.Second,
	}
	if cfg.SSHScanTimeout > 0 {
		rcfg.ScanTimeout = time.Duration(cfg.SSHScanTimeout) * time.Second
	}
	s := remote.NewSFTPScanner(rcfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := scanner.DefaultOptions()
	opts.ShowHidden = cfg.ShowHidden
	opts.FollowSymlinks = cfg.FollowSymlinks
	opts.Concurrency = cfg.Concurrency
	opts.ExcludePatterns = cfg.Exclude

	progressCh := make(chan scanner.Progress, 10)

	var progressWg sync.WaitGroup
	progressWg.Add(1)
	go func() {
		defer progressWg.Done()
		for p := range progressCh {
			fmt.Fprintf(os.Stderr, "\rScanning %s: %d files, %d dirs, %d errors...",
				target.SSHDestination, p.FilesScanned, p.DirsScanned, p.Errors)
		}
		fmt.Fprintln(os.Stderr)
	}()

	root, err := s.Scan(ctx, target.RemotePath, opts, progressCh)
	close(progressCh)
	progressWg.Wait()
	if err != nil {
		return err
	}

	if cfg.ExportPath != "" {
		if err := ops.ExportJSON(root, cfg.ExportPath, version); err != nil {
			return fmt.Errorf("export error: %w", err)
		}
		if cfg.ExportPath != "-" {
			fmt.Printf("Exported to %s\n", cfg.ExportPath)
		}
		return nil
	}

	tempFile, err := os.CreateTemp("", "dtree-remote-*.json")
	if err != nil {
		return fmt.Errorf("cannot create temporary file for remote scan: %w", err)
	}
	tempPath := tempFile.Name()
	if err := tempFile.Close(); err != nil {
		return err
	}
	defer os.Remove(tempPath)

	exportErr := ops.ExportJSON(root, tempPath, version)
	if exportErr != nil {
		return fmt.Errorf("export error: %w", exportErr)
	}

	app := ui.NewAppFromImport(tempPath)
	app.Version = version
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithOutput(os.Stderr))
	if _, err := p.Run(); err != nil {
		return err
	}
	if err := app.FatalError(); err != nil {
		return err
	}
	return shell.EmitTarget(app.ChosenDir())
}

func resolveScanTarget(args []string) (scanTarget, error) {
	if len(args) == 0 {
		return scanTarget{LocalPath: "."}, nil
	}

	first := args[0]
	if pathExists(first) {
		if len(args) > 1 {
			return scanTarget{}, fmt.Errorf("too many positional arguments for local scan")
		}
		return scanTarget{LocalPath: first}, nil
	}

	if isRemote, err := validateRemoteTarget(first); isRemote {
		if err != nil {
			return scanTarget{}, err
		}
		if len(args) > 2 {
			return scanTarget{}, fmt.Errorf("too many positional arguments for remote scan")
		}

		remotePath := "."
		if len(args) == 2 && strings.TrimSpace(args[1]) != "" {
			remotePath = args[1]
		}

		return scanTarget{
			Remote:         true,
			SSHDestination: first,
			RemotePath:     remotePath,
		}, nil
	}

	if len(args) > 1 {
		return scanTarget{}, fmt.Errorf("too many positional arguments")
	}

	return scanTarget{LocalPath: first}, nil
}

func validateRemoteTarget(raw string) (bool, error) {
	if strings.ContainsAny(raw, `/\\`) {
		return false, nil
	}
	if strings.Count(raw, "@") != 1 {
		return false, nil
	}

	user, host, _ := strings.Cut(raw, "@")
	if user == "" || host == "" {
		return true, fmt.Errorf("invalid remote target %q: expected user@host", raw)
	}
	if strings.HasPrefix(user, "-") || strings.HasPrefix(host, "-") {
		return true, fmt.Errorf("invalid remote target %q", raw)
	}
	if strings.ContainsAny(user, " \t\n\r") || strings.ContainsAny(host, " \t\n\r") {
		return true, fmt.Errorf("invalid remote target %q: spaces are not allowed", raw)
	}
	if strings.HasPrefix(host, "[") {
		end := strings.Index(host, "]")
		if end == -1 {
			return true, fmt.Errorf("invalid remote target %q: malformed bracketed host", raw)
		}
		if end == 1 {
			return true, fmt.Errorf("invalid remote target %q: empty host", raw)
		}
		if end != len(host)-1 {
			rest := host[end+1:]
			if strings.HasPrefix(rest, ":") && isAllDigits(rest[1:]) {
				return true, fmt.Errorf("remote target %q must not include :port; use --ssh-port", raw)
			}
			return true, fmt.Errorf("invalid remote target %q: malformed bracketed host", raw)
		}
	} else if strings.Contains(host, "]") {
		return true, fmt.Errorf("invalid remote target %q: malformed bracketed host", raw)
	}
	if looksLikeHostPort(host) {
		return true, fmt.Errorf("remote target %q must not include :port; use --ssh-port", raw)
	}

	return true, nil
}

func looksLikeHostPort(host string) bool {
	if strings.Count(host, ":") != 1 {
		return false
	}
	_, port, ok := strings.Cut(host, ":")
	if !ok {
		return false
	}
	return isAllDigits(port)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
