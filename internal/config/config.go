// Package config parses dtree's command-line flags into a single struct,
// separating flag definitions from main so they can be unit tested
// without exec'ing the binary.
package config

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

const DefaultSSHPort = 22

// Config holds every flag dtree accepts.
type Config struct {
	ExportPath     string
	ImportPath     string
	ShowHidden     bool
	ShowVersion    bool
	DisableGC      bool
	Exclude        []string
	FollowSymlinks bool
	Concurrency    int
	OneFileSystem  bool
	DedupHardLinks bool
	SSHPort        int
	SSHBatch       bool
	SSHTimeout     int
	SSHScanTimeout int

	Args []string
}

// Parse parses args (normally os.Args[1:]) into a Config. output receives
// usage text when requested or on a parse error.
func Parse(args []string, output io.Writer) (Config, error) {
	fs := flag.NewFlagSet("dtree", flag.ContinueOnError)
	fs.SetOutput(output)

	exportPath := fs.String("export", "", "Export scan results to JSON file (headless mode, use '-' for stdout)")
	importPath := fs.String("import", "", "Import and view scan results from JSON file")
	showHidden := fs.Bool("hidden", true, "Show hidden files")
	noHidden := fs.Bool("no-hidden", false, "Hide hidden files")
	showVersion := fs.Bool("version", false, "Show version")
	disableGC := fs.Bool("no-gc", false, "Disable GC during scan (faster but uses more memory)")
	exclude := fs.String("exclude", "", "Comma-separated list of directory names to exclude")
	followSymlinks := fs.Bool("follow-symlinks", false, "Follow symbolic links during scan")
	concurrency := fs.Int("j", 0, "Max concurrent directory scans (0 = auto: 3x CPU cores)")
	oneFileSystem := fs.Bool("x", false, "Stay on one filesystem; do not cross mount points")
	noHardlinks := fs.Bool("no-hardlinks", false, "Disable hard-link deduplication (count every link's bytes)")
	sshPort := fs.Int("ssh-port", DefaultSSHPort, "SSH port for remote scans")
	sshBatch := fs.Bool("ssh-batch", false, "Disable SSH password prompts (key/agent auth only)")
	sshTimeout := fs.Int("ssh-timeout", 15, "SSH connection timeout in seconds (default 15)")
	sshScanTimeout := fs.Int("ssh-scan-timeout", 0, "SSH scan timeout in seconds (0 = no limit)")

	fs.Usage = func() {
		fmt.Fprintf(output, "dtree - Interactive disk usage analyzer\n\n")
		fmt.Fprintf(output, "Usage: dtree [options] [path|user@host [remote-path]]\n\n")
		fmt.Fprintf(output, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(output, "\nExamples:\n")
		fmt.Fprintf(output, "  dtree .                          Scan current directory\n")
		fmt.Fprintf(output, "  dtree /home                      Scan /home\n")
		fmt.Fprintf(output, "  dtree --export scan.json .       Export scan to JSON\n")
		fmt.Fprintf(output, "  dtree --import scan.json         View exported scan\n")
		fmt.Fprintf(output, "  dtree user@192.168.1.10          Scan remote home directory over SSH\n")
		fmt.Fprintf(output, "  dtree --ssh-port 2222 user@host /var/log\n")
		fmt.Fprintf(output, "  dtree --ssh-batch user@host      Key-based/agent auth only (no password prompt)\n")
		fmt.Fprintf(output, "  dtree --follow-symlinks .        Follow symlinks during scan\n")
		fmt.Fprintf(output, "  dtree -j 8 /home                 Scan with 8 concurrent workers\n")
		fmt.Fprintf(output, "  dtree -x /                       Stay on one filesystem\n")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	hiddenSet, noHiddenSet := false, false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "hidden" {
			hiddenSet = true
		}
		if f.Name == "no-hidden" {
			noHiddenSet = true
		}
	})
	if hiddenSet && noHiddenSet {
		return Config{}, fmt.Errorf("--hidden and --no-hidden cannot be used together")
	}
	if *sshPort < 1 || *sshPort > 65535 {
		return Config{}, fmt.Errorf("ssh-port must be between 1 and 65535")
	}
	if *concurrency < 0 {
		return Config{}, fmt.Errorf("concurrency (-j) must be >= 0")
	}

	cfg := Config{
		ExportPath:     *exportPath,
		ImportPath:     *importPath,
		ShowHidden:     *showHidden && !*noHidden,
		ShowVersion:    *showVersion,
		DisableGC:      *disableGC,
		FollowSymlinks: *followSymlinks,
		Concurrency:    *concurrency,
		OneFileSystem:  *oneFileSystem,
		DedupHardLinks: !*noHardlinks,
		SSHPort:        *sshPort,
		SSHBatch:       *sshBatch,
		SSHTimeout:     *sshTimeout,
		SSHScanTimeout: *sshScanTimeout,
		Args:           fs.Args(),
	}
	if *exclude != "" {
		for _, e := range strings.Split(*exclude, ",") {
			if trimmed := strings.TrimSpace(e); trimmed != "" {
				cfg.Exclude = append(cfg.Exclude, trimmed)
			}
		}
	}
	return cfg, nil
}
