package kitchen

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const toolVersion = "0.1.0"

type App struct {
	checks []Check
	stdout io.Writer
	stderr io.Writer
}

func NewApp(checks []Check) *App {
	return &App{checks: checks, stdout: os.Stdout, stderr: os.Stderr}
}

func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.printUsage()
		return 2
	}

	switch args[0] {
	case "help", "-h", "--help":
		a.printUsage()
		return 0
	case "list":
		return a.runList()
	case "run":
		return a.runRun(ctx, args[1:])
	case "salt":
		return a.runSalt(ctx, args[1:])
	default:
		fmt.Fprintf(a.stderr, "Unknown command: %s\n\n", args[0])
		a.printUsage()
		return 2
	}
}

func (a *App) runList() int {
	checks := slices.Clone(a.checks)
	slices.SortFunc(checks, func(a Check, b Check) int {
		return strings.Compare(a.ID(), b.ID())
	})
	for _, c := range checks {
		fmt.Fprintf(a.stdout, "%s\t%s\n", c.ID(), c.Title())
	}
	return 0
}

// commonFlags are shared by run and salt.
type commonFlags struct {
	root    *string
	host    *string
	dotenv  *string
	verbose *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		root:    fs.String("root", "", "Kitchen project directory (defaults to auto-detect)"),
		host:    fs.String("host", "", "Target as ssh://user@host:port (defaults to KITCHEN_* variables)"),
		dotenv:  fs.String("dotenv", "", "Path to .env file (default: <root>/.env if exists)"),
		verbose: fs.Bool("v", false, "Log remote commands to stderr"),
	}
}

func (f commonFlags) load(dropletTag string) (Config, error) {
	rootDir := strings.TrimSpace(*f.root)
	if rootDir == "" {
		rootDir = FindKitchenRoot()
	}
	rootDir, _ = filepath.Abs(rootDir)

	dotEnvPath := strings.TrimSpace(*f.dotenv)
	if dotEnvPath == "" {
		dotEnvPath = filepath.Join(rootDir, ".env")
	}
	_ = LoadDotEnv(dotEnvPath)

	return LoadConfig(rootDir, Overrides{HostURI: *f.host, DropletTag: dropletTag})
}

func (a *App) runRun(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("kitchenctl run", flag.ContinueOnError)
	fs.SetOutput(a.stderr)

	common := addCommonFlags(fs)
	var (
		flagDropletTag = fs.String("droplet-tag", "", "Verify every DigitalOcean droplet with this tag")
		flagChecks     = fs.String("checks", "", "Comma-separated list of check IDs (default: all)")
		flagJSON       = fs.Bool("json", false, "Print JSON report to stdout")
	)

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := common.load(*flagDropletTag)
	if err != nil {
		fmt.Fprintf(a.stderr, "Config error: %v\n", err)
		return 2
	}

	selectedChecks := a.checks
	if strings.TrimSpace(*flagChecks) != "" {
		want := map[string]bool{}
		for _, id := range strings.Split(*flagChecks, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			want[id] = true
		}
		filtered := make([]Check, 0, len(a.checks))
		for _, c := range a.checks {
			if want[c.ID()] {
				filtered = append(filtered, c)
			}
		}
		selectedChecks = filtered
		if len(selectedChecks) == 0 {
			fmt.Fprintf(a.stderr, "No checks matched: %s\n", *flagChecks)
			return 2
		}
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		fmt.Fprintf(a.stderr, "Failed to create log dir: %v\n", err)
		return 2
	}
	if err := os.MkdirAll(cfg.ReportDir, 0o755); err != nil {
		fmt.Fprintf(a.stderr, "Failed to create report dir: %v\n", err)
		return 2
	}

	console := NewConsoleLogger(a.stderr, *common.verbose)

	var doClient *DOClient
	if cfg.DropletTag != "" {
		if doClient, err = NewDOClient(cfg.DOAccessToken); err != nil {
			fmt.Fprintf(a.stderr, "Failed to init DO client: %v\n", err)
			return 2
		}
	}
	targets, err := ResolveTargets(ctx, cfg, doClient)
	if err != nil {
		fmt.Fprintf(a.stderr, "Failed to resolve targets: %v\n", err)
		return 2
	}

	startedAt := time.Now().UTC()
	report := Report{
		Timestamp: startedAt,
		RootDir:   cfg.RootDir,
		Tool: ToolInfo{
			Name:    "kitchenctl",
			Version: toolVersion,
		},
	}

	for _, t := range targets {
		host, err := NewHost(t.Config, console)
		if err != nil {
			fmt.Fprintf(a.stderr, "Failed to init host %s: %v\n", t.Config.URI(), err)
			return 2
		}

		info := TargetInfo{URI: t.Config.URI(), Name: t.Name}
		if v, err := host.Salt(t.Config.SaltConfigDir()).Version(ctx); err == nil {
			info.SaltVersion = v.Original()
		} else {
			console.Debug("salt version unavailable", "host", info.URI, "err", err)
		}
		report.Targets = append(report.Targets, info)

		for _, c := range selectedChecks {
			report.Add(a.runOneCheck(ctx, t.Config, host, c))
		}
		closeLogged(console, "host "+info.URI, host)
	}

	reportPath := filepath.Join(cfg.ReportDir, fmt.Sprintf("kitchenctl_report_%s.json", startedAt.Format("20060102150405")))
	if err := WriteJSONFile(reportPath, report); err != nil {
		fmt.Fprintf(a.stderr, "Failed to write report: %v\n", err)
		return 2
	}

	if *flagJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		fmt.Fprintf(a.stdout, "\nReport: %s\n", reportPath)
	}

	if report.Failed() {
		return 1
	}
	return 0
}

func (a *App) runOneCheck(ctx context.Context, cfg Config, host *Host, c Check) CheckResult {
	checkStart := time.Now().UTC()
	target := cfg.URI()
	logger, logPath, err := NewCheckLogger(cfg.LogDir, c.ID(), cfg.Hostname, checkStart)
	if err != nil {
		fmt.Fprintf(a.stderr, "Failed to init logger for %s: %v\n", c.ID(), err)
	}
	defer logger.Close()

	deps := Deps{
		Config: cfg,
		Host:   host,
		Log:    logger,
	}

	logger.Infof("START %s - %s (target=%s)", c.ID(), c.Title(), target)
	fmt.Fprintf(a.stdout, "[%s] %s on %s ...\n", c.ID(), c.Title(), target)

	outcome, runErr := c.Run(ctx, deps)
	finishedAt := time.Now().UTC()

	result := CheckResult{
		CheckID:    c.ID(),
		Title:      c.Title(),
		Target:     target,
		StartedAt:  checkStart,
		FinishedAt: finishedAt,
		LogPath:    logPath,
		Notes:      outcome.Notes,
	}

	if runErr != nil {
		result.Pass = false
		result.Error = runErr.Error()
		result.Findings = append(result.Findings, Finding{
			ResourceType: "check",
			Pass:         false,
			Reason:       runErr.Error(),
		})
	} else {
		result.Findings = outcome.Findings
		result.Pass = len(outcome.Findings) > 0
		for _, f := range outcome.Findings {
			if !f.Pass {
				result.Pass = false
				break
			}
		}
	}

	if result.Pass {
		logger.Infof("PASS %s", c.ID())
	} else {
		logger.Errorf("FAIL %s", c.ID())
	}
	logger.Infof("END %s duration=%s", c.ID(), finishedAt.Sub(checkStart).String())

	if result.Pass {
		fmt.Fprintf(a.stdout, "  PASS [%s]\n", c.ID())
	} else {
		fmt.Fprintf(a.stdout, "  FAIL [%s]\n", c.ID())
		failCount := 0
		for _, f := range result.Findings {
			if !f.Pass {
				failCount++
				if failCount > 5 {
					fmt.Fprintf(a.stdout, "  ... and more (see %s)\n", logPath)
					break
				}
				if f.ResourceName != "" {
					fmt.Fprintf(a.stdout, "  - %s: %s\n", f.ResourceName, f.Reason)
				} else {
					fmt.Fprintf(a.stdout, "  - %s\n", f.Reason)
				}
			}
		}
	}
	return result
}

func (a *App) runSalt(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("kitchenctl salt", flag.ContinueOnError)
	fs.SetOutput(a.stderr)

	common := addCommonFlags(fs)
	var (
		flagLocal = fs.Bool("local", false, "Pass --local to salt-call")
		flagSudo  = fs.Bool("sudo", false, "Run salt-call through sudo")
	)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(a.stderr, "salt: missing function (e.g. state.apply)")
		return 2
	}

	cfg, err := common.load("")
	if err != nil {
		fmt.Fprintf(a.stderr, "Config error: %v\n", err)
		return 2
	}

	console := NewConsoleLogger(a.stderr, *common.verbose)
	session, err := NewSession(cfg, console)
	if errors.Is(err, ErrMissingEnv) {
		fmt.Fprintf(a.stderr, "Config error: %v\n", err)
		return 2
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "Failed to init session: %v\n", err)
		return 2
	}
	defer closeLogged(console, "session", session)

	cmd, err := session.Salt(ctx)
	if err != nil {
		fmt.Fprintf(a.stderr, "SSH error: %v\n", err)
		return 1
	}
	if *flagLocal {
		cmd = cmd.WithLocal()
	}
	if *flagSudo {
		cmd = cmd.WithSudo()
	}

	res, err := cmd.Run(ctx, fs.Arg(0), fs.Args()[1:]...)
	if err != nil {
		fmt.Fprintf(a.stderr, "SSH error: %v\n", err)
		return 1
	}
	fmt.Fprint(a.stdout, res.Stdout)
	fmt.Fprint(a.stderr, res.Stderr)
	return res.ExitStatus
}

func (a *App) printUsage() {
	fmt.Fprint(a.stderr, `kitchenctl - verify a Salt-provisioned kitchen instance over SSH

Usage:
  kitchenctl list
  kitchenctl run [--root <dir>] [--host <uri>] [--droplet-tag <tag>] [--checks <ids>] [--dotenv <path>] [--json] [-v]
  kitchenctl salt [--root <dir>] [--host <uri>] [--dotenv <path>] [--local] [--sudo] [-v] <function> [args...]

Environment:
  KITCHEN_USERNAME, KITCHEN_HOSTNAME, KITCHEN_PORT   connection (required)
  KITCHEN_SSH_KEY                                     private key path (optional)

Examples:
  kitchenctl run
  kitchenctl run --checks mysql.service,mysql.listening --json
  kitchenctl salt state.apply mysql
`)
}
