package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/osops/oschecks/pkg/checker"
	"github.com/osops/oschecks/pkg/config"
	"github.com/osops/oschecks/pkg/probes"
	"github.com/osops/oschecks/pkg/types/check"
)

// run executes one check subcommand and returns the process exit code. Any
// failure before a check could run (unknown flag, unknown subcommand) is
// itself rendered through the status protocol as UNKNOWN.
func run(ctx context.Context, args []string) int {
	return runWith(ctx, args, os.Stdout)
}

func runWith(ctx context.Context, args []string, out io.Writer) int {
	app := newApp(out)
	root := app.rootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		app.report(check.Result{Status: check.StatusUnknown, Message: err.Error()})
	}
	return app.exitCode
}

type app struct {
	out      io.Writer
	exitCode int

	flagAuthURL  string
	flagUsername string
	flagPassword string
	flagTenant   string
	flagDomain   string
	flagRegion   string
	flagCACert   string
	flagTimeout  uint
	flagWarning  string
	flagCritical string
	flagFormat   string
	flagVerbose  bool
}

func newApp(out io.Writer) *app {
	return &app{out: out}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "oscheck",
		Short:         "Nagios-compatible health checks for OpenStack services",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if a.flagVerbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.flagAuthURL, "os-auth-url", "", "identity endpoint URL (default $OS_AUTH_URL)")
	pf.StringVar(&a.flagUsername, "os-username", "", "user name (default $OS_USERNAME)")
	pf.StringVar(&a.flagPassword, "os-password", "", "password (default $OS_PASSWORD)")
	pf.StringVar(&a.flagTenant, "os-tenant-name", "", "project scope (default $OS_TENANT_NAME or $OS_PROJECT_NAME)")
	pf.StringVar(&a.flagDomain, "os-domain-name", "", "user domain (default $OS_USER_DOMAIN_NAME)")
	pf.StringVar(&a.flagRegion, "os-region-name", "", "region (default $OS_REGION_NAME)")
	pf.StringVar(&a.flagCACert, "os-cacert", "", "CA certificate bundle (default $OS_CACERT)")
	pf.UintVar(&a.flagTimeout, "timeout", uint(config.DefaultTimeout/time.Second), "check timeout in seconds")
	pf.StringVar(&a.flagWarning, "warning", "", "warning threshold range")
	pf.StringVar(&a.flagCritical, "critical", "", "critical threshold range")
	pf.StringVar(&a.flagFormat, "format", "nagios", "output format: nagios or json")
	pf.BoolVar(&a.flagVerbose, "verbose", false, "debug logging on stderr")

	root.AddCommand(
		a.openstackCmd("identity", "Check that the identity service issues a token",
			func(cfg config.Config) (check.Probe, error) {
				return probes.NewIdentityProbe(cfg)
			}),
		a.openstackCmd("compute", "Check the compute service by listing servers",
			func(cfg config.Config) (check.Probe, error) {
				return probes.NewComputeProbe(cfg)
			}),
		a.openstackCmd("volume", "Check the block storage service by listing volumes",
			func(cfg config.Config) (check.Probe, error) {
				return probes.NewVolumeProbe(cfg)
			}),
		a.openstackCmd("image", "Check the image service by listing images",
			func(cfg config.Config) (check.Probe, error) {
				return probes.NewImageProbe(cfg)
			}),
		a.openstackCmd("network", "Check the network service by listing networks",
			func(cfg config.Config) (check.Probe, error) {
				return probes.NewNetworkProbe(cfg)
			}),
		a.openstackCmd("orchestration", "Check the orchestration service by listing stacks",
			func(cfg config.Config) (check.Probe, error) {
				return probes.NewOrchestrationProbe(cfg)
			}),
		a.objectStoreCmd(),
		a.amqpCmd(),
		a.endpointDNSCmd(),
	)
	return root
}

type probeBuilder func(cfg config.Config) (check.Probe, error)

// openstackCmd wires a probe that authenticates with the full credential set.
func (a *app) openstackCmd(name, short string, build probeBuilder) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a.runCheck(cmd, name, build, nil)
		},
	}
}

func (a *app) objectStoreCmd() *cobra.Command {
	var container string
	cmd := &cobra.Command{
		Use:   "object-store",
		Short: "Check the object storage service with an object roundtrip",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a.runCheck(cmd, "object-store", func(cfg config.Config) (check.Probe, error) {
				return probes.NewObjectStoreProbe(cfg, container)
			}, nil)
		},
	}
	cmd.Flags().StringVar(&container, "container", "oscheck", "container holding the test object")
	return cmd
}

func (a *app) amqpCmd() *cobra.Command {
	var uri, queue string
	cmd := &cobra.Command{
		Use:   "amqp",
		Short: "Check the message broker, optionally reporting queue depth",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if uri == "" {
				uri = os.Getenv("AMQP_URI")
			}
			a.runCheck(cmd, "amqp", func(cfg config.Config) (check.Probe, error) {
				return probes.NewAMQPProbe(uri, queue)
			}, func(cfg config.Config) func() error {
				return cfg.ValidateTimeout
			})
		},
	}
	cmd.Flags().StringVar(&uri, "amqp-uri", "", "broker URI (default $AMQP_URI)")
	cmd.Flags().StringVar(&queue, "queue", "", "queue to inspect for depth")
	return cmd
}

func (a *app) endpointDNSCmd() *cobra.Command {
	var resolver string
	cmd := &cobra.Command{
		Use:   "endpoint-dns",
		Short: "Check that the auth endpoint hostname resolves",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a.runCheck(cmd, "endpoint-dns", func(cfg config.Config) (check.Probe, error) {
				return probes.NewEndpointDNSProbe(cfg.AuthURL, resolver)
			}, func(cfg config.Config) func() error {
				return cfg.ValidateTimeout
			})
		},
	}
	cmd.Flags().StringVar(&resolver, "resolver", "", "DNS server address (default system resolver)")
	return cmd
}

// runCheck is the one path from subcommand to verdict: resolve config, build
// the probe, execute under the harness, report, record the exit code.
func (a *app) runCheck(cmd *cobra.Command, name string, build probeBuilder, validate func(config.Config) func() error) {
	cfg, err := a.resolveConfig(cmd)
	if err != nil {
		a.report(check.Result{Status: check.StatusUnknown, Message: err.Error()})
		return
	}
	probe, err := build(cfg)
	if err != nil {
		a.report(check.Result{Status: check.StatusUnknown, Message: err.Error()})
		return
	}
	opts := []checker.CheckerOption{
		checker.WithName(name),
		checker.WithConfig(cfg),
		checker.WithThreshold(a.flagWarning, a.flagCritical),
	}
	if validate != nil {
		opts = append(opts, checker.WithValidate(validate(cfg)))
	}
	c := checker.NewChecker(opts...)
	a.report(c.Execute(cmd.Context(), probe))
}

// resolveConfig layers flags over the OS_* environment fallback.
func (a *app) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("os-auth-url") {
		cfg.AuthURL = a.flagAuthURL
	}
	if flags.Changed("os-username") {
		cfg.Username = a.flagUsername
	}
	if flags.Changed("os-password") {
		cfg.Password = a.flagPassword
	}
	if flags.Changed("os-tenant-name") {
		cfg.TenantName = a.flagTenant
	}
	if flags.Changed("os-domain-name") {
		cfg.DomainName = a.flagDomain
	}
	if flags.Changed("os-region-name") {
		cfg.RegionName = a.flagRegion
	}
	if flags.Changed("os-cacert") {
		cfg.CACert = a.flagCACert
	}
	cfg.Timeout = time.Duration(a.flagTimeout) * time.Second
	return cfg, nil
}

// report renders the result exactly once and records the exit code.
func (a *app) report(result check.Result) {
	if a.flagFormat == "json" {
		j := json.NewEncoder(a.out)
		j.SetIndent("", "  ")
		if err := j.Encode(result); err != nil {
			fmt.Fprintf(a.out, "%s\n", check.Result{
				Status:  check.StatusUnknown,
				Message: "encoding result: " + err.Error(),
			}.Render())
			a.exitCode = check.StatusUnknown.ExitCode()
			return
		}
	} else {
		fmt.Fprintf(a.out, "%s\n", result.Render())
	}
	a.exitCode = result.Status.ExitCode()
}
