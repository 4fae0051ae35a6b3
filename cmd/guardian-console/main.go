// guardian-console: консоль гардиана: управление детьми и гардианами
// через REST API, просмотр активности, живые уведомления из Redis
// и вызовы gRPC сервиса политики демо-сессии.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/xela07ax/guardian-demo/internal/infra"
)

type command struct {
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"children":        {"list children", runChildren},
	"child":           {"show one child: child ID", runChild},
	"create-child":    {"create a child: --name [--did]", runCreateChild},
	"guardians":       {"list guardians: [--child ID]", runGuardians},
	"add-guardian":    {"add a guardian: --address --name --level --child [--email]", runAddGuardian},
	"remove-guardian": {"remove a guardian: remove-guardian ID", runRemoveGuardian},
	"activity":        {"show activity log: [--child ID]", runActivity},
	"log-activity":    {"append activity: --child --type --description", runLogActivity},
	"watch":           {"stream guardian notifications from Redis", runWatch},
	"state":           {"show demo policy state over gRPC", runState},
	"check":           {"safety check over gRPC: check ADDRESS", runCheck},
	"flag":            {"flag an address over gRPC: flag ADDRESS --reason", runFlag},
	"unflag":          {"unflag an address over gRPC: unflag ADDRESS", runUnflag},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	var (
		configPath string
		grpcAddr   string
		token      string
	)
	flagSet := pflag.NewFlagSet("guardian-console", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ./config.yaml or ./configs/config.yaml)")
	flagSet.StringVar(&grpcAddr, "grpc", "localhost:50052", "guardian demo gRPC address")
	flagSet.StringVar(&token, "token", os.Getenv("GUARDIAN_TOKEN"), "bearer token for guardian-only calls")
	flagSet.SetInterspersed(false)

	if err := flagSet.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printHelp(flagSet)
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := infra.LoadConfigFrom(configPath)
	if err != nil {
		return err
	}
	// логи идут в stderr, stdout остается выводу команд
	cfg.Logger.Format = "console"
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := &env{cfg: cfg, logger: logger, grpcAddr: grpcAddr, token: token, out: os.Stdout}
	return cmd.run(ctx, e, args[1:])
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintln(os.Stderr, "usage: guardian-console [flags] <command> [args]")
	fmt.Fprintln(os.Stderr, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-16s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(os.Stderr, "\nflags:")
	flagSet.PrintDefaults()
}
