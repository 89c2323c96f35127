// settingsctl loads definition, instance and stack documents from search
// paths and resolves setting properties on a stack.
//
//	settingsctl --path ./resources --stack global --key layer_height
//	settingsctl --path ./resources --stack global --key infill --trace
//	settingsctl --path ./resources --stack global --eval "layer_height * 2"
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	settings "github.com/goliatone/go-settings"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	paths    []string
	stackID  string
	keys     []string
	property string
	expr     string
	trace    bool
	list     bool
	strict   bool
	logLevel string
	cacheLen int
}

func run(args []string, stdout, stderr io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("settingsctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringSliceVarP(&opts.paths, "path", "p", nil, "resource search path (repeatable, earlier paths win)")
	flagSet.StringVarP(&opts.stackID, "stack", "s", "", "id of the stack to resolve against")
	flagSet.StringSliceVarP(&opts.keys, "key", "k", nil, "setting key to resolve (repeatable)")
	flagSet.StringVar(&opts.property, "property", "value", "property to resolve")
	flagSet.StringVarP(&opts.expr, "eval", "e", "", "evaluate an ad hoc formula against the stack")
	flagSet.BoolVar(&opts.trace, "trace", false, "print the per-level trace as JSON")
	flagSet.BoolVar(&opts.list, "list", false, "list loaded containers and exit")
	flagSet.BoolVar(&opts.strict, "strict", false, "fail when any document fails to load")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	flagSet.IntVar(&opts.cacheLen, "program-cache", 256, "compiled formula cache size (0 disables)")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: settingsctl --path DIR [--stack ID --key KEY | --eval EXPR | --list]\n\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if len(opts.paths) == 0 {
		opts.paths = []string{"."}
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "settingsctl",
		Level:  hclog.LevelFromString(opts.logLevel),
		Output: stderr,
	})

	registryOpts := []settings.Option{
		settings.WithLogger(logger),
		settings.WithEvaluatorLogger(settings.HCLogEvaluatorLogger(logger.Named("eval"))),
	}
	if opts.cacheLen > 0 {
		cache, err := settings.NewLRUProgramCache(opts.cacheLen)
		if err != nil {
			return err
		}
		registryOpts = append(registryOpts, settings.WithProgramCache(cache))
	}

	registry := settings.NewRegistry(registryOpts...)
	resources := settings.NewResources(afero.NewOsFs(), opts.paths...)
	if err := registry.Load(resources); err != nil {
		if opts.strict {
			return err
		}
		logger.Warn("some documents failed to load", "error", err)
	}

	if opts.list {
		return listContainers(stdout, registry)
	}

	if opts.stackID == "" {
		return fmt.Errorf("--stack is required")
	}
	stacks := registry.FindContainerStacks(settings.Query{"id": opts.stackID})
	if len(stacks) == 0 {
		return fmt.Errorf("%w: stack %q", settings.ErrContainerNotFound, opts.stackID)
	}
	stack := stacks[0]

	if opts.expr != "" {
		value, err := stack.Evaluate(opts.expr)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, settings.FormatSettingValue(value))
		return nil
	}

	if len(opts.keys) == 0 {
		return fmt.Errorf("--key or --eval is required")
	}
	for _, key := range opts.keys {
		if err := resolveKey(stdout, stack, key, opts); err != nil {
			return err
		}
	}
	return nil
}

func resolveKey(out io.Writer, stack *settings.ContainerStack, key string, opts options) error {
	if !opts.trace {
		value, err := stack.ResolveProperty(key, opts.property)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s = %s\n", key, settings.FormatSettingValue(value))
		return nil
	}
	_, trace, err := stack.ResolveWithTrace(key, opts.property)
	if err != nil {
		return err
	}
	payload, err := trace.ToJSON()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(payload))
	return nil
}

func listContainers(out io.Writer, registry *settings.Registry) error {
	containers := registry.FindContainers(settings.Query{})
	sort.SliceStable(containers, func(i, j int) bool {
		if containers[i].Kind() != containers[j].Kind() {
			return containers[i].Kind() < containers[j].Kind()
		}
		return containers[i].ID() < containers[j].ID()
	})
	for _, c := range containers {
		fmt.Fprintf(out, "%-10s %-24s %s\n", c.Kind(), c.ID(), c.Path())
	}
	return nil
}
