package cli

import (
	"flag"

	"dtsresolve/internal/core/config"
)

const defaultConfigPath = config.DefaultPath

type cliOptions struct {
	configPath string
	out        string
	tree       bool
	watch      bool
	noCache    bool
	verbose    bool
	version    bool
	args       []string
}

func parseOptions(args []string) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("dtsresolve", flag.ContinueOnError)

	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to config file")
	fs.StringVar(&opts.out, "out", "", "Write the resolved declaration map to this file instead of stdout")
	fs.BoolVar(&opts.tree, "tree", false, "Print a tree of resolved files grouped by package")
	fs.BoolVar(&opts.watch, "watch", false, "Re-resolve whenever the config file changes")
	fs.BoolVar(&opts.noCache, "no-cache", false, "Disable the durable cache for this run")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	opts.args = fs.Args()
	return opts, nil
}
