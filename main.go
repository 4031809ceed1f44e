package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wpantools/ncpbridge/cmd"
)

const defaultConfigFile = "/etc/ncpbridge/ncpbridge.hcl"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runFlags := flag.NewFlagSet("run", flag.ExitOnError)
		configFile := runFlags.String("config", defaultConfigFile, "Configuration file")
		runFlags.StringVar(configFile, "c", defaultConfigFile, "Configuration file (short)")

		ifname := runFlags.String("interface", "", "Override the configured interface")
		runFlags.StringVar(ifname, "I", "", "Override the configured interface (short)")

		runFlags.Parse(os.Args[2:])

		if err := cmd.RunDaemon(*configFile, *ifname); err != nil {
			fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("verbose", false, "Verbose output")
		checkFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		checkFlags.Parse(os.Args[2:])

		configFile := defaultConfigFile
		if len(checkFlags.Args()) > 0 {
			configFile = checkFlags.Arg(0)
		}

		if err := cmd.RunCheck(configFile, *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "version":
		cmd.RunVersion()

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`ncpbridge - wpantund NCP bridge daemon

Usage:
  ncpbridge <command> [options]

Commands:
  run       Run the bridge in the foreground
            Options: --config (-c) <file>, --interface (-I) <name>
  check     Validate a configuration file
            Options: --verbose (-v)
  version   Print version info

Examples:
  ncpbridge run -c /etc/ncpbridge/ncpbridge.hcl
  ncpbridge run -I wpan0
  ncpbridge check -v ncpbridge.hcl
`)
}
