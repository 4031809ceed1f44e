package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/wpantools/ncpbridge/internal/config"
	"github.com/wpantools/ncpbridge/internal/netif"
)

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(configFile string, verbose bool) error {
	if configFile == "" {
		return fmt.Errorf("usage: ncpbridge check [-v] <config-file>")
	}

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration valid!")
	fmt.Printf("Interface: %s\n", cfg.Interface)
	fmt.Printf("Bus: %s\n", cfg.Bus)
	fmt.Printf("Agent name: %s.%s\n", cfg.AgentNamePrefix, cfg.Interface)

	if verbose {
		fmt.Println()
		printLinkStatus(cfg.Interface)
	}
	return nil
}

func printLinkStatus(ifname string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "INTERFACE\tINDEX\tSTATE\tUP")

	st, err := netif.Lookup(ifname)
	if err != nil {
		fmt.Fprintf(w, "%s\t-\tnot present\t-\n", ifname)
	} else {
		up := "no"
		if st.Up {
			up = "yes"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", ifname, st.Index, st.OperState, up)
	}
	w.Flush()
}
