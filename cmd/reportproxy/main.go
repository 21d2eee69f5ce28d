// Command reportproxy starts the delta-streaming report proxy server.
//
// The server mediates between producer processes (pushing ordered delta
// messages under a report name) and browser consumers (streaming the
// accumulated state and subsequent deltas for that name). It serves
// until every registered report's last connection closes, or exits
// non-zero if a producer violates the wire protocol.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/deltaproxy/deltaproxy/pkg/logging"
	"github.com/deltaproxy/deltaproxy/services/proxy"
	"github.com/deltaproxy/deltaproxy/services/proxy/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "reportproxy",
	Short: "Delta-streaming proxy between report producers and browser consumers",
	Long: `reportproxy mediates between one or more producer processes, each
pushing an ordered stream of UI delta messages under a report name, and
zero or more browser consumers that render those deltas. It holds state
only as long as some participant cares about a report, and exits once
the last report's last connection closes.`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("reportproxy: %v", err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.Default()

	svc, err := proxy.New(proxy.Config{
		Port:                  fileCfg.Port,
		Server:                fileCfg.Server,
		UseNode:               fileCfg.UseNode,
		DevServerURL:          fileCfg.DevServerURL,
		StaticRoot:            fileCfg.StaticRoot,
		WaitForConnectionSecs: fileCfg.WaitForConnectionSecs,
		ThrottleSecs:          fileCfg.ThrottleSecs,
		OTelEndpoint:          fileCfg.OTelEndpoint,
		EnableMetrics:         fileCfg.EnableMetrics,
		LaunchBrowser:         fileCfg.LaunchBrowser,
		ConfigPath:            configPath,
	}, log)
	if err != nil {
		return fmt.Errorf("creating report proxy: %w", err)
	}

	if err := svc.Run(); err != nil {
		log.Error("report proxy exited with error", "error", err)
		os.Exit(1)
	}
	return nil
}
