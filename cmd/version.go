package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is the canonical release string. The default here is the fallback
// for `go run` and untagged builds. Production builds overwrite this via:
//
//	go build -ldflags "-X github.com/bistrohq/bistroctl/cmd.Version=v0.4.0"
var Version = "v0.3.1"

// BuildTime is optionally injected at build time alongside Version.
var BuildTime = ""

// versionInfo is the structured payload for --format json output.
type versionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	GOOS      string `json:"goos"`
	GOARCH    string `json:"goarch"`
	BuildTime string `json:"build_time,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bistroctl version and build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionInfo{
			Version:   Version,
			GoVersion: runtime.Version(),
			GOOS:      runtime.GOOS,
			GOARCH:    runtime.GOARCH,
			BuildTime: BuildTime,
		}

		if globalFlags.Format == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "bistroctl %s\n", info.Version)
		fmt.Fprintf(cmd.OutOrStdout(), "go        %s\n", info.GoVersion)
		fmt.Fprintf(cmd.OutOrStdout(), "os        %s/%s\n", info.GOOS, info.GOARCH)
		if info.BuildTime != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "built     %s\n", info.BuildTime)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
