package main

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/apply-orchestrator/internal/apiclient"
	"github.com/phrazzld/apply-orchestrator/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix prefixes applyctl's environment variables (APPLYCTL_SERVER,
// APPLYCTL_TOKEN).
const envPrefix = "APPLYCTL"

// cli carries the streams and settings shared by every command.
type cli struct {
	v      *viper.Viper
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger

	// httpClient and loadConfig are replaced in tests.
	httpClient *http.Client
	loadConfig func() (*config.Config, error)
}

func newCLI(in io.Reader, out, errOut io.Writer) *cli {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("server", "http://localhost:8080")

	return &cli{
		v:          v,
		in:         in,
		out:        out,
		errOut:     errOut,
		logger:     slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelWarn})),
		loadConfig: config.Load,
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "applyctl",
		Short: "Submit and follow automated job applications",
		Long: `applyctl talks to the apply orchestrator API.

The server URL and bearer token come from --server/--token or the
APPLYCTL_SERVER and APPLYCTL_TOKEN environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.PersistentFlags().String("server", "", "orchestrator base URL")
	root.PersistentFlags().String("token", "", "bearer token (see 'applyctl token')")
	_ = c.v.BindPFlag("server", root.PersistentFlags().Lookup("server"))
	_ = c.v.BindPFlag("token", root.PersistentFlags().Lookup("token"))

	root.AddCommand(
		newSubmitCmd(c),
		newStatusCmd(c),
		newWatchCmd(c),
		newCancelCmd(c),
		newSealCmd(c),
		newKeygenCmd(c),
		newTokenCmd(c),
	)
	return root
}

// client builds an API client from the resolved server and token.
func (c *cli) client() (*apiclient.Client, error) {
	return apiclient.New(c.v.GetString("server"), c.v.GetString("token"), c.httpClient)
}
