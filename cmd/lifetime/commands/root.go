package commands

import (
	"fmt"
	"os"

	"github.com/gocrud/lifetime/config"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var (
	configPath string
	envPrefix  string
)

var rootCmd = &cobra.Command{
	Use:   "lifetime",
	Short: "lifetime - lifetime-scoped dependency resolution engine",
	Long: `lifetime resolves components from an immutable registry through a tree of
lifetime scopes and releases what each scope owns in reverse order.
The commands here run a small demonstration host and inspect configuration.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "lifetime.yaml",
		"Path to the YAML configuration file (missing file means defaults)")
	rootCmd.PersistentFlags().StringVar(&envPrefix, "env-prefix", config.DefaultEnvPrefix,
		"Prefix of environment variables overriding the configuration")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
}

// loadOptions 读取配置文件并应用环境变量覆盖
func loadOptions() (config.Options, error) {
	opts, err := config.Load(configPath, true)
	if err != nil {
		return config.Options{}, err
	}
	if err := opts.ApplyEnvironment(envPrefix); err != nil {
		return config.Options{}, err
	}
	return opts, nil
}
