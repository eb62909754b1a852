package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DEEPML1818/dsoc/common/config"
	"github.com/DEEPML1818/dsoc/common/logger"
)

// Settings keys, also readable from a YAML file or DSOC_* variables
const (
	keyDBHost         = "database.host"
	keyDBPort         = "database.port"
	keyDBName         = "database.name"
	keyDBUser         = "database.user"
	keyDBPassword     = "database.password"
	keyLogLevel       = "log.level"
	keyLogFormat      = "log.format"
	keyRewardBase     = "reward.base"
	keyCertifierShare = "reward.certifier_share"
)

var (
	// flagConfig is set by the --config flag
	flagConfig string
	flagJSON   bool

	// cfg and log are initialized by PersistentPreRunE
	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:           "dsocctl",
	Short:         "dsocctl manages a dSOC deployment",
	Long:          `dsocctl applies database migrations, seeds fixture data and previews CLT rewards.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadSettings(cmd, flagConfig)
		if err != nil {
			return err
		}
		cfg = settingsConfig(v)
		log = logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "settings file (yaml)")
	flags.BoolVar(&flagJSON, "json", false, "output as JSON")
	flags.String("db-host", "", "postgres host")
	flags.Int("db-port", 0, "postgres port")
	flags.String("db-name", "", "postgres database")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(rewardCmd)
}

// loadSettings layers flags over DSOC_* variables over the settings file
func loadSettings(cmd *cobra.Command, file string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("DSOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings %s: %w", file, err)
		}
	}

	for key, flag := range map[string]string{
		keyDBHost:   "db-host",
		keyDBPort:   "db-port",
		keyDBName:   "db-name",
		keyLogLevel: "log-level",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}
	return v, nil
}

// settingsConfig starts from the service environment and applies v on top.
// Service-level validation (JWT secret, chain addresses) does not apply to
// the CLI, so the Load error is not fatal here.
func settingsConfig(v *viper.Viper) *config.Config {
	c, _ := config.Load("dsocctl")

	if v.IsSet(keyDBHost) {
		c.Database.Host = v.GetString(keyDBHost)
	}
	if v.IsSet(keyDBPort) {
		c.Database.Port = v.GetInt(keyDBPort)
	}
	if v.IsSet(keyDBName) {
		c.Database.Database = v.GetString(keyDBName)
	}
	if v.IsSet(keyDBUser) {
		c.Database.User = v.GetString(keyDBUser)
	}
	if v.IsSet(keyDBPassword) {
		c.Database.Password = v.GetString(keyDBPassword)
	}
	if v.IsSet(keyLogLevel) {
		c.Service.LogLevel = v.GetString(keyLogLevel)
	}
	if v.IsSet(keyLogFormat) {
		c.Service.LogFormat = v.GetString(keyLogFormat)
	}
	if v.IsSet(keyRewardBase) {
		c.Reward.BaseAmount = v.GetString(keyRewardBase)
	}
	if v.IsSet(keyCertifierShare) {
		c.Reward.CertifierShare = v.GetString(keyCertifierShare)
	}

	// Small pool for one-shot commands
	c.Database.MaxConns = 4
	c.Database.MinConns = 1
	return c
}
