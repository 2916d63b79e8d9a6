// Command hdfsftpd starts the FTP front end for an HDFS cluster.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hdfsftpd/hdfsftpd"
	"github.com/hdfsftpd/hdfsftpd/log/gokit"
	"github.com/hdfsftpd/hdfsftpd/remotefs"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "hdfsftpd",
		Short: "FTP front end for an HDFS cluster",
		RunE:  run,
	}

	root.Flags().StringVar(&cfgFile, "config", "", "path to a config file (yaml/toml/json)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fs, err := remotefs.NewHDFSFS(remotefs.HDFSConfig{
		NameNodeHost: cfg.HDFS.NameNodeHost,
		NameNodePort: cfg.HDFS.NameNodePort,
		BufferSize:   cfg.HDFS.BufferSize,
		Replication:  cfg.HDFS.Replication,
		BlockSize:    cfg.HDFS.BlockSize,
	})
	if err != nil {
		return fmt.Errorf("connecting to HDFS namenode: %w", err)
	}

	logger := gokit.NewGKLoggerStdout()

	server := hdfsftpd.NewServer(cfg, fs, logger, nil)

	if err := server.StartListening(); err != nil {
		return err
	}

	if err := server.StartAccepting(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	return server.Stop()
}

func loadConfig() (hdfsftpd.Config, error) {
	cfg := hdfsftpd.DefaultConfig()

	v := viper.New()
	v.SetConfigName("hdfsftpd")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/hdfsftpd")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}
