package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kagedl/fetchengine/internal/fetchcfg"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage fetchctl configuration",
	Long:  "View, initialize, or inspect the persisted engine defaults.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := fetchcfg.LoadOrDefault()
		path, err := fetchcfg.ConfigPath()
		if err != nil {
			return err
		}

		fmt.Println("Current configuration:")
		fmt.Printf("  Chunks:              %d\n", cfg.Chunks)
		fmt.Printf("  BufferSize:          %d\n", cfg.BufferSize)
		fmt.Printf("  MaxBPS:              %d\n", cfg.MaxBPS)
		fmt.Printf("  WriteMode:           %s\n", cfg.WriteMode)
		fmt.Printf("  Attempts:            %d\n", cfg.Attempts)
		fmt.Printf("  UserAgent:           %s\n", cfg.UserAgent)
		fmt.Printf("  TimeoutSeconds:      %d\n", cfg.TimeoutSeconds)
		fmt.Printf("  MergeWhileProgress:  %t\n", cfg.MergeWhileProgress)
		fmt.Printf("  ExcludedExtensions:  %v\n", cfg.ExcludedExtensions)
		fmt.Printf("  Config:              %s\n", path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := fetchcfg.ConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := fetchcfg.Init(); err != nil {
			return err
		}
		path, _ := fetchcfg.ConfigPath()
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s %s\n", green("created:"), path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd, configInitCmd)
}
