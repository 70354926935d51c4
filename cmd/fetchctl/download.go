package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/fatih/color"

	"github.com/kagedl/fetchengine/examples/tuiprogress"
	"github.com/kagedl/fetchengine/fetch"
	"github.com/kagedl/fetchengine/internal/fetchcfg"
)

var (
	outputDir  string
	outputName string
	chunks     int
	maxBPS     int64
	noTUI      bool
)

func init() {
	rootCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "destination directory (default: current directory)")
	rootCmd.Flags().StringVarP(&outputName, "name", "n", "", "destination filename (default: derived from the response)")
	rootCmd.Flags().IntVarP(&chunks, "chunks", "c", 0, "number of parallel range chunks (default: config or 4)")
	rootCmd.Flags().Int64Var(&maxBPS, "max-bps", 0, "throughput cap in bytes/sec, 0 for unlimited")
	rootCmd.Flags().BoolVar(&noTUI, "no-tui", false, "print plain status lines instead of the progress screen")

	rootCmd.AddCommand(configCmd)
}

func runDownload(url string) error {
	cfg := fetchcfg.LoadOrDefault()
	opts := cfg.ToOptions()
	opts.URL = url
	opts.DstName = outputName

	if outputDir != "" {
		opts.DstDir = outputDir
	} else if opts.DstDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		opts.DstDir = wd
	}
	if chunks > 0 {
		opts.Chunks = chunks
	}
	if maxBPS > 0 {
		opts.MaxBPS = maxBPS
	}

	publicOpts := fetch.Options{
		URL:                opts.URL,
		DstDir:             opts.DstDir,
		DstName:            opts.DstName,
		TempDir:            opts.TempDir,
		Filename:           opts.Filename,
		WriteMode:          opts.WriteMode,
		BufferSize:         opts.BufferSize,
		MaxBPS:             opts.MaxBPS,
		MinByte:            opts.MinByte,
		MaxByte:            opts.MaxByte,
		Chunks:             opts.Chunks,
		MergeWhileProgress: opts.MergeWhileProgress,
		SupportsHeadProbe:  opts.SupportsHeadRequest,
		MinReloadSize:      opts.MinReloadSize,
		ExcludedExtensions: opts.ExcludedExtensions,
		Timeout:            opts.Timeout,
		DeleteOnFailure:    opts.DeleteOnFailure,
		Attempts:           opts.Attempts,
		Headers:            opts.Headers,
		UserAgent:          opts.UserAgent,
		ReportMinInterval:  opts.ReportMinInterval,
	}

	if noTUI {
		return runPlain(url, publicOpts)
	}

	dl, err := tuiprogress.Watch(url, publicOpts, http.DefaultClient, nil)
	if err != nil {
		return err
	}
	if dl.State() != fetch.Completed {
		return dl.LastError()
	}
	return nil
}

func runPlain(url string, opts fetch.Options) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	opts.Callbacks.OnProgress = func(fraction float64) {
		fmt.Printf("\r  %.1f%%", fraction*100)
	}
	opts.Callbacks.OnCompleted = func(destPath string) {
		fmt.Printf("\n  %s %s\n", green("done:"), destPath)
	}
	opts.Callbacks.OnFailed = func(err error) {
		fmt.Printf("\n  %s %v\n", red("failed:"), err)
	}

	dl, err := fetch.RunSync(context.Background(), opts, http.DefaultClient, nil)
	if err != nil {
		return err
	}
	if dl.State() != fetch.Completed {
		return dl.LastError()
	}
	return nil
}
