package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/vn-script-translator/internal/config"
	"github.com/MimeLyc/vn-script-translator/internal/jobs"
	"github.com/MimeLyc/vn-script-translator/internal/service"
	"github.com/MimeLyc/vn-script-translator/pkg/log"
)

type translateOptions struct {
	target            string
	backend           string
	backupExt         string
	maxLength         int
	beams             int
	temperature       float64
	repetitionPenalty float64
	lengthPenalty     float64
	noRepeatNgramSize int
}

func newTranslateCmd(root *rootOptions) *cobra.Command {
	opts := &translateOptions{}
	cmd := &cobra.Command{
		Use:   "translate <file|dir>...",
		Short: "Translate script files in place, one after another",
		Long: "Queues the given script files (directories are searched for scripts) and " +
			"translates them sequentially. Ctrl+C stops after the file in progress.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, args, root, opts)
		},
	}
	addTranslateFlags(cmd, opts)
	return cmd
}

func addTranslateFlags(cmd *cobra.Command, opts *translateOptions) {
	cmd.Flags().StringVar(&opts.target, "target", "", "Target language code (overrides TARGET_LANGUAGE)")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Translation backend: seq2seq or openai")
	cmd.Flags().StringVar(&opts.backupExt, "backup-ext", "", "Keep the original of each rewritten script with this extension")
	cmd.Flags().IntVar(&opts.maxLength, "max-length", 0, "Maximum output length (64-1024)")
	cmd.Flags().IntVar(&opts.beams, "beams", 0, "Beam count")
	cmd.Flags().Float64Var(&opts.temperature, "temperature", 0, "Sampling temperature")
	cmd.Flags().Float64Var(&opts.repetitionPenalty, "repetition-penalty", 0, "Repetition penalty")
	cmd.Flags().Float64Var(&opts.lengthPenalty, "length-penalty", 0, "Length penalty")
	cmd.Flags().IntVar(&opts.noRepeatNgramSize, "no-repeat-ngram-size", 0, "Block repeated n-grams of this size")
}

// flagOverrides turns the flags the user actually set into config options.
func flagOverrides(cmd *cobra.Command, opts *translateOptions) config.Option {
	flags := cmd.Flags()
	return func(c *config.Config) {
		if flags.Changed("target") {
			c.Translate.TargetLanguage = opts.target
		}
		if flags.Changed("backend") {
			c.Backend.Kind = opts.backend
		}
		if flags.Changed("backup-ext") {
			c.Scripts.BackupExt = opts.backupExt
		}
		if flags.Changed("max-length") {
			c.Translate.Params.MaxOutputLength = opts.maxLength
		}
		if flags.Changed("beams") {
			c.Translate.Params.BeamCount = opts.beams
		}
		if flags.Changed("temperature") {
			c.Translate.Params.Temperature = opts.temperature
		}
		if flags.Changed("repetition-penalty") {
			c.Translate.Params.RepetitionPenalty = opts.repetitionPenalty
		}
		if flags.Changed("length-penalty") {
			c.Translate.Params.LengthPenalty = opts.lengthPenalty
		}
		if flags.Changed("no-repeat-ngram-size") {
			c.Translate.Params.NoRepeatNgramSize = opts.noRepeatNgramSize
		}
	}
}

func runTranslate(cmd *cobra.Command, args []string, root *rootOptions, opts *translateOptions) error {
	cfg, err := loadConfig(root, flagOverrides(cmd, opts))
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	paths, err := collectScripts(args, cfg.Scripts.Exts)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No script files found")
		return nil
	}

	exec, err := a.newExecutor()
	if err != nil {
		return err
	}

	queue := jobs.NewQueue(jobs.WithTickInterval(cfg.Queue.TickInterval))
	queue.Enqueue(paths...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := runQueue(ctx, queue, exec)
	fmt.Fprintf(cmd.OutOrStdout(), "Translated %d of %d files (%d failed, %d not started)\n",
		summary.succeeded, len(paths), summary.failed, len(paths)-summary.succeeded-summary.failed)
	for _, r := range summary.failures {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", r.Path, r.Error)
	}
	if summary.failed > 0 {
		return fmt.Errorf("%d files failed", summary.failed)
	}
	return nil
}

type runSummary struct {
	succeeded int
	failed    int
	failures  []*jobs.FileResult
}

// runQueue runs queue to completion. Cancelling ctx stops the queue after the
// file in progress.
func runQueue(ctx context.Context, queue *jobs.Queue, exec jobs.Executor) runSummary {
	var (
		mu      sync.Mutex
		summary runSummary
	)
	unsubscribe := queue.Subscribe(func(e jobs.Event) {
		switch e.Type {
		case jobs.EventFileStarted:
			log.Info("Translating %s", e.Path)
		case jobs.EventFileFinished:
			mu.Lock()
			defer mu.Unlock()
			if e.Result != nil && e.Result.Status == jobs.StatusSuccess {
				summary.succeeded++
				log.Info("Finished %s: %d lines translated, %d segment failures",
					e.Path, e.Result.TranslatedLines, e.Result.FailedSegments)
				return
			}
			summary.failed++
			summary.failures = append(summary.failures, e.Result)
		}
	})
	defer unsubscribe()

	if !queue.Start(exec) {
		return summary
	}

	done := make(chan struct{})
	go func() {
		queue.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Info("Stopping after the current file")
		queue.Stop()
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	return summary
}

// collectScripts expands directories into the script files below them.
func collectScripts(args []string, exts []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, service.NewErrorWithCause(service.ErrFileNotFound, fmt.Sprintf("%s does not exist", arg), err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := service.FindScripts(arg, exts, time.Time{})
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}
