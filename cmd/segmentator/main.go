// Command segmentator prints the segmentation pairs of a word set, one pair
// per line as "{segment} | {condition}".
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/coherence-index/internal/segmentation"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "segmentator: %v\n", err)
	}
	os.Exit(apperrors.ExitCode(err))
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		countOnly  bool
		words      string
		list       bool
	)
	cmd := &cobra.Command{
		Use:   "segmentator <n> [strategy]",
		Short: "Enumerate the (segment, condition) pairs of a word set",
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return nil
			}
			if len(args) < 1 || len(args) > 2 {
				fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
				return apperrors.New(apperrors.ErrInvalidInput, "expected a word set size and an optional strategy")
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return apperrors.Newf(apperrors.ErrInvalidInput, "%v", err)
			}
			logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()
			if list {
				for _, s := range segmentation.Strategies() {
					fmt.Fprintln(out, s)
				}
				return nil
			}

			n, err := strconv.Atoi(args[0])
			if err != nil {
				return apperrors.Newf(apperrors.ErrInvalidInput, "word set size %q is not an integer", args[0])
			}
			strategy := segmentation.AllAll
			if len(args) == 2 {
				if strategy, err = segmentation.ParseStrategy(args[1]); err != nil {
					return err
				}
			}
			var names []string
			if words != "" {
				names = strings.Split(words, ",")
				if len(names) != n {
					return apperrors.Newf(apperrors.ErrInvalidInput, "--words lists %d words for a set of %d", len(names), n)
				}
			}

			total, err := segmentation.Count(n, strategy)
			if err != nil {
				return err
			}
			if countOnly {
				fmt.Fprintln(out, total)
				return nil
			}

			var m *metrics.Metrics
			if cfg.Metrics.Enabled {
				m = metrics.Default()
				shutdown := metrics.StartServer(cfg.Metrics.Port, nil)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					shutdown(shutdownCtx)
				}()
			}
			engine := segmentation.NewEngine(cfg.Segmentation, m)
			return printPairs(cmd.Context(), out, engine, n, strategy, total, names)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().BoolVar(&countOnly, "count", false, "print only the number of pairs")
	cmd.Flags().StringVar(&words, "words", "", "comma-separated words to print instead of positions")
	cmd.Flags().BoolVar(&list, "list", false, "list the available strategies")
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
		return apperrors.Newf(apperrors.ErrInvalidInput, "%v", err)
	})
	return cmd
}

// printPairs materialises lists that fit under the engine's cap, which lets
// large lists be filled by several workers, and streams the rest.
func printPairs(ctx context.Context, out *bufio.Writer, engine *segmentation.Engine, n int, strategy segmentation.Strategy, total uint64, names []string) error {
	write := func(p segmentation.Pair) error {
		var err error
		if names != nil {
			_, err = fmt.Fprintf(out, "{%s} | {%s}\n",
				strings.Join(p.Segment.Words(names), ","), strings.Join(p.Condition.Words(names), ","))
		} else {
			_, err = fmt.Fprintln(out, p)
		}
		return err
	}

	if total <= engine.MaxPairs {
		pairs, err := engine.Segment(ctx, n, strategy)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			if err := write(p); err != nil {
				return apperrors.IO("writing pairs", err)
			}
		}
		return out.Flush()
	}

	var writeErr error
	err := engine.Enumerate(ctx, n, strategy, func(p segmentation.Pair) bool {
		writeErr = write(p)
		return writeErr == nil
	})
	if err != nil {
		return err
	}
	if writeErr != nil {
		return apperrors.IO("writing pairs", writeErr)
	}
	return out.Flush()
}
