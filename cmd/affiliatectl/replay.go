package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/affiliate"
	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/event"
	"github.com/xraph/affiliate/store/memory"
)

type replayOptions struct {
	file        string
	provider    string
	concurrency int
}

// replayLine is one JSON Lines record. A line without a payload field is
// itself the payload.
type replayLine struct {
	Provider string          `json:"provider"`
	Payload  json.RawMessage `json:"payload"`
}

func newReplayCmd(g *globals) *cobra.Command {
	o := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Reconcile a JSON Lines file of provider payloads into an in-memory ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReplay(cmd, g, o)
		},
	}
	cmd.Flags().StringVar(&o.file, "file", "", "JSON Lines file, one payload per line")
	cmd.Flags().StringVar(&o.provider, "provider", "clickbank", "provider of lines without a provider field")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 4, "transactions reconciled in parallel")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runReplay(cmd *cobra.Command, g *globals, o *replayOptions) error {
	if o.concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	cat, err := g.catalog()
	if err != nil {
		return err
	}
	engine := affiliate.New(memory.New(), cat, memory.NewAccounts(), affiliate.WithLogger(g.logger))
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	f, err := os.Open(o.file)
	if err != nil {
		return err
	}
	defer f.Close()

	// Normalize in file order and keep each transaction's events in that
	// order; distinct transactions are reconciled in parallel.
	var (
		order   []string
		byTx    = make(map[string][]*event.PaymentEvent)
		invalid int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for n := 1; sc.Scan(); n++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		provider, payload := o.provider, raw
		var line replayLine
		if json.Unmarshal(raw, &line) == nil && len(line.Payload) > 0 {
			payload = line.Payload
			if line.Provider != "" {
				provider = line.Provider
			}
		}
		ev, err := engine.Normalizers().Normalize(provider, payload)
		if err != nil {
			g.logger.Warn().Err(err).Int("line", n).Msg("skipping invalid payload")
			invalid++
			continue
		}
		if _, ok := byTx[ev.TransactionID()]; !ok {
			order = append(order, ev.TransactionID())
		}
		byTx[ev.TransactionID()] = append(byTx[ev.TransactionID()], ev)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", o.file, err)
	}

	var (
		mu     sync.Mutex
		counts = map[affiliate.Status]int{affiliate.StatusInvalid: invalid}
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.concurrency)
	for _, tx := range order {
		events := byTx[tx]
		eg.Go(func() error {
			for _, ev := range events {
				out, err := engine.Apply(egCtx, ev)
				if err != nil {
					return err
				}
				mu.Lock()
				counts[out.Status]++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, s := range []affiliate.Status{affiliate.StatusRecorded, affiliate.StatusIgnored, affiliate.StatusInvalid} {
		fmt.Fprintf(w, "%-9s %d\n", s, counts[s])
	}

	entries, err := engine.Ledger().List(ctx, commission.ListOpts{})
	if err != nil {
		return err
	}
	var earners []string
	for _, c := range entries {
		if c.EarnerID != "" && !slices.Contains(earners, c.EarnerID) {
			earners = append(earners, c.EarnerID)
		}
	}
	slices.Sort(earners)
	for _, earner := range earners {
		sum, err := engine.Ledger().Earnings(ctx, earner)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "earner %s: net %s over %d entries\n", earner, sum.Net.FormatMajor(), sum.Count)
	}
	return nil
}
