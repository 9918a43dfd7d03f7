package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/suPer8Hu/hackchat/internal/config"
	"github.com/suPer8Hu/hackchat/internal/obs"
	"github.com/suPer8Hu/hackchat/internal/persist"
	"github.com/suPer8Hu/hackchat/internal/view"
)

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "Print the stored snapshot",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "summary",
				Usage: "Print conversation summaries instead of raw JSON",
			},
			&cli.StringFlag{
				Name:    "search",
				Aliases: []string{"q"},
				Usage:   "Filter summaries by name or last message",
			},
		},
		Action: runDump,
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:   "reset",
		Usage:  "Delete the stored snapshot; the next serve starts from the seed conversations",
		Action: runReset,
	}
}

func openAdapter(c *cli.Context) (*persist.Adapter, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel)
	backend, closeFn, err := openBackend(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return persist.NewAdapter(backend, persist.WithLogger(logger)), closeFn, nil
}

func runDump(c *cli.Context) error {
	adapter, closeFn, err := openAdapter(c)
	if err != nil {
		return err
	}
	defer closeFn()

	st := adapter.Load(c.Context)
	if st == nil {
		fmt.Println("no usable snapshot stored")
		return nil
	}

	if !c.Bool("summary") && c.String("search") == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tUNREAD\tTIME\tPREVIEW")
	for _, s := range view.FilterConversations(*st, c.String("search")) {
		marker := ""
		if s.Active {
			marker = " *"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%d\t%s\t%s\n", s.ID, marker, s.Name, s.Unread, s.Time, s.Preview)
	}
	return w.Flush()
}

func runReset(c *cli.Context) error {
	adapter, closeFn, err := openAdapter(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := adapter.Reset(c.Context); err != nil {
		return fmt.Errorf("failed to reset snapshot: %w", err)
	}
	fmt.Println("snapshot deleted")
	return nil
}
