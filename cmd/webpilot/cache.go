package main

import (
	"fmt"

	"github.com/rahul/webpilot/internal/store"
	"github.com/spf13/cobra"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the plan and action caches.",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "clear [plans|actions]",
		Short:     "Clear one namespace, or both.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(store.NamespacePlans), string(store.NamespaceActions)},
		RunE: func(cmd *cobra.Command, args []string) error {
			namespaces := []store.Namespace{store.NamespacePlans, store.NamespaceActions}
			if len(args) == 1 {
				ns, ok := store.ParseNamespace(args[0])
				if !ok {
					return fmt.Errorf("unknown namespace %q", args[0])
				}
				namespaces = []store.Namespace{ns}
			}
			return a.withMemo(func(memo *store.Memo) error {
				for _, ns := range namespaces {
					if err := memo.Clear(cmd.Context(), ns); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", ns)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <plans|actions> <key>",
		Short: "Print one cached value.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, ok := store.ParseNamespace(args[0])
			if !ok {
				return fmt.Errorf("unknown namespace %q", args[0])
			}
			return a.withMemo(func(memo *store.Memo) error {
				value, ok := memo.Lookup(cmd.Context(), ns, args[1])
				if !ok {
					return fmt.Errorf("no %s entry for %q", ns, args[1])
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(value))
				return nil
			})
		},
	})
	return cmd
}

// withMemo opens only the memo backend; no completion provider is needed.
func (a *app) withMemo(fn func(*store.Memo) error) error {
	if a.cfg.Memory.Type == "jsonfile" {
		return fn(store.NewMemo(store.NewJSONFileBackend(a.cfg.Memory.PlanFile, a.cfg.Memory.ActionFile), a.logger))
	}
	db, err := store.Open(a.cfg.Memory.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(store.NewMemo(store.NewSQLiteBackend(db), a.logger))
}
