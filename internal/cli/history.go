// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ksaregtech/regtech-tui/internal/storage"
	"github.com/ksaregtech/regtech-tui/internal/util"
)

// openStore opens the conversation store without the rest of the app.
func (o *rootOptions) openStore() (*storage.ConversationStore, error) {
	cfg, _, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewConversationStore(dataDir)
	if err != nil {
		return nil, err
	}
	store.MaxConversations = cfg.Storage.MaxConversations
	return store, nil
}

func newHistoryCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"sessions"},
		Short:   "List, show, export and delete saved conversations",
	}

	var listJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore()
			if err != nil {
				return err
			}
			metas, err := store.List()
			if err != nil {
				return err
			}
			if listJSON {
				return NewJSONResponse("history list", metas).Write(cmd.OutOrStdout())
			}
			fmt.Fprint(cmd.OutOrStdout(), storage.FormatSessionList(metas))
			return nil
		},
	}
	list.Flags().BoolVar(&listJSON, "json", false, "print as JSON")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore()
			if err != nil {
				return err
			}
			conv, err := store.Resolve(args[0])
			if err != nil {
				return err
			}
			md := storage.ExportMarkdown(conv)
			if isTerminalWriter(cmd.OutOrStdout()) {
				md = renderMarkdown(md, GetTerminalWidth()-2)
			}
			fmt.Fprint(cmd.OutOrStdout(), md)
			return nil
		},
	}

	var format, output string
	export := &cobra.Command{
		Use:   "export ID",
		Short: "Export a conversation as Markdown or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore()
			if err != nil {
				return err
			}
			conv, err := store.Resolve(args[0])
			if err != nil {
				return err
			}

			var data []byte
			switch strings.ToLower(format) {
			case "md", "markdown":
				data = []byte(storage.ExportMarkdown(conv))
			case "json":
				if data, err = storage.ExportJSON(conv); err != nil {
					return err
				}
				data = append(data, '\n')
			default:
				return fmt.Errorf("unknown format %q (want md or json)", format)
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := util.AtomicWriteFile(output, data, 0600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", storage.ShortID(conv.ID), output)
			return nil
		},
	}
	export.Flags().StringVarP(&format, "format", "f", "md", "md or json")
	export.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")

	del := &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore()
			if err != nil {
				return err
			}
			conv, err := store.Resolve(args[0])
			if err != nil {
				return err
			}
			if err := store.Delete(conv.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%s)\n", storage.ShortID(conv.ID), conv.GetTitle())
			return nil
		},
	}

	var inMessages bool
	search := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Find conversations by title, or by message text with --messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore()
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			var metas []storage.ConversationMeta
			if inMessages {
				metas, err = store.SearchMessages(query)
			} else {
				metas, err = store.Search(query)
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), storage.FormatSessionList(metas))
			return nil
		},
	}
	search.Flags().BoolVar(&inMessages, "messages", false, "search message text")

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete all conversations without --yes")
			}
			store, err := root.openStore()
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All conversations deleted.")
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "confirm")

	cmd.AddCommand(list, show, export, del, search, clearCmd)
	return cmd
}
