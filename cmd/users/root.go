// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"os"

	"github.com/absmach/bookshelf/pkg/users/sqlite"
	"github.com/spf13/cobra"
)

const dbEnv = "BOOKSHELF_USERS_DB"

type options struct {
	db    string
	in    io.Reader
	store *sqlite.Store
}

// close releases the store opened for the executed command, if any.
func (opts *options) close() error {
	if opts.store == nil {
		return nil
	}
	err := opts.store.Close()
	opts.store = nil
	return err
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage bookshelf users",
		Long: `Manage the users accepted by the bookshelf API when it runs
with the sqlite users backend.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.Open(cmd.Context(), opts.db)
			if err != nil {
				return err
			}
			opts.store = store
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.close()
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	db := os.Getenv(dbEnv)
	if db == "" {
		db = "users.db"
	}
	cmd.PersistentFlags().StringVarP(&opts.db, "db", "d", db, "users database path (env "+dbEnv+")")

	cmd.AddCommand(
		newAddCmd(opts),
		newRemoveCmd(opts),
		newListCmd(opts),
	)

	return cmd
}
