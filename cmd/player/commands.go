package player

import (
	"errors"
	"fmt"
	"strings"

	"github.com/project-dy/Essentials/cmd/util"
	"github.com/project-dy/Essentials/lib/store"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [id]",
		Short: "Prints the player with the given id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := rpcStore.GetPlayer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			record.PasswordHash = ""
			return util.PrintJSON(record)
		},
	}
	findCmd = &cobra.Command{
		Use:   "find [address]",
		Short: "Prints every player that used the given address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := rpcStore.FindPlayersByAddress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for i := range records {
				records[i].PasswordHash = ""
			}
			return util.PrintJSON(records)
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [id]",
		Short: "Deletes the player with the given id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.DeletePlayer(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
	banCmd = &cobra.Command{
		Use:   "ban [id]",
		Short: "Bans the player with the given id together with its known names and addresses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ban := store.BanRecord{ID: args[0]}
			if record, err := rpcStore.GetPlayer(cmd.Context(), args[0]); err == nil {
				ban.Names = []string{record.Name}
				ban.Addresses = record.Addresses
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if extra, _ := cmd.Flags().GetStringSlice("address"); len(extra) > 0 {
				ban.Addresses = append(ban.Addresses, extra...)
			}
			if err := rpcStore.UpsertBan(cmd.Context(), ban); err != nil {
				return err
			}
			fmt.Printf("banned %s (%s)\n", ban.ID, strings.Join(ban.Addresses, ", "))
			return nil
		},
	}
	bansCmd = &cobra.Command{
		Use:   "bans",
		Short: "Lists all bans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := rpcStore.ListBans(cmd.Context())
			if err != nil {
				return err
			}
			return util.PrintJSON(records)
		},
	}
	warpsCmd = &cobra.Command{
		Use:   "warps",
		Short: "Lists all warp blocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := rpcStore.ListWarpBlocks(cmd.Context())
			if err != nil {
				return err
			}
			return util.PrintJSON(records)
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Describes the store served by the owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := rpcStore.Info(cmd.Context())
			if err != nil {
				return err
			}
			return util.PrintJSON(info)
		},
	}
)

func init() {
	banCmd.Flags().StringSlice("address", nil, util.WrapString("Additional addresses to ban"))
}
