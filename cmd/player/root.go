package player

import (
	"github.com/project-dy/Essentials/cmd/util"
	"github.com/project-dy/Essentials/lib/store"
	"github.com/project-dy/Essentials/rpc/client"
	"github.com/project-dy/Essentials/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcStore store.IStore

	// PlayerCommands represents the player command group
	PlayerCommands = &cobra.Command{
		Use:                "player",
		Short:              "Inspect and edit the shared player database of a running owner",
		PersistentPreRunE:  setupPlayerClient,
		PersistentPostRunE: closePlayerClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitEnv)

	util.SetupRPCClientFlags(PlayerCommands)
	PlayerCommands.PersistentFlags().Uint64("shard", common.StoreShardID, util.WrapString("ID of the shard the owner serves its store on"))

	PlayerCommands.AddCommand(getCmd)
	PlayerCommands.AddCommand(findCmd)
	PlayerCommands.AddCommand(deleteCmd)
	PlayerCommands.AddCommand(banCmd)
	PlayerCommands.AddCommand(bansCmd)
	PlayerCommands.AddCommand(warpsCmd)
	PlayerCommands.AddCommand(infoCmd)
}

// setupPlayerClient connects to the owner's data endpoint
func setupPlayerClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	rpcStore, err = client.NewRPCStore(viper.GetUint64("shard"), *config, t, s)
	return err
}

func closePlayerClient(_ *cobra.Command, _ []string) error {
	if rpcStore == nil {
		return nil
	}
	return rpcStore.Close()
}
