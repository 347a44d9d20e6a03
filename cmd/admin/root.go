package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/project-dy/Essentials/cmd/util"
	"github.com/project-dy/Essentials/lib/node"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// AdminCommands talks to the admin endpoint of a running node
	AdminCommands = &cobra.Command{
		Use:               "admin",
		Short:             "Query or control a running node over its admin endpoint",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return util.BindCommandFlags(cmd) },
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Prints the role, subordinate count and jobs of the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var status node.Status
			if err := call(http.MethodGet, "/status", &status); err != nil {
				return err
			}
			return util.PrintJSON(status)
		},
	}
	broadcastCmd = &cobra.Command{
		Use:   "broadcast",
		Short: "Asks every subordinate of the owner to shut down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var result node.BroadcastResult
			if err := call(http.MethodPost, "/broadcast", &result); err != nil {
				return err
			}
			fmt.Printf("exit sent to %d subordinates\n", result.Sent)
			return nil
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitEnv)

	key := "admin-endpoint"
	AdminCommands.PersistentFlags().String(key, "127.0.0.1:6002", util.WrapString("The admin endpoint of the node"))

	key = "timeout"
	AdminCommands.PersistentFlags().Int(key, 10, util.WrapString("The timeout in seconds of the request"))

	AdminCommands.AddCommand(statusCmd)
	AdminCommands.AddCommand(broadcastCmd)
}

// call sends a request to the admin endpoint and decodes the JSON answer into out
func call(method, path string, out any) error {
	endpoint := viper.GetString("admin-endpoint")
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(endpoint, "/")+path, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: time.Duration(viper.GetInt("timeout")) * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, body.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
