package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tankersim/internal/store"
	"tankersim/pkg/api"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow transition events live",
	Long:  `Subscribe to the simulator's MQTT event stream and print each tanker status transition as it happens. Events are published at QoS 0, so a missed event is never redelivered; use history for the durable record.`,
	Run: func(cmd *cobra.Command, args []string) {
		broker := viper.GetString("mqtt_broker")
		if broker == "" {
			cmd.Println("MQTT broker not found. Please set it using the --broker flag or the TANKERSIM_MQTT_BROKER environment variable")
			return
		}

		brokerURL, err := url.Parse(broker)
		if err != nil {
			cmd.Printf("Invalid broker URL: %v\n", err)
			return
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := autopaho.ClientConfig{
			ServerUrls:                    []*url.URL{brokerURL},
			KeepAlive:                     60,
			CleanStartOnInitialConnection: true,
			ConnectTimeout:                5 * time.Second,
			OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
				if _, err := cm.Subscribe(ctx, &paho.Subscribe{
					Subscriptions: []paho.SubscribeOptions{
						{Topic: api.EventTopicWildcard, QoS: 0},
					},
				}); err != nil {
					cmd.Printf("Failed to subscribe: %v\n", err)
					return
				}
				cmd.Printf("Watching %s (Ctrl+C to stop)\n", api.EventTopicWildcard)
			},
			OnConnectError: func(err error) {
				cmd.Printf("Connect error: %v\n", err)
			},
			ClientConfig: paho.ClientConfig{
				ClientID: fmt.Sprintf("fleetctl-watch-%d", time.Now().UnixNano()),
				OnPublishReceived: []func(paho.PublishReceived) (bool, error){
					func(pr paho.PublishReceived) (bool, error) {
						printEvent(cmd, pr.Packet.Payload)
						return true, nil
					},
				},
			},
		}

		cm, err := autopaho.NewConnection(ctx, cfg)
		if err != nil {
			cmd.Printf("Failed to connect: %v\n", err)
			return
		}

		<-ctx.Done()

		disconnectCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = cm.Disconnect(disconnectCtx)
	},
}

func printEvent(cmd *cobra.Command, payload []byte) {
	var event api.TankerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		cmd.Printf("Skipping malformed event: %v\n", err)
		return
	}

	when := event.Timestamp.Local().Format("15:04:05")
	if event.NewStatus != nil {
		cmd.Printf("%s%s%s  %s%-8s%s %s → %s\n",
			colorDim, when, colorReset,
			colorBold, event.TankerID, colorReset,
			colorizeStatus(store.Status(event.PreviousStatus)),
			colorizeStatus(store.Status(*event.NewStatus)))
		return
	}
	cmd.Printf("%s%s%s  %s%-8s%s telemetry update (%s)\n",
		colorDim, when, colorReset,
		colorBold, event.TankerID, colorReset,
		colorizeStatus(store.Status(event.PreviousStatus)))
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
