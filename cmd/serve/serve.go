package serve

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/featherwatch/featherwatch/internal/conf"
	"github.com/featherwatch/featherwatch/internal/realtime"
)

// Command creates the serve command, which runs the full correlation and
// delivery service.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sighting correlation and delivery service",
		Long:  "Subscribe to the camera event stream, correlate sightings with audio detections, and serve notifications and the live detection stream.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return realtime.Run(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.MQTT.Broker, "broker", viper.GetString("mqtt.broker"), "MQTT broker URL of the camera backend (tcp://host:port)")
	cmd.Flags().StringVar(&settings.MQTT.Topic, "topic", viper.GetString("mqtt.topic"), "MQTT topic carrying camera events")
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "HTTP listen port for the stream and ingest API")
	cmd.Flags().BoolVar(&settings.Notify.Enabled, "notify", viper.GetBool("notify.enabled"), "Enable push notifications")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
