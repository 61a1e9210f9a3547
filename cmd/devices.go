package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/audiolibrelab/audiobridge/internal/audio"
	"github.com/audiolibrelab/audiobridge/internal/service"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"list-devices"},
	Short:   "List audio devices",
	Long: `List the output devices (or input devices with --input) that can be
combined, made default or recorded. Devices without channels in the requested
direction are left out.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		dir := directionFlag(cmd)

		devices := newService(nil).ListDevices(cmd.Context(), dir)
		if asJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(devices)
		}

		fmt.Print(service.FormatDeviceList(dir, devices))
		return nil
	},
}

var createMultiOutputCmd = &cobra.Command{
	Use:   "create-multi-output <device> <device>... <name>",
	Short: "Combine output devices into one multi-output device",
	Long: `Create an aggregate output device that plays to every listed device.
Each device is a case-insensitive name fragment; the first one is the master.
Nothing is created when a device with the given name already exists.`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return createAggregate(cmd, audio.DirectionOutput, args)
	},
}

var createMultiInputCmd = &cobra.Command{
	Use:   "create-multi-input <device> <device>... <name>",
	Short: "Combine input devices into one aggregate input",
	Long: `Create an aggregate input device that mixes every listed device.
Each device is a case-insensitive name fragment; the first one is the master.
Nothing is created when a device with the given name already exists.`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return createAggregate(cmd, audio.DirectionInput, args)
	},
}

// createAggregate takes the last argument as the aggregate name
func createAggregate(cmd *cobra.Command, dir audio.Direction, args []string) error {
	name := args[len(args)-1]
	devices := args[:len(args)-1]

	result, err := newService(nil).CreateAggregate(cmd.Context(), dir, devices, name)
	if err != nil {
		return err
	}
	fmt.Println(result.Message)
	return nil
}

var setDefaultCmd = &cobra.Command{
	Use:   "set-default <device>",
	Short: "Make a device the default output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ep, err := newService(nil).SetDefault(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Default output set to %s\n", ep.Name)
		return nil
	},
}

var deviceNameCmd = &cobra.Command{
	Use:   "device-name <index>",
	Short: "Print the name of the device at a zero-based position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: index must be an integer: %s", audio.ErrUsage, args[0])
		}

		name, err := newService(nil).DeviceNameAtIndex(cmd.Context(), directionFlag(cmd), index)
		if err != nil {
			return err
		}
		fmt.Println(name)
		return nil
	},
}

func directionFlag(cmd *cobra.Command) audio.Direction {
	if input, _ := cmd.Flags().GetBool("input"); input {
		return audio.DirectionInput
	}
	return audio.DirectionOutput
}

func init() {
	devicesCmd.Flags().Bool("json", false, "print devices as JSON")
	devicesCmd.Flags().Bool("input", false, "list input devices instead of outputs")
	deviceNameCmd.Flags().Bool("input", false, "index into the input device listing")
}
