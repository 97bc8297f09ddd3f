package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-dbus/internal/property"
)

var setCmd = &cobra.Command{
	Use:   "set OBJECT PROPERTY VALUE",
	Short: "Write a property through a running daemon",
	Long: `Write a writable property over the bus. The value is parsed according
to the property's type: integers (decimal or 0x hex), true/false/1/0 for
booleans, and comma-separated lists for arrays.

The write is applied to the window; the new value is published once
gamescope reports it.`,
	Example: `  # Limit the frame rate
  gamescope-dbus set manager FPSLimit 40

  # Enable tearing
  gamescope-dbus set manager AllowTearing true

  # Set the XWayland resolution
  gamescope-dbus set manager Resolution 0,1280,800,1`,
	Args: cobra.ExactArgs(3),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
}

func runSet(cmd *cobra.Command, args []string) error {
	obj, err := gamescope.ParseObject(args[0])
	if err != nil {
		return err
	}
	d, ok := gamescope.Lookup(obj.Kind, args[1])
	if !ok {
		return fmt.Errorf("unknown property %s on %s (see 'gamescope-dbus props')", args[1], obj.Kind)
	}
	if !d.Writable {
		return fmt.Errorf("property %s is read-only", d.Name)
	}

	v, err := property.Parse(d, args[2])
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Set(obj, d.Name, property.ToBus(d, v)); err != nil {
		return err
	}

	color.Green("%s.%s = %s", obj.Name(), d.Name, property.Describe(d, v))
	return nil
}
