// cmd/ffbctl/commands.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ffb-control-service/internal/capability"
)

var profileName string

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports, USB first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStack()
		if err != nil {
			return err
		}
		defer s.close()

		ports, err := s.stack.Manager.ScanPorts(cmd.Context())
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for _, p := range ports {
			line := p.Name
			if p.IsUSB {
				line = fmt.Sprintf("%-14s %s:%s %s", p.Name, p.VID, p.PID, p.Product)
			}
			switch {
			case p.Bootloader:
				line += " [bootloader]"
			case p.Board != "":
				line += " [" + p.Board + "]"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Identify the wheel and its capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		device := s.stack.State.Current()
		fmt.Printf("Port:          %s\n", device.Port)
		fmt.Printf("Product:       %s\n", device.DisplayName())
		fmt.Printf("Firmware:      %s\n", device.FirmwareVersion)
		fmt.Printf("Capabilities:  %s\n", capability.Describe(device))
		fmt.Printf("Serial config: %t\n", device.SupportsSerialConfig)
		if device.Calibration != nil {
			fmt.Printf("Calibration:   present=%t rotation=%d offset=%d inverted=%t\n",
				device.Calibration.Present,
				device.Calibration.RotationDeg,
				device.Calibration.CenterOffsetRaw,
				device.Calibration.Inverted,
			)
		}
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read the active configuration from the wheel",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		cfg, err := s.stack.Settings.LoadFromDevice(cmd.Context())
		if err != nil {
			return err
		}
		if cfg == nil {
			return fmt.Errorf("this wheel does not report its settings")
		}
		return printJSON(cfg)
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a saved profile to the wheel",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		applied := s.stack.Settings.CanUseSerialConfig()
		profile, err := s.stack.Settings.ApplyProfile(cmd.Context(), profileName)
		if err != nil {
			return err
		}
		printApplied(applied, fmt.Sprintf("Applied profile %q (version %d), not yet saved to the wheel", profile.Name, profile.Version))
		return nil
	},
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the active configuration to the wheel EEPROM",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		if _, err := s.stack.Settings.LoadFromDevice(cmd.Context()); err != nil {
			return err
		}
		applied := s.stack.Settings.CanSaveToWheel()
		if err := s.stack.Settings.SaveToWheel(cmd.Context()); err != nil {
			return err
		}
		printApplied(applied, "Saved to wheel")
		return nil
	},
}

var centerCmd = &cobra.Command{
	Use:   "center",
	Short: "Make the current wheel position the center",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		applied := s.stack.Settings.CanUseSerialConfig()
		if err := s.stack.Settings.Center(cmd.Context()); err != nil {
			return err
		}
		printApplied(applied, "Centered")
		return nil
	},
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Start the wheel calibration routine",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		if _, err := s.stack.Settings.LoadFromDevice(cmd.Context()); err != nil {
			return err
		}
		applied := s.stack.Settings.CanUseSerialConfig()
		if err := s.stack.Settings.Calibrate(cmd.Context()); err != nil {
			return err
		}
		printApplied(applied, "Calibration started, turn the wheel lock to lock")
		return nil
	},
}

func init() {
	applyCmd.Flags().StringVar(&profileName, "profile", "", "name of the profile to apply")
	_ = applyCmd.MarkFlagRequired("profile")

	rootCmd.AddCommand(portsCmd, infoCmd, readCmd, applyCmd, saveCmd, centerCmd, calibrateCmd)
}
