package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mikalv/Pure64/internal/system"
)

func serialCmd() *cobra.Command {
	var (
		interfaceName string
		listAll       bool
		formatType    string
	)
	cmd := &cobra.Command{
		Use:   "serial",
		Short: "show the MAC address the USB gadget serial number is derived from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			format, err := system.ParseMACFormat(formatType)
			if err != nil {
				return err
			}

			if listAll {
				macs, err := system.GetAllMACAddresses()
				if err != nil {
					return err
				}
				names := make([]string, 0, len(macs))
				for name := range macs {
					names = append(names, name)
				}
				sort.Strings(names)

				fmt.Fprintln(out, "Network Interfaces:")
				for _, name := range names {
					fmt.Fprintf(out, "  %-15s %s\n", name+":", system.FormatMAC(macs[name], format))
				}
				return nil
			}

			if interfaceName != "" {
				mac, err := system.GetMACAddress(interfaceName)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, system.FormatMAC(mac, format))
				return nil
			}

			if cfg.USBGadget.SerialNumber != "" {
				fmt.Fprintf(out, "configured serial number: %s\n", cfg.USBGadget.SerialNumber)
				return nil
			}
			name, mac, err := system.FindHardwareInterface()
			if err != nil {
				fmt.Fprintf(out, "no hardware interface (%v), serial number: %s\n", err, system.DefaultSerialNumber)
				return nil
			}
			fmt.Fprintf(out, "interface: %s\n", name)
			fmt.Fprintf(out, "serial number: %s\n", system.FormatMAC(mac, format))
			return nil
		},
	}

	cmd.Flags().StringVar(&interfaceName, "interface", "", "Specific interface name (e.g., eth0)")
	cmd.Flags().BoolVar(&listAll, "all", false, "List all interfaces and their MAC addresses")
	cmd.Flags().StringVar(&formatType, "format", "usb", "Output format: colon, hyphen, none, usb")

	return cmd
}
