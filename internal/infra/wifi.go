package infra

import (
	"context"
	"os/exec"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"github.com/me2d/cmlsync/internal/domain"
)

// unknownSSID is what drivers report when the SSID is hidden or location access is denied.
const unknownSSID = "<unknown ssid>"

// DefaultSSIDCommand prints the SSID of the active wireless connection.
var DefaultSSIDCommand = []string{"iwgetid", "-r"}

// wirelessPrefixes identify wireless interfaces by kernel naming.
var wirelessPrefixes = []string{"wl", "wlan", "wifi", "ath", "ra"}

// interfaceLister returns network interfaces; swapped in tests.
type interfaceLister func(ctx context.Context) (net.InterfaceStatList, error)

// commandRunner runs a command and returns its stdout; swapped in tests.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// SystemWifiObserver implements domain.WifiObserver using gopsutil to find an
// active wireless interface and an external command to read its SSID.
type SystemWifiObserver struct {
	command    []string
	interfaces interfaceLister
	run        commandRunner
	logger     *zap.Logger
}

// NewSystemWifiObserver creates a WiFi observer. An empty command uses DefaultSSIDCommand.
func NewSystemWifiObserver(command []string, logger *zap.Logger) *SystemWifiObserver {
	if len(command) == 0 {
		command = DefaultSSIDCommand
	}
	return &SystemWifiObserver{
		command:    command,
		interfaces: net.InterfacesWithContext,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		logger: logger,
	}
}

// CurrentWifiName returns the SSID of the connected WiFi network.
func (o *SystemWifiObserver) CurrentWifiName(ctx context.Context) (string, bool) {
	ifaces, err := o.interfaces(ctx)
	if err != nil {
		o.logger.Debug("failed to list network interfaces", zap.Error(err))
		return "", false
	}
	if !hasActiveWireless(ifaces) {
		o.logger.Debug("no active wireless interface")
		return "", false
	}

	out, err := o.run(ctx, o.command[0], o.command[1:]...)
	if err != nil {
		o.logger.Debug("failed to read SSID",
			zap.Strings("command", o.command),
			zap.Error(err))
		return "", false
	}
	return NormalizeSSID(string(out))
}

func hasActiveWireless(ifaces net.InterfaceStatList) bool {
	for _, iface := range ifaces {
		if !slices.Contains(iface.Flags, "up") {
			continue
		}
		for _, prefix := range wirelessPrefixes {
			if strings.HasPrefix(iface.Name, prefix) {
				return true
			}
		}
	}
	return false
}

// NormalizeSSID strips surrounding quotes and rejects blank or unknown names.
func NormalizeSSID(raw string) (string, bool) {
	ssid := strings.TrimSpace(raw)
	if ssid == "" || ssid == unknownSSID {
		return "", false
	}
	ssid = strings.TrimPrefix(ssid, `"`)
	ssid = strings.TrimSuffix(ssid, `"`)
	if strings.TrimSpace(ssid) == "" {
		return "", false
	}
	return ssid, true
}

// StaticWifiObserver reports a fixed WiFi name. An empty name means "not on WiFi".
type StaticWifiObserver struct {
	Name string
}

// CurrentWifiName returns the configured name.
func (o StaticWifiObserver) CurrentWifiName(context.Context) (string, bool) {
	return NormalizeSSID(o.Name)
}

var (
	_ domain.WifiObserver = (*SystemWifiObserver)(nil)
	_ domain.WifiObserver = StaticWifiObserver{}
)
