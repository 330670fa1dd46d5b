// internal/network/link.go
package network

import (
	"net"
	"strings"

	"go.uber.org/zap"

	"pos-sync-service/internal/model"
)

// LinkState is the OS view of the network link
type LinkState struct {
	Up             bool                 `json:"up"`
	Interface      string               `json:"interface,omitempty"`
	ConnectionType model.ConnectionType `json:"connection_type"`
}

// LinkDetector reports whether the terminal has any usable network link
type LinkDetector interface {
	Detect() LinkState
}

// InterfaceDetector inspects the host network interfaces
type InterfaceDetector struct {
	logger *zap.Logger
}

// NewInterfaceDetector creates a detector bound to the host interfaces
func NewInterfaceDetector(logger *zap.Logger) *InterfaceDetector {
	return &InterfaceDetector{
		logger: logger.With(zap.String("detector", "interfaces")),
	}
}

// Detect returns the first interface that is up, not loopback and has an
// address. Wired links are preferred over wireless ones.
func (d *InterfaceDetector) Detect() LinkState {
	ifaces, err := net.Interfaces()
	if err != nil {
		d.logger.Warn("Failed to list network interfaces", zap.Error(err))
		return LinkState{ConnectionType: model.ConnectionTypeNone}
	}

	var best *LinkState
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}

		state := LinkState{
			Up:             true,
			Interface:      iface.Name,
			ConnectionType: ClassifyInterface(iface.Name),
		}
		if best == nil || rank(state.ConnectionType) < rank(best.ConnectionType) {
			best = &state
		}
	}

	if best == nil {
		return LinkState{ConnectionType: model.ConnectionTypeNone}
	}
	return *best
}

// ClassifyInterface maps an interface name to a connection type
func ClassifyInterface(name string) model.ConnectionType {
	name = strings.ToLower(name)
	switch {
	case hasAnyPrefix(name, "wl", "wifi", "ath", "ra"):
		return model.ConnectionTypeWiFi
	case hasAnyPrefix(name, "wwan", "rmnet", "ppp", "cdc", "ccmni"):
		return model.ConnectionTypeCellular
	case hasAnyPrefix(name, "eth", "en", "em", "eno", "ens", "enp"):
		return model.ConnectionTypeEthernet
	default:
		return model.ConnectionTypeUnknown
	}
}

func rank(t model.ConnectionType) int {
	switch t {
	case model.ConnectionTypeEthernet:
		return 0
	case model.ConnectionTypeWiFi:
		return 1
	case model.ConnectionTypeCellular:
		return 2
	default:
		return 3
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
