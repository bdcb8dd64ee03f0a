// Package config loads the optional override file for the literal
// virtual-network constants in the Uthernet II's synthesized network,
// following the same shape intel-PerfSpect's targets.yaml loader uses
// for its remote-target list: a YAML-tagged struct unmarshaled with
// gopkg.in/yaml.v2, wrapped with github.com/pkg/errors for context.
package config

import (
	"net"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// VirtualNetwork holds every literal from the spec's External
// Interfaces section. Defaults() reproduces them exactly; a YAML file
// loaded with Load overrides any subset.
type VirtualNetwork struct {
	ClientIP      string   `yaml:"client_ip"`
	GatewayIP     string   `yaml:"gateway_ip"`
	Subnet        string   `yaml:"subnet"`
	DNS           string   `yaml:"dns"`
	GatewayMAC    string   `yaml:"gateway_mac"`
	ServerMAC     string   `yaml:"server_mac"`
	CardMAC       string   `yaml:"card_mac"`
	LeaseSeconds  int      `yaml:"lease_seconds"`
	RedirectOctet []int    `yaml:"redirect_third_octet"`
	RedirectHost  string   `yaml:"redirect_host"`
}

// Defaults returns the literal constants from §6 of the specification.
func Defaults() VirtualNetwork {
	return VirtualNetwork{
		ClientIP:      "192.168.65.100",
		GatewayIP:     "192.168.65.1",
		Subnet:        "255.255.255.0",
		DNS:           "8.8.8.8",
		GatewayMAC:    "02:00:DE:AD:BE:01",
		ServerMAC:     "02:00:00:00:00:01",
		CardMAC:       "02:00:DE:AD:BE:EF",
		LeaseSeconds:  86400,
		RedirectOctet: []int{64, 65},
		RedirectHost:  "127.0.0.1",
	}
}

// Load reads a YAML override file and merges it onto Defaults(). A
// missing path is not an error — callers pass "" to simply use
// defaults, mirroring the card's "absence is non-fatal" ROM-probing
// discipline in §4.9.
func Load(path string) (VirtualNetwork, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "config: reading %s", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parsing %s", path)
	}
	return cfg, nil
}

// IP4 parses a dotted-quad string into a 4-byte address. It never
// panics: a malformed or non-IPv4 string, whether a default or loaded
// from a file, yields an error.
func IP4(s string) ([4]byte, error) {
	var out [4]byte
	ip := net.ParseIP(s)
	if ip == nil {
		return out, errors.Errorf("config: invalid IPv4 address %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return out, errors.Errorf("config: %q is not IPv4", s)
	}
	copy(out[:], ip4)
	return out, nil
}

// MAC6 parses a colon-separated MAC address into 6 bytes.
func MAC6(s string) ([6]byte, error) {
	var out [6]byte
	hw, err := net.ParseMAC(s)
	if err != nil {
		return out, errors.Wrapf(err, "config: invalid MAC %q", s)
	}
	if len(hw) != 6 {
		return out, errors.Errorf("config: %q is not a 6-byte MAC", s)
	}
	copy(out[:], hw)
	return out, nil
}
