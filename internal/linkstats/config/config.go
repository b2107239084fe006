package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mh-dx/fpv-linkstats/internal/linkstats/limits"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/radioinfo"
	"gopkg.in/yaml.v3"
)

type InterfaceConfig struct {
	USBPort          string `yaml:"usbPort"`
	Link             *int   `yaml:"link"`
	SignalDBM        int    `yaml:"signalDbm"`
	DataRateBps      int    `yaml:"dataRateBps"`
	VideoDataRateBps int    `yaml:"videoDataRateBps"`
	DataDataRateBps  int    `yaml:"dataDataRateBps"`
}

type LinkStatsConfig struct {
	// EventListen is the UDP address the radio event tap is received on
	EventListen string `yaml:"eventListen"`

	// MetricsListen is the HTTP address serving /metrics, empty disables it
	MetricsListen string `yaml:"metricsListen"`

	// SnapshotListen is the HTTP address serving the snapshot websocket, empty disables it
	SnapshotListen string `yaml:"snapshotListen"`

	RefreshInterval         time.Duration `yaml:"refreshInterval"`
	GraphRefreshInterval    time.Duration `yaml:"graphRefreshInterval"`
	LinkRefreshInterval     time.Duration `yaml:"linkRefreshInterval"`
	ControllerStatsInterval time.Duration `yaml:"controllerStatsInterval"`

	// SignalFloorDBM is the signal strength under which an interface gets the extra ranking penalty
	SignalFloorDBM     int `yaml:"signalFloorDbm"`
	SignalFloorPenalty int `yaml:"signalFloorPenalty"`

	Links      int               `yaml:"links"`
	Interfaces []InterfaceConfig `yaml:"interfaces"`
}

// Default returns the configuration used when no file is given.
func Default() LinkStatsConfig {
	return LinkStatsConfig{
		EventListen:             "127.0.0.1:5610",
		MetricsListen:           "127.0.0.1:9610",
		SnapshotListen:          "127.0.0.1:9611",
		RefreshInterval:         500 * time.Millisecond,
		GraphRefreshInterval:    100 * time.Millisecond,
		LinkRefreshInterval:     250 * time.Millisecond,
		ControllerStatsInterval: 200 * time.Millisecond,
		SignalFloorDBM:          -85,
		SignalFloorPenalty:      20,
		Links:                   1,
		Interfaces:              []InterfaceConfig{{Link: intPtr(0)}},
	}
}

// Load reads a YAML file on top of the defaults.
func Load(filePath string) (LinkStatsConfig, error) {
	config := Default()
	fileContent, err := os.ReadFile(filePath)
	if err != nil {
		return config, fmt.Errorf("error reading config %s: %w", filePath, err)
	}
	if err := yaml.Unmarshal(fileContent, &config); err != nil {
		return config, fmt.Errorf("error unmarshalling yaml: %w", err)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Validate checks the topology against the compile time maxima.
func (c LinkStatsConfig) Validate() error {
	if c.Links < 0 || c.Links > limits.MaxLinks {
		return fmt.Errorf("links must be within [0, %d], got %d", limits.MaxLinks, c.Links)
	}
	if len(c.Interfaces) > limits.MaxInterfaces {
		return fmt.Errorf("at most %d interfaces supported, got %d", limits.MaxInterfaces, len(c.Interfaces))
	}
	for i, iface := range c.Interfaces {
		if iface.Link != nil && (*iface.Link < 0 || *iface.Link >= c.Links) {
			return fmt.Errorf("interface %d: link %d out of range", i, *iface.Link)
		}
	}
	if c.RefreshInterval <= 0 || c.GraphRefreshInterval <= 0 || c.LinkRefreshInterval <= 0 || c.ControllerStatsInterval <= 0 {
		return fmt.Errorf("refresh intervals must be positive")
	}
	return nil
}

// RadioInfo builds the static radio info provider described by the config.
func (c LinkStatsConfig) RadioInfo() *radioinfo.Static {
	interfaces := make([]*radioinfo.Info, 0, len(c.Interfaces))
	for _, iface := range c.Interfaces {
		link := limits.Unassigned
		if iface.Link != nil {
			link = *iface.Link
		}
		interfaces = append(interfaces, &radioinfo.Info{
			USBPort:          iface.USBPort,
			Link:             link,
			SignalDBM:        iface.SignalDBM,
			DataRateBps:      iface.DataRateBps,
			VideoDataRateBps: iface.VideoDataRateBps,
			DataDataRateBps:  iface.DataDataRateBps,
		})
	}
	return radioinfo.NewStatic(c.Links, interfaces)
}

func intPtr(v int) *int {
	return &v
}
