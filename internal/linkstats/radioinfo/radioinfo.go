// Package radioinfo is the hardware facing view of the radio interfaces: how
// many there are, which link owns each one, and their latest signal readings.
// The stats engine queries it but never owns it.
package radioinfo

import (
	"sync"

	"github.com/mh-dx/fpv-linkstats/internal/linkstats/limits"
)

// Info is the current hardware record of one radio interface.
type Info struct {
	// USBPort is the port identity of the card, display only
	USBPort string

	// Link is the owning radio link, or limits.Unassigned
	Link int

	// SignalDBM is the latest signal strength
	SignalDBM int

	// DataRateBps is the current overall data rate
	DataRateBps int

	// VideoDataRateBps is the data rate used for video packets
	VideoDataRateBps int

	// DataDataRateBps is the data rate used for the other streams
	DataDataRateBps int
}

// Provider is the external radio info source.
type Provider interface {
	// InterfaceCount returns how many interfaces were enumerated
	InterfaceCount() int

	// LinkCount returns how many radio links are configured
	LinkCount() int

	// Interface returns the record of an interface, false if the hardware layer has none
	Interface(index int) (Info, bool)
}

// Static is a provider backed by a fixed enumeration whose readings can be
// updated at runtime, e.g. from the event tap.
type Static struct {
	mutex      sync.RWMutex
	interfaces []*Info
	links      int
}

// NewStatic creates a provider from an enumeration. A nil entry means the
// hardware layer has no record for that interface.
func NewStatic(links int, interfaces []*Info) *Static {
	if len(interfaces) > limits.MaxInterfaces {
		interfaces = interfaces[:limits.MaxInterfaces]
	}
	if links > limits.MaxLinks {
		links = limits.MaxLinks
	}
	return &Static{
		interfaces: interfaces,
		links:      links,
	}
}

func (s *Static) InterfaceCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.interfaces)
}

func (s *Static) LinkCount() int {
	return s.links
}

func (s *Static) Interface(index int) (Info, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if index < 0 || index >= len(s.interfaces) || s.interfaces[index] == nil {
		return Info{}, false
	}
	return *s.interfaces[index], true
}

// UpdateReadings stores a fresh signal and data rate reading for an interface.
// Zero values leave the previous reading in place.
func (s *Static) UpdateReadings(index int, signalDBM int, dataRateBps int, video bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if index < 0 || index >= len(s.interfaces) || s.interfaces[index] == nil {
		return
	}
	info := s.interfaces[index]
	if signalDBM != 0 {
		info.SignalDBM = signalDBM
	}
	if dataRateBps != 0 {
		info.DataRateBps = dataRateBps
		if video {
			info.VideoDataRateBps = dataRateBps
		} else {
			info.DataDataRateBps = dataRateBps
		}
	}
}
