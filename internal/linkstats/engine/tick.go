package engine

import (
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/limits"
)

// qualityWindowMs is the span of recent graph slices scored for quality.
const qualityWindowMs = 2000

// PeriodicTick runs every cadence whose interval has elapsed at nowMs and
// publishes a new snapshot when anything was recomputed. A clock that moved
// backward counts as elapsed so a rollover never stalls the rates.
func (e *Engine) PeriodicTick(nowMs uint32) bool {
	if e == nil || !e.initialized {
		return false
	}
	e.lastTickMs = nowMs
	changed := false

	if _, due := elapsedSince(nowMs, e.lastGraphTickMs, e.options.GraphRefreshIntervalMs); due {
		e.sliceHistory()
		e.lastGraphTickMs = nowMs
		changed = true
	}

	if elapsed, due := elapsedSince(nowMs, e.lastLinkTickMs, e.options.LinkRefreshIntervalMs); due {
		for l := 0; l < e.linkCount; l++ {
			link := &e.links[l]
			link.computeRates(elapsed)
			for s := range link.Streams {
				link.Streams[s].computeRates(elapsed)
			}
		}
		e.lastLinkTickMs = nowMs
		changed = true
	}

	if elapsed, due := elapsedSince(nowMs, e.lastStatsTickMs, e.options.RefreshIntervalMs); due {
		for i := 0; i < e.interfaceCount; i++ {
			e.interfaces[i].computeRates(elapsed)
		}
		for s := range e.streams {
			e.streams[s].computeSmoothedRates(elapsed)
		}
		e.scoreQuality()
		for l := 0; l < e.linkCount; l++ {
			e.links[l].BestTxInterface, _ = e.BestInterfaceForLink(l)
		}
		e.lastStatsTickMs = nowMs
		changed = true
	}

	if _, due := elapsedSince(nowMs, e.lastControllerTickMs, e.options.ControllerStatsIntervalMs); due {
		e.controller.aggregate(nowMs, e.interfaces[:e.interfaceCount])
		e.lastControllerTickMs = nowMs
		changed = true
	}

	if changed {
		e.Publish(nowMs)
	}
	return changed
}

// elapsedSince returns the time since last and whether interval has passed.
// When now is before last the clock rolled over: the tick fires and the
// nominal interval stands in for the elapsed time.
func elapsedSince(nowMs uint32, lastMs uint32, intervalMs uint32) (uint32, bool) {
	if nowMs < lastMs {
		return intervalMs, true
	}
	elapsed := nowMs - lastMs
	return elapsed, elapsed >= intervalMs
}

// sliceHistory closes the current graph slice of every interface.
func (e *Engine) sliceHistory() {
	for i := 0; i < e.interfaceCount; i++ {
		radio := &e.interfaces[i]
		radio.Slices.push(radio.tmpSlice)
		radio.tmpSlice = sliceAccumulator{}
	}
}

// qualitySlices is how many recent graph slices make up the quality window.
func (e *Engine) qualitySlices() int {
	k := qualityWindowMs / int(e.options.GraphRefreshIntervalMs)
	return clampInt(k, 3, limits.MaxGraphSlices-1)
}

// scoreQuality computes quality percent and the relative ranking score of every interface.
func (e *Engine) scoreQuality() {
	k := e.qualitySlices()
	for i := 0; i < e.interfaceCount; i++ {
		radio := &e.interfaces[i]
		received, bad, lost := 0, 0, 0
		for s := 0; s < k; s++ {
			received += int(radio.Slices.Received[s])
			bad += int(radio.Slices.Bad[s])
			lost += int(radio.Slices.Lost[s])
		}

		quality := 0
		if received > 0 {
			quality = clampInt(100-100*(lost+bad)/(received+lost), 0, 100)
		}
		radio.QualityPercent = quality
		radio.RelativeQuality = e.relativeQuality(quality, radio.LastSignalDBM, received, bad, lost)
		e.controller.observeInterfaceQuality(i, quality)
	}
}

// relativeQuality ranks interfaces for transmission. A weaker signal always
// lowers the score whatever its encoding, and a signal under the floor costs
// an extra penalty.
func (e *Engine) relativeQuality(quality int, signalDBM int, received int, bad int, lost int) int {
	score := quality
	if signalDBM > 0 {
		score -= signalDBM
	} else {
		score += signalDBM
	}
	if signalDBM < e.options.SignalFloorDBM {
		score -= e.options.SignalFloorPenalty
	}
	score -= lost
	score += received - bad
	return score
}

// BestInterfaceForLink returns the interface of a link with the highest relative quality.
func (e *Engine) BestInterfaceForLink(link int) (int, error) {
	if err := e.checkLink(link); err != nil {
		return limits.Unassigned, err
	}
	best := limits.Unassigned
	for i := 0; i < e.interfaceCount; i++ {
		radio := &e.interfaces[i]
		if radio.Link != link {
			continue
		}
		if best == limits.Unassigned || radio.RelativeQuality > e.interfaces[best].RelativeQuality {
			best = i
		}
	}
	return best, nil
}
