package engine

import (
	"testing"

	"github.com/mh-dx/fpv-linkstats/internal/linkstats/limits"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/packet"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/radioinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const testPeer = uint32(0xC0FFEE)

// newTestEngine creates an engine whose interface i belongs to ifaceLinks[i];
// limits.Unassigned leaves an interface without link.
func newTestEngine(links int, ifaceLinks ...int) (*Engine, *radioinfo.Static) {
	interfaces := make([]*radioinfo.Info, 0, len(ifaceLinks))
	for _, link := range ifaceLinks {
		interfaces = append(interfaces, &radioinfo.Info{Link: link, SignalDBM: -50})
	}
	provider := radioinfo.NewStatic(links, interfaces)
	engine := New(provider, NewDefaultOptions())
	engine.Reset(500, 100)
	return engine, provider
}

func fullPacket(stream int, seq uint32, peer uint32, size int) []byte {
	return packet.EncodeFull(packet.ComponentVideo, 0, stream, seq, peer, 0, make([]byte, size-packet.FullHeaderSize))
}

func shortPacket(index uint8, peer uint32) []byte {
	return packet.EncodeShort(0, index, 0, peer, []byte{1, 2})
}

func TestIncreasingSequenceHasFullQuality(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	for seq := uint32(1); seq <= 50; seq++ {
		verdict, err := engine.IngestFullPacket(0, fullPacket(1, seq, testPeer, 100), true, seq)
		assert.Nil(testing, err)
		assert.Equal(testing, VerdictNew, verdict)
	}

	// WHEN
	engine.PeriodicTick(100)
	engine.PeriodicTick(500)

	// THEN
	radio, _ := engine.Interface(0)
	assert.Equal(testing, uint64(0), radio.LostPackets)
	assert.Equal(testing, 100, radio.QualityPercent)
	assert.Equal(testing, uint64(50), radio.RxPackets)
}

func TestSamePacketTwiceIsDuplicate(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0, 0)
	data := fullPacket(2, 77, testPeer, 64)

	// WHEN
	first, errFirst := engine.IngestFullPacket(0, data, true, 10)
	second, errSecond := engine.IngestFullPacket(1, data, true, 12)

	// THEN
	assert.Nil(testing, errFirst)
	assert.Nil(testing, errSecond)
	assert.Equal(testing, VerdictNew, first)
	assert.Equal(testing, VerdictDuplicate, second)
	stream, _ := engine.Stream(2)
	assert.Equal(testing, uint64(1), stream.RxPackets)
	assert.Equal(testing, uint64(1), stream.DuplicatePackets)
	link, _ := engine.Link(0)
	assert.Equal(testing, uint64(1), link.RxPackets)
	assert.Equal(testing, uint64(1), link.Streams[2].RxPackets)
	for i, arrival := range []uint32{10, 12} {
		radio, _ := engine.Interface(i)
		assert.Equal(testing, uint64(1), radio.RxPackets)
		assert.Equal(testing, arrival, radio.LastPacketMs)
	}
}

func TestDuplicateOnOtherLinkCountsOnBothLinks(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(2, 0, 1)
	data := fullPacket(1, 5, testPeer, 40)

	// WHEN
	first, _ := engine.IngestFullPacket(0, data, true, 1)
	second, _ := engine.IngestFullPacket(1, data, true, 2)

	// THEN
	assert.Equal(testing, VerdictNew, first)
	assert.Equal(testing, VerdictDuplicate, second)
	linkA, _ := engine.Link(0)
	linkB, _ := engine.Link(1)
	assert.Equal(testing, uint64(1), linkA.RxPackets)
	assert.Equal(testing, uint64(1), linkB.RxPackets)
}

func TestGapCountsLostPackets(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)

	// WHEN
	for _, seq := range []uint32{100, 101, 105} {
		_, err := engine.IngestFullPacket(0, fullPacket(1, seq, testPeer, 32), true, seq)
		assert.Nil(testing, err)
	}

	// THEN
	radio, _ := engine.Interface(0)
	assert.Equal(testing, uint64(3), radio.LostPackets)
	stream, _ := engine.Stream(1)
	assert.Equal(testing, uint64(3), stream.LostPackets)
}

func TestShortHeaderWraparoundHasNoLoss(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)

	// WHEN
	for i, index := range []uint8{254, 255, 0, 1} {
		verdict, err := engine.IngestShortPacket(0, shortPacket(index, testPeer), true, uint32(i))
		assert.Nil(testing, err)
		assert.Equal(testing, VerdictNew, verdict)
	}

	// THEN
	radio, _ := engine.Interface(0)
	assert.Equal(testing, uint64(0), radio.LostPackets)
	assert.Equal(testing, uint32(1), engine.GetMaxReceivedSequenceForStream(testPeer, 0))
}

func TestShortHeaderGap(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	_, _ = engine.IngestShortPacket(0, shortPacket(250, testPeer), true, 0)

	// WHEN
	_, _ = engine.IngestShortPacket(0, shortPacket(2, testPeer), true, 1)

	// THEN
	radio, _ := engine.Interface(0)
	assert.Equal(testing, uint64(7), radio.LostPackets)
}

func TestInterfaceRate(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	for seq := uint32(1); seq <= 4; seq++ {
		_, _ = engine.IngestFullPacket(0, fullPacket(1, seq, testPeer, 250), true, seq)
	}
	radio, _ := engine.Interface(0)
	assert.Equal(testing, uint64(1000), radio.TmpRxBytes)

	// WHEN
	changed := engine.PeriodicTick(500)

	// THEN
	assert.True(testing, changed)
	radio, _ = engine.Interface(0)
	assert.Equal(testing, uint64(2000), radio.RxBytesPerSec)
	assert.Equal(testing, uint64(8), radio.RxPacketsPerSec)
	assert.Equal(testing, uint64(0), radio.TmpRxBytes)
	assert.Equal(testing, uint64(1000), radio.RxBytes)
}

func TestStreamRateIsSmoothed(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	for seq := uint32(1); seq <= 4; seq++ {
		_, _ = engine.IngestFullPacket(0, fullPacket(3, seq, testPeer, 250), true, seq)
	}

	// WHEN
	engine.PeriodicTick(500)
	first, _ := engine.Stream(3)
	engine.PeriodicTick(1000)
	second, _ := engine.Stream(3)

	// THEN
	assert.Equal(testing, uint64(1000), first.RxBytesPerSec)
	assert.Equal(testing, uint64(500), second.RxBytesPerSec)
}

func TestLinkRateUsesLinkCadence(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	_, _ = engine.IngestFullPacket(0, fullPacket(1, 1, testPeer, 500), true, 1)
	assert.Nil(testing, engine.OnPacketSentOnLink(0, 1, 250))

	// WHEN
	engine.PeriodicTick(250)

	// THEN
	link, _ := engine.Link(0)
	assert.Equal(testing, uint64(2000), link.RxBytesPerSec)
	assert.Equal(testing, uint64(1000), link.TxBytesPerSec)
	assert.Equal(testing, uint64(2000), link.Streams[1].RxBytesPerSec)
	radio, _ := engine.Interface(0)
	assert.Equal(testing, uint64(0), radio.RxBytesPerSec)
	assert.Equal(testing, uint64(500), radio.TmpRxBytes)
}

func TestPeerTableFull(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	for peer := uint32(1); peer <= limits.MaxPeers; peer++ {
		verdict, err := engine.IngestFullPacket(0, fullPacket(1, 1, peer, 64), true, peer)
		assert.Nil(testing, err)
		assert.Equal(testing, VerdictNew, verdict)
	}

	// WHEN
	verdict, err := engine.IngestFullPacket(0, fullPacket(1, 1, 999, 64), true, 10)
	again, errAgain := engine.IngestFullPacket(0, fullPacket(1, 1, 999, 64), true, 11)

	// THEN
	assert.Equal(testing, VerdictUntracked, verdict)
	assert.ErrorIs(testing, err, ErrPeerTableFull)
	assert.Equal(testing, VerdictUntracked, again)
	assert.ErrorIs(testing, errAgain, ErrPeerTableFull)
	stream, _ := engine.Stream(1)
	assert.Equal(testing, uint64(limits.MaxPeers+2), stream.RxPackets)
	radio, _ := engine.Interface(0)
	assert.Equal(testing, uint64(limits.MaxPeers+2), radio.RxPackets)
	assert.Len(testing, engine.TrackedPeers(), limits.MaxPeers)
}

func TestInvalidInterfaceDoesNotMutate(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)

	// WHEN
	verdict, err := engine.IngestFullPacket(limits.MaxInterfaces, fullPacket(1, 1, testPeer, 64), true, 99)
	_, errNegative := engine.IngestFullPacket(-1, fullPacket(1, 1, testPeer, 64), true, 99)

	// THEN
	assert.Equal(testing, VerdictNone, verdict)
	assert.ErrorIs(testing, err, ErrInvalidInterfaceIndex)
	assert.ErrorIs(testing, errNegative, ErrInvalidInterfaceIndex)
	assert.Equal(testing, uint32(0), engine.LastPacketReceivedMs())
	assert.Empty(testing, engine.TrackedPeers())
}

func TestMissingRadioInfo(testing *testing.T) {
	// GIVEN
	provider := &radioinfo.MockProvider{}
	provider.On("InterfaceCount").Return(2)
	provider.On("LinkCount").Return(1)
	provider.On("Interface", 0).Return(radioinfo.Info{Link: 0}, true)
	provider.On("Interface", 1).Return(radioinfo.Info{}, false)
	engine := New(provider, NewDefaultOptions())
	engine.Reset(500, 100)

	// WHEN
	verdict, err := engine.IngestFullPacket(1, fullPacket(1, 1, testPeer, 64), true, 5)

	// THEN
	assert.Equal(testing, VerdictNone, verdict)
	assert.ErrorIs(testing, err, ErrMissingRadioInfo)
	radio, _ := engine.Interface(1)
	assert.Equal(testing, uint64(0), radio.RxPackets)
	provider.AssertCalled(testing, "Interface", mock.Anything)
}

func TestUninitializedEngine(testing *testing.T) {
	// GIVEN
	engine := New(radioinfo.NewStatic(1, []*radioinfo.Info{{Link: 0}}), NewDefaultOptions())
	var nilEngine *Engine

	// WHEN
	_, err := engine.IngestFullPacket(0, fullPacket(1, 1, testPeer, 64), true, 1)
	_, errNil := nilEngine.IngestShortPacket(0, shortPacket(1, testPeer), true, 1)

	// THEN
	assert.ErrorIs(testing, err, ErrUninitialized)
	assert.ErrorIs(testing, errNil, ErrUninitialized)
	assert.False(testing, engine.PeriodicTick(1000))
	assert.Nil(testing, engine.Snapshot())
}

func TestUnassignedLinkKeepsInterfaceBookkeeping(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, limits.Unassigned)

	// WHEN
	verdict, err := engine.IngestFullPacket(0, fullPacket(1, 1, testPeer, 64), true, 42)

	// THEN
	assert.Equal(testing, VerdictNone, verdict)
	assert.ErrorIs(testing, err, ErrUnassignedLink)
	radio, _ := engine.Interface(0)
	assert.Equal(testing, uint64(1), radio.RxPackets)
	assert.Equal(testing, uint32(42), radio.LastPacketMs)
	assert.Equal(testing, -50, radio.LastSignalDBM)
	stream, _ := engine.Stream(1)
	assert.Equal(testing, uint64(0), stream.RxPackets)
}

func TestCorruptedPacketCountsAsBad(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)

	// WHEN
	verdict, err := engine.IngestFullPacket(0, fullPacket(1, 1, testPeer, 64), false, 1)
	empty, errEmpty := engine.IngestFullPacket(0, nil, true, 2)

	// THEN
	assert.Nil(testing, err)
	assert.Nil(testing, errEmpty)
	assert.Equal(testing, VerdictCorrupted, verdict)
	assert.Equal(testing, VerdictCorrupted, empty)
	radio, _ := engine.Interface(0)
	assert.Equal(testing, uint64(2), radio.BadPackets)
	assert.Equal(testing, uint64(0), radio.LostPackets)
	stream, _ := engine.Stream(1)
	assert.Equal(testing, uint64(0), stream.RxPackets)
}

func TestQualityWithBadAndLost(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	for _, seq := range []uint32{1, 2, 3, 4, 5, 6, 7, 8, 12} {
		_, _ = engine.IngestFullPacket(0, fullPacket(1, seq, testPeer, 64), true, seq)
	}
	_, _ = engine.IngestFullPacket(0, fullPacket(1, 13, testPeer, 64), false, 20)

	// WHEN
	engine.PeriodicTick(100)
	engine.PeriodicTick(500)

	// THEN
	// received 10 (one bad), lost 3: 100 - 100*4/13 = 70
	radio, _ := engine.Interface(0)
	assert.Equal(testing, 70, radio.QualityPercent)
	// 70 - 50 (signal) - 3 (lost) + 9 (received - bad)
	assert.Equal(testing, 26, radio.RelativeQuality)
}

func TestRelativeQualitySignalEncodings(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)

	// WHEN
	positive := engine.relativeQuality(100, 40, 10, 0, 0)
	negative := engine.relativeQuality(100, -40, 10, 0, 0)
	belowFloor := engine.relativeQuality(100, -90, 10, 0, 0)

	// THEN
	assert.Equal(testing, 70, positive)
	assert.Equal(testing, 70, negative)
	assert.Equal(testing, 100-90-20+10, belowFloor)
}

func TestQualityWithoutTrafficIsZero(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)

	// WHEN
	engine.PeriodicTick(500)

	// THEN
	radio, _ := engine.Interface(0)
	assert.Equal(testing, 0, radio.QualityPercent)
}

func TestQualityWindowSize(testing *testing.T) {
	engine, _ := newTestEngine(1, 0)
	assert.Equal(testing, 20, engine.qualitySlices())
	engine.Reset(500, 1000)
	assert.Equal(testing, 3, engine.qualitySlices())
	engine.Reset(500, 1)
	assert.Equal(testing, limits.MaxGraphSlices-1, engine.qualitySlices())
}

func TestHistorySliceShift(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	for seq := uint32(1); seq <= 3; seq++ {
		_, _ = engine.IngestFullPacket(0, fullPacket(1, seq, testPeer, 64), true, seq*10)
	}
	engine.PeriodicTick(100)
	before, _ := engine.Interface(0)
	_, _ = engine.IngestFullPacket(0, fullPacket(1, 9, testPeer, 64), true, 150)

	// WHEN
	engine.PeriodicTick(200)

	// THEN
	after, _ := engine.Interface(0)
	assert.Equal(testing, uint16(3), before.Slices.Received[0])
	assert.Equal(testing, uint16(10), before.Slices.MaxGapMs[0])
	assert.Equal(testing, uint16(1), after.Slices.Received[0])
	assert.Equal(testing, uint16(5), after.Slices.Lost[0])
	assert.Equal(testing, uint16(120), after.Slices.MaxGapMs[0])
	for k := 1; k < limits.MaxGraphSlices; k++ {
		assert.Equal(testing, before.Slices.Received[k-1], after.Slices.Received[k])
		assert.Equal(testing, before.Slices.MaxGapMs[k-1], after.Slices.MaxGapMs[k])
	}
}

func TestSliceValuesSaturate(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	_, _ = engine.IngestFullPacket(0, fullPacket(1, 1, testPeer, 64), true, 1)
	_, _ = engine.IngestFullPacket(0, fullPacket(1, 100001, testPeer, 64), true, 70001)
	corrupted := fullPacket(1, 100002, testPeer, 64)
	for i := 0; i < 70000; i++ {
		_, _ = engine.IngestFullPacket(0, corrupted, false, 70001)
	}

	// WHEN
	engine.PeriodicTick(70001)

	// THEN
	radio, _ := engine.Interface(0)
	assert.Equal(testing, uint64(99999), radio.LostPackets)
	assert.Equal(testing, uint64(70000), radio.BadPackets)
	assert.Equal(testing, uint16(limits.SliceValueMax), radio.Slices.Received[0])
	assert.Equal(testing, uint16(limits.SliceValueMax), radio.Slices.Bad[0])
	assert.Equal(testing, uint16(limits.SliceValueMax), radio.Slices.Lost[0])
	assert.Equal(testing, uint16(limits.SliceValueMax), radio.Slices.MaxGapMs[0])
	assert.Equal(testing, uint16(0), radio.Slices.Received[1])
}

func TestClockRolloverFiresTick(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	assert.True(testing, engine.PeriodicTick(1000))
	assert.False(testing, engine.PeriodicTick(1001))
	_, _ = engine.IngestFullPacket(0, fullPacket(1, 1, testPeer, 100), true, 1002)

	// WHEN
	changed := engine.PeriodicTick(5)

	// THEN
	assert.True(testing, changed)
	radio, _ := engine.Interface(0)
	assert.Equal(testing, uint64(200), radio.RxBytesPerSec)
	assert.Equal(testing, uint64(0), radio.TmpRxBytes)
}

func TestLateArrivalIsRecovered(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0, 0)
	_, _ = engine.IngestFullPacket(0, fullPacket(1, 1, testPeer, 64), true, 1)
	_, _ = engine.IngestFullPacket(0, fullPacket(1, 3, testPeer, 64), true, 2)

	// WHEN
	late, err := engine.IngestFullPacket(1, fullPacket(1, 2, testPeer, 64), true, 3)

	// THEN
	assert.Nil(testing, err)
	assert.Equal(testing, VerdictNew, late)
	stream, _ := engine.Stream(1)
	assert.Equal(testing, uint64(1), stream.LostPackets)
	assert.Equal(testing, uint64(1), stream.RecoveredPackets)
	assert.Equal(testing, uint64(3), stream.RxPackets)
	assert.Equal(testing, uint32(1<<packet.StreamIndexShift|3), engine.GetMaxReceivedSequenceForStream(testPeer, 1))
}

func TestSenderRestartIsNotRecovered(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	for seq := uint32(1); seq <= 100; seq++ {
		_, _ = engine.IngestFullPacket(0, fullPacket(1, seq, testPeer, 64), true, seq)
	}

	// WHEN
	verdicts := make([]Verdict, 0, 50)
	for seq := uint32(1); seq <= 50; seq++ {
		verdict, _ := engine.IngestFullPacket(0, fullPacket(1, seq, testPeer, 64), true, 5000+seq)
		verdicts = append(verdicts, verdict)
	}

	// THEN
	for _, verdict := range verdicts {
		assert.Equal(testing, VerdictNew, verdict)
	}
	stream, _ := engine.Stream(1)
	assert.Equal(testing, uint64(150), stream.RxPackets)
	assert.Equal(testing, uint64(0), stream.LostPackets)
	assert.Equal(testing, uint64(0), stream.RecoveredPackets)
	assert.Equal(testing, uint32(1<<packet.StreamIndexShift|50), engine.GetMaxReceivedSequenceForStream(testPeer, 1))
}

func TestRecoveredNeverExceedsLost(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	for _, seq := range []uint32{10, 20} {
		_, _ = engine.IngestFullPacket(0, fullPacket(1, seq, testPeer, 64), true, seq)
	}

	// WHEN
	for seq := uint32(1); seq <= 19; seq++ {
		_, _ = engine.IngestFullPacket(0, fullPacket(1, seq, testPeer, 64), true, 30)
	}

	// THEN
	stream, _ := engine.Stream(1)
	assert.Equal(testing, uint64(9), stream.LostPackets)
	assert.Equal(testing, uint64(9), stream.RecoveredPackets)
}

func TestShortHeaderResumeAfterOutage(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	for index := 0; index <= 10; index++ {
		_, _ = engine.IngestShortPacket(0, shortPacket(uint8(index), testPeer), true, uint32(index))
	}
	now := uint32(2150)
	for index := 150; index < 256+10; index++ {
		verdict, _ := engine.IngestShortPacket(0, shortPacket(uint8(index), testPeer), true, now)
		assert.Equal(testing, VerdictNew, verdict)
		now++
	}

	// WHEN
	verdict, err := engine.IngestShortPacket(0, shortPacket(10, testPeer), true, now)

	// THEN
	assert.Nil(testing, err)
	assert.Equal(testing, VerdictNew, verdict)
	stream, _ := engine.Stream(0)
	assert.Equal(testing, uint64(0), stream.DuplicatePackets)
	assert.Equal(testing, uint64(0), stream.LostPackets)
	assert.Equal(testing, uint64(0), stream.RecoveredPackets)
	assert.Equal(testing, uint32(10), engine.GetMaxReceivedSequenceForStream(testPeer, 0))
	radio, _ := engine.Interface(0)
	assert.Equal(testing, uint64(139), radio.LostPackets)
}

func TestResetStreamsRxHistory(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	for _, peer := range []uint32{1, 2, 3} {
		_, _ = engine.IngestFullPacket(0, fullPacket(1, 10, peer, 64), true, 1)
	}

	// WHEN
	engine.ResetStreamsRxHistoryForAllPeersExcept(2)
	verdict, _ := engine.IngestFullPacket(0, fullPacket(1, 10, 1, 64), true, 2)
	engine.ResetStreamsRxHistoryForPeer(2)

	// THEN
	assert.Equal(testing, VerdictNew, verdict)
	assert.Equal(testing, []uint32{1}, engine.TrackedPeers())
	assert.Equal(testing, uint32(0), engine.GetMaxReceivedSequenceForStream(2, 1))
}

func TestPairingSessionForgetsPeers(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	_, _ = engine.IngestFullPacket(0, fullPacket(1, 10, testPeer, 64), true, 1)
	previous := engine.SessionID()

	// WHEN
	session := engine.StartPairingSession()

	// THEN
	assert.NotEqual(testing, previous, session)
	assert.Empty(testing, engine.TrackedPeers())
}

func TestLinkRoundTrip(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	for i := 0; i < 9; i++ {
		assert.Nil(testing, engine.SetLinkRoundTripDelay(0, 10, uint32(i)))
	}

	// WHEN
	err := engine.SetLinkRoundTripDelay(0, 100, 9)
	errInvalid := engine.SetLinkRoundTripDelay(2, 10, 10)

	// THEN
	assert.Nil(testing, err)
	assert.ErrorIs(testing, errInvalid, ErrInvalidLinkIndex)
	link, _ := engine.Link(0)
	assert.InDelta(testing, 19.0, link.RTTMs, 1e-9)
	assert.InDelta(testing, 10.0, link.MinRTTMs, 1e-9)
	assert.Equal(testing, uint32(0), link.MinRTTUpdatedMs)
	assert.True(testing, link.HasRTT)
	assert.Equal(testing, uint32(9), link.LastRTTSampleMs)
	assert.InDelta(testing, 28.46, link.RTTStdDevMs, 0.01)
	assert.InDelta(testing, 10.0, link.RTTP50Ms, 9.5)
	assert.GreaterOrEqual(testing, link.RTTP95Ms, link.RTTP50Ms)
	assert.Equal(testing, link.RTTP50Ms, engine.LinkRoundTripQuantile(0, 0.5))
	assert.Equal(testing, 0.0, engine.LinkRoundTripQuantile(limits.MaxLinks, 0.5))
}

func TestCommandRoundTrip(testing *testing.T) {
	engine, _ := newTestEngine(1, 0)
	engine.SetCommandRoundTripDelay(30)
	engine.SetCommandRoundTripDelay(50)
	assert.InDelta(testing, 40.0, engine.CommandRoundTrip(), 1e-9)
}

func TestSetters(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0, 0)

	// WHEN
	errTx := engine.SetTxInterfaceForLink(0, 1)
	errFreq := engine.SetInterfaceCurrentFrequency(1, 5805000)
	errSent := engine.OnPacketSentOnInterface(1, 300)
	errStream := engine.OnPacketSentOnStream(limits.MaxStreams, 10)

	// THEN
	assert.Nil(testing, errTx)
	assert.Nil(testing, errFreq)
	assert.Nil(testing, errSent)
	assert.ErrorIs(testing, errStream, ErrInvalidStreamIndex)
	link, _ := engine.Link(0)
	assert.Equal(testing, 1, link.TxInterface)
	radio, _ := engine.Interface(1)
	assert.Equal(testing, uint32(5805000), radio.FrequencyKhz)
	assert.Equal(testing, uint64(300), radio.TxBytes)
}

func TestBestInterfaceForLink(testing *testing.T) {
	// GIVEN
	engine, provider := newTestEngine(1, 0, 0)
	provider.UpdateReadings(1, -90, 0, true)
	for seq := uint32(1); seq <= 10; seq++ {
		_, _ = engine.IngestFullPacket(0, fullPacket(1, seq, testPeer, 64), true, seq)
		_, _ = engine.IngestFullPacket(1, fullPacket(1, seq, testPeer, 64), true, seq)
	}
	engine.PeriodicTick(100)
	engine.PeriodicTick(500)

	// WHEN
	best, err := engine.BestInterfaceForLink(0)

	// THEN
	assert.Nil(testing, err)
	assert.Equal(testing, 0, best)
}

func TestSnapshotCarriesLinkChoiceAndPeerStreams(testing *testing.T) {
	// GIVEN
	engine, provider := newTestEngine(1, 0, 0)
	initial := engine.Snapshot()
	provider.UpdateReadings(0, -90, 0, true)
	for seq := uint32(1); seq <= 10; seq++ {
		_, _ = engine.IngestFullPacket(0, fullPacket(1, seq, testPeer, 64), true, seq)
		_, _ = engine.IngestFullPacket(1, fullPacket(1, seq, testPeer, 64), true, seq)
	}

	// WHEN
	engine.PeriodicTick(100)
	engine.PeriodicTick(500)

	// THEN
	snapshot := engine.Snapshot()
	assert.Equal(testing, limits.Unassigned, initial.Links[0].BestTxInterface)
	assert.Empty(testing, initial.PeerStreams)
	assert.Equal(testing, 1, snapshot.Links[0].BestTxInterface)
	assert.Len(testing, snapshot.PeerStreams, 1)
	peer := snapshot.PeerStreams[0]
	assert.Equal(testing, testPeer, peer.PeerID)
	assert.Equal(testing, uint32(10), peer.LastPacketMs)
	assert.Len(testing, peer.MaxSequence, limits.MaxStreams)
	assert.Equal(testing, uint32(1<<packet.StreamIndexShift|10), peer.MaxSequence[1])
	assert.Equal(testing, uint32(0), peer.MaxSequence[2])
}

func TestControllerHistoryAggregation(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	for _, seq := range []uint32{1, 2, 5} {
		_, _ = engine.IngestFullPacket(0, fullPacket(1, seq, testPeer, 64), true, seq)
	}
	engine.AddVideoBlocks(10, 2, 3)
	engine.AddVideoBlocks(5, 0, 1)
	engine.AddRetransmissionRequests(4)

	// WHEN
	engine.PeriodicTick(200)
	engine.PeriodicTick(400)

	// THEN
	history := engine.ControllerHistory()
	assert.Equal(testing, uint32(400), history.LastUpdateMs)
	assert.Equal(testing, uint16(15), history.VideoBlocksClean[1])
	assert.Equal(testing, uint16(2), history.VideoBlocksReconstructed[1])
	assert.Equal(testing, uint8(3), history.VideoMaxECUsed[1])
	assert.Equal(testing, uint16(4), history.RetransmissionRequests[1])
	assert.Equal(testing, uint8(60), history.StreamQuality[1][1])
	assert.Equal(testing, uint16(0), history.VideoBlocksClean[0])
	assert.Equal(testing, uint8(0), history.StreamQuality[1][0])
	summary := engine.Snapshot().Controller
	assert.Len(testing, summary.InterfaceQuality, 1)
	assert.Equal(testing, uint16(15), summary.VideoBlocksClean[1])
}

func TestSnapshotIsVersionedCopy(testing *testing.T) {
	// GIVEN
	engine, _ := newTestEngine(1, 0)
	initial := engine.Snapshot()
	_, _ = engine.IngestFullPacket(0, fullPacket(1, 1, testPeer, 64), true, 1)

	// WHEN
	engine.PeriodicTick(100)
	next := engine.Snapshot()
	_, _ = engine.IngestFullPacket(0, fullPacket(1, 2, testPeer, 64), true, 101)

	// THEN
	assert.Equal(testing, initial.Version+1, next.Version)
	assert.Equal(testing, next.Version, engine.Version())
	assert.Equal(testing, uint64(0), initial.Interfaces[0].RxPackets)
	assert.Equal(testing, uint64(1), next.Interfaces[0].RxPackets)
	assert.Equal(testing, []uint32{testPeer}, next.Peers)
	assert.Equal(testing, engine.SessionID().String(), next.SessionID)
	assert.Len(testing, next.Streams, limits.MaxStreams)
	assert.Len(testing, next.Links, 1)
}
