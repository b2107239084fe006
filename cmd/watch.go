package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mh-dx/fpv-linkstats/internal/linkstats/engine"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/uplink"
	"github.com/spf13/cobra"
)

type watchOptions struct {
	URL string
}

func newWatchCmd() *cobra.Command {
	o := &watchOptions{URL: "ws://127.0.0.1:9611" + uplink.SnapshotPath}

	cmd := &cobra.Command{
		Use:          "watch",
		Short:        "prints the snapshots published by a running linkstats",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         o.watch,
	}

	cmd.Flags().StringVarP(&o.URL, "url", "u", o.URL, "snapshot websocket URL")

	return cmd
}

func (o *watchOptions) watch(cmd *cobra.Command, _ []string) error {
	subscriber, err := uplink.NewSubscriber(uplink.Options{URL: o.URL}, nil)
	if err != nil {
		return err
	}
	defer subscriber.Close()
	snapshots, err := subscriber.Connect()
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case snapshot, ok := <-snapshots:
			if !ok {
				return nil
			}
			printSnapshot(cmd.OutOrStdout(), snapshot)
		case <-sigs:
			return nil
		}
	}
}

func printSnapshot(out io.Writer, snapshot *engine.Snapshot) {
	fmt.Fprintf(out, "v%d session %s at %d ms, peers %v, command rtt %.1f ms\n",
		snapshot.Version, snapshot.SessionID, snapshot.TakenAtMs, snapshot.Peers, snapshot.CommandRTTMs)
	for _, radio := range snapshot.Interfaces {
		fmt.Fprintf(out, "  if%d link %d: rx %d B/s tx %d B/s, quality %d%% (rel %d), lost %d bad %d, %d dBm\n",
			radio.Index, radio.Link, radio.RxBytesPerSec, radio.TxBytesPerSec, radio.QualityPercent,
			radio.RelativeQuality, radio.LostPackets, radio.BadPackets, radio.LastSignalDBM)
	}
	for _, link := range snapshot.Links {
		fmt.Fprintf(out, "  link%d: rx %d B/s tx %d B/s, rtt %.1f ms (min %.1f, p95 %.1f), tx on if%d, best if%d\n",
			link.Index, link.RxBytesPerSec, link.TxBytesPerSec, link.RTTMs, link.MinRTTMs, link.RTTP95Ms,
			link.TxInterface, link.BestTxInterface)
	}
	for _, peer := range snapshot.PeerStreams {
		fmt.Fprintf(out, "  peer %d: last packet %d ms, max seq %v\n", peer.PeerID, peer.LastPacketMs, peer.MaxSequence)
	}
}
