package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coachpo/tweetstream/config"
	"github.com/coachpo/tweetstream/stream"
)

// streamFlags collects the parameters of a single-stream command.
type streamFlags struct {
	name          string
	endpoint      string
	stallWarnings bool
	track         []string
	follow        []int64
	locations     []float64
	language      []string
	with          string
	replies       string
	count         int
}

// stream converts the flags into a stream entry. Locations arrive as a flat
// list and are grouped into boxes of four.
func (sf *streamFlags) stream(kind stream.Kind) (config.StreamSettings, error) {
	if len(sf.locations)%4 != 0 {
		return config.StreamSettings{}, fmt.Errorf("--locations takes groups of four coordinates (swLon,swLat,neLon,neLat), got %d values", len(sf.locations))
	}
	var boxes [][]float64
	for i := 0; i < len(sf.locations); i += 4 {
		boxes = append(boxes, append([]float64(nil), sf.locations[i:i+4]...))
	}
	name := sf.name
	if name == "" {
		name = kind.String()
	}
	return config.StreamSettings{
		Name:          name,
		Kind:          kind.String(),
		Track:         sf.track,
		Follow:        sf.follow,
		Locations:     boxes,
		Language:      sf.language,
		StallWarnings: sf.stallWarnings,
		With:          sf.with,
		Replies:       sf.replies,
		Count:         sf.count,
	}, nil
}

func newStreamCommand(g *globalFlags, kind stream.Kind, short string, bind func(*cobra.Command, *streamFlags)) *cobra.Command {
	sf := &streamFlags{}
	cmd := &cobra.Command{
		Use:   kind.String(),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := sf.stream(kind)
			if err != nil {
				return err
			}
			settings, err := g.settings(cmd, config.WithEndpoint(kind, sf.endpoint), config.WithStreams(st))
			if err != nil {
				return err
			}
			return g.execute(cmd, settings)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&sf.name, "name", "", "label printed with every line (default: the stream kind)")
	fs.StringVar(&sf.endpoint, "endpoint", "", "override the stream URL")
	fs.BoolVar(&sf.stallWarnings, "stall-warnings", false, "ask the server for stall warnings")
	bind(cmd, sf)
	return cmd
}

func bindSampleFlags(cmd *cobra.Command, sf *streamFlags) {
	cmd.Flags().StringSliceVar(&sf.language, "language", nil, "BCP 47 language codes")
}

func bindFirehoseFlags(cmd *cobra.Command, sf *streamFlags) {
	cmd.Flags().IntVar(&sf.count, "count", 0,
		fmt.Sprintf("backfill up to %d messages; negative values stop once the backlog is delivered", stream.MaxBackfill))
}

func bindFilterFlags(cmd *cobra.Command, sf *streamFlags) {
	fs := cmd.Flags()
	fs.StringSliceVar(&sf.track, "track", nil, "keywords to track")
	fs.Int64SliceVar(&sf.follow, "follow", nil, "user ids to follow")
	fs.Float64SliceVar(&sf.locations, "locations", nil, "bounding boxes as swLon,swLat,neLon,neLat[,...]; use --locations=...")
	fs.StringSliceVar(&sf.language, "language", nil, "BCP 47 language codes")
}

func bindUserFlags(cmd *cobra.Command, sf *streamFlags) {
	fs := cmd.Flags()
	fs.StringVar(&sf.with, "with", "", "user or followings")
	fs.StringVar(&sf.replies, "replies", "", "all to receive every reply")
	fs.StringSliceVar(&sf.track, "track", nil, "keywords to track")
	fs.Float64SliceVar(&sf.locations, "locations", nil, "bounding boxes as swLon,swLat,neLon,neLat[,...]")
}
