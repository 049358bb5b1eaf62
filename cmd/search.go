package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/liuran001/SongProxy-Go/proxy/app"
	"github.com/liuran001/SongProxy-Go/proxy/config"
	logpkg "github.com/liuran001/SongProxy-Go/proxy/logger"
	"github.com/liuran001/SongProxy-Go/proxy/platform"
	"github.com/spf13/cobra"
)

var searchBitrate string

// searchResult is printed by the search command. Unlike the HTTP reply it
// shows the resolved upstream URLs.
type searchResult struct {
	Title     string `json:"title"`
	Singer    string `json:"singer"`
	Source    string `json:"source"`
	ID        string `json:"id"`
	Link      string `json:"link"`
	StreamURL string `json:"stream_url"`
	CoverURL  string `json:"cover_url,omitempty"`
	LyricURL  string `json:"lyric_url,omitempty"`
	HasLyric  bool   `json:"has_lyric"`
	Bitrate   string `json:"br"`
}

var searchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "Run one lookup through the source chain and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.Load(configPath)
		if err != nil {
			return err
		}

		raw := searchBitrate
		if raw == "" {
			raw = conf.GetString("BITRATE")
		}
		bitrate, err := platform.ParseBitrate(raw)
		if err != nil {
			return err
		}

		log := logpkg.NewWithWriter(cmd.ErrOrStderr(), logpkg.Options{Level: "warn"})
		orchestrator, err := app.NewOrchestrator(conf, log)
		if err != nil {
			return err
		}

		record, err := orchestrator.Find(cmd.Context(), strings.Join(args, " "), bitrate)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(searchResult{
			Title:     record.Title,
			Singer:    record.Artist,
			Source:    string(record.Source),
			ID:        record.ExternalID,
			Link:      record.DetailLink,
			StreamURL: record.Asset.StreamURL,
			CoverURL:  record.Asset.CoverURL,
			LyricURL:  record.Asset.LyricURL,
			HasLyric:  record.Asset.Lyric != "" || record.Asset.LyricURL != "",
			Bitrate:   bitrate.String(),
		})
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchBitrate, "br", "", "音质: 128k, 320k, flac")
	rootCmd.AddCommand(searchCmd)
}
