package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"karaoke-backend/internal/app"
	"karaoke-backend/pkg/music"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the song catalogs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app.SetupLogging(cfg.App.LogLevel)
		m := app.NewMusicManager(cmd.Context(), cfg)

		results := m.Search(cmd.Context(), strings.Join(args, " "))
		if len(results) == 0 {
			fmt.Println("No results.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TITLE\tARTIST\tLENGTH\tSOURCE\tMEDIA")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Title, r.Artist, r.DurationLabel, r.Source, r.MediaRef)
		}
		return w.Flush()
	},
}

var lyricsCmd = &cobra.Command{
	Use:   "lyrics <title> [artist]",
	Short: "Look up lyrics and print them",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app.SetupLogging(cfg.App.LogLevel)
		m := app.NewMusicManager(cmd.Context(), cfg)

		artist := ""
		if len(args) == 2 {
			artist = args[1]
		}
		l := m.GetLyrics(cmd.Context(), args[0], artist)
		if l.Empty() {
			return app.ErrNoLyricsFound
		}

		var rows, texts []string
		if l.Synced() {
			for _, line := range l.Timed {
				rows = append(rows, fmt.Sprintf("[%s] %s", timestamp(line), line.Text))
				texts = append(texts, line.Text)
			}
		} else {
			rows = l.Plain
			texts = l.Plain
		}

		var translated []string
		if translateTo != "" {
			tr, err := app.NewTranslator(cfg.Translate)
			if err != nil {
				return err
			}
			if translated, err = tr.Translate(cmd.Context(), texts, translateTo); err != nil {
				return err
			}
		}

		fmt.Printf("# %s\n", l.Source)
		for i, row := range rows {
			fmt.Println(row)
			if i < len(translated) && translated[i] != "" {
				fmt.Printf("    %s\n", translated[i])
			}
		}
		return nil
	},
}

var translateTo string

func init() {
	lyricsCmd.Flags().StringVar(&translateTo, "translate", "", "also print each line translated to this language (e.g. zh, en)")
}

func timestamp(l music.LyricLine) string {
	total := int(l.Time * 100)
	return fmt.Sprintf("%02d:%02d.%02d", total/6000, total/100%60, total%100)
}
