package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"karaoke-backend/internal/app"
	"karaoke-backend/internal/playback"
	"karaoke-backend/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	lyricsFile  string
	songTitle   string
	songArtist  string
	sessionName string
	saveAs      string
)

var practiceCmd = &cobra.Command{
	Use:   "practice [audio-file]",
	Short: "Practice a song line by line in the terminal",
	Long: `practice plays the audio file through the first available external
player (mpv, ffplay or vlc) and records takes with ffmpeg.

Lyrics come from --lyrics (plain text or .lrc), from a saved --session, or
are looked up by --title/--artist (default: the file's tags or name).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		audio := ""
		if len(args) == 1 {
			audio = args[0]
		}
		if err := prepare(cmd, a, audio); err != nil {
			return err
		}

		logFile, err := app.LogToFile(filepath.Join(cfg.App.CacheDir, "karaoke.log"))
		if err != nil {
			return err
		}
		defer logFile.Close()

		go a.AcquireMicrophone(ctx)

		m := a.Machine()
		title := ""
		if src := m.Source(); src != nil {
			title = src.Label()
		}
		model := ui.New(ctx, m, title, m.Timeline().Texts(), m.Snapshot())
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		m.Subscribe(ui.Forward(p))

		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return err
		}
		m.Stop()

		if saveAs != "" {
			if err := a.SaveSession(cmd.Context(), saveAs); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			fmt.Printf("Saved session %q\n", saveAs)
		}
		return nil
	},
}

func init() {
	practiceCmd.Flags().StringVarP(&lyricsFile, "lyrics", "l", "", "lyrics file (plain text or .lrc)")
	practiceCmd.Flags().StringVarP(&songTitle, "title", "t", "", "song title used for lyrics lookup")
	practiceCmd.Flags().StringVarP(&songArtist, "artist", "a", "", "artist used for lyrics lookup")
	practiceCmd.Flags().StringVarP(&sessionName, "session", "s", "", "restore a saved session")
	practiceCmd.Flags().StringVar(&saveAs, "save", "", "save lyrics and timings under this name on exit")
}

// prepare 载入歌词和播放源
func prepare(cmd *cobra.Command, a *app.App, audio string) error {
	ctx := cmd.Context()

	if sessionName != "" {
		sess, err := a.LoadSession(ctx, sessionName)
		if err != nil {
			return err
		}
		if a.Machine().Source() == nil && audio == "" {
			return fmt.Errorf("audio for session %q is not available, pass the file as an argument", sess.Name)
		}
	}

	if audio != "" {
		if err := a.LoadLocal(ctx, audio); err != nil {
			return err
		}
	}
	if a.Machine().Source() == nil {
		return errors.New("no audio file given")
	}
	if sessionName != "" {
		return nil
	}

	if lyricsFile != "" {
		return a.LoadLyricsFile(lyricsFile)
	}

	title, artist := songTitle, songArtist
	if title == "" {
		label := playback.LabelFor(audio)
		if before, after, ok := strings.Cut(label, " - "); ok {
			title = after
			if artist == "" {
				artist = before
			}
		} else {
			title = label
		}
	}
	l, err := a.FetchLyrics(ctx, title, artist)
	if err != nil {
		return fmt.Errorf("lyrics for %q: %w (use --lyrics to load a file)", title, err)
	}
	fmt.Printf("Loaded %d lines from %s\n", a.Machine().Timeline().Len(), l.Source)
	return nil
}
