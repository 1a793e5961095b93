package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dreamlog-backend/internal/apiclient"
	"dreamlog-backend/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBundle(w io.Writer, b *models.Bundle) {
	if b.Title != "" {
		fmt.Fprintf(w, "%s\n\n", b.Title)
	}
	if b.Transcribed {
		fmt.Fprintf(w, "Transcript: %s\n\n", b.Text)
	}
	if b.Story != "" {
		fmt.Fprintf(w, "%s\n\n", b.Story)
	}
	if b.Analysis != "" {
		fmt.Fprintf(w, "%s\n\n", b.Analysis)
		if len(b.Themes) > 0 {
			fmt.Fprintf(w, "Themes: %s\n", strings.Join(b.Themes, ", "))
		}
		if len(b.Emotions) > 0 {
			fmt.Fprintf(w, "Emotions: %s\n", strings.Join(b.Emotions, ", "))
		}
	}
	for _, img := range b.Images {
		fmt.Fprintln(w, img.String())
	}
	for _, f := range b.Failures {
		fmt.Fprintf(w, "! %s failed (%s): %s\n", f.Step, f.Reason, f.Message)
	}
}

func printRecord(w io.Writer, rec models.DreamRecord) {
	star := " "
	if rec.Favorite {
		star = "*"
	}
	fmt.Fprintf(w, "%s %-38s %s  %s", star, rec.ID, rec.CreatedAt.Local().Format("2006-01-02 15:04"), rec.Title)
	if len(rec.Tags) > 0 {
		fmt.Fprintf(w, "  [%s]", strings.Join(rec.Tags, ", "))
	}
	fmt.Fprintln(w)
}

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
}

func audioMIME(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "audio/") {
		return t
	}
	return "audio/wav"
}

func newGenerateCmd(a *app, flags *rootFlags) *cobra.Command {
	var (
		req       models.GenerateRequest
		audioPath string
		noImages  bool
		save      bool
	)

	cmd := &cobra.Command{
		Use:   "generate [dream text]",
		Short: "Generate a title, story or analysis and illustrations for a dream",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := apiclient.GenerateInput{GenerateRequest: req}
			in.Images = !noImages
			if len(args) == 1 {
				in.DreamText = args[0]
			}
			if audioPath != "" {
				audio, err := os.ReadFile(audioPath)
				if err != nil {
					return fmt.Errorf("failed to read audio: %w", err)
				}
				in.Audio = audio
				in.AudioFilename = filepath.Base(audioPath)
				in.AudioMIME = audioMIME(audioPath)
			}
			if strings.TrimSpace(in.DreamText) == "" && len(in.Audio) == 0 {
				return fmt.Errorf("describe the dream or pass --audio")
			}

			bundle, err := a.client.Generate(cmd.Context(), a.session.Token, in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.json {
				if err := printJSON(out, bundle); err != nil {
					return err
				}
			} else {
				printBundle(out, bundle)
			}

			if !save {
				return nil
			}
			rec, err := a.router.Save(cmd.Context(), a.session, models.RecordFromBundle(bundle, len(in.Audio) > 0))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Saved dream %s\n", rec.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&audioPath, "audio", "", "dream recording to transcribe")
	f.StringVar(&req.Title, "title", "", "use this title instead of generating one")
	f.StringVar(&req.Tone, "tone", "", "story tone: whimsical, mystical, adventurous, gentle, mysterious, comedy")
	f.StringVar(&req.Length, "length", "", "story length: short, medium, long")
	f.StringVar(&req.Mode, "mode", "", "story, analysis or none")
	f.BoolVar(&noImages, "no-images", false, "skip illustrations")
	f.BoolVar(&save, "save", false, "save the result")
	return cmd
}

func newSaveCmd(a *app, flags *rootFlags) *cobra.Command {
	var (
		from     string
		title    string
		favorite bool
	)

	cmd := &cobra.Command{
		Use:   "save [dream text]",
		Short: "Save a dream, or a result printed by generate --json",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rec models.DreamRecord
			switch {
			case from != "":
				data, err := readInput(cmd, from)
				if err != nil {
					return err
				}
				var bundle models.Bundle
				if err := json.Unmarshal(data, &bundle); err != nil {
					return fmt.Errorf("failed to parse generation result: %w", err)
				}
				rec = models.RecordFromBundle(&bundle, false)
			case len(args) == 1:
				rec = models.DreamRecord{OriginalDream: args[0], Tone: models.ToneWhimsical, Length: models.LengthMedium}
			default:
				return fmt.Errorf("pass the dream text or --from")
			}
			if strings.TrimSpace(rec.OriginalDream) == "" {
				return fmt.Errorf("dream text is empty")
			}
			if title != "" {
				rec.Title = title
			}
			rec.Favorite = favorite

			saved, err := a.router.Save(cmd.Context(), a.session, rec)
			if err != nil {
				return err
			}
			if flags.json {
				return printJSON(cmd.OutOrStdout(), saved)
			}
			printRecord(cmd.OutOrStdout(), saved)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "generation result JSON file, - for stdin")
	cmd.Flags().StringVar(&title, "title", "", "dream title")
	cmd.Flags().BoolVar(&favorite, "favorite", false, "mark as favorite")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func parseDate(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, use YYYY-MM-DD or RFC3339", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func newListCmd(a *app, flags *rootFlags) *cobra.Command {
	var (
		q        models.ListQuery
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved dreams, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if q.From, err = parseDate(from, false); err != nil {
				return err
			}
			if q.To, err = parseDate(to, true); err != nil {
				return err
			}

			page, err := a.router.List(cmd.Context(), a.session, q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.json {
				return printJSON(out, page)
			}
			for _, rec := range page.Records {
				printRecord(out, rec)
			}
			fmt.Fprintf(out, "page %d, %d of %d dreams\n", page.Page, len(page.Records), page.Total)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&q.Page, "page", 1, "page number")
	f.IntVar(&q.Limit, "limit", models.DefaultPageSize, "dreams per page")
	f.StringVar(&q.Search, "search", "", "search title, text, story and analysis")
	f.StringSliceVar(&q.Tags, "tag", nil, "only dreams with any of these tags")
	f.StringVar(&from, "from", "", "created on or after (YYYY-MM-DD)")
	f.StringVar(&to, "to", "", "created on or before (YYYY-MM-DD)")
	f.BoolVar(&q.FavoritesOnly, "favorites", false, "favorites only")
	return cmd
}

const (
	generateStory    = "story"
	generateAnalysis = "analysis"
)

func newUpdateCmd(a *app, flags *rootFlags) *cobra.Command {
	var (
		title    string
		favorite bool
		tags     []string
		analysis string
		generate string
		tone     string
		length   string
		noImages bool
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a saved dream, or generate its story or analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch models.RecordPatch
			f := cmd.Flags()
			if f.Changed("title") {
				patch.Title = &title
			}
			if f.Changed("favorite") {
				patch.Favorite = &favorite
			}
			if f.Changed("tags") {
				patch.Tags = &tags
			}
			if f.Changed("analysis") {
				patch.Analysis = &analysis
			}

			if generate != generateStory && (f.Changed("tone") || f.Changed("length") || noImages) {
				return fmt.Errorf("--tone, --length and --no-images need --generate story")
			}
			switch generate {
			case "":
			case generateStory, generateAnalysis:
				rec, err := a.router.Get(cmd.Context(), a.session, args[0])
				if err != nil {
					return err
				}
				if generate == generateStory {
					err = a.storyPatch(cmd, rec, tone, length, !noImages, &patch)
				} else {
					err = a.analysisPatch(cmd, rec, &patch)
				}
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("--generate must be %s or %s", generateStory, generateAnalysis)
			}
			if patch.Empty() {
				return fmt.Errorf("nothing to update")
			}

			rec, err := a.router.Update(cmd.Context(), a.session, args[0], patch)
			if err != nil {
				return err
			}
			if flags.json {
				return printJSON(cmd.OutOrStdout(), rec)
			}
			printRecord(cmd.OutOrStdout(), rec)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&title, "title", "", "new title")
	fl.BoolVar(&favorite, "favorite", false, "favorite flag")
	fl.StringSliceVar(&tags, "tags", nil, "replace tags")
	fl.StringVar(&analysis, "analysis", "", "replace analysis")
	fl.StringVar(&generate, "generate", "", "generate a new story or analysis for the saved dream")
	fl.StringVar(&tone, "tone", "", "story tone, defaults to the dream's tone")
	fl.StringVar(&length, "length", "", "story length, defaults to the dream's length")
	fl.BoolVar(&noImages, "no-images", false, "keep the current illustrations")
	return cmd
}

// storyPatch writes a fresh story for rec and, when images is set, new
// illustrations for it.
func (a *app) storyPatch(cmd *cobra.Command, rec models.DreamRecord, tone, length string, images bool, patch *models.RecordPatch) error {
	req := models.StoryRequest{DreamText: rec.OriginalDream, Tone: string(rec.Tone), Length: string(rec.Length)}
	if tone != "" {
		t, err := models.ParseTone(tone)
		if err != nil {
			return err
		}
		req.Tone = string(t)
		patch.Tone = &t
	}
	if length != "" {
		l, err := models.ParseLength(length)
		if err != nil {
			return err
		}
		req.Length = string(l)
		patch.Length = &l
	}

	story, err := a.client.GenerateStory(cmd.Context(), a.session.Token, req)
	if err != nil {
		return err
	}
	patch.Story = &story
	if !images {
		return nil
	}

	scenes, err := a.client.GenerateImages(cmd.Context(), a.session.Token, models.ImagesRequest{Story: story, Tone: req.Tone})
	if err != nil {
		a.logger.Warn("illustration failed, keeping the story", zap.String("id", rec.ID), zap.Error(err))
		fmt.Fprintf(cmd.ErrOrStderr(), "! images failed: %v\n", err)
		return nil
	}
	patch.Images = &scenes
	return nil
}

// analysisPatch replaces the analysis of rec and adds its themes and emotions
// to the tags already on the record.
func (a *app) analysisPatch(cmd *cobra.Command, rec models.DreamRecord, patch *models.RecordPatch) error {
	resp, err := a.client.AnalyzeDream(cmd.Context(), a.session.Token, rec.OriginalDream)
	if err != nil {
		return err
	}
	patch.Analysis = &resp.Analysis

	base := rec.Tags
	if patch.Tags != nil {
		base = *patch.Tags
	}
	tags := mergeTags(base, resp.Themes, resp.Emotions)
	patch.Tags = &tags
	return nil
}

func mergeTags(groups ...[]string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, g := range groups {
		for _, tag := range g {
			key := strings.ToLower(strings.TrimSpace(tag))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, strings.TrimSpace(tag))
		}
	}
	return out
}

func newShowCmd(a *app, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one saved dream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.router.Get(cmd.Context(), a.session, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.json {
				return printJSON(out, rec)
			}
			printRecord(out, rec)
			fmt.Fprintf(out, "\n%s\n", rec.OriginalDream)
			printBundle(out, &models.Bundle{Story: rec.Story, Analysis: rec.Analysis, Images: rec.Images})
			return nil
		},
	}
}

func newHealthCmd(a *app, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the server and its providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.json {
				return printJSON(out, h)
			}
			fmt.Fprintf(out, "%s (%s)\n", h.Status, h.Timestamp.Local().Format(time.RFC3339))
			names := make([]string, 0, len(h.APIs))
			for name := range h.APIs {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				state := "not configured"
				if h.APIs[name] {
					state = "ok"
				}
				fmt.Fprintf(out, "  %-10s %s\n", name, state)
			}
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved dream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.router.Delete(cmd.Context(), a.session, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted dream %s\n", args[0])
			return nil
		},
	}
}

func newSpeakCmd(a *app) *cobra.Command {
	var (
		req models.SpeechRequest
		out string
	)

	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Narrate text to an mp3 file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Text = args[0]
			audio, err := a.client.SynthesizeSpeech(cmd.Context(), a.session.Token, req)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, audio, 0o644); err != nil {
				return fmt.Errorf("failed to write audio: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", len(audio), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Voice, "voice", "", "narrator voice")
	cmd.Flags().Float64Var(&req.Speed, "speed", 0, "speaking speed, 0.25 to 4.0")
	cmd.Flags().StringVarP(&out, "out", "o", "story.mp3", "output file")
	return cmd
}
