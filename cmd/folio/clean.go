package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/cleanup"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/ingest"
	"github.com/jackzampolin/folio/internal/types"
)

// cleanReport is written next to the cleaned text.
type cleanReport struct {
	Source   string          `json:"source" yaml:"source"`
	Title    string          `json:"title,omitempty" yaml:"title,omitempty"`
	Author   string          `json:"author,omitempty" yaml:"author,omitempty"`
	Format   string          `json:"format" yaml:"format"`
	Config   cleanup.Config  `json:"config" yaml:"config"`
	Chapters []types.Chapter `json:"chapters" yaml:"chapters"`
	Flags    []types.Flag    `json:"flags" yaml:"flags"`
}

var (
	cleanOutDir          string
	cleanLocale          string
	cleanPreserveArchaic bool
	cleanMinChapterChars int
	cleanReportFormat    string
)

var cleanCmd = &cobra.Command{
	Use:   "clean <file>",
	Short: "Run the cleanup engine on a file without a server",
	Long: `Run the deterministic cleanup engine on a text or EPUB file.

Nothing is stored. The cleaned text is written to <out-dir>/<name>.txt and
the detected chapters and flags to <out-dir>/<name>.report.yaml.
Defaults come from the config file's cleanup section.

Examples:
  folio clean pg1342.txt
  folio clean --locale fr --out-dir ./out les-miserables.epub`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		cfgMgr, err := loadConfig(h)
		if err != nil {
			return err
		}
		cfg, err := cfgMgr.Get().CleanupDefaults()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("locale") {
			cfg.Locale = cleanLocale
		}
		if flags.Changed("preserve-archaic") {
			cfg.PreserveArchaic = cleanPreserveArchaic
		}
		if flags.Changed("min-chapter-chars") {
			cfg.MinChapterChars = cleanMinChapterChars
		}

		src, err := ingest.ReadFile(args[0])
		if err != nil {
			return err
		}
		res, err := cleanup.Run(src.Body(), cfg)
		if err != nil {
			return err
		}

		outDir := cleanOutDir
		if outDir == "" {
			outDir = h.ExportsDir()
		}
		if err := home.EnsureDir(outDir); err != nil {
			return err
		}
		name := filepath.Base(args[0])
		name = name[:len(name)-len(filepath.Ext(name))]

		textPath := filepath.Join(outDir, name+".txt")
		if err := os.WriteFile(textPath, []byte(res.NormalizedText), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", textPath, err)
		}
		reportPath := filepath.Join(outDir, name+".report."+cleanReportFormat)
		report := cleanReport{
			Source:   args[0],
			Title:    src.Title,
			Author:   src.Author,
			Format:   string(src.Format),
			Config:   cfg,
			Chapters: res.Chapters,
			Flags:    res.Flags,
		}
		if err := api.OutputToFile(report, reportPath); err != nil {
			return err
		}

		fmt.Printf("Chapters: %d\n", len(res.Chapters))
		fmt.Printf("Flags:    %d\n", len(res.Flags))
		fmt.Printf("Text:     %s\n", textPath)
		fmt.Printf("Report:   %s\n", reportPath)
		return nil
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <file>",
	Short: "Print the normalized document for a text or EPUB file",
	Long: `Print the sections, full text and warnings the source normalizer
produces for a file. EPUB markup is converted to annotated markdown.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := ingest.ReadFile(args[0])
		if err != nil {
			return err
		}
		return api.Output(src.Document)
	},
}

func init() {
	cleanCmd.Flags().StringVar(&cleanOutDir, "out-dir", "", "Output directory (default: <home>/exports)")
	cleanCmd.Flags().StringVar(&cleanLocale, "locale", cleanup.LocaleEN, "Punctuation locale: en or fr")
	cleanCmd.Flags().BoolVar(&cleanPreserveArchaic, "preserve-archaic", false, "Keep archaic spellings and ligatures")
	cleanCmd.Flags().IntVar(&cleanMinChapterChars, "min-chapter-chars", 0, "Flag chapters shorter than this")
	cleanCmd.Flags().StringVar(&cleanReportFormat, "report", "yaml", "Report format: yaml or json")

	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(normalizeCmd)
}
