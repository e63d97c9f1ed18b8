package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ivoronin/duphound/internal/orchestrator"
	"github.com/ivoronin/duphound/internal/progress"
	"github.com/ivoronin/duphound/internal/types"
)

// scanOptions holds the CLI flags for the scan command; bound onto
// types.Config at run time rather than threaded through individually.
type scanOptions struct {
	minSizeStr        string
	extensions        []string
	includes          []string
	excludes          []string
	mode              string
	protectSystem     bool
	followSymlinks    bool
	skipHidden        bool
	byteVerify        bool
	detectFolderDup   bool
	folderDupRecurse  bool
	similarImage      bool
	mixedMode         bool
	similarity        float64
	strictMode        bool
	strictMaxErrors   int
	incrementalRescan bool
	baselineSession   string
	noProgress        bool
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{
		minSizeStr: "1",
		mode:       string(types.ModeContent),
		similarity: 0.9,
	}

	cmd := &cobra.Command{
		Use:   "scan [roots...]",
		Short: "Scan roots for duplicate, near-duplicate, and redundant files",
		Long: `Walks the given roots, hashes candidate duplicates, and groups them by
content, name, perceptual image similarity, or shared folder contents,
printing the v2 JSON result to stdout.

The scan is a persisted session: if interrupted (Ctrl-C or SIGTERM), it
pauses and can be continued later with "duphound resume <session-id>".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.minSizeStr, "min-size", "m", opts.minSizeStr, "Minimum file size (e.g., 100, 1K, 10M, 1G)")
	cmd.Flags().StringSliceVar(&opts.extensions, "ext", nil, "Restrict to these extensions (case-insensitive)")
	cmd.Flags().StringSliceVarP(&opts.includes, "include", "i", nil, "Glob patterns a file must match")
	cmd.Flags().StringSliceVarP(&opts.excludes, "exclude", "e", nil, "Glob patterns to exclude")
	cmd.Flags().StringVar(&opts.mode, "mode", opts.mode, "Grouping mode: content, content_and_name, name_only")
	cmd.Flags().BoolVar(&opts.protectSystem, "protect-system", true, "Skip well-known OS/system directories")
	cmd.Flags().BoolVar(&opts.followSymlinks, "follow-symlinks", false, "Follow symlinked directories during the walk")
	cmd.Flags().BoolVar(&opts.skipHidden, "skip-hidden", false, "Skip dotfiles and OS housekeeping files")
	cmd.Flags().BoolVar(&opts.byteVerify, "byte-verify", false, "Byte-compare full-hash matches before grouping")
	cmd.Flags().BoolVar(&opts.detectFolderDup, "folder-dup", false, "Detect directories with identical contents")
	cmd.Flags().BoolVar(&opts.folderDupRecurse, "folder-dup-recursive", false, "Folder-dup manifests include all descendants, not just direct children")
	cmd.Flags().BoolVar(&opts.similarImage, "similar-image", false, "Cluster visually similar images by perceptual hash")
	cmd.Flags().BoolVar(&opts.mixedMode, "mixed-mode", false, "Let images also participate in content/name grouping alongside --similar-image (default: image files are reserved for the similarity cluster)")
	cmd.Flags().Float64Var(&opts.similarity, "similarity", opts.similarity, "Similarity threshold in (0,1] for --similar-image")
	cmd.Flags().BoolVar(&opts.strictMode, "strict", false, "Mark the scan partial (results still printed) if errors exceed --strict-max-errors")
	cmd.Flags().IntVar(&opts.strictMaxErrors, "strict-max-errors", 0, "Error budget for --strict")
	cmd.Flags().BoolVar(&opts.incrementalRescan, "incremental", false, "Classify files against --baseline-session and skip rehashing unchanged ones")
	cmd.Flags().StringVar(&opts.baselineSession, "baseline-session", "", "Completed session ID to diff this scan against (requires --incremental)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable the stderr progress bar")

	return cmd
}

func runScan(cmd *cobra.Command, args []string, opts *scanOptions) error {
	minSize, err := parseSize(opts.minSizeStr)
	if err != nil {
		return fmt.Errorf("invalid --min-size: %w", err)
	}
	if err := validatePatterns(opts.includes); err != nil {
		return fmt.Errorf("invalid --include: %w", err)
	}
	if err := validatePatterns(opts.excludes); err != nil {
		return fmt.Errorf("invalid --exclude: %w", err)
	}

	roots, err := absRoots(args)
	if err != nil {
		return err
	}
	workers, err := workerCount(cmd)
	if err != nil {
		return err
	}

	cfg := types.Config{
		Roots:             roots,
		MinSize:           minSize,
		Extensions:        opts.extensions,
		IncludePatterns:   opts.includes,
		ExcludePatterns:   opts.excludes,
		ProtectSystem:     opts.protectSystem,
		FollowSymlinks:    opts.followSymlinks,
		SkipHidden:        opts.skipHidden,
		Mode:              types.Mode(opts.mode),
		ByteVerify:        opts.byteVerify,
		DetectFolderDup:   opts.detectFolderDup,
		FolderDupRecurse:  opts.folderDupRecurse,
		SimilarImage:      opts.similarImage,
		MixedMode:         opts.mixedMode,
		Similarity:        opts.similarity,
		StrictMode:        opts.strictMode,
		StrictMaxErrors:   opts.strictMaxErrors,
		IncrementalRescan: opts.incrementalRescan,
		BaselineSession:   opts.baselineSession,
		MaxWorkers:        workers,
	}

	st, err := openStore(cmd)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	bar := progress.New(!opts.noProgress)
	handle := orchestrator.Run(cfg, st, bar.Callbacks())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; ok {
			handle.Cancel()
		}
	}()
	defer signal.Stop(sigCh)

	sig := <-handle.Done()
	return reportSignal(bar, sig)
}

// reportSignal renders the orchestrator's completion signal: the v2 JSON
// result to stdout on success, or a diagnostic to stderr otherwise.
func reportSignal(bar *progress.Bar, sig types.Signal) error {
	switch sig.Kind {
	case types.SignalFinished:
		bar.Finish(fmt.Sprintf("found %d group(s)", len(sig.Result.Groups)))
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sig.Result)
	case types.SignalCancelled:
		bar.Finish(fmt.Sprintf("scan paused; resume with \"duphound resume %s\"", sig.SessionID))
		return nil
	default:
		return fmt.Errorf("scan failed: %w", sig.Err)
	}
}
