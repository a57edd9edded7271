package service

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/MimeLyc/vn-script-translator/internal/jobs"
	"github.com/MimeLyc/vn-script-translator/internal/langguard"
	"github.com/MimeLyc/vn-script-translator/internal/script"
	"github.com/MimeLyc/vn-script-translator/internal/segment"
	"github.com/MimeLyc/vn-script-translator/internal/translator"
	"github.com/MimeLyc/vn-script-translator/pkg/file"
	"github.com/MimeLyc/vn-script-translator/pkg/log"
)

// customBlockOpener matches "translate <language> <identifier>:" statements whose
// single nested line carries the dialogue.
var customBlockOpener = regexp.MustCompile(`^\s*translate\s+\S+\s+(\S+?)\s*:\s*$`)

// codeBlockNames are translate blocks holding code or string tables, never a
// dialogue line.
var codeBlockNames = map[string]bool{
	"python":  true,
	"style":   true,
	"strings": true,
}

func isCustomBlockOpener(text string) bool {
	m := customBlockOpener.FindStringSubmatch(text)
	return m != nil && !codeBlockNames[m[1]]
}

// FileProcessor rewrites the dialogue of one script file in place.
type FileProcessor struct {
	reader      *script.Reader
	classifier  *script.Classifier
	guard       *langguard.Guard
	extractor   *segment.Extractor
	segmentOpts []segment.Option
	backupExt   string
}

type ProcessorOption func(*FileProcessor)

func WithReader(r *script.Reader) ProcessorOption {
	return func(p *FileProcessor) { p.reader = r }
}

func WithClassifier(c *script.Classifier) ProcessorOption {
	return func(p *FileProcessor) { p.classifier = c }
}

func WithSegmentOptions(opts ...segment.Option) ProcessorOption {
	return func(p *FileProcessor) { p.segmentOpts = append(p.segmentOpts, opts...) }
}

// WithBackupExt keeps the original bytes of every rewritten script next to it,
// e.g. "game/script.rpy" -> "game/script.bak". An existing backup is never
// overwritten.
func WithBackupExt(ext string) ProcessorOption {
	return func(p *FileProcessor) { p.backupExt = ext }
}

func NewFileProcessor(backend translator.Backend, detector langguard.Detector, opts ...ProcessorOption) *FileProcessor {
	p := &FileProcessor{
		reader:     script.NewReader(),
		classifier: script.NewClassifier(),
		guard:      langguard.NewGuard(detector),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.extractor = segment.NewExtractor(backend, p.segmentOpts...)
	return p
}

// Process translates the dialogue lines of the script at path and writes the
// file back in one rename when its bytes changed. Segment failures are annotated inline; only I/O and
// validation problems are returned as errors.
func (p *FileProcessor) Process(
	ctx context.Context,
	path string,
	cfg translator.TranslationConfig,
	target string,
	progress jobs.ProgressFunc,
) (*jobs.FileResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(err, ErrValidation, "invalid translation config").WithContext("path", path)
	}
	if strings.TrimSpace(target) == "" {
		return nil, NewError(ErrValidation, "target language is required").WithContext("path", path)
	}
	if progress == nil {
		progress = func(int) {}
	}

	startedAt := time.Now()
	src, err := p.reader.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, WrapError(err, ErrFileNotFound, "script not found").WithContext("path", path)
		}
		return nil, WrapError(err, ErrFileRead, "failed to read script").WithContext("path", path)
	}
	if src.Lossy {
		log.Warn("No configured encoding decodes %s cleanly, undecodable bytes were replaced", path)
	}

	result := &jobs.FileResult{
		Path:       path,
		Encoding:   src.Encoding,
		Lossy:      src.Lossy,
		TotalLines: len(src.Lines),
		StartedAt:  startedAt,
	}

	var out []string
	err = SafeExecute(func() error {
		out = p.rewrite(ctx, src.Lines, cfg, target, progress, result)
		return nil
	})
	if err != nil {
		return nil, WrapError(err, ErrUnknown, "failed to process script").WithContext("path", path)
	}

	data := script.Encode(out, src.BOM, src.TrailingNewline)
	if bytes.Equal(data, src.Raw) {
		log.Debug("Nothing to rewrite in %s", path)
	} else {
		if p.backupExt != "" {
			if err := p.backup(path, src.Raw); err != nil {
				return nil, WrapError(err, ErrFileWrite, "failed to write backup").WithContext("path", path)
			}
		}
		if err := script.WriteAtomic(path, data); err != nil {
			return nil, WrapError(err, ErrFileWrite, "failed to write script").WithContext("path", path)
		}
	}

	result.Status = jobs.StatusSuccess
	result.UnchangedLines = result.TotalLines - result.TranslatedLines
	result.FinishedAt = time.Now()
	log.Info("Translated %s: %d/%d lines changed, %d failed segments",
		path, result.TranslatedLines, result.TotalLines, result.FailedSegments)
	return result, nil
}

func (p *FileProcessor) rewrite(
	ctx context.Context,
	lines []script.Line,
	cfg translator.TranslationConfig,
	target string,
	progress jobs.ProgressFunc,
	result *jobs.FileResult,
) []string {
	n := len(lines)
	out := make([]string, 0, n)
	if n == 0 {
		progress(100)
		return out
	}

	emit := func(i int, text string) {
		if text != lines[i].Text {
			result.TranslatedLines++
		}
		out = append(out, text)
		progress(percent(i, n))
	}

	for i := 0; i < n; i++ {
		line := lines[i]

		if isCustomBlockOpener(line.Text) {
			emit(i, line.Text)
			if i+1 < n {
				i++
				emit(i, p.rewriteBlockLine(ctx, lines[i], cfg, target, result))
			}
			continue
		}

		if p.classifier.Classify(line.Text).Skip() {
			emit(i, line.Text)
			continue
		}

		emit(i, p.translateQuoted(ctx, line, cfg, target, result))
	}
	return out
}

// rewriteBlockLine handles the line nested under a custom translate block.
// Bracket rules do not apply here; placeholders are protected by the extractor.
func (p *FileProcessor) rewriteBlockLine(
	ctx context.Context,
	line script.Line,
	cfg translator.TranslationConfig,
	target string,
	result *jobs.FileResult,
) string {
	trimmed := line.Trimmed()
	if p.classifier.HasKeyword(trimmed) || isCustomBlockOpener(line.Text) {
		return line.Text
	}
	return p.translateQuoted(ctx, line, cfg, target, result)
}

func (p *FileProcessor) translateQuoted(
	ctx context.Context,
	line script.Line,
	cfg translator.TranslationConfig,
	target string,
	result *jobs.FileResult,
) string {
	if isOldLine(line.Trimmed()) {
		return line.Text
	}
	prefix, quoted, suffix, ok := splitQuoted(line.Text)
	if !ok || isAssignment(prefix) {
		return line.Text
	}
	isTarget, err := p.guard.Check(quoted, target)
	if err != nil {
		log.Debug("%v", WrapError(err, ErrDetection, "language guard could not classify the line"))
	}
	if isTarget {
		return line.Text
	}

	res := p.extractor.Translate(ctx, quoted, cfg)
	for _, outcome := range res.Outcomes {
		if outcome.Failed() {
			log.Warn("%v", WrapError(outcome.Err, ErrBackend, "segment left untranslated").
				WithContext("segment", strings.TrimSpace(outcome.Source)))
		}
	}
	result.FailedSegments += res.Failures()
	return prefix + `"` + res.Text + `"` + suffix
}

// isOldLine matches the `old "..."` half of a translate strings block.
func isOldLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "old ") || strings.HasPrefix(trimmed, `old"`)
}

// isAssignment reports a string literal assigned in code, e.g.
// `gui.text_font = "DejaVuSans.ttf"`.
func isAssignment(prefix string) bool {
	return strings.Contains(prefix, "=")
}

// splitQuoted cuts text around its first double-quoted span. Backslash-escaped
// quotes do not delimit.
func splitQuoted(text string) (prefix, quoted, suffix string, ok bool) {
	open := nextQuote(text, 0)
	if open < 0 {
		return "", "", "", false
	}
	end := nextQuote(text, open+1)
	if end < 0 {
		return "", "", "", false
	}
	return text[:open], text[open+1 : end], text[end+1:], true
}

func nextQuote(text string, from int) int {
	for i := from; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

func percent(i, n int) int {
	return int(math.Round(float64(i+1) / float64(n) * 100))
}

func (p *FileProcessor) backup(path string, raw []byte) error {
	backupPath := file.ReplaceExt(path, p.backupExt)
	if backupPath == path {
		return nil
	}
	if _, err := os.Stat(backupPath); err == nil {
		log.Debug("Backup %s already exists, keeping it", backupPath)
		return nil
	}
	return script.WriteAtomic(backupPath, raw)
}

// Executor freezes cfg and target for one queue run.
func (p *FileProcessor) Executor(cfg translator.TranslationConfig, target string) jobs.Executor {
	return func(ctx context.Context, path string, progress jobs.ProgressFunc) (*jobs.FileResult, error) {
		return p.Process(ctx, path, cfg, target, progress)
	}
}
