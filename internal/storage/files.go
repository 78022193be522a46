package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Divyansh2602/pdf-agent/internal/domain"
)

type FileManager struct {
	baseDir        string
	uploadDir      string
	outputDir      string
	maxUploadBytes int64
}

var allowedExtensions = map[string]string{
	".md":       domain.FormatMarkdown,
	".markdown": domain.FormatMarkdown,
	".tex":      domain.FormatLatex,
	".latex":    domain.FormatLatex,
}

const sniffLimit = 1000

func NewFileManager(baseDir, outputDir string, maxUploadBytes int64) (*FileManager, error) {
	fm := &FileManager{
		baseDir:        baseDir,
		uploadDir:      filepath.Join(baseDir, "uploads"),
		outputDir:      outputDir,
		maxUploadBytes: maxUploadBytes,
	}

	dirs := []string{fm.baseDir, fm.uploadDir, fm.outputDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	return fm, nil
}

func (fm *FileManager) OutputDir() string {
	return fm.outputDir
}

// DetectFormat resolves a document format by extension first and falls back
// to content sniffing on the first 1000 bytes.
func DetectFormat(filename string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if format, ok := allowedExtensions[ext]; ok {
		return format, nil
	}

	sample := content
	if len(sample) > sniffLimit {
		sample = sample[:sniffLimit]
	}
	text := string(sample)

	switch {
	case strings.Contains(text, `\documentclass`) || strings.Contains(text, `\begin{document}`):
		return domain.FormatLatex, nil
	case strings.HasPrefix(text, "#") || strings.Contains(text, "##"):
		return domain.FormatMarkdown, nil
	}

	return "", domain.Errorf(domain.KindInput, "detect", "unsupported document format: %s", filename)
}

// SaveUploadedDocument writes an uploaded source file into the upload
// directory under a unique name and reports its detected format.
func (fm *FileManager) SaveUploadedDocument(file multipart.File, filename string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", "", domain.Errorf(domain.KindInput, "upload", "unsupported file extension: %s", ext)
	}

	sample := make([]byte, sniffLimit)
	n, err := file.Read(sample)
	if err != nil && err != io.EOF {
		return "", "", fmt.Errorf("read document sample: %w", err)
	}
	sample = sample[:n]

	format, err := DetectFormat(filename, sample)
	if err != nil {
		return "", "", err
	}

	stem := strings.TrimSuffix(filepath.Base(filename), ext)
	onDisk := fmt.Sprintf("%s_%s%s", stem, time.Now().Format("20060102_150405"), ext)
	path := filepath.Join(fm.uploadDir, onDisk)

	if err := fm.writeWithLimit(path, sample, file); err != nil {
		return "", "", err
	}

	return path, format, nil
}

// SaveDerived writes refiner/enhancer output next to the uploads, prefixed so
// the origin is visible in the session file list.
func (fm *FileManager) SaveDerived(prefix, originalPath, suffix, content string) (string, error) {
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	name := fmt.Sprintf("%s_%s%s", prefix, stem, ext)
	if suffix != "" {
		name = fmt.Sprintf("%s_%s_%s%s", prefix, stem, suffix, ext)
	}

	path := filepath.Join(fm.uploadDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write derived file: %w", err)
	}
	return path, nil
}

// ArtifactPath names a render output from the source stem, a generation
// timestamp and a short unique suffix so concurrent jobs for the same
// document never collide.
func (fm *FileManager) ArtifactPath(originalName string, at time.Time) string {
	stem := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	unique := uuid.NewString()[:8]
	return filepath.Join(fm.outputDir, fmt.Sprintf("%s_%s_%s.pdf", stem, at.Format("20060102_150405"), unique))
}

// ResolveArtifact maps a bare artifact file name back to a path inside the
// output directory, rejecting traversal.
func (fm *FileManager) ResolveArtifact(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid artifact name")
	}
	path := filepath.Join(fm.outputDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("artifact not found: %s", name)
	}
	return path, nil
}

func (fm *FileManager) writeWithLimit(path string, sample []byte, file multipart.File) error {
	if fm.maxUploadBytes > 0 && int64(len(sample)) > fm.maxUploadBytes {
		return fmt.Errorf("document exceeds maximum size")
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create document file: %w", err)
	}

	total := int64(0)

	cleanup := func(err error) error {
		out.Close()
		os.Remove(path)
		return err
	}

	if len(sample) > 0 {
		if _, err := out.Write(sample); err != nil {
			return cleanup(fmt.Errorf("write document sample: %w", err))
		}
		total += int64(len(sample))
	}

	buf := make([]byte, 32*1024)
	for {
		if fm.maxUploadBytes > 0 && total >= fm.maxUploadBytes {
			return cleanup(fmt.Errorf("document exceeds maximum size"))
		}

		n, err := file.Read(buf)
		if n > 0 {
			total += int64(n)
			if fm.maxUploadBytes > 0 && total > fm.maxUploadBytes {
				return cleanup(fmt.Errorf("document exceeds maximum size"))
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return cleanup(fmt.Errorf("write document file: %w", werr))
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return cleanup(fmt.Errorf("read document content: %w", err))
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close document file: %w", err)
	}

	return nil
}
