package loader

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"bionexus/pkg/ai"
)

const renderDPI = 200

// Base64Prefix returns the data-URL prefix for a file path based on its
// extension, falling back to application/octet-stream.
func Base64Prefix(filePath string) string {
	ext := filepath.Ext(filePath)
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return fmt.Sprintf("data:%s;base64,", mimeType)
}

// PNGImageData wraps raw PNG bytes as base64 image data for vision models.
func PNGImageData(b []byte) ai.ImageData {
	return ai.ImageData{
		Base64:     base64.StdEncoding.EncodeToString(b),
		MimePrefix: "data:image/png;base64,",
	}
}

func writeTempPdf(input []byte) (dir string, pdfPath string, err error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", "", fmt.Errorf("nanoid: %w", err)
	}
	dir = filepath.Join(os.TempDir(), "bionexus-pdf-"+id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", fmt.Errorf("mkdir tmp: %w", err)
	}
	pdfPath = filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(pdfPath, input, 0o600); err != nil {
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("write pdf: %w", err)
	}
	return dir, pdfPath, nil
}

// PdfPageCount returns the number of pages in the given PDF using pdfinfo.
func PdfPageCount(ctx context.Context, input []byte) (int, error) {
	if _, err := exec.LookPath("pdfinfo"); err != nil {
		return 0, fmt.Errorf("pdfinfo not found in PATH: %w", err)
	}

	tmpDir, pdfPath, err := writeTempPdf(input)
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(tmpDir)

	rCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(rCtx, "pdfinfo", pdfPath)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("pdfinfo failed: %w", err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "Pages:") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				if pages, err := strconv.Atoi(parts[1]); err == nil {
					return pages, nil
				}
			}
		}
	}
	return 0, fmt.Errorf("pdfinfo output missing page count")
}

// RenderPdfPage renders a single PDF page (1-based) to PNG bytes using
// pdftoppm at 200 DPI.
func RenderPdfPage(ctx context.Context, input []byte, pageNum int) ([]byte, error) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		return nil, fmt.Errorf("pdftoppm not found in PATH: %w", err)
	}

	tmpDir, pdfPath, err := writeTempPdf(input)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	rCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	prefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(
		rCtx,
		"pdftoppm",
		"-png",
		"-r", strconv.Itoa(renderDPI),
		"-q",
		"-singlefile",
		"-f", strconv.Itoa(pageNum),
		"-l", strconv.Itoa(pageNum),
		pdfPath,
		prefix,
	)
	cmd.Env = append(os.Environ(), "LANG=C.UTF-8", "LC_ALL=C.UTF-8")
	out, err := cmd.CombinedOutput()
	if rCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("pdftoppm timed out on page %d", pageNum)
	}
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed on page %d: %w: %s", pageNum, err, strings.TrimSpace(string(out)))
	}

	b, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("read rendered page: %w", err)
	}
	return b, nil
}
