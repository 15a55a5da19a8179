package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"basegraph.app/quizsolver/internal/model"
)

// Extractor turns a fetched resource into text, or a base64 fallback for
// formats it cannot read.
type Extractor interface {
	Extract(ctx context.Context, handle model.ResourceHandle) (model.ExtractedText, error)
}

type FileExtractor struct{}

func NewFileExtractor() *FileExtractor {
	return &FileExtractor{}
}

func (e *FileExtractor) Extract(ctx context.Context, h model.ResourceHandle) (model.ExtractedText, error) {
	if h.Path == "" {
		kind := h.Kind
		if kind == "" {
			kind = model.ResourceKindUnknown
		}
		return model.ExtractedText{Kind: kind, URL: h.URL}, nil
	}

	switch {
	case h.Kind == model.ResourceKindPDF:
		text, err := extractPDF(h.Path)
		if err != nil {
			return model.ExtractedText{}, err
		}
		return model.ExtractedText{Kind: h.Kind, Text: text}, nil

	case h.Kind.IsText():
		data, err := os.ReadFile(h.Path)
		if err != nil {
			return model.ExtractedText{}, fmt.Errorf("reading %s: %w", h.Path, err)
		}
		return model.ExtractedText{Kind: h.Kind, Text: strings.ToValidUTF8(string(data), "")}, nil

	case h.Kind == model.ResourceKindXLSX:
		text, err := extractXLSX(h.Path)
		if err != nil {
			return model.ExtractedText{}, err
		}
		return model.ExtractedText{Kind: h.Kind, Text: text}, nil

	default:
		data, err := os.ReadFile(h.Path)
		if err != nil {
			return model.ExtractedText{}, fmt.Errorf("reading %s: %w", h.Path, err)
		}
		kind := h.Kind
		if kind == "" {
			kind = model.ResourceKindBinary
		}
		return model.ExtractedText{Kind: kind, Base64: base64.StdEncoding.EncodeToString(data)}, nil
	}
}

func extractPDF(path string) (text string, err error) {
	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf %s: %v", path, r)
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return string(b), nil
}

// extractXLSX renders every sheet as tab separated rows under a sheet header.
func extractXLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("reading sheet %s: %w", sheet, err)
		}
		fmt.Fprintf(&sb, "## Sheet: %s\n", sheet)
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}
