package document

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// gzipMagic prefixes every gzip stream.
var gzipMagic = []byte{0x1f, 0x8b}

// DecodeSection parses a section from JSON or gzipped JSON.
func DecodeSection(b []byte) (*SectionData, error) {
	if bytes.HasPrefix(b, gzipMagic) {
		zr, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("opening gzip section: %w", err)
		}
		defer zr.Close()
		if b, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("inflating section: %w", err)
		}
	}
	var sd SectionData
	if err := json.Unmarshal(b, &sd); err != nil {
		return nil, fmt.Errorf("parsing section: %w", err)
	}
	return &sd, nil
}

// EncodeSection writes sd as JSON, gzipped when compress is set.
func EncodeSection(w io.Writer, sd *SectionData, compress, indent bool) error {
	var out io.Writer = w
	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(w)
		out = zw
	}

	enc := json.NewEncoder(out)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(sd); err != nil {
		return fmt.Errorf("encoding section %s: %w", sd.ID, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("compressing section %s: %w", sd.ID, err)
		}
	}
	return nil
}

// ReadSectionFile loads a .json or .json.gz section from disk.
func ReadSectionFile(path string) (*SectionData, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading section: %w", err)
	}
	return DecodeSection(b)
}

// WriteSectionFile saves sd, compressing when path ends in .gz.
func WriteSectionFile(path string, sd *SectionData, indent bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating section file: %w", err)
	}
	if err := EncodeSection(f, sd, strings.HasSuffix(path, ".gz"), indent); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
