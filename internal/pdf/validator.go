package pdf

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Validator rejects inputs that are not worth handing to the parser.
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a validator. A non-positive limit disables the size check.
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
	}
}

// MaxFileSize returns the configured size limit.
func (v *Validator) MaxFileSize() int64 { return v.maxFileSize }

// CheckName verifies the file name carries a .pdf extension.
func (v *Validator) CheckName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return fmt.Errorf("file is not a PDF: %s", name)
	}
	return nil
}

// CheckSize verifies a file's size before it is read.
func (v *Validator) CheckSize(name string, size int64) error {
	if size == 0 {
		return fmt.Errorf("file is empty: %s", name)
	}
	if v.maxFileSize > 0 && size > v.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)", size, v.maxFileSize)
	}
	return nil
}

// CheckContent verifies size and the PDF header of data already in memory.
func (v *Validator) CheckContent(name string, data []byte) error {
	if err := v.CheckSize(name, int64(len(data))); err != nil {
		return err
	}
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		return fmt.Errorf("missing PDF header: %s", name)
	}
	return nil
}
