package submission

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"codeflow/internal/services"
	"codeflow/internal/store"
	"codeflow/internal/textutil"
)

func (s *Service) validateName(raw string) (string, error) {
	name := textutil.NormalizeName(raw)
	switch {
	case name == "":
		return "", validationError("name is required")
	case !utf8.ValidString(name):
		return "", validationError("name is not valid UTF-8")
	case utf8.RuneCountInString(name) > maxNameLength:
		return "", validationError(fmt.Sprintf("name exceeds %d characters", maxNameLength))
	case textutil.UnsafeFileName(name):
		return "", validationError(fmt.Sprintf("name %q contains unsupported characters", name))
	}
	if !s.allowedExtension(name) {
		return "", validationError(fmt.Sprintf("name %q must end in one of %s", name, strings.Join(s.cfg.Submission.Extensions, ", ")))
	}
	return name, nil
}

func (s *Service) allowedExtension(name string) bool {
	exts := s.cfg.Submission.Extensions
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || ext == name {
		return false
	}
	for _, allowed := range exts {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

func (s *Service) validateContent(content []byte) error {
	if len(content) == 0 {
		return validationError("content is empty")
	}
	if limit := s.cfg.Submission.MaxBytes; limit > 0 && int64(len(content)) > limit {
		return validationError(fmt.Sprintf("content is %d bytes, limit is %d", len(content), limit))
	}
	return nil
}

func parseVisibility(raw string) (store.Visibility, error) {
	if strings.TrimSpace(raw) == "" {
		return store.VisibilityPrivate, nil
	}
	visibility, ok := store.ParseVisibility(raw)
	if !ok {
		return "", validationError(fmt.Sprintf("unknown visibility %q", raw))
	}
	return visibility, nil
}

func validationError(msg string) error {
	return services.Wrap(services.ErrValidation, "submission", "validate", msg, nil)
}
