package contractapi

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRun   = regexp.MustCompile(`[\s\p{Z}]+`)
	nonNameByte     = regexp.MustCompile(`[^a-z0-9_]`)
	nonFilenameByte = regexp.MustCompile(`[^a-z0-9_-]`)
	hyphenRun       = regexp.MustCompile(`-+`)
)

// NormalizeName canonicalizes a variable or field name: trimmed, lower-cased,
// whitespace runs replaced by "_" and anything outside [a-z0-9_] removed.
// Accented letters are dropped, not transliterated.
func NormalizeName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = whitespaceRun.ReplaceAllString(name, "_")
	return nonNameByte.ReplaceAllString(name, "")
}

// SanitizeFilename turns a human title into a storage-safe stem: diacritics
// removed through canonical decomposition, lower-cased, whitespace runs
// replaced by "-", anything outside [a-z0-9-_] removed and hyphen runs
// collapsed. The result is stable under repeated application.
func SanitizeFilename(title string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn))), title)
	if err != nil {
		stripped = title
	}
	name := strings.ToLower(stripped)
	name = whitespaceRun.ReplaceAllString(name, "-")
	name = nonFilenameByte.ReplaceAllString(name, "")
	return hyphenRun.ReplaceAllString(name, "-")
}

// Asset extensions accepted for template documents.
const (
	ExtDOCX = "docx"
	ExtDOTX = "dotx"
)

// AssetExtension returns the lower-cased extension of filename without the dot.
func AssetExtension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
}

// ValidateAssetName reports whether filename carries a supported template
// extension.
func ValidateAssetName(filename string) *FieldError {
	switch AssetExtension(filename) {
	case ExtDOCX, ExtDOTX:
		return nil
	}
	return &FieldError{Field: "asset", Message: "only .dotx or .docx files are accepted"}
}

// AssetFilename derives the upload name for a template asset from the
// template title and the original file name, keeping the original extension
// lower-cased. Titles that sanitize to nothing fall back to "template".
func AssetFilename(title, original string) string {
	stem := SanitizeFilename(title)
	if stem == "" {
		stem = "template"
	}
	ext := AssetExtension(original)
	if ext == "" {
		return stem
	}
	return stem + "." + ext
}
