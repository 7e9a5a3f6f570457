// Package filetype classifies uploaded files into the closed category set the
// gateway routes on.
//
// Classification is content-first: the bytes are sniffed, then the filename
// extension refines generic results (a .md file sniffs as text/plain) and
// serves as fallback for formats sniffing cannot place (HWP, legacy office).
package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/parsegate/parsegate/fault"
)

// Category identifies a file family with a distinct pipeline.
type Category string

const (
	CategoryDocument     Category = "document"
	CategorySpreadsheet  Category = "spreadsheet"
	CategoryPresentation Category = "presentation"
	CategoryPDF          Category = "pdf"
	CategoryImage        Category = "image"
	CategoryPlainText    Category = "plain_text"
	CategoryMarkdown     Category = "markdown"
)

// Info is the result of classifying one upload.
type Info struct {
	MIME             string   // canonical MIME type, e.g. "application/pdf"
	Category         Category
	Extension        string // canonical extension with leading dot, "" if unknown
	OriginalFilename string
	BaseFilename     string // filename without the final extension
}

// Word, ODT family, HWP aliases, RTF, HTML, WordPerfect, AbiWord.
var documentTypes = set(
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-word.template.macroEnabled.12",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.template",
	"application/vnd.oasis.opendocument.text",
	"application/vnd.oasis.opendocument.text-template",
	"application/vnd.oasis.opendocument.text-flat-xml",
	"application/x-hwp",
	"application/hwp",
	"application/vnd.hancom.hwp",
	"application/vnd.hancom.hwpx",
	"application/hwp+zip",
	"text/rtf",
	"application/rtf",
	"text/html",
	"application/xhtml+xml",
	"application/vnd.wordperfect",
	"application/x-abiword",
)

var spreadsheetTypes = set(
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-excel.template.macroEnabled.12",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.template",
	"application/vnd.oasis.opendocument.spreadsheet",
	"application/vnd.oasis.opendocument.spreadsheet-template",
	"application/vnd.oasis.opendocument.spreadsheet-flat-xml",
	"text/csv",
)

var presentationTypes = set(
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/vnd.ms-powerpoint.template.macroEnabled.12",
	"application/vnd.openxmlformats-officedocument.presentationml.template",
	"application/vnd.oasis.opendocument.presentation",
	"application/vnd.oasis.opendocument.presentation-template",
	"application/vnd.oasis.opendocument.presentation-flat-xml",
)

var pdfTypes = set("application/pdf")

var imageTypes = set(
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/tiff",
)

var plainTextTypes = set("text/plain")

var markdownTypes = set("text/markdown", "text/x-markdown")

// extensionMIME is the fallback map used when sniffing yields a type outside
// the category tables, and to refine generic sniff results.
var extensionMIME = map[string]string{
	".hwp":      "application/x-hwp",
	".hwpx":     "application/vnd.hancom.hwpx",
	".doc":      "application/msword",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":      "application/vnd.oasis.opendocument.text",
	".rtf":      "text/rtf",
	".html":     "text/html",
	".htm":      "text/html",
	".xls":      "application/vnd.ms-excel",
	".xlsx":     "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ods":      "application/vnd.oasis.opendocument.spreadsheet",
	".csv":      "text/csv",
	".ppt":      "application/vnd.ms-powerpoint",
	".pptx":     "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odp":      "application/vnd.oasis.opendocument.presentation",
	".pdf":      "application/pdf",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".gif":      "image/gif",
	".bmp":      "image/bmp",
	".webp":     "image/webp",
	".tiff":     "image/tiff",
	".tif":      "image/tiff",
	".txt":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
}

// mimeExtension maps every table MIME to its canonical extension.
var mimeExtension = map[string]string{
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-word.template.macroEnabled.12":                        ".dotm",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.template": ".dotx",
	"application/vnd.oasis.opendocument.text":                                 ".odt",
	"application/vnd.oasis.opendocument.text-template":                        ".ott",
	"application/vnd.oasis.opendocument.text-flat-xml":                        ".fodt",
	"application/x-hwp":           ".hwp",
	"application/hwp":             ".hwp",
	"application/vnd.hancom.hwp":  ".hwp",
	"application/vnd.hancom.hwpx": ".hwpx",
	"application/hwp+zip":         ".hwpx",
	"text/rtf":                    ".rtf",
	"application/rtf":             ".rtf",
	"text/html":                   ".html",
	"application/xhtml+xml":       ".xhtml",
	"application/vnd.wordperfect": ".wpd",
	"application/x-abiword":       ".abw",
	"application/vnd.ms-excel":    ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":        ".xlsx",
	"application/vnd.ms-excel.template.macroEnabled.12":                        ".xltm",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.template":     ".xltx",
	"application/vnd.oasis.opendocument.spreadsheet":                           ".ods",
	"application/vnd.oasis.opendocument.spreadsheet-template":                  ".ots",
	"application/vnd.oasis.opendocument.spreadsheet-flat-xml":                  ".fods",
	"text/csv":                        ".csv",
	"application/vnd.ms-powerpoint":   ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.ms-powerpoint.template.macroEnabled.12":                    ".potm",
	"application/vnd.openxmlformats-officedocument.presentationml.template":     ".potx",
	"application/vnd.oasis.opendocument.presentation":                           ".odp",
	"application/vnd.oasis.opendocument.presentation-template":                  ".otp",
	"application/vnd.oasis.opendocument.presentation-flat-xml":                  ".fodp",
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/bmp":       ".bmp",
	"image/tiff":      ".tif",
	"text/plain":      ".txt",
	"text/markdown":   ".md",
	"text/x-markdown": ".md",
}

// genericTypes are sniff results too broad to classify on their own; the
// filename extension decides when it maps to a known type.
var genericTypes = set(
	"text/plain",
	"application/octet-stream",
	"application/zip",
	"application/x-ole-storage",
	"text/xml",
	"application/xml",
)

func set(members ...string) map[string]bool {
	m := make(map[string]bool, len(members))
	for _, s := range members {
		m[s] = true
	}
	return m
}

// Detect classifies content into a category.
// Returns fault.ErrUnsupportedMedia when no category table matches.
func Detect(content []byte, filename string) (*Info, error) {
	sniffed := sniffMIME(content)

	mime := sniffed
	ext := strings.ToLower(filepath.Ext(filename))
	if byExt, ok := extensionMIME[ext]; ok {
		if !classifiable(mime) || (genericTypes[mime] && byExt != mime) {
			mime = byExt
		}
	}

	category, ok := classify(mime)
	if !ok {
		return nil, fmt.Errorf("%w: %s", fault.ErrUnsupportedMedia, mime)
	}

	return &Info{
		MIME:             mime,
		Category:         category,
		Extension:        mimeExtension[mime],
		OriginalFilename: filename,
		BaseFilename:     baseFilename(filename),
	}, nil
}

func sniffMIME(content []byte) string {
	m := mimetype.Detect(content).String()
	// mimetype may append parameters ("text/plain; charset=utf-8").
	if idx := strings.IndexByte(m, ';'); idx >= 0 {
		m = m[:idx]
	}
	return strings.TrimSpace(m)
}

func classifiable(mime string) bool {
	_, ok := classify(mime)
	return ok
}

// classify maps a MIME type to its category. Priority order matters:
// plain text and markdown shadow the broader document set.
func classify(mime string) (Category, bool) {
	switch {
	case plainTextTypes[mime]:
		return CategoryPlainText, true
	case markdownTypes[mime]:
		return CategoryMarkdown, true
	case documentTypes[mime]:
		return CategoryDocument, true
	case spreadsheetTypes[mime]:
		return CategorySpreadsheet, true
	case presentationTypes[mime]:
		return CategoryPresentation, true
	case pdfTypes[mime]:
		return CategoryPDF, true
	case imageTypes[mime]:
		return CategoryImage, true
	default:
		return "", false
	}
}

func baseFilename(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 1 {
		// No dot, or a leading-dot name like ".profile": keep as is.
		return filename
	}
	return filename[:idx]
}
