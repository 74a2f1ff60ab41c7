package reports

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sitdb/sitdb/internal/platform/httpx"
	"github.com/sitdb/sitdb/internal/shared"
)

// MaxMediaSize is the largest attachment accepted.
const MaxMediaSize = 10 * 1024 * 1024

var mediaContentTypes = map[string]MediaType{
	"image/jpeg": MediaImage,
	"image/png":  MediaImage,
	"image/gif":  MediaImage,
	"image/webp": MediaImage,
	"video/mp4":  MediaVideo,
	"video/webm": MediaVideo,
}

// RegisterValidators adds the report enum tags to v.
func RegisterValidators(v *shared.Validator) {
	v.Register("report_type", enumTag(Types))
	v.Register("report_severity", enumTag(Severities))
	v.Register("report_status", enumTag(Statuses))
}

func enumTag[T ~string](values []T) validator.Func {
	return func(fl validator.FieldLevel) bool {
		got := fl.Field().String()
		for _, v := range values {
			if string(v) == got {
				return true
			}
		}
		return false
	}
}

// checkMedia enforces the accepted formats and size.
func checkMedia(in MediaInput) error {
	kind, ok := mediaContentTypes[strings.ToLower(in.ContentType)]
	if !ok || kind != in.Type {
		return &httpx.ValidationError{
			Message: "Format file tidak didukung. Gunakan JPG, PNG, GIF, WebP, MP4, atau WebM.",
			Fields:  map[string]string{"contentType": "Format file tidak didukung"},
		}
	}
	if in.SizeBytes > MaxMediaSize {
		msg := fmt.Sprintf("Ukuran file maksimal 10MB. File Anda: %s", formatSize(in.SizeBytes))
		return &httpx.ValidationError{Message: msg, Fields: map[string]string{"sizeBytes": msg}}
	}
	return nil
}

func formatSize(n int64) string {
	const unit = 1024
	switch {
	case n < unit:
		return fmt.Sprintf("%d Bytes", n)
	case n < unit*unit:
		return fmt.Sprintf("%.2f KB", float64(n)/unit)
	default:
		return fmt.Sprintf("%.2f MB", float64(n)/(unit*unit))
	}
}
