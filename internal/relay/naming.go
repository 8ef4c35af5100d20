package relay

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewName builds "<unix-millis>-<random>.<ext>"; ext may be empty.
func NewName(ext string, now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	name := strconv.FormatInt(now.UnixMilli(), 10) + "-" + id
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		name += "." + ext
	}
	return name
}
