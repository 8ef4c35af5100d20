package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", FormatBytes(0))
	assert.Equal(t, "1023 B", FormatBytes(1023))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2<<20))
	assert.Equal(t, Placeholder, FormatBytes(-1))
}

func TestCreatedLabel(t *testing.T) {
	at := func(year int) time.Time { return time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC) }
	assert.Equal(t, Placeholder, CreatedLabel(time.Time{}))
	assert.Equal(t, "Created in the late 1990s", CreatedLabel(at(1996)))
	assert.Equal(t, "Created in the 2000s", CreatedLabel(at(2009)))
	assert.Equal(t, "Created in the 2010s", CreatedLabel(at(2010)))
	assert.Equal(t, "Created in 2024", CreatedLabel(at(2024)))
}
