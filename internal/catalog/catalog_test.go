package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogLoads(t *testing.T) {
	c := Default()
	require.NotNil(t, c)
	assert.NotEmpty(t, c.Version())
	assert.Contains(t, c.Extensions(), "wpd")
	assert.Same(t, c, Default())
}

func TestDefaultTargetNeverEqualsSource(t *testing.T) {
	c := Default()
	for _, ext := range c.Extensions() {
		outs := c.Outputs(ext)
		target := c.DefaultTarget(ext)
		assert.NotEqual(t, ext, target, "default target for %s", ext)
		assert.NotContains(t, outs, ext, "outputs for %s", ext)
		assert.NotContains(t, outs, "wpd", "outputs for %s", ext)
		if contains(outs, "pdf") {
			assert.Equal(t, "pdf", target, "pdf offered for %s", ext)
		} else {
			assert.Equal(t, outs[0], target)
		}
	}
}

func TestOutputsFallback(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{"pdf"}, c.Outputs("zzz"))
	assert.Equal(t, "pdf", c.DefaultTarget("zzz"))
	assert.Equal(t, "docx", c.DefaultTarget("pdf"))
}

func TestPickDefault(t *testing.T) {
	assert.Equal(t, "pdf", PickDefault("doc", []string{"docx", "pdf"}))
	assert.Equal(t, "docx", PickDefault("doc", []string{"doc", "docx"}))
	assert.Equal(t, "pdf", PickDefault("doc", []string{"doc"}))
	assert.Equal(t, "pdf", PickDefault("doc", nil))
}

func TestSourceExtension(t *testing.T) {
	cases := map[string]string{
		"report.doc":         "doc",
		"REPORT.WPD":         "wpd",
		"archive.tar.gz":     "gz",
		"README":             "",
		"trailing.":          "",
		"dir.v2/notes":       "",
		`C:\docs\budget.WK1`: "wk1",
		".env":               "env",
	}
	for name, want := range cases {
		assert.Equal(t, want, SourceExtension(name), name)
	}
}

func TestLabelAndDescriptionFallbacks(t *testing.T) {
	c := Default()
	assert.Equal(t, "WordPerfect Document (.wpd)", c.Label("WPD"))
	assert.Equal(t, "XYZ file", c.Label("xyz"))
	assert.Equal(t, "Unknown file", c.Label(""))
	assert.Equal(t, genericDescription, c.Description("xyz"))
}

func TestLookupReturnsCopy(t *testing.T) {
	c := Default()
	e, ok := c.Lookup("doc")
	require.True(t, ok)
	e.Outputs[0] = "mutated"
	again, _ := c.Lookup("doc")
	assert.NotEqual(t, "mutated", again.Outputs[0])
}

func TestLoadRejectsMissingVersion(t *testing.T) {
	_, err := Load(strings.NewReader(`{"extensions": {}}`))
	require.Error(t, err)
}

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, "pdf", NormalizeFormat(" .PDF "))
	assert.Equal(t, "", NormalizeFormat(""))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
