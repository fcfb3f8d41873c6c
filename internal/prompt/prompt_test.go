package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adalign/backend/internal/capture"
	"github.com/adalign/backend/internal/platform"
	"github.com/adalign/backend/internal/storage/models"
)

func baseInput() Input {
	return Input{
		SourceType: capture.SourceURL,
		Platform:   platform.Meta,
		Audience: models.Audience{
			AgeRange:  "25-34",
			Gender:    "female",
			Location:  "Berlin",
			Interests: []string{"running", "outdoors"},
		},
		HasLandingPageImage: true,
	}
}

func TestBuild_IncludesPlatformContext(t *testing.T) {
	for _, p := range platform.All() {
		t.Run(string(p), func(t *testing.T) {
			in := baseInput()
			in.Platform = p
			out := Build(in)

			cfg := platform.Lookup(p)
			assert.Contains(t, out, cfg.PromptContext)
			assert.Contains(t, out, cfg.DisplayName)
		})
	}
}

func TestBuild_ScoringBiasAndSchema(t *testing.T) {
	out := Build(baseInput())

	assert.Contains(t, out, "most scores should land between 1 and 4")
	for _, key := range []string{`"scores"`, `"suggestions"`, `"elementComparisons"`, `"visualMatch"`, `"contextualMatch"`, `"toneAlignment"`} {
		assert.Contains(t, out, key)
	}
	for _, el := range Elements {
		assert.Contains(t, out, el)
	}
	assert.Contains(t, out, `"HIGH" | "MEDIUM" | "LOW"`)
}

func TestBuild_Audience(t *testing.T) {
	out := Build(baseInput())
	assert.Contains(t, out, "Age range: 25-34")
	assert.Contains(t, out, "Location: Berlin")
	assert.Contains(t, out, "Interests: running, outdoors")

	in := baseInput()
	in.Audience = models.Audience{}
	out = Build(in)
	assert.Contains(t, out, "Age range: unspecified")
	assert.NotContains(t, out, "Location:")
	assert.NotContains(t, out, "Interests:")
}

func TestBuild_SourceTypes(t *testing.T) {
	tests := []struct {
		source capture.SourceType
		want   string
	}{
		{capture.SourceUpload, "uploaded by the advertiser"},
		{capture.SourceURL, "rendered by the platform"},
		{capture.SourceVideo, "frames extracted from a video ad"},
	}
	for _, tt := range tests {
		t.Run(string(tt.source), func(t *testing.T) {
			in := baseInput()
			in.SourceType = tt.source
			assert.Contains(t, Build(in), tt.want)
		})
	}
}

func TestBuild_OptionalAdText(t *testing.T) {
	in := baseInput()
	out := Build(in)
	assert.NotContains(t, out, "Headline supplied")

	in.Headline = "Run further for less"
	in.Industry = "retail"
	in.LandingPageText = "Title: Spring Sale"
	out = Build(in)
	assert.Contains(t, out, `Headline supplied by the advertiser: "Run further for less"`)
	assert.Contains(t, out, "Industry: retail")
	assert.Contains(t, out, "Title: Spring Sale")
}

func TestBuild_AdOnly(t *testing.T) {
	in := baseInput()
	in.HasLandingPageImage = false
	out := Build(in)

	assert.Contains(t, out, "No landing page screenshot is available")
	assert.False(t, strings.Contains(out, "second image"))
}

func TestBuild_Pure(t *testing.T) {
	assert.Equal(t, Build(baseInput()), Build(baseInput()))
}
