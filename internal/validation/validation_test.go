package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDOI(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"10.5281/zenodo.123456", "10.5281/zenodo.123456", true},
		{"not-a-doi", "", false},
		{"doi:10.1038/s41586-020-2649-2", "10.1038/s41586-020-2649-2", true},
		{"https://doi.org/10.1371/journal.pone.0123456.", "10.1371/journal.pone.0123456", true},
		{"https://dx.doi.org/10.1000/xyz123)", "10.1000/xyz123", true},
		{"'10.1000/abc'", "10.1000/abc", true},
		{"10.1/x", "10.1/x", true},
		{"10.1234/abc def", "", false},
		{"None", "", false},
		{"", "", false},
		{"11.1234/abc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := DOI(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindDOI(t *testing.T) {
	got, ok := FindDOI("Published 2021. https://doi.org/10.1111/ele.13735, Ecology Letters")
	assert.True(t, ok)
	assert.Equal(t, "10.1111/ele.13735", got)

	_, ok = FindDOI("no identifiers here")
	assert.False(t, ok)
}

func TestURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://zenodo.org/record/123", true},
		{"http://github.com/org/repo", true},
		{"https://doi.org/10.5281/zenodo.999", true},
		{"ftp://example.org/file", false},
		{"zenodo.org/record/1", false},
		{"https://", false},
		{"https://zen odo.org/x", false},
		{"https://localhost/x", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, URL(tt.in))
		})
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Drought reshapes soil microbial networks in alpine grasslands", true},
		{"Abstract", false},
		{"Short", false},
		{"Journal of Ecology, Vol. 12", false},
		{"1234 5678 9012 3456", false},
		{"https://example.org/a-title-like-url", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Title(tt.in))
		})
	}
}

func TestHasAvailabilityVocabulary(t *testing.T) {
	assert.True(t, HasAvailabilityVocabulary("The data are available on Zenodo.", true))
	assert.False(t, HasAvailabilityVocabulary("The data were analysed in R.", true))
	assert.True(t, HasAvailabilityVocabulary("All code is available on GitHub.", false))
	assert.False(t, HasAvailabilityVocabulary("We sampled 20 plots.", false))
}

func TestLicense(t *testing.T) {
	assert.True(t, HasLicenseVocabulary("released under a CC BY 4.0 license"))
	assert.True(t, HasLicenseVocabulary("distributed under the MIT License"))
	assert.False(t, HasLicenseVocabulary("the manuscript was submitted in May"))
	assert.Equal(t, "CC BY 4.0", FindLicense("available under CC BY 4.0 terms"))
}

func TestGrounded(t *testing.T) {
	context := "Data Availability Statement\nData are available at https://doi.org/10.5281/zenodo.999 upon request.\nAll scripts are provided on GitHub."

	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"verbatim", "Data are available at https://doi.org/10.5281/zenodo.999 upon request.", true},
		{"case and spacing", "data are  available at https://doi.org/10.5281/zenodo.999 upon request .", true},
		{"hyphenation repaired", "All scripts are pro-vided on GitHub.", true},
		{"invented sentence", "The datasets were deposited in Dryad under accession 12345.", false},
		{"altered identifier", "Data are available at https://doi.org/10.5281/zenodo.111 upon request.", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Grounded(tt.value, context))
		})
	}
}

func TestGrounded_Rewording(t *testing.T) {
	context := "All sequences generated in this study are openly available in Zenodo at https://zenodo.org/record/5. Processed tables were not archived."

	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"negation inserted", "All sequences generated in this study are not openly available in Zenodo at https://zenodo.org/record/5.", false},
		{"no inserted", "No sequences generated in this study are openly available in Zenodo at https://zenodo.org/record/5.", false},
		{"negation kept", "Processed tables were not archived and sequences are openly available in Zenodo.", true},
		{"filler dropped", "All sequences generated in study are openly available in Zenodo at https://zenodo.org/record/5.", true},
		{"word added", "All sequences generated in this study are openly available upon request in Zenodo.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Grounded(tt.value, context))
		})
	}
}

func TestMentionsDOI(t *testing.T) {
	text := "Ecology Letters (2021) https://doi.org/10.1111/ele.13735. Data: doi:10.5061/dryad.abc"

	assert.True(t, MentionsDOI(text, "10.1111/ele.13735"))
	assert.True(t, MentionsDOI(text, "10.1111/ELE.13735"))
	assert.True(t, MentionsDOI(text, "10.5061/dryad.abc"))
	assert.False(t, MentionsDOI(text, "10.1111/ele.1373"))
	assert.False(t, MentionsDOI(text, "10.1111/ele"))
	assert.False(t, MentionsDOI(text, "not-a-doi"))
}

func TestOverlaps(t *testing.T) {
	assert.True(t, Overlaps("Soil carbon across Europe", "Soil carbon across Europe: a synthesis"))
	assert.True(t, Overlaps("CC BY 4.0", "cc by 4.0"))
	assert.False(t, Overlaps("Soil carbon across Eur", "Soil carbon across Europe"))
	assert.False(t, Overlaps("MIT", "submitted"))
	assert.False(t, Overlaps("", "anything"))
}

func TestSameDOI(t *testing.T) {
	assert.True(t, SameDOI("doi:10.1111/ELE.13735", "https://doi.org/10.1111/ele.13735"))
	assert.False(t, SameDOI("10.1111/ele.1373", "10.1111/ele.13735"))
}

func TestGrounded_WordBoundaries(t *testing.T) {
	assert.False(t, Grounded("MIT", "the manuscript was submitted in May"))
	assert.True(t, Grounded("MIT", "code is released under the MIT license"))
	assert.True(t, Grounded("CC BY 4.0", "Data are shared under CC BY 4.0."))
}

func TestIsDatasetDOI(t *testing.T) {
	assert.True(t, IsDatasetDOI("10.5281/zenodo.123456"))
	assert.True(t, IsDatasetDOI("10.5061/DRYAD.abc"))
	assert.False(t, IsDatasetDOI("10.1111/ele.13735"))
	assert.False(t, IsDatasetDOI(""))
}
