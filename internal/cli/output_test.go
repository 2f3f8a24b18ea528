package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type record struct {
	Name    string `json:"name" yaml:"name"`
	Service string `json:"service" yaml:"service"`
}

func testListing() Listing {
	return Listing{
		Headers: []string{"name", "service"},
		Rows:    [][]string{{"calendar", "google"}, {"contacts", "twitter"}},
		Data:    []record{{"calendar", "google"}, {"contacts", "twitter"}},
		Empty:   "nothing",
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := map[string]OutputFormat{
		"":      OutputFormatTable,
		"JSON":  OutputFormatJSON,
		"plain": OutputFormatPlain,
		" yaml": OutputFormatYAML,
	}
	for in, want := range tests {
		got, err := ParseOutputFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseOutputFormat("xml")
	var usage *UsageError
	require.ErrorAs(t, err, &usage)
}

func TestRender_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, OutputFormatPlain, testListing(), false))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"NAME", "SERVICE"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"contacts", "twitter"}, strings.Fields(lines[2]))
	assert.NotContains(t, buf.String(), "│")
}

func TestRender_NoHeaders(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, OutputFormatPlain, testListing(), true))
	assert.NotContains(t, buf.String(), "NAME")
	assert.Contains(t, buf.String(), "calendar")
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, OutputFormatTable, testListing(), false))
	assert.Contains(t, buf.String(), "calendar")
	assert.Contains(t, buf.String(), "╭")
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, OutputFormatTable, Listing{Headers: []string{"a"}, Empty: "nothing"}, false))
	assert.Contains(t, buf.String(), "nothing")
}

func TestRender_Serialized(t *testing.T) {
	var js bytes.Buffer
	require.NoError(t, Render(&js, OutputFormatJSON, testListing(), false))
	var fromJSON []record
	require.NoError(t, json.Unmarshal(js.Bytes(), &fromJSON))
	assert.Equal(t, testListing().Data, fromJSON)

	var ym bytes.Buffer
	require.NoError(t, Render(&ym, OutputFormatYAML, testListing(), false))
	var fromYAML []record
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &fromYAML))
	assert.Equal(t, testListing().Data, fromYAML)
}
