package wire

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	uuidP = "00000000-0000-4000-8000-000000000001"
	uuidQ = "00000000-0000-4000-8000-000000000002"
	uuidG = "00000000-0000-4000-8000-000000000003"
)

func sampleDocument() *Document {
	return &Document{
		SetErrors:         []string{"plate is empty"},
		CreateAssets:      []string{uuidP, uuidQ},
		CreateAssetGroups: []string{uuidG},
		AddFacts: []Triple{
			{Subject: uuidP, Predicate: "a", Object: "Plate"},
			{Subject: uuidP, Predicate: "contains", Object: uuidQ},
		},
		RemoveFacts: []Triple{{Subject: uuidQ, Predicate: "color", Object: "Red"}},
		AddAssets:   []GroupAssets{{Group: uuidG, Assets: []string{uuidP, uuidQ}}},
		RemoveAssets: []GroupAssets{
			{Assets: []string{uuidP}},
		},
	}
}

func TestEmptyDocumentEncodesToEmptyObject(t *testing.T) {
	doc := &Document{}
	assert.True(t, doc.Empty())

	out, err := doc.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(out))
}

func TestOnlyNonEmptySectionsAreEncoded(t *testing.T) {
	doc := &Document{CreateAssets: []string{uuidP}, DeleteAssets: []string{}}

	out, err := doc.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, `{"create_assets":["`+uuidP+`"]}`, string(out))
}

func TestNullSubjectAndGroup(t *testing.T) {
	doc := &Document{
		AddFacts:  []Triple{{Predicate: "a", Object: "Plate"}},
		AddAssets: []GroupAssets{{Assets: []string{uuidP}}},
	}

	out, err := doc.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, `{"add_assets":[[null,["`+uuidP+`"]]],"add_facts":[[null,"a","Plate"]]}`, string(out))

	back, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, doc, back)
}

func TestRoundTrip(t *testing.T) {
	doc := sampleDocument()

	out, err := doc.MarshalCanonical()
	require.NoError(t, err)

	back, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, doc, back)

	again, err := back.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, string(out), string(again))
}

func TestCanonicalGolden(t *testing.T) {
	out, err := sampleDocument().MarshalCanonical()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "sample_document", out)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not an object", `[]`},
		{"unknown section", `{"add_things":[]}`},
		{"section not array", `{"create_assets":"x"}`},
		{"short triple", `{"add_facts":[["a","b"]]}`},
		{"numeric predicate", `{"add_facts":[["a",1,"c"]]}`},
		{"empty subject", `{"add_facts":[["","p","o"]]}`},
		{"membership without list", `{"add_assets":[["g","a"]]}`},
		{"float", `{"add_facts":[["a","p",1.5]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestParseNullSectionIsEmpty(t *testing.T) {
	doc, err := Parse([]byte(`{"create_assets":null}`))
	require.NoError(t, err)
	assert.True(t, doc.Empty())
}

func TestParseYAML(t *testing.T) {
	input := `
create_assets: ["?p", "?q"]
add_facts:
  - ["?p", "a", "Plate"]
  - [null, "note", "loose"]
add_assets:
  - [null, ["?p"]]
`
	doc, err := ParseYAML([]byte(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"?p", "?q"}, doc.CreateAssets)
	assert.Equal(t, []Triple{
		{Subject: "?p", Predicate: "a", Object: "Plate"},
		{Predicate: "note", Object: "loose"},
	}, doc.AddFacts)
	assert.Equal(t, []GroupAssets{{Assets: []string{"?p"}}}, doc.AddAssets)
}

func TestParseYAMLEmpty(t *testing.T) {
	doc, err := ParseYAML([]byte(""))
	require.NoError(t, err)
	assert.True(t, doc.Empty())
}

func TestReadFileByExtension(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "changes.json")
	yamlPath := filepath.Join(dir, "changes.yml")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"create_assets":["?p"]}`), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte("create_assets: ['?p']\n"), 0o644))

	fromJSON, err := ReadFile(jsonPath)
	require.NoError(t, err)
	fromYAML, err := ReadFile(yamlPath)
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromYAML)

	_, err = ReadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
