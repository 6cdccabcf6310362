package echarge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDocumentKeepsOrder(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{"3":"manual","1":"eco","2":"quick"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "1", "2"}, doc.Keys())
}

func TestDecodeDocumentNested(t *testing.T) {
	raw := `{"meter":{"name":"Garage","data":{"1-0:1.4.0":2260.4,"1-0:32.4.0":231.2}},"list":[1,{"a":true}],"none":null}`
	doc, err := DecodeDocument([]byte(raw))
	require.NoError(t, err)

	meter, ok := doc.Doc("meter")
	require.True(t, ok)
	name, _ := meter.Get("name")
	assert.Equal(t, "Garage", name)

	data, ok := meter.Doc("data")
	require.True(t, ok)
	assert.Equal(t, []string{"1-0:1.4.0", "1-0:32.4.0"}, data.Keys())
	v, _ := data.Get("1-0:32.4.0")
	assert.Equal(t, 231.2, v)

	list, _ := doc.Get("list")
	require.Len(t, list, 2)
	inner, ok := list.([]any)[1].(*Document)
	require.True(t, ok)
	b, _ := inner.Get("a")
	assert.Equal(t, true, b)

	_, ok = doc.Get("none")
	assert.False(t, ok)
	assert.Equal(t, []string{"meter", "list"}, doc.Keys())
}

func TestDocumentPutNilRemoves(t *testing.T) {
	doc := DocumentOf("a", 1.0, "b", nil, "c", "x")
	assert.Equal(t, []string{"a", "c"}, doc.Keys())

	doc.Put("a", nil)
	_, ok := doc.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, doc.Len())

	n := 0
	doc.Each(func(string, any) { n++ })
	assert.Equal(t, doc.Len(), n)
}

func TestDecodeDocumentRejectsNonObject(t *testing.T) {
	_, err := DecodeDocument([]byte(`[1,2]`))
	assert.Error(t, err)
	_, err = DecodeDocument([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestDecodeDocumentEmptyBody(t *testing.T) {
	doc, err := DecodeDocument([]byte("  "))
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Len())
}

func TestNormalizeBools(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{"connected":"true","name":"false","data":{"lockState":"False","autostartstop":"maybe"}}`))
	require.NoError(t, err)
	doc.NormalizeBools(BoolFields)

	v, _ := doc.Get("connected")
	assert.Equal(t, true, v)
	// not a known boolean key
	v, _ = doc.Get("name")
	assert.Equal(t, "false", v)

	data, _ := doc.Doc("data")
	v, _ = data.Get("lockState")
	assert.Equal(t, false, v)
	v, _ = data.Get("autostartstop")
	assert.Equal(t, "maybe", v)
}

func TestDocumentMarshalKeepsOrder(t *testing.T) {
	doc := DocumentOf("z", 1.0, "a", DocumentOf("y", "b", "x", false))
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":{"y":"b","x":false}}`, string(raw))
}

func TestDocumentCloneIsDeep(t *testing.T) {
	orig := DocumentOf("data", DocumentOf("lockState", false))
	clone := orig.Clone()
	data, _ := clone.Doc("data")
	data.Put("lockState", true)

	origData, _ := orig.Doc("data")
	v, _ := origData.Get("lockState")
	assert.Equal(t, false, v)
}
