package document

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	calls  int
	data   json.RawMessage
	addons map[string]AddonData
}

func (r *recordingListener) OnSectionDataImported(data json.RawMessage, addons map[string]AddonData) {
	r.calls++
	r.data = data
	r.addons = addons
}

func TestSectionImport(t *testing.T) {
	s := NewSection("hall")
	l := &recordingListener{}
	s.AddDataListener(l)
	s.AddDataListener(l)

	sd := &SectionData{ID: "hall", Data: json.RawMessage(`{"a":1}`)}
	require.NoError(t, s.Import(sd))

	assert.Equal(t, 1, l.calls, "duplicate listener must be notified once")
	assert.JSONEq(t, `{"a":1}`, string(l.data))
	assert.NotNil(t, l.addons)
	assert.True(t, s.Imported())
}

func TestSectionRejects(t *testing.T) {
	s := NewSection("hall")
	l := &recordingListener{}
	s.AddDataListener(l)

	err := s.Import(&SectionData{ID: "lobby", Data: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, ErrWrongSection)
	assert.False(t, s.Imported())
	assert.Zero(t, l.calls)

	require.NoError(t, s.Import(&SectionData{ID: "hall", Data: json.RawMessage(`{"v":1}`)}))
	err = s.Import(&SectionData{ID: "hall", Data: json.RawMessage(`{"v":2}`)})
	assert.ErrorIs(t, err, ErrAlreadyImported)
	assert.JSONEq(t, `{"v":1}`, string(s.Export().Data), "first import must be preserved")
	assert.Equal(t, 1, l.calls)
}

func TestSectionRemoveListener(t *testing.T) {
	s := NewSection("hall")
	a, b := &recordingListener{}, &recordingListener{}
	s.AddDataListener(a)
	s.AddDataListener(b)
	s.RemoveDataListener(a)
	s.RemoveDataListener(&recordingListener{})

	require.NoError(t, s.Import(&SectionData{ID: "hall", Data: json.RawMessage(`{}`)}))
	assert.Zero(t, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestListenerFunc(t *testing.T) {
	s := NewSection("hall")
	called := 0
	fn := ListenerFunc(func(json.RawMessage, map[string]AddonData) { called++ })
	s.AddDataListener(&fn)
	require.NoError(t, s.Import(&SectionData{ID: "hall", Data: json.RawMessage(`{}`)}))
	assert.Equal(t, 1, called)
}

func TestAddonEnvelopeKeepsExtraKeys(t *testing.T) {
	in := `{"type":"instancing","data":{},"instances":{"mesh-1":{"mesh":"mesh-1","instances":[[1,0,0,0,0,1,0,0,0,0,1,0,5,0,0,1]]}}}`

	var a AddonData
	require.NoError(t, json.Unmarshal([]byte(in), &a))
	assert.Equal(t, "instancing", a.Type)
	require.Contains(t, a.Extra, "instances")

	var instances map[string]struct {
		Mesh      string      `json:"mesh"`
		Instances [][]float64 `json:"instances"`
	}
	found, err := a.Decode("instances", &instances)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 5.0, instances["mesh-1"].Instances[0][12])

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestSectionEncodeDecode(t *testing.T) {
	doc := loadSample(t)
	sd, err := NewSectionData("hall", doc, map[string]AddonData{
		"audio": {Type: "audio", Data: map[string]json.RawMessage{"f1": json.RawMessage(`{"name":"wind","format":"mp3"}`)}},
	})
	require.NoError(t, err)

	for _, compress := range []bool{false, true} {
		var buf bytes.Buffer
		require.NoError(t, EncodeSection(&buf, sd, compress, false))
		if compress {
			assert.True(t, bytes.HasPrefix(buf.Bytes(), gzipMagic))
		}

		got, err := DecodeSection(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, "hall", got.ID)
		assert.Equal(t, "audio", got.Addons["audio"].Type)

		back, err := got.Document()
		require.NoError(t, err)
		assert.Equal(t, doc.Geometries["geo-1"].Index, back.Geometries["geo-1"].Index)
		assert.Equal(t, "Floor", back.Objects[0].Children[0].Name)
	}
}

func TestSectionFile(t *testing.T) {
	doc := loadSample(t)
	sd, err := NewSectionData("hall", doc, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "hall.json.gz")
	require.NoError(t, WriteSectionFile(path, sd, true))

	got, err := ReadSectionFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hall", got.ID)
}

func TestSectionDecodesNonNumericTracks(t *testing.T) {
	sd := &SectionData{ID: "s", Data: json.RawMessage(`{
	  "animations": {"root": [{"name": "blink", "duration": 1, "tracks": [
	    {"name": "eye.visible", "times": [0, 1], "values": [true, false], "type": "bool"},
	    {"name": "eye.name", "times": [0, 1], "values": ["open", "shut"], "type": "string"},
	    {"name": "eye.position", "times": [0], "values": [{"x": 1}], "type": "vector"}
	  ]}]}
	}`)}

	doc, err := sd.Document()
	require.NoError(t, err)
	tracks := doc.Animations["root"][0].Tracks
	require.Len(t, tracks, 3)
	assert.Equal(t, []float64{1, 0}, tracks[0].Values)
	assert.Equal(t, []string{"open", "shut"}, tracks[1].Strings)
	assert.Nil(t, tracks[1].Values)
	assert.Empty(t, tracks[2].Values)
	assert.Empty(t, tracks[2].Strings)
}
