package responseformat

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type sample struct {
	Name  string    `json:"name"`
	Value float64   `json:"value"`
	Rows  []float64 `json:"rows,omitempty"`
}

func (s sample) WriteText(w io.Writer) error {
	_, err := io.WriteString(w, "NAME "+s.Name+"\n")
	return err
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: JSON},
		{in: "json", want: JSON},
		{in: "MsgPack", want: MsgPack},
		{in: "text", want: Text},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(false).Write(&buf, JSON, sample{Name: "pww", Value: 0.5}))
	assert.JSONEq(t, `{"name":"pww","value":0.5}`, buf.String())

	buf.Reset()
	require.NoError(t, NewFormatter(true).Write(&buf, JSON, sample{Name: "pww"}))
	assert.Contains(t, buf.String(), "\n  \"name\"")
}

func TestWriteMsgPackUsesJSONTags(t *testing.T) {
	var buf bytes.Buffer
	in := sample{Name: "alpha", Value: 1.25, Rows: []float64{1, 2}}
	require.NoError(t, NewFormatter(false).Write(&buf, MsgPack, in))

	var decoded map[string]any
	require.NoError(t, msgpack.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "alpha", decoded["name"])
	assert.Equal(t, 1.25, decoded["value"])
	assert.NotContains(t, decoded, "Name")
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(false).Write(&buf, Text, sample{Name: "beta"}))
	assert.Equal(t, "NAME beta\n", buf.String())

	err := NewFormatter(false).Write(&buf, Text, map[string]int{"a": 1})
	assert.Error(t, err)
}

func TestWriteUnknownFormat(t *testing.T) {
	err := NewFormatter(false).Write(io.Discard, Format("yaml"), sample{})
	assert.Error(t, err)

	// json is used when no format was chosen
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(false).Write(&buf, "", sample{Name: "x"}))
	var out sample
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "x", out.Name)
}
