package models

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestImage_KeepsUnknownFields(t *testing.T) {
	const in = `{"size1440x960":"a","size1200x1200":"b","size3000x2000":"c","imageLabels":[{"label":"Kitchen","type":"INTERIOR"}],"focus":{"x":1}}`

	var img Image
	require.NoError(t, json.Unmarshal([]byte(in), &img))
	require.Equal(t, "a", img.Size1440x960)
	require.Equal(t, []ImageLabel{{Label: "Kitchen", Type: "INTERIOR"}}, img.ImageLabels)
	want := map[string]json.RawMessage{"size3000x2000": json.RawMessage(`"c"`), "focus": json.RawMessage(`{"x":1}`)}
	if diff := cmp.Diff(want, img.Extra); diff != "" {
		t.Errorf("extra mismatch (-want +got):\n%s", diff)
	}

	out, err := json.Marshal(img)
	require.NoError(t, err)
	require.JSONEq(t, in, string(out))

	// A named field set in code wins over a copy left in Extra.
	img.Extra["size1440x960"] = json.RawMessage(`"stale"`)
	img.Size1440x960 = "fresh"
	out, err = json.Marshal(img)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	require.Equal(t, "fresh", back["size1440x960"])
}

func TestImage_NoExtraWhenAllKnown(t *testing.T) {
	var img Image
	require.NoError(t, json.Unmarshal([]byte(`{"size720x480":"s"}`), &img))
	require.Nil(t, img.Extra)

	out, err := json.Marshal(img)
	require.NoError(t, err)
	require.JSONEq(t, `{"size720x480":"s"}`, string(out))
}

func TestPropertyRecord_DocID(t *testing.T) {
	require.Equal(t, "42", PropertyRecord{ID: 42}.DocID())
	require.Equal(t, "abc", PropertyRecord{ID: 42, Key: "abc"}.DocID())
}
